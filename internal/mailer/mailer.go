// Package mailer delivers the purchased PDF to the buyer over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"projectkart/internal/domain"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// Configured reports whether SMTP credentials are present. Without them the
// send is skipped; fulfillment does not depend on email (lenient policy).
func (m *Mailer) Configured() bool {
	return m != nil && m.cfg.Host != "" && m.cfg.Username != "" && m.cfg.Password != ""
}

// SendProjectPDF emails the purchased PDF as an attachment.
func (m *Mailer) SendProjectPDF(ctx context.Context, order domain.Order, pdf []byte) error {
	if !m.Configured() {
		return errors.New("smtp not configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(order.CustomerEmail); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Your Project PDF - %s", order.ProjectTitle))
	msg.SetBodyString(mail.TypeTextHTML, purchaseBody(order))
	if err := msg.AttachReader(order.ProjectTitle+".pdf", bytes.NewReader(pdf)); err != nil {
		return fmt.Errorf("attach pdf: %w", err)
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", order.CustomerEmail, err)
	}
	return nil
}

func purchaseBody(order domain.Order) string {
	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<h1>Thank You for Your Purchase!</h1>
<p>Hi %s,</p>
<p>Thank you for your order <strong>%s</strong>.</p>
<p>Your project PDF "<strong>%s</strong>" is attached to this email.</p>
<p>If you have any questions, just reply to this message.</p>
</body>
</html>`, order.CustomerName, order.OrderID, order.ProjectTitle)
}
