// Package engine implements the order and payment lifecycle: order creation
// with a catalog snapshot, the payment session handoff, status verification
// against the gateway, and exactly-once fulfillment.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"projectkart/internal/assets"
	"projectkart/internal/domain"
	"projectkart/internal/events"
	"projectkart/internal/gateway"
	"projectkart/internal/repo"
)

var (
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrAssetUnavailable  = errors.New("asset unavailable")
	ErrNotPaid           = errors.New("payment not completed")
	ErrDemoNotAllowed    = errors.New("demo completion not allowed for gateway-backed order")
)

// ValidationError reports a malformed buyer field. The order is not created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Gateway is what the engine needs from the payment gateway client.
type Gateway interface {
	Configured() bool
	CreateSession(ctx context.Context, p gateway.SessionParams) (gateway.Session, error)
	SessionStatus(ctx context.Context, ref string) (string, error)
}

// Mailer dispatches the purchased PDF to the buyer.
type Mailer interface {
	SendProjectPDF(ctx context.Context, order domain.Order, pdf []byte) error
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Gateway Gateway
	Mailer  Mailer
	Assets  *assets.Store
	Logger  *log.Logger
	Now     func() time.Time

	locks *orderLocks
}

func New(db *sql.DB, gw Gateway, m Mailer, as *assets.Store, logger *log.Logger) Engine {
	if logger == nil {
		logger = log.Default()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Gateway: gw,
		Mailer:  m,
		Assets:  as,
		Logger:  logger,
		Now:     time.Now,
		locks:   newOrderLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateOrderParams are the buyer-supplied order fields.
type CreateOrderParams struct {
	ProjectID     string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

var (
	phoneRe = regexp.MustCompile(`^[0-9]{10}$`)
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

func validateBuyer(p CreateOrderParams) error {
	if strings.TrimSpace(p.CustomerName) == "" {
		return ValidationError{Field: "customer_name", Reason: "must not be empty"}
	}
	if !emailRe.MatchString(p.CustomerEmail) {
		return ValidationError{Field: "customer_email", Reason: "must be a valid email address"}
	}
	if !phoneRe.MatchString(p.CustomerPhone) {
		return ValidationError{Field: "customer_phone", Reason: "must be exactly 10 digits"}
	}
	return nil
}

// CreateOrder validates the buyer, snapshots the catalog project, persists a
// PENDING order and opens a payment session. When no gateway is configured
// the session comes back in demo mode and the purchase stays operable.
func (e Engine) CreateOrder(ctx context.Context, p CreateOrderParams) (domain.Order, domain.PaymentSession, error) {
	if err := validateBuyer(p); err != nil {
		return domain.Order{}, domain.PaymentSession{}, err
	}
	project, err := e.Repo.GetProject(ctx, p.ProjectID)
	if err != nil {
		return domain.Order{}, domain.PaymentSession{}, err
	}

	now := e.now().UTC()
	order := domain.Order{
		OrderID:       newOrderID(now),
		ProjectID:     project.ID,
		ProjectTitle:  project.Title,
		SubjectName:   project.SubjectName,
		Amount:        project.Price,
		CustomerName:  strings.TrimSpace(p.CustomerName),
		CustomerEmail: strings.TrimSpace(p.CustomerEmail),
		CustomerPhone: p.CustomerPhone,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now.Format(time.RFC3339),
		UpdatedAt:     now.Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.PaymentSession{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrder(ctx, tx, order); err != nil {
		return domain.Order{}, domain.PaymentSession{}, fmt.Errorf("insert order: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "order.created", "order", order.OrderID, "customer", events.EventPayload{
		"project_id": order.ProjectID,
		"amount":     order.Amount,
	}); err != nil {
		return domain.Order{}, domain.PaymentSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, domain.PaymentSession{}, err
	}

	session, err := e.openSession(ctx, &order)
	if err != nil {
		return order, domain.PaymentSession{}, err
	}
	return order, session, nil
}

// openSession asks the gateway for a session. Unconfigured or unreachable
// gateways degrade to demo mode instead of failing the purchase; only an
// active rejection by the gateway is surfaced as an error.
func (e Engine) openSession(ctx context.Context, order *domain.Order) (domain.PaymentSession, error) {
	if e.Gateway == nil || !e.Gateway.Configured() {
		return domain.PaymentSession{Mode: domain.SessionDemo}, nil
	}
	sess, err := e.Gateway.CreateSession(ctx, gateway.SessionParams{
		OrderID:       order.OrderID,
		Amount:        order.Amount * 100, // paise
		Currency:      "INR",
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			e.Logger.Printf("gateway unreachable, order %s degrades to demo mode: %v", order.OrderID, err)
			return domain.PaymentSession{Mode: domain.SessionDemo}, nil
		}
		return domain.PaymentSession{}, fmt.Errorf("create payment session: %w", err)
	}
	if err := e.Repo.SetOrderSessionRef(ctx, order.OrderID, sess.Ref, e.nowStr()); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("store session ref: %w", err)
	}
	order.PaymentSessionRef = &sess.Ref
	return domain.PaymentSession{
		Mode:        domain.SessionGateway,
		Ref:         sess.Ref,
		RedirectURL: sess.RedirectURL,
	}, nil
}

func newOrderID(now time.Time) string {
	return fmt.Sprintf("ORD_%s_%s", now.Format("20060102150405"), uuid.NewString()[:8])
}

// GetOrder returns the order snapshot.
func (e Engine) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return e.Repo.GetOrder(ctx, orderID)
}

// mapGatewayStatus folds the gateway's vocabulary onto the three-state
// machine. Unknown statuses stay PENDING and are re-pollable.
func mapGatewayStatus(raw string) (domain.PaymentStatus, bool) {
	switch strings.ToLower(raw) {
	case "paid", "captured", "success":
		return domain.PaymentPaid, true
	case "failed", "expired", "cancelled":
		return domain.PaymentFailed, true
	default:
		return domain.PaymentPending, false
	}
}

// Verify resolves the current payment state of an order. Terminal orders are
// returned unchanged without a gateway call. Safe under concurrent invocation
// (client polling plus gateway webhooks): operations are serialized per
// order_id and the status update itself is a conditional write.
func (e Engine) Verify(ctx context.Context, orderID string) (domain.Order, error) {
	unlock := e.locks.lock(orderID)
	defer unlock()

	order, err := e.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.PaymentStatus.Terminal() {
		// May still owe fulfillment from an earlier failed attempt.
		if order.PaymentStatus == domain.PaymentPaid && !order.Fulfilled() {
			if err := e.fulfill(ctx, order); err != nil {
				return order, err
			}
			return e.Repo.GetOrder(ctx, orderID)
		}
		return order, nil
	}
	if order.PaymentSessionRef == nil {
		// Demo-mode order; nothing to ask the gateway. Completion happens
		// through DemoComplete.
		return order, nil
	}

	raw, err := e.Gateway.SessionStatus(ctx, *order.PaymentSessionRef)
	if err != nil {
		return order, fmt.Errorf("query gateway: %w", err)
	}
	target, terminal := mapGatewayStatus(raw)
	if !terminal {
		return order, nil
	}
	return e.settle(ctx, order, target, "gateway", events.EventPayload{"gateway_status": raw})
}

// DemoComplete finishes a demo-mode order as if the gateway had reported
// success. Refused for orders tied to a real gateway session.
func (e Engine) DemoComplete(ctx context.Context, orderID string) (domain.Order, error) {
	unlock := e.locks.lock(orderID)
	defer unlock()

	order, err := e.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.PaymentSessionRef != nil {
		return order, ErrDemoNotAllowed
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return order, nil
	}
	if order.PaymentStatus == domain.PaymentFailed {
		return order, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.PaymentStatus, domain.PaymentPaid)
	}
	return e.settle(ctx, order, domain.PaymentPaid, "demo", events.EventPayload{"demo": true})
}

// settle applies a PENDING -> terminal transition and, on PAID, fulfills.
// Caller holds the per-order lock.
func (e Engine) settle(ctx context.Context, order domain.Order, target domain.PaymentStatus, actor string, payload events.EventPayload) (domain.Order, error) {
	if err := e.applyStatus(ctx, order, target, actor, payload); err != nil {
		return order, err
	}
	order, err := e.Repo.GetOrder(ctx, order.OrderID)
	if err != nil {
		return order, err
	}
	if order.PaymentStatus == domain.PaymentPaid && !order.Fulfilled() {
		if err := e.fulfill(ctx, order); err != nil {
			return order, err
		}
		return e.Repo.GetOrder(ctx, order.OrderID)
	}
	return order, nil
}

// applyStatus is the single writer of payment_status. Same-state updates are
// no-ops; any attempt to move a PAID order elsewhere is an invariant breach
// and is logged loudly.
func (e Engine) applyStatus(ctx context.Context, order domain.Order, target domain.PaymentStatus, actor string, payload events.EventPayload) error {
	if order.PaymentStatus == target {
		return nil
	}
	if order.PaymentStatus == domain.PaymentPaid {
		e.Logger.Printf("ERROR: refused payment status transition %s -> %s for order %s", order.PaymentStatus, target, order.OrderID)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.PaymentStatus, target)
	}
	if order.PaymentStatus == domain.PaymentFailed && target != domain.PaymentFailed {
		e.Logger.Printf("ERROR: refused payment status transition %s -> %s for order %s", order.PaymentStatus, target, order.OrderID)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.PaymentStatus, target)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	affected, err := e.Repo.UpdateOrderStatus(ctx, tx, order.OrderID, order.PaymentStatus, target, e.nowStr())
	if err != nil {
		return err
	}
	if affected == 0 {
		// Lost a race. The winner's state decides whether this was benign.
		cur, err := e.Repo.GetOrder(ctx, order.OrderID)
		if err != nil {
			return err
		}
		if cur.PaymentStatus == target {
			return nil
		}
		e.Logger.Printf("ERROR: concurrent conflicting transition for order %s: wanted %s, found %s", order.OrderID, target, cur.PaymentStatus)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.PaymentStatus, target)
	}
	evtType := "order.failed"
	if target == domain.PaymentPaid {
		evtType = "order.paid"
	}
	if err := e.Events.Append(ctx, tx, evtType, "order", order.OrderID, actor, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// fulfill delivers a PAID order exactly once: load the asset, email it, mark
// fulfilled. Email failure is lenient (logged, recorded, not blocking); asset
// failure aborts with fulfilled_at unset so a later Verify can retry.
func (e Engine) fulfill(ctx context.Context, order domain.Order) error {
	if order.Fulfilled() {
		return nil
	}
	if order.PaymentStatus != domain.PaymentPaid {
		return fmt.Errorf("%w: fulfill requires PAID, got %s", ErrInvalidTransition, order.PaymentStatus)
	}

	pdf, err := e.readAsset(ctx, order.ProjectID)
	if err != nil {
		return err
	}

	emailed := true
	if e.Mailer == nil {
		emailed = false
	} else if err := e.Mailer.SendProjectPDF(ctx, order, pdf); err != nil {
		emailed = false
		e.Logger.Printf("email dispatch failed for order %s: %v", order.OrderID, err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	affected, err := e.Repo.MarkOrderFulfilled(ctx, tx, order.OrderID, e.nowStr())
	if err != nil {
		return err
	}
	if affected == 0 {
		cur, err := e.Repo.GetOrder(ctx, order.OrderID)
		if err != nil {
			return err
		}
		if cur.Fulfilled() {
			return nil
		}
		return fmt.Errorf("%w: fulfill requires PAID, got %s", ErrInvalidTransition, cur.PaymentStatus)
	}
	if err := e.Events.Append(ctx, tx, "order.fulfilled", "order", order.OrderID, "system", events.EventPayload{
		"emailed": emailed,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) readAsset(ctx context.Context, projectID string) ([]byte, error) {
	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: project %s missing from catalog", ErrAssetUnavailable, projectID)
		}
		return nil, err
	}
	rc, err := e.Assets.Open(project.FileName)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAssetUnavailable, project.FileName)
		}
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrAssetUnavailable, project.FileName, err)
	}
	return data, nil
}

// Download resolves the asset stream for a paid order. Serving is refused
// until the gateway has confirmed payment.
func (e Engine) Download(ctx context.Context, orderID string) (io.ReadCloser, string, error) {
	order, err := e.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	if order.PaymentStatus != domain.PaymentPaid {
		return nil, "", ErrNotPaid
	}
	project, err := e.Repo.GetProject(ctx, order.ProjectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: project %s missing from catalog", ErrAssetUnavailable, order.ProjectID)
		}
		return nil, "", err
	}
	rc, err := e.Assets.Open(project.FileName)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrAssetUnavailable, project.FileName)
		}
		return nil, "", err
	}
	return rc, project.Title + ".pdf", nil
}

// VerifyBySessionRef funnels a gateway webhook into the same verification
// path as client polling.
func (e Engine) VerifyBySessionRef(ctx context.Context, ref string) (domain.Order, error) {
	order, err := e.Repo.GetOrderBySessionRef(ctx, ref)
	if err != nil {
		return domain.Order{}, err
	}
	return e.Verify(ctx, order.OrderID)
}
