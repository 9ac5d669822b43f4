// Package gateway is the client for the hosted payment gateway. The core
// never renders a payment UI; it opens a session, hands the buyer the
// redirect URL, and later asks the gateway what became of the session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable marks transport-level failures (timeouts, refused
// connections, gateway 5xx). Callers treat these as "no real gateway right
// now" and may fall back to demo mode; they never corrupt order state.
var ErrUnavailable = errors.New("payment gateway unavailable")

const defaultTimeout = 10 * time.Second

type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	httpc     *http.Client
}

func New(keyID, keySecret, baseURL string) *Client {
	return &Client{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpc:     &http.Client{Timeout: defaultTimeout},
	}
}

// Configured reports whether live credentials are present. Without them every
// purchase runs in demo mode.
func (c *Client) Configured() bool {
	return c != nil && c.keyID != "" && c.keySecret != ""
}

// SessionParams carries what the gateway needs to collect a payment.
// Amount is in the smallest currency unit (paise for INR).
type SessionParams struct {
	OrderID       string
	Amount        int64
	Currency      string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// Session is the remote handle plus the hosted-checkout redirect target.
type Session struct {
	Ref         string
	RedirectURL string
}

type createSessionRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createSessionResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
	Status      string `json:"status"`
}

func (c *Client) CreateSession(ctx context.Context, p SessionParams) (Session, error) {
	if !c.Configured() {
		return Session{}, errors.New("gateway credentials not configured")
	}
	body := createSessionRequest{
		Amount:   p.Amount,
		Currency: p.Currency,
		Receipt:  p.OrderID,
		Notes: map[string]string{
			"customer_name":  p.CustomerName,
			"customer_email": p.CustomerEmail,
			"customer_phone": p.CustomerPhone,
		},
	}
	var resp createSessionResponse
	if err := c.do(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return Session{}, err
	}
	if resp.ID == "" {
		return Session{}, fmt.Errorf("gateway returned session without id")
	}
	return Session{Ref: resp.ID, RedirectURL: resp.RedirectURL}, nil
}

type sessionStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SessionStatus returns the gateway's raw status vocabulary for a session.
// Mapping onto the order state machine belongs to the verification engine.
func (c *Client) SessionStatus(ctx context.Context, ref string) (string, error) {
	var resp sessionStatusResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+ref, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if res.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway responded %d", ErrUnavailable, res.StatusCode)
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return fmt.Errorf("gateway rejected request: %d %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}
