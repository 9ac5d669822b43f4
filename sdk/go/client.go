package projectkartsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal ProjectKart HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path,
// e.g. "http://localhost:8080/api".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Subject is a catalog category.
type Subject struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Icon         string `json:"icon,omitempty"`
	ProjectCount int    `json:"project_count"`
	CreatedAt    string `json:"created_at"`
}

// Project is a purchasable catalog entry.
type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Price       int64  `json:"price"`
	CreatedAt   string `json:"created_at"`
}

// Order is one purchase attempt with its catalog snapshot.
type Order struct {
	OrderID           string  `json:"order_id"`
	ProjectID         string  `json:"project_id"`
	ProjectTitle      string  `json:"project_title"`
	SubjectName       string  `json:"subject_name"`
	Amount            int64   `json:"amount"`
	CustomerName      string  `json:"customer_name"`
	CustomerEmail     string  `json:"customer_email"`
	CustomerPhone     string  `json:"customer_phone"`
	PaymentStatus     string  `json:"payment_status"`
	PaymentSessionRef *string `json:"payment_session_ref,omitempty"`
	FulfilledAt       *string `json:"fulfilled_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// PaymentSession is the checkout handle returned at order creation. Mode
// "demo" means no live gateway was available.
type PaymentSession struct {
	Mode        string `json:"mode"`
	Ref         string `json:"ref,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// CreateOrderResult pairs the created order with its payment session.
type CreateOrderResult struct {
	Order   Order          `json:"order"`
	Session PaymentSession `json:"session"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Subjects lists the catalog subjects.
func (c *Client) Subjects(ctx context.Context) ([]Subject, error) {
	var resp []Subject
	err := c.do(ctx, http.MethodGet, "subjects", nil, &resp)
	return resp, err
}

// Projects lists projects, optionally filtered by subject.
func (c *Client) Projects(ctx context.Context, subjectID string) ([]Project, error) {
	endpoint := "projects"
	if subjectID != "" {
		endpoint = fmt.Sprintf("projects?subject_id=%s", url.QueryEscape(subjectID))
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateOrder places an order for a project.
func (c *Client) CreateOrder(ctx context.Context, projectID, name, email, phone string) (CreateOrderResult, error) {
	body := map[string]any{
		"project_id":     projectID,
		"customer_name":  name,
		"customer_email": email,
		"customer_phone": phone,
	}
	var resp CreateOrderResult
	err := c.do(ctx, http.MethodPost, "orders", body, &resp)
	return resp, err
}

// Order fetches an order by id.
func (c *Client) Order(ctx context.Context, orderID string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(orderID), nil, &resp)
	return resp, err
}

// Verify asks the server to resolve the order's payment status. Idempotent;
// safe to poll.
func (c *Client) Verify(ctx context.Context, orderID string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodPost, "orders/"+url.PathEscape(orderID)+"/verify", nil, &resp)
	return resp, err
}

// DemoComplete finishes a demo-mode order as paid.
func (c *Client) DemoComplete(ctx context.Context, orderID string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodPost, "orders/"+url.PathEscape(orderID)+"/demo-complete", nil, &resp)
	return resp, err
}

// Login exchanges admin credentials for a bearer token and stores it on the
// client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]any{"username": username, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "admin/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// Orders lists recent orders. Requires a bearer token.
func (c *Client) Orders(ctx context.Context, limit int) ([]Order, error) {
	endpoint := "admin/orders"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Order
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Download streams the purchased PDF for a paid order. The caller owns the
// returned ReadCloser.
func (c *Client) Download(ctx context.Context, orderID string) (io.ReadCloser, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/download/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
