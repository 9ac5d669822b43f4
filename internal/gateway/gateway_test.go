package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSession(t *testing.T) {
	var gotAuth string
	var gotBody createSessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           "sess_abc123",
			"redirect_url": "https://gateway.test/pay/sess_abc123",
			"status":       "created",
		})
	}))
	defer srv.Close()

	c := New("key_id", "key_secret", srv.URL)
	sess, err := c.CreateSession(context.Background(), SessionParams{
		OrderID:       "ORD_20250101000000_abcd1234",
		Amount:        49900,
		Currency:      "INR",
		CustomerName:  "Asha",
		CustomerEmail: "asha@example.com",
		CustomerPhone: "9876543210",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Ref != "sess_abc123" || sess.RedirectURL == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if gotAuth == "" {
		t.Fatal("missing basic auth header")
	}
	if gotBody.Amount != 49900 || gotBody.Currency != "INR" || gotBody.Receipt != "ORD_20250101000000_abcd1234" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
	if gotBody.Notes["customer_email"] != "asha@example.com" {
		t.Fatalf("notes not forwarded: %+v", gotBody.Notes)
	}
}

func TestCreateSessionRequiresCredentials(t *testing.T) {
	c := New("", "", "https://gateway.test")
	if _, err := c.CreateSession(context.Background(), SessionParams{}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestSessionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/sess_abc123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sess_abc123", "status": "paid"})
	}))
	defer srv.Close()

	c := New("key_id", "key_secret", srv.URL)
	status, err := c.SessionStatus(context.Background(), "sess_abc123")
	if err != nil {
		t.Fatalf("session status: %v", err)
	}
	if status != "paid" {
		t.Fatalf("expected paid, got %s", status)
	}
}

func TestServerErrorsAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("key_id", "key_secret", srv.URL)
	if _, err := c.SessionStatus(context.Background(), "sess_x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for 5xx, got %v", err)
	}
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse further connections

	c := New("key_id", "key_secret", srv.URL)
	if _, err := c.SessionStatus(context.Background(), "sess_x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for refused connection, got %v", err)
	}
}

func TestRejectionIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad amount"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("key_id", "key_secret", srv.URL)
	_, err := c.CreateSession(context.Background(), SessionParams{Amount: -1})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("active rejection must not look like an outage")
	}
}
