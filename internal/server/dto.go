package server

import (
	"projectkart/internal/domain"
)

// Request payloads

type CreateOrderRequest struct {
	ProjectID     string `json:"project_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateSubjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

type UpdateSubjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

// Response payloads

type CreateOrderResponse struct {
	Order   domain.Order          `json:"order"`
	Session domain.PaymentSession `json:"session"`
}

type AdminLoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type AdminVerifyResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username"`
}

// webhookPayload is deliberately loose: gateways evolve their envelopes and a
// webhook must never bounce on an unknown shape.
type webhookPayload struct {
	Event   string `json:"event,omitempty"`
	Payload struct {
		Session struct {
			ID     string `json:"id,omitempty"`
			Status string `json:"status,omitempty"`
		} `json:"session,omitempty"`
	} `json:"payload,omitempty"`
}
