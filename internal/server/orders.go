package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"projectkart/internal/domain"
	"projectkart/internal/engine"
)

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Create order",
		Description:   "Snapshots the project price, persists a PENDING order and opens a payment session. A demo-mode session means no live gateway is configured; complete the purchase through demo-complete.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*struct {
		Body CreateOrderResponse `json:"body"`
	}, error) {
		order, session, err := e.CreateOrder(ctx, engine.CreateOrderParams{
			ProjectID:     input.Body.ProjectID,
			CustomerName:  input.Body.CustomerName,
			CustomerEmail: input.Body.CustomerEmail,
			CustomerPhone: input.Body.CustomerPhone,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateOrderResponse `json:"body"`
		}{Body: CreateOrderResponse{Order: order, Session: session}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		order, err := e.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: order}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-order",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/verify",
		Summary:     "Verify order payment",
		Description: "Idempotent and pollable. Resolves the gateway session status, applies the transition and triggers fulfillment on success.",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		order, err := e.Verify(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: order}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "demo-complete-order",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/demo-complete",
		Summary:     "Complete a demo-mode order",
		Description: "Simulates gateway success for orders created without a live gateway. Refused for orders tied to a real payment session.",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		order, err := e.DemoComplete(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: order}, nil
	})
}

// registerWebhook accepts the gateway's server-to-server callback. It funnels
// into the same Verify path as client polling, so interleaving is safe. The
// response is always 200: the gateway only needs to know we heard it, and a
// failed resolution is retried by the next poll.
func registerWebhook(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "payment-webhook",
		Method:      http.MethodPost,
		Path:        "/payments/webhook",
		Summary:     "Payment gateway webhook",
	}, func(ctx context.Context, input *struct {
		Body webhookPayload `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		ref := input.Body.Payload.Session.ID
		if ref != "" {
			if _, err := e.VerifyBySessionRef(ctx, ref); err != nil {
				e.Logger.Printf("webhook: resolve session %s: %v", ref, err)
			}
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "received"}}, nil
	})
}
