package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"projectkart/internal/domain"
	"projectkart/internal/engine"
)

const defaultOrderListLimit = 200

// registerAdmin wires the token-gated management surface. Every handler here
// starts with requireAdmin; the auth middleware has already resolved the
// bearer token into a Principal when one was presented.
func registerAdmin(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-login",
		Method:      http.MethodPost,
		Path:        "/admin/login",
		Summary:     "Admin login",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body AdminLoginRequest `json:"body"`
	}) (*struct {
		Body AdminLoginResponse `json:"body"`
	}, error) {
		token, admin, err := login(ctx, e.Repo, auth, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
		}
		return &struct {
			Body AdminLoginResponse `json:"body"`
		}{Body: AdminLoginResponse{Token: token, Username: admin.Username}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-verify",
		Method:      http.MethodGet,
		Path:        "/admin/verify",
		Summary:     "Verify admin token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AdminVerifyResponse `json:"body"`
	}, error) {
		p, herr := requireAdmin(ctx)
		if herr != nil {
			return nil, herr
		}
		return &struct {
			Body AdminVerifyResponse `json:"body"`
		}{Body: AdminVerifyResponse{Valid: true, Username: p.Username}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-dashboard",
		Method:      http.MethodGet,
		Path:        "/admin/dashboard",
		Summary:     "Dashboard statistics",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.DashboardStats `json:"body"`
	}, error) {
		if _, herr := requireAdmin(ctx); herr != nil {
			return nil, herr
		}
		stats, err := e.Repo.DashboardStats(ctx, 10)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DashboardStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-orders",
		Method:      http.MethodGet,
		Path:        "/admin/orders",
		Summary:     "List orders",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body []domain.Order `json:"body"`
	}, error) {
		if _, herr := requireAdmin(ctx); herr != nil {
			return nil, herr
		}
		limit := input.Limit
		if limit == 0 {
			limit = defaultOrderListLimit
		}
		orders, err := e.Repo.ListOrders(ctx, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Order `json:"body"`
		}{Body: orders}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-create-subject",
		Method:        http.MethodPost,
		Path:          "/admin/subjects",
		Summary:       "Create subject",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateSubjectRequest `json:"body"`
	}) (*struct {
		Body domain.Subject `json:"body"`
	}, error) {
		p, herr := requireAdmin(ctx)
		if herr != nil {
			return nil, herr
		}
		subject, err := e.CreateSubject(ctx, engine.SubjectParams{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Icon:        input.Body.Icon,
		}, p.AdminID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subject `json:"body"`
		}{Body: subject}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-update-subject",
		Method:      http.MethodPut,
		Path:        "/admin/subjects/{subject_id}",
		Summary:     "Update subject",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubjectID string               `path:"subject_id"`
		Body      UpdateSubjectRequest `json:"body"`
	}) (*struct {
		Body domain.Subject `json:"body"`
	}, error) {
		p, herr := requireAdmin(ctx)
		if herr != nil {
			return nil, herr
		}
		subject, err := e.UpdateSubject(ctx, input.SubjectID, input.Body.Name, input.Body.Description, input.Body.Icon, p.AdminID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subject `json:"body"`
		}{Body: subject}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-delete-subject",
		Method:        http.MethodDelete,
		Path:          "/admin/subjects/{subject_id}",
		Summary:       "Delete subject",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubjectID string `path:"subject_id"`
	}) (*struct{}, error) {
		p, herr := requireAdmin(ctx)
		if herr != nil {
			return nil, herr
		}
		if err := e.DeleteSubject(ctx, input.SubjectID, p.AdminID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-delete-project",
		Method:        http.MethodDelete,
		Path:          "/admin/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		p, herr := requireAdmin(ctx)
		if herr != nil {
			return nil, herr
		}
		if err := e.DeleteProject(ctx, input.ProjectID, p.AdminID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
