package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"projectkart/internal/domain"
	"projectkart/internal/engine"
)

// registerCatalog exposes the public, read-only catalog browse endpoints.
func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-subjects",
		Method:      http.MethodGet,
		Path:        "/subjects",
		Summary:     "List subjects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Subject `json:"body"`
	}, error) {
		subjects, err := e.Repo.ListSubjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Subject `json:"body"`
		}{Body: subjects}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-subject",
		Method:      http.MethodGet,
		Path:        "/subjects/{subject_id}",
		Summary:     "Get subject",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubjectID string `path:"subject_id"`
	}) (*struct {
		Body domain.Subject `json:"body"`
	}, error) {
		subject, err := e.Repo.GetSubject(ctx, input.SubjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subject `json:"body"`
		}{Body: subject}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Description: "Optionally filtered by subject.",
	}, func(ctx context.Context, input *struct {
		SubjectID string `query:"subject_id"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		projects, err := e.Repo.ListProjects(ctx, input.SubjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: projects}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		project, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})
}
