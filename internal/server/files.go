package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"projectkart/internal/engine"
)

// Project PDFs arrive as multipart uploads and leave as binary streams, so
// these routes sit on the chi router directly rather than behind huma's
// JSON-schema pipeline.

const maxUploadBytes = 64 << 20 // 64 MiB

func registerFiles(router chi.Router, basePath string, e engine.Engine) {
	router.Post(basePath+"/admin/projects", func(w http.ResponseWriter, req *http.Request) {
		p, ok := principalFromContext(req.Context())
		if !ok || p.AdminID == "" {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "admin token required", nil))
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
		if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid multipart form", nil))
			return
		}
		price, err := parsePrice(req.FormValue("price"))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "validation_error", "file is required", map[string]any{"field": "file"}))
			return
		}
		defer file.Close()

		project, err := e.CreateProject(req.Context(), engine.ProjectParams{
			Title:            req.FormValue("title"),
			Description:      req.FormValue("description"),
			SubjectID:        req.FormValue("subject_id"),
			Price:            price,
			OriginalFileName: header.Filename,
			File:             file,
		}, p.AdminID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		respondJSON(w, http.StatusCreated, project)
	})

	router.Put(basePath+"/admin/projects/{project_id}", func(w http.ResponseWriter, req *http.Request) {
		p, ok := principalFromContext(req.Context())
		if !ok || p.AdminID == "" {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "admin token required", nil))
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
		if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid multipart form", nil))
			return
		}

		var params engine.ProjectUpdateParams
		if v, ok := formValue(req, "title"); ok {
			params.Title = &v
		}
		if v, ok := formValue(req, "description"); ok {
			params.Description = &v
		}
		if v, ok := formValue(req, "subject_id"); ok {
			params.SubjectID = &v
		}
		if v, ok := formValue(req, "price"); ok {
			price, err := parsePrice(v)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			params.Price = &price
		}
		if file, header, err := req.FormFile("file"); err == nil {
			defer file.Close()
			params.File = file
			params.OriginalFileName = header.Filename
		}

		project, err := e.UpdateProject(req.Context(), chi.URLParam(req, "project_id"), params, p.AdminID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		respondJSON(w, http.StatusOK, project)
	})

	router.Get(basePath+"/download/{order_id}", func(w http.ResponseWriter, req *http.Request) {
		rc, filename, err := e.Download(req.Context(), chi.URLParam(req, "order_id"))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if _, err := io.Copy(w, rc); err != nil {
			// Headers are gone; nothing left to do but note it.
			e.Logger.Printf("download stream aborted: %v", err)
		}
	})
}

func parsePrice(raw string) (int64, error) {
	price, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || price <= 0 {
		return 0, engine.ValidationError{Field: "price", Reason: "must be a positive integer"}
	}
	return price, nil
}

// formValue distinguishes an absent field from an empty one so updates can
// leave unmentioned fields alone.
func formValue(req *http.Request, key string) (string, bool) {
	if req.MultipartForm == nil {
		return "", false
	}
	vals, ok := req.MultipartForm.Value[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}
