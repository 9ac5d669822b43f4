package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"projectkart/internal/domain"
	"projectkart/internal/events"
)

// Catalog mutations live here so every admin edit lands in the event log and
// project files stay in step with catalog rows. The order engine itself only
// ever reads the catalog.

type SubjectParams struct {
	Name        string
	Description string
	Icon        string
}

func (e Engine) CreateSubject(ctx context.Context, p SubjectParams, actorID string) (domain.Subject, error) {
	if strings.TrimSpace(p.Name) == "" {
		return domain.Subject{}, ValidationError{Field: "name", Reason: "must not be empty"}
	}
	s := domain.Subject{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		Icon:        p.Icon,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertSubject(ctx, s); err != nil {
		return domain.Subject{}, err
	}
	e.logEvent(ctx, "subject.created", "subject", s.ID, actorID, events.EventPayload{"name": s.Name})
	return s, nil
}

func (e Engine) UpdateSubject(ctx context.Context, id string, name, description, icon *string, actorID string) (domain.Subject, error) {
	if err := e.Repo.UpdateSubject(ctx, id, name, description, icon); err != nil {
		return domain.Subject{}, err
	}
	s, err := e.Repo.GetSubject(ctx, id)
	if err != nil {
		return domain.Subject{}, err
	}
	e.logEvent(ctx, "subject.updated", "subject", id, actorID, nil)
	return s, nil
}

// DeleteSubject refuses while projects still reference the subject.
func (e Engine) DeleteSubject(ctx context.Context, id string, actorID string) error {
	n, err := e.Repo.CountProjectsForSubject(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ValidationError{Field: "subject", Reason: fmt.Sprintf("cannot delete subject with %d projects", n)}
	}
	if err := e.Repo.DeleteSubject(ctx, id); err != nil {
		return err
	}
	e.logEvent(ctx, "subject.deleted", "subject", id, actorID, nil)
	return nil
}

type ProjectParams struct {
	Title            string
	Description      string
	SubjectID        string
	Price            int64
	OriginalFileName string
	File             io.Reader
}

func (e Engine) CreateProject(ctx context.Context, p ProjectParams, actorID string) (domain.Project, error) {
	if strings.TrimSpace(p.Title) == "" {
		return domain.Project{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Price <= 0 {
		return domain.Project{}, ValidationError{Field: "price", Reason: "must be a positive amount"}
	}
	if p.File == nil {
		return domain.Project{}, ValidationError{Field: "file", Reason: "pdf file is required"}
	}
	subject, err := e.Repo.GetSubject(ctx, p.SubjectID)
	if err != nil {
		return domain.Project{}, err
	}

	id := uuid.NewString()
	fileName := id + fileExt(p.OriginalFileName)
	if err := e.Assets.Save(fileName, p.File); err != nil {
		return domain.Project{}, fmt.Errorf("store asset: %w", err)
	}
	project := domain.Project{
		ID:               id,
		Title:            strings.TrimSpace(p.Title),
		Description:      p.Description,
		SubjectID:        subject.ID,
		SubjectName:      subject.Name,
		Price:            p.Price,
		FileName:         fileName,
		OriginalFileName: p.OriginalFileName,
		CreatedAt:        e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertProject(ctx, project); err != nil {
		e.Assets.Remove(fileName)
		return domain.Project{}, err
	}
	e.logEvent(ctx, "project.created", "project", id, actorID, events.EventPayload{"title": project.Title, "price": project.Price})
	return project, nil
}

type ProjectUpdateParams struct {
	Title            *string
	Description      *string
	SubjectID        *string
	Price            *int64
	OriginalFileName string
	File             io.Reader
}

func (e Engine) UpdateProject(ctx context.Context, id string, p ProjectUpdateParams, actorID string) (domain.Project, error) {
	project, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return domain.Project{}, ValidationError{Field: "title", Reason: "must not be empty"}
		}
		project.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		project.Description = *p.Description
	}
	if p.Price != nil {
		if *p.Price <= 0 {
			return domain.Project{}, ValidationError{Field: "price", Reason: "must be a positive amount"}
		}
		project.Price = *p.Price
	}
	if p.SubjectID != nil {
		subject, err := e.Repo.GetSubject(ctx, *p.SubjectID)
		if err != nil {
			return domain.Project{}, err
		}
		project.SubjectID = subject.ID
		project.SubjectName = subject.Name
	}
	if p.File != nil {
		old := project.FileName
		project.FileName = project.ID + fileExt(p.OriginalFileName)
		project.OriginalFileName = p.OriginalFileName
		if err := e.Assets.Save(project.FileName, p.File); err != nil {
			return domain.Project{}, fmt.Errorf("store asset: %w", err)
		}
		if old != project.FileName {
			e.Assets.Remove(old)
		}
	}
	if err := e.Repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	e.logEvent(ctx, "project.updated", "project", id, actorID, nil)
	return project, nil
}

func (e Engine) DeleteProject(ctx context.Context, id string, actorID string) error {
	project, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	e.Assets.Remove(project.FileName)
	e.logEvent(ctx, "project.deleted", "project", id, actorID, events.EventPayload{"title": project.Title})
	return nil
}

func fileExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		return name[i:]
	}
	return ".pdf"
}

// logEvent appends a catalog event in its own short transaction. Catalog
// edits are single-row writes, so losing the event on a crash between the
// two statements is acceptable; order lifecycle events stay transactional.
func (e Engine) logEvent(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Logger.Printf("event %s: begin tx: %v", evtType, err)
		return
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		e.Logger.Printf("event %s: %v", evtType, err)
		return
	}
	if err := tx.Commit(); err != nil {
		e.Logger.Printf("event %s: commit: %v", evtType, err)
	}
}
