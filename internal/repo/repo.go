package repo

import (
	"context"
	"database/sql"
	"errors"

	"projectkart/internal/domain"
)

// Repo is the SQL repository. Catalog rows are read-only from the order
// engine's point of view; only admin endpoints mutate them.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Subjects

func (r Repo) InsertSubject(ctx context.Context, s domain.Subject) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO subjects(id,name,description,icon,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.Name, nullable(s.Description), nullable(s.Icon), s.CreatedAt)
	return err
}

func (r Repo) GetSubject(ctx context.Context, id string) (domain.Subject, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),COALESCE(icon,''),created_at FROM subjects WHERE id=?`, id)
	var s domain.Subject
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Icon, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetSubjectByName(ctx context.Context, name string) (domain.Subject, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),COALESCE(icon,''),created_at FROM subjects WHERE name=?`, name)
	var s domain.Subject
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Icon, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListSubjects(ctx context.Context) ([]domain.Subject, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT s.id, s.name, COALESCE(s.description,''), COALESCE(s.icon,''), s.created_at,
			(SELECT COUNT(*) FROM projects p WHERE p.subject_id = s.id)
		FROM subjects s ORDER BY s.created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Subject
	for rows.Next() {
		var s domain.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Icon, &s.CreatedAt, &s.ProjectCount); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateSubject(ctx context.Context, id string, name, description, icon *string) error {
	cur, err := r.GetSubject(ctx, id)
	if err != nil {
		return err
	}
	if name != nil {
		cur.Name = *name
	}
	if description != nil {
		cur.Description = *description
	}
	if icon != nil {
		cur.Icon = *icon
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE subjects SET name=?, description=?, icon=? WHERE id=?`,
		cur.Name, nullable(cur.Description), nullable(cur.Icon), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	// Keep the denormalized subject_name on projects in step.
	if name != nil {
		_, err = r.DB.ExecContext(ctx, `UPDATE projects SET subject_name=? WHERE subject_id=?`, cur.Name, id)
	}
	return err
}

func (r Repo) DeleteSubject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM subjects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountProjectsForSubject(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE subject_id=?`, subjectID).Scan(&n)
	return n, err
}

// Projects

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.SubjectID, &p.SubjectName, &p.Price, &p.FileName, &p.OriginalFileName, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

const projectCols = `id,title,COALESCE(description,''),subject_id,subject_name,price,file_name,COALESCE(original_file_name,''),created_at`

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,title,description,subject_id,subject_name,price,file_name,original_file_name,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullable(p.Description), p.SubjectID, p.SubjectName, p.Price, p.FileName, nullable(p.OriginalFileName), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context, subjectID string) ([]domain.Project, error) {
	q := `SELECT ` + projectCols + ` FROM projects`
	var args []any
	if subjectID != "" {
		q += ` WHERE subject_id=?`
		args = append(args, subjectID)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.SubjectID, &p.SubjectName, &p.Price, &p.FileName, &p.OriginalFileName, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET title=?, description=?, subject_id=?, subject_name=?, price=?, file_name=?, original_file_name=? WHERE id=?`,
		p.Title, nullable(p.Description), p.SubjectID, p.SubjectName, p.Price, p.FileName, nullable(p.OriginalFileName), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Admins

func (r Repo) UpsertAdmin(ctx context.Context, a domain.Admin) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO admins(id,username,password_hash,created_at) VALUES (?,?,?,?)
		ON CONFLICT(username) DO UPDATE SET password_hash=excluded.password_hash`,
		a.ID, a.Username, a.PasswordHash, a.CreatedAt)
	return err
}

func (r Repo) GetAdminByUsername(ctx context.Context, username string) (domain.Admin, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,username,password_hash,created_at FROM admins WHERE username=?`, username)
	var a domain.Admin
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// Dashboard

func (r Repo) DashboardStats(ctx context.Context, recent int) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	row := r.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM subjects),
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM orders WHERE payment_status='PAID'),
			(SELECT COALESCE(SUM(amount),0) FROM orders WHERE payment_status='PAID')`)
	if err := row.Scan(&stats.TotalSubjects, &stats.TotalProjects, &stats.TotalOrders, &stats.PaidOrders, &stats.TotalRevenue); err != nil {
		return stats, err
	}
	orders, err := r.ListOrders(ctx, recent)
	if err != nil {
		return stats, err
	}
	stats.RecentOrders = orders
	return stats, nil
}

// Events

func (r Repo) LatestEvents(ctx context.Context, limit int, entityKind, entityID string) ([]domain.Event, error) {
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		conds []string
		args  []any
	)
	if entityKind != "" {
		conds = append(conds, `entity_kind=?`)
		args = append(args, entityKind)
	}
	if entityID != "" {
		conds = append(conds, `entity_id=?`)
		args = append(args, entityID)
	}
	for i, c := range conds {
		if i == 0 {
			q += ` WHERE ` + c
		} else {
			q += ` AND ` + c
		}
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
