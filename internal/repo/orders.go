package repo

import (
	"context"
	"database/sql"

	"projectkart/internal/domain"
)

const orderCols = `order_id,project_id,project_title,subject_name,amount,customer_name,customer_email,customer_phone,payment_status,payment_session_ref,fulfilled_at,created_at,updated_at`

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var o domain.Order
	var sessionRef, fulfilledAt sql.NullString
	err := scan(
		&o.OrderID, &o.ProjectID, &o.ProjectTitle, &o.SubjectName, &o.Amount,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.PaymentStatus, &sessionRef, &fulfilledAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if sessionRef.Valid {
		o.PaymentSessionRef = &sessionRef.String
	}
	if fulfilledAt.Valid {
		o.FulfilledAt = &fulfilledAt.String
	}
	return o, nil
}

func (r Repo) InsertOrder(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders(`+orderCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.OrderID, o.ProjectID, o.ProjectTitle, o.SubjectName, o.Amount,
		o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.PaymentStatus, o.PaymentSessionRef, o.FulfilledAt, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE order_id=?`, orderID)
	return scanOrder(row.Scan)
}

// GetOrderBySessionRef resolves a gateway callback to the owning order.
func (r Repo) GetOrderBySessionRef(ctx context.Context, ref string) (domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE payment_session_ref=?`, ref)
	return scanOrder(row.Scan)
}

func (r Repo) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// SetOrderSessionRef stores the gateway handle exactly once. A second call for
// the same order is a silent no-op.
func (r Repo) SetOrderSessionRef(ctx context.Context, orderID, ref, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE orders SET payment_session_ref=?, updated_at=?
		WHERE order_id=? AND payment_session_ref IS NULL`,
		ref, updatedAt, orderID)
	return err
}

// UpdateOrderStatus moves an order from one payment status to another with a
// conditional update. The rows-affected answer is the concurrency guard: of N
// racing transitions out of the same state, exactly one observes affected=1.
func (r Repo) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, orderID string, from, to domain.PaymentStatus, updatedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET payment_status=?, updated_at=?
		WHERE order_id=? AND payment_status=?`,
		to, updatedAt, orderID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkOrderFulfilled sets fulfilled_at once, only for PAID orders. Zero rows
// affected means the caller must re-read the order to tell "already fulfilled"
// (idempotent success) from "not PAID" (invalid transition).
func (r Repo) MarkOrderFulfilled(ctx context.Context, tx *sql.Tx, orderID, fulfilledAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET fulfilled_at=?, updated_at=?
		WHERE order_id=? AND payment_status=? AND fulfilled_at IS NULL`,
		fulfilledAt, fulfilledAt, orderID, domain.PaymentPaid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
