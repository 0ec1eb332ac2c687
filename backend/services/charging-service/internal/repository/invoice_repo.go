package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

const invoiceColumns = `id, user_id, session_id, payment_id, amount, currency, status, issued_at, paid_at, cancelled_at`

// InvoiceRepository persists invoices. invoices_session_uq keeps one invoice per session.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository returns repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	const query = `
		INSERT INTO invoices (id, user_id, session_id, payment_id, amount, currency, status, issued_at, paid_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.UserID,
		inv.SessionID,
		inv.PaymentID,
		inv.Amount,
		inv.Currency,
		inv.Status,
		inv.IssuedAt,
		inv.PaidAt,
		inv.CancelledAt,
	)
	if err == nil {
		return nil
	}
	if constraint, ok := constraintViolation(err, codeUniqueViolation); ok && constraint == "invoices_session_uq" {
		return service.ErrInvoiceExists
	}
	if _, ok := constraintViolation(err, codeForeignKeyViolation); ok {
		return service.ErrSessionNotFound
	}
	return fmt.Errorf("invoices: insert: %w", err)
}

// Update stores status changes.
func (r *InvoiceRepository) Update(ctx context.Context, inv *models.Invoice) error {
	const query = `
		UPDATE invoices
		SET status = $2,
		    payment_id = $3,
		    paid_at = $4,
		    cancelled_at = $5
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, inv.ID, inv.Status, inv.PaymentID, inv.PaidAt, inv.CancelledAt)
	if err != nil {
		return fmt.Errorf("invoices: update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return service.ErrInvoiceNotFound
	}
	return nil
}

// Get loads an invoice by id.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*models.Invoice, error) {
	return r.one(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// GetBySession loads the invoice of a session.
func (r *InvoiceRepository) GetBySession(ctx context.Context, sessionID string) (*models.Invoice, error) {
	return r.one(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE session_id = $1`, sessionID)
}

// ListByUser returns latest invoices for user.
func (r *InvoiceRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE user_id = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *InvoiceRepository) one(ctx context.Context, query, arg string) (*models.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invoices: select: %w", err)
	}
	return inv, nil
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	if err := row.Scan(
		&inv.ID,
		&inv.UserID,
		&inv.SessionID,
		&inv.PaymentID,
		&inv.Amount,
		&inv.Currency,
		&inv.Status,
		&inv.IssuedAt,
		&inv.PaidAt,
		&inv.CancelledAt,
	); err != nil {
		return nil, err
	}
	normalizeTimes(&inv.IssuedAt, inv.PaidAt, inv.CancelledAt)
	return &inv, nil
}
