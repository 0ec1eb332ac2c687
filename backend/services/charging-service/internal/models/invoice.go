package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus describes invoice payment state.
type InvoiceStatus string

// Invoice statuses.
const (
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice is the single billing artifact of a completed session.
type Invoice struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	SessionID   string          `db:"session_id" json:"session_id"`
	PaymentID   string          `db:"payment_id" json:"payment_id,omitempty"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	Status      InvoiceStatus   `db:"status" json:"status"`
	IssuedAt    time.Time       `db:"issued_at" json:"issued_at"`
	PaidAt      *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CancelledAt *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// Clone returns a detached copy.
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	c.PaidAt = cloneTime(i.PaidAt)
	c.CancelledAt = cloneTime(i.CancelledAt)
	return &c
}
