package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/models"
)

// InvoiceService turns completed sessions into invoices, exactly one per session.
type InvoiceService struct {
	invoices InvoiceStore
	sessions SessionStore
	locker   Locker
	metrics  Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewInvoiceService builds service. Only WithMetrics and WithClock apply.
func NewInvoiceService(invoices InvoiceStore, sessions SessionStore, locker Locker, logger *zap.Logger, opts ...Option) *InvoiceService {
	o := buildOptions(opts)
	return &InvoiceService{
		invoices: invoices,
		sessions: sessions,
		locker:   locker,
		metrics:  o.metrics,
		logger:   logger,
		now:      o.now,
	}
}

// IssueOrGet returns the invoice of a completed session, creating it on first call.
// Callers may retry freely; every call returns the same invoice.
func (s *InvoiceService) IssueOrGet(ctx context.Context, sessionID string) (*models.Invoice, error) {
	unlock, err := s.locker.Lock(ctx, "invoice:"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("invoices: acquire lock: %w", err)
	}
	defer unlock()

	existing, err := s.invoices.GetBySession(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusCompleted || session.TotalCost == nil {
		return nil, ErrSessionNotCompleted
	}

	invoice := &models.Invoice{
		ID:        uuid.NewString(),
		UserID:    session.UserID,
		SessionID: session.ID,
		Amount:    *session.TotalCost,
		Currency:  session.Tariff.Currency,
		Status:    models.InvoiceStatusIssued,
		IssuedAt:  s.now(),
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		if errors.Is(err, ErrInvoiceExists) {
			// another instance won the race
			return s.invoices.GetBySession(ctx, sessionID)
		}
		return nil, err
	}

	s.metrics.InvoiceIssued()
	s.logger.Info("invoice issued",
		zap.String("invoice_id", invoice.ID),
		zap.String("session_id", session.ID),
		zap.String("amount", invoice.Amount.String()),
	)
	return invoice.Clone(), nil
}

// Get returns an invoice by id.
func (s *InvoiceService) Get(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	return s.invoices.Get(ctx, invoiceID)
}

// ListForUser returns the user's invoices, newest first.
func (s *InvoiceService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	return s.invoices.ListByUser(ctx, userID, limit)
}

// MarkPaid records a successful payment. Repeating the call with the same payment id is a no-op.
func (s *InvoiceService) MarkPaid(ctx context.Context, invoiceID, paymentID string) (*models.Invoice, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	return s.transition(ctx, invoiceID, func(inv *models.Invoice, at time.Time) (bool, error) {
		if inv.Status == models.InvoiceStatusPaid && inv.PaymentID == paymentID {
			return false, nil
		}
		if inv.Status != models.InvoiceStatusIssued {
			return false, ErrInvalidInvoiceTransition
		}
		inv.Status = models.InvoiceStatusPaid
		inv.PaymentID = paymentID
		inv.PaidAt = &at
		return true, nil
	})
}

// Cancel voids an unpaid invoice.
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	return s.transition(ctx, invoiceID, func(inv *models.Invoice, at time.Time) (bool, error) {
		if inv.Status != models.InvoiceStatusIssued {
			return false, ErrInvalidInvoiceTransition
		}
		inv.Status = models.InvoiceStatusCancelled
		inv.CancelledAt = &at
		return true, nil
	})
}

func (s *InvoiceService) transition(ctx context.Context, invoiceID string, apply func(*models.Invoice, time.Time) (bool, error)) (*models.Invoice, error) {
	unlock, err := s.locker.Lock(ctx, "invoice-id:"+invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoices: acquire lock: %w", err)
	}
	defer unlock()

	invoice, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	changed, err := apply(invoice, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return invoice, nil
	}
	if err := s.invoices.Update(ctx, invoice); err != nil {
		return nil, err
	}
	s.logger.Info("invoice status changed",
		zap.String("invoice_id", invoice.ID),
		zap.String("status", string(invoice.Status)),
	)
	return invoice, nil
}
