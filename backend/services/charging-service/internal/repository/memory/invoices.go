package memory

import (
	"context"
	"sort"
	"sync"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

// InvoiceRepository is an in-memory invoice store with a unique session index.
type InvoiceRepository struct {
	mu        sync.RWMutex
	data      map[string]*models.Invoice
	bySession map[string]string
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{
		data:      make(map[string]*models.Invoice),
		bySession: make(map[string]string),
	}
}

// Create stores a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySession[invoice.SessionID]; ok {
		return service.ErrInvoiceExists
	}
	r.data[invoice.ID] = invoice.Clone()
	r.bySession[invoice.SessionID] = invoice.ID
	return nil
}

// Update overwrites a stored invoice.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[invoice.ID]; !ok {
		return service.ErrInvoiceNotFound
	}
	r.data[invoice.ID] = invoice.Clone()
	return nil
}

// Get loads an invoice by id.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*models.Invoice, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.data[id]
	if !ok {
		return nil, service.ErrInvoiceNotFound
	}
	return inv.Clone(), nil
}

// GetBySession loads the invoice of a session.
func (r *InvoiceRepository) GetBySession(ctx context.Context, sessionID string) (*models.Invoice, error) {
	r.mu.RLock()
	id, ok := r.bySession[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, service.ErrInvoiceNotFound
	}
	return r.Get(ctx, id)
}

// ListByUser returns last N invoices for user, newest first.
func (r *InvoiceRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	result := make([]models.Invoice, 0)
	for _, inv := range r.data {
		if inv.UserID == userID {
			result = append(result, *inv.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].IssuedAt.After(result[j].IssuedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
