package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

type payInvoiceRequest struct {
	PaymentID string `json:"payment_id"`
}

// NewIssueInvoiceHandler returns POST /api/sessions/{id}/invoice handler. Repeated calls return
// the same invoice.
func NewIssueInvoiceHandler(invoices *service.InvoiceService, sessions *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := ownedSession(w, r, sessions, logger)
		if !ok {
			return
		}
		invoice, err := invoices.IssueOrGet(r.Context(), session.ID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, invoice)
	}
}

// NewInvoiceHandler returns GET /api/invoices/{id} handler.
func NewInvoiceHandler(invoices *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, ok := ownedInvoice(w, r, invoices, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, invoice)
	}
}

// NewInvoicesMeHandler returns GET /api/invoices/me handler.
func NewInvoicesMeHandler(invoices *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		limit, err := parseLimit(r)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		list, err := invoices.ListForUser(r.Context(), userID, limit)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"invoices": list,
		})
	}
}

// NewPayInvoiceHandler returns POST /api/invoices/{id}/pay handler, the payment callback. It is
// routed for operators only; the billed customer cannot settle their own invoice.
func NewPayInvoiceHandler(invoices *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payInvoiceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		paid, err := invoices.MarkPaid(r.Context(), r.PathValue("id"), req.PaymentID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, paid)
	}
}

// NewCancelInvoiceHandler returns POST /api/invoices/{id}/cancel handler.
func NewCancelInvoiceHandler(invoices *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, err := invoices.Cancel(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, invoice)
	}
}

func ownedInvoice(w http.ResponseWriter, r *http.Request, invoices *service.InvoiceService, logger *zap.Logger) (*models.Invoice, bool) {
	invoice, err := invoices.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, logger, err)
		return nil, false
	}
	if !authorizeOwner(w, r, invoice.UserID) {
		return nil, false
	}
	return invoice, true
}
