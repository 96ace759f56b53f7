// Package handlers exposes the payment-ledger endpoints. Reads are plain
// queries; the only writes are manual payments routed through the
// reconciliation engine and identity corrections on existing records.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jowabu/plotpay/internal/identity"
	"github.com/jowabu/plotpay/internal/modules/payments"
	"github.com/jowabu/plotpay/internal/modules/reconciliation"
)

// Reconciler runs a payment event through the reconciliation engine.
// Satisfied by *reconciliation.Service.
type Reconciler interface {
	Reconcile(p reconciliation.IncomingPayment) (reconciliation.Outcome, error)
}

// Handlers handles payment HTTP endpoints
type Handlers struct {
	repo       *payments.Repository
	reconciler Reconciler
	log        zerolog.Logger
}

// New creates new payment handlers
func New(repo *payments.Repository, reconciler Reconciler, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:       repo,
		reconciler: reconciler,
		log:        log.With().Str("component", "payment_handlers").Logger(),
	}
}

// RegisterRoutes registers payment routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{transID}", h.HandleGet)
		r.Post("/", h.HandleCreateManual)
		r.Patch("/{transID}", h.HandleCorrectIdentity)
	})
}

// HandleList returns payments newest first
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.List(0)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list payments")
		writeError(w, http.StatusInternalServerError, "Failed to fetch payments")
		return
	}
	if all == nil {
		all = []payments.PaymentRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"payments": all,
	})
}

// HandleGet returns one payment by transaction id
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.GetByTransID(chi.URLParam(r, "transID"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get payment")
		writeError(w, http.StatusInternalServerError, "Failed to fetch payment")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Payment not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"payment": rec,
	})
}

type manualPaymentRequest struct {
	TransID     string          `json:"transID"`
	MpesaAmount decimal.Decimal `json:"mpesaAmount"`
	CashAmount  decimal.Decimal `json:"cashAmount"`
	Phone       string          `json:"phone"`
	TransTime   string          `json:"transTime"`
}

// HandleCreateManual records an administrator-entered payment. It goes
// through the same reconciliation engine as gateway callbacks - there is no
// path that writes a ledger record directly.
func (h *Handlers) HandleCreateManual(w http.ResponseWriter, r *http.Request) {
	var req manualPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	total := req.MpesaAmount.Add(req.CashAmount)
	if req.Phone == "" || !total.IsPositive() {
		writeError(w, http.StatusBadRequest, "Phone and a positive amount are required")
		return
	}

	transID := req.TransID
	if transID == "" {
		transID = "MAN-" + uuid.NewString()
	}

	outcome, err := h.reconciler.Reconcile(reconciliation.IncomingPayment{
		TransID:      transID,
		Mpesa:        req.MpesaAmount,
		Cash:         req.CashAmount,
		PayerKeyHash: identity.Hash(req.Phone),
		TransTime:    req.TransTime,
		Source:       payments.SourceManual,
	})
	if err != nil {
		h.log.Error().Err(err).Str("trans_id", transID).Msg("Manual payment reconciliation failed")
		writeError(w, http.StatusInternalServerError, "Failed to reconcile payment")
		return
	}
	if outcome.Duplicate {
		writeError(w, http.StatusConflict, "Payment with this transID already exists")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"payment": outcome.Record,
	})
}

// HandleCorrectIdentity updates the payer name/phone on a record. Requests
// touching monetary or allocation fields are rejected outright: those are
// write-once at reconciliation time.
func (h *Handlers) HandleCorrectIdentity(w http.ResponseWriter, r *http.Request) {
	transID := chi.URLParam(r, "transID")

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	for key := range fields {
		if key != "name" && key != "phone" {
			writeError(w, http.StatusBadRequest,
				"Only the payer name and phone can be corrected after reconciliation")
			return
		}
	}

	existing, err := h.repo.GetByTransID(transID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load payment for correction")
		writeError(w, http.StatusInternalServerError, "Failed to update payment")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Payment not found")
		return
	}

	name := existing.Name
	payerKey := existing.PayerKey

	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &name); err != nil || name == "" {
			writeError(w, http.StatusBadRequest, "Invalid name")
			return
		}
	}
	if raw, ok := fields["phone"]; ok {
		var phone string
		if err := json.Unmarshal(raw, &phone); err != nil || phone == "" {
			writeError(w, http.StatusBadRequest, "Invalid phone")
			return
		}
		payerKey = identity.Hash(phone)
	}

	if err := h.repo.UpdateIdentity(transID, name, payerKey); err != nil {
		h.log.Error().Err(err).Str("trans_id", transID).Msg("Failed to correct payment identity")
		writeError(w, http.StatusInternalServerError, "Failed to update payment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
