// Package handlers exposes the gateway callback endpoints. These are the only
// unauthenticated routes: the gateway cannot carry our bearer tokens, and per
// its contract every delivery is acknowledged with ResultCode 0 - a non-200
// or slow response just triggers a redelivery storm.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jowabu/plotpay/internal/clients/daraja"
	"github.com/jowabu/plotpay/internal/identity"
	"github.com/jowabu/plotpay/internal/modules/callbacks"
	"github.com/jowabu/plotpay/internal/modules/payments"
	"github.com/jowabu/plotpay/internal/modules/reconciliation"
)

// Reconciler runs a payment event through the reconciliation engine.
// Satisfied by *reconciliation.Service.
type Reconciler interface {
	Reconcile(p reconciliation.IncomingPayment) (reconciliation.Outcome, error)
}

// Handlers handles gateway callback endpoints
type Handlers struct {
	intake     *callbacks.Repository
	reconciler Reconciler
	log        zerolog.Logger
}

// New creates new callback handlers
func New(intake *callbacks.Repository, reconciler Reconciler, log zerolog.Logger) *Handlers {
	return &Handlers{
		intake:     intake,
		reconciler: reconciler,
		log:        log.With().Str("component", "callback_handlers").Logger(),
	}
}

// RegisterRoutes registers the callback routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/stk-callback", h.HandleSTKCallback)
	r.Route("/c2b", func(r chi.Router) {
		r.Post("/validate", h.HandleC2BValidation)
		r.Post("/confirm", h.HandleC2BConfirmation)
	})
}

// HandleSTKCallback ingests the asynchronous STK push result. The raw payload
// is stored byte-for-byte; only successful results with an extractable phone
// number go on to reconciliation, everything else is kept for audit and
// dropped silently.
func (h *Handlers) HandleSTKCallback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read STK callback body")
		ack(w, "Accepted")
		return
	}

	var envelope daraja.STKCallbackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Body.StkCallback == nil {
		h.log.Warn().Msg("Malformed STK callback, dropping")
		ack(w, "Accepted")
		return
	}
	cb := envelope.Body.StkCallback

	transID := cb.CheckoutRequestID
	if transID == "" {
		transID = cb.MerchantRequestID
	}
	if transID == "" {
		h.log.Warn().Msg("STK callback without request ids, dropping")
		ack(w, "Accepted")
		return
	}

	phone := cb.MetadataValue("PhoneNumber")
	payerKey := ""
	if phone != "" {
		payerKey = identity.Hash(phone)
	}

	status := callbacks.StatusCompleted
	if cb.ResultCode != 0 {
		status = callbacks.StatusFailed
	}

	tx := &callbacks.STKTransaction{
		CheckoutRequestID: transID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Amount:            cb.MetadataValue("Amount"),
		PayerKeyHash:      payerKey,
		Receipt:           cb.MetadataValue("MpesaReceiptNumber"),
		TransTime:         cb.MetadataValue("TransactionDate"),
		Status:            status,
		RawPayload:        raw,
	}

	if _, err := h.intake.SaveSTKIfAbsent(tx); err != nil {
		h.log.Error().Err(err).Str("trans_id", transID).Msg("Failed to store STK callback")
		ack(w, "Accepted")
		return
	}

	// Only confirmed pushes with a payer identity are money. Cancellations,
	// timeouts and phoneless payloads stay in the intake table.
	if cb.ResultCode != 0 || payerKey == "" {
		ack(w, "Accepted")
		return
	}

	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		h.log.Warn().
			Str("trans_id", transID).
			Str("amount", tx.Amount).
			Msg("STK callback with unusable amount, leaving for manual replay")
		ack(w, "Accepted")
		return
	}

	h.reconcile(reconciliation.IncomingPayment{
		TransID:      transID,
		Mpesa:        amount,
		PayerKeyHash: payerKey,
		TransTime:    tx.TransTime,
		Source:       payments.SourceSTK,
	})

	ack(w, "Accepted")
}

// HandleC2BValidation accepts every payment offered for validation
func (h *Handlers) HandleC2BValidation(w http.ResponseWriter, r *http.Request) {
	ack(w, "Accepted")
}

// HandleC2BConfirmation ingests a payer-initiated payment confirmation
func (h *Handlers) HandleC2BConfirmation(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read C2B confirmation body")
		ack(w, "Confirmation received successfully")
		return
	}

	var conf daraja.C2BConfirmation
	if err := json.Unmarshal(raw, &conf); err != nil || conf.TransID == "" {
		h.log.Warn().Msg("Malformed C2B confirmation, dropping")
		ack(w, "Confirmation received successfully")
		return
	}

	payerKey := ""
	if conf.MSISDN != "" {
		payerKey = identity.Hash(conf.MSISDN)
	}

	tx := &callbacks.C2BTransaction{
		TransID:      conf.TransID,
		Amount:       conf.TransAmount,
		PayerKeyHash: payerKey,
		BillRef:      conf.BillRefNumber,
		TransTime:    conf.TransTime,
		RawPayload:   raw,
	}

	if _, err := h.intake.SaveC2BIfAbsent(tx); err != nil {
		h.log.Error().Err(err).Str("trans_id", conf.TransID).Msg("Failed to store C2B confirmation")
		ack(w, "Confirmation received successfully")
		return
	}

	if payerKey == "" {
		h.log.Warn().Str("trans_id", conf.TransID).Msg("C2B confirmation without MSISDN, dropping")
		ack(w, "Confirmation received successfully")
		return
	}

	amount, err := decimal.NewFromString(conf.TransAmount)
	if err != nil {
		h.log.Warn().
			Str("trans_id", conf.TransID).
			Str("amount", conf.TransAmount).
			Msg("C2B confirmation with unusable amount, leaving for manual replay")
		ack(w, "Confirmation received successfully")
		return
	}

	h.reconcile(reconciliation.IncomingPayment{
		TransID:      conf.TransID,
		Mpesa:        amount,
		PayerKeyHash: payerKey,
		TransTime:    conf.TransTime,
		Source:       payments.SourceC2B,
	})

	ack(w, "Confirmation received successfully")
}

// reconcile runs the engine and logs failures with the transaction id for
// replay. The gateway is acknowledged either way: the sweep picks up what
// failed here.
func (h *Handlers) reconcile(p reconciliation.IncomingPayment) {
	if _, err := h.reconciler.Reconcile(p); err != nil {
		h.log.Error().
			Err(err).
			Str("trans_id", p.TransID).
			Msg("Reconciliation failed, left for sweep replay")
	}
}

func ack(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(daraja.AckAccepted(desc))
}
