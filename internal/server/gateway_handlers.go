package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jowabu/plotpay/internal/clients/daraja"
)

// GatewayHandlers exposes the administrative gateway operations: triggering
// payment prompts and managing the gateway registration. All of these sit
// behind auth.
type GatewayHandlers struct {
	client *daraja.Client
	log    zerolog.Logger
}

// NewGatewayHandlers creates new gateway admin handlers
func NewGatewayHandlers(client *daraja.Client, log zerolog.Logger) *GatewayHandlers {
	return &GatewayHandlers{
		client: client,
		log:    log.With().Str("component", "gateway_handlers").Logger(),
	}
}

// RegisterRoutes registers the gateway admin routes
func (h *GatewayHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/gateway", func(r chi.Router) {
		r.Post("/stk-push", h.HandleSTKPush)
		r.Post("/register-urls", h.HandleRegisterURLs)
		r.Post("/register-pull", h.HandleRegisterPull)
		r.Get("/pull", h.HandlePullQuery)
	})
}

type stkPushRequest struct {
	Phone  string          `json:"phone"`
	Amount decimal.Decimal `json:"amount"`
}

// HandleSTKPush prompts a payer's handset for payment. The money itself
// arrives later through the STK callback.
func (h *GatewayHandlers) HandleSTKPush(w http.ResponseWriter, r *http.Request) {
	var req stkPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Phone == "" || !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Phone and a positive amount are required")
		return
	}

	resp, err := h.client.STKPush(req.Phone, req.Amount)
	if err != nil {
		h.log.Error().Err(err).Msg("STK push failed")
		writeError(w, http.StatusBadGateway, "Failed to initiate payment prompt")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"checkoutRequestID": resp.CheckoutRequestID,
		"responseDesc":      resp.ResponseDescription,
	})
}

// HandleRegisterURLs registers our validation and confirmation URLs with the
// gateway. Run once per short code, idempotent on the gateway side.
func (h *GatewayHandlers) HandleRegisterURLs(w http.ResponseWriter, r *http.Request) {
	if err := h.client.RegisterC2BURLs(); err != nil {
		h.log.Error().Err(err).Msg("C2B URL registration failed")
		writeError(w, http.StatusBadGateway, "Failed to register callback URLs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type registerPullRequest struct {
	NominatedNumber string `json:"nominatedNumber"`
}

// HandleRegisterPull registers the organization for transaction pulls
func (h *GatewayHandlers) HandleRegisterPull(w http.ResponseWriter, r *http.Request) {
	var req registerPullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NominatedNumber == "" {
		writeError(w, http.StatusBadRequest, "A nominated number is required")
		return
	}

	if err := h.client.RegisterPull(req.NominatedNumber); err != nil {
		h.log.Error().Err(err).Msg("Pull registration failed")
		writeError(w, http.StatusBadGateway, "Failed to register for transaction pulls")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HandlePullQuery fetches transactions straight from the gateway, for
// auditing against the local ledger.
func (h *GatewayHandlers) HandlePullQuery(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start and end are required (yyyy-MM-dd HH:mm:ss)")
		return
	}

	raw, err := h.client.QueryPullTransactions(start, end, 0)
	if err != nil {
		h.log.Error().Err(err).Msg("Pull query failed")
		writeError(w, http.StatusBadGateway, "Failed to query gateway transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"transactions": raw,
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
