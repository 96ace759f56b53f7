// Package handlers exposes the billing-record CRUD endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jowabu/plotpay/internal/identity"
	"github.com/jowabu/plotpay/internal/modules/plots"
)

// Handlers handles plot HTTP endpoints
type Handlers struct {
	repo *plots.Repository
	log  zerolog.Logger
}

// New creates new plot handlers
func New(repo *plots.Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("component", "plot_handlers").Logger(),
	}
}

// RegisterRoutes registers plot routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/plots", func(r chi.Router) {
		r.Post("/", h.HandleRegister)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
	})
}

type tenantRequest struct {
	Name   string          `json:"name"`
	Phone  string          `json:"phone"`
	Amount decimal.Decimal `json:"amount"`
}

type registerRequest struct {
	Name            string          `json:"name"`
	Location        string          `json:"location"`
	CaretakerName   string          `json:"caretakerName"`
	CaretakerPhone  string          `json:"caretakerPhone"`
	PlotType        plots.PlotType  `json:"plotType"`
	Units           int             `json:"units"`
	LumpsumExpected decimal.Decimal `json:"lumpsumExpected"`
	MpesaNumber     string          `json:"mpesaNumber"`
	Tenants         []tenantRequest `json:"tenants"`
}

// HandleRegister creates a billing record. Payer phone numbers are hashed
// here, at the boundary - nothing below this layer sees a plaintext MSISDN on
// the matching path.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Location == "" || req.PlotType == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	existing, err := h.repo.GetByName(req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check for duplicate plot name")
		writeError(w, http.StatusInternalServerError, "Failed to register plot")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "A plot with this name already exists")
		return
	}

	plot := &plots.Plot{
		Name:           req.Name,
		Location:       req.Location,
		CaretakerName:  req.CaretakerName,
		CaretakerPhone: req.CaretakerPhone,
		Type:           req.PlotType,
	}

	switch req.PlotType {
	case plots.TypeLumpsum:
		if req.Units <= 0 || !req.LumpsumExpected.IsPositive() || req.MpesaNumber == "" {
			writeError(w, http.StatusBadRequest,
				"Units, lumpsum amount and MPESA number are required for lumpsum plots")
			return
		}
		plot.Units = req.Units
		plot.LumpsumExpected = req.LumpsumExpected
		plot.PayoutMSISDN = req.MpesaNumber
		plot.PayerKeyHash = identity.Hash(req.MpesaNumber)

	case plots.TypeIndividual:
		if len(req.Tenants) == 0 {
			writeError(w, http.StatusBadRequest, "At least one tenant is required")
			return
		}
		for _, t := range req.Tenants {
			if t.Name == "" || t.Phone == "" || !t.Amount.IsPositive() {
				writeError(w, http.StatusBadRequest,
					"Every tenant needs a name, phone and positive amount")
				return
			}
			plot.Tenants = append(plot.Tenants, plots.Tenant{
				Name:         t.Name,
				Phone:        t.Phone,
				PayerKeyHash: identity.Hash(t.Phone),
				Expected:     t.Amount,
			})
		}
		plot.Units = len(req.Tenants)

	default:
		writeError(w, http.StatusBadRequest, "Unknown plot type")
		return
	}

	if err := h.repo.Create(plot); err != nil {
		h.log.Error().Err(err).Str("plot", req.Name).Msg("Failed to register plot")
		writeError(w, http.StatusInternalServerError, "Failed to register plot")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"id":      plot.ID,
	})
}

// HandleList returns all plots
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.ListAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list plots")
		writeError(w, http.StatusInternalServerError, "Failed to fetch plots")
		return
	}
	if all == nil {
		all = []plots.Plot{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"plots":   all,
	})
}

// HandleGet returns one plot by id
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	plot, err := h.repo.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get plot")
		writeError(w, http.StatusInternalServerError, "Failed to fetch plot")
		return
	}
	if plot == nil {
		writeError(w, http.StatusNotFound, "Plot not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"plot":    plot,
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
