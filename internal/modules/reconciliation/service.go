package reconciliation

import (
	"fmt"
	"time"

	"github.com/jowabu/plotpay/internal/domain"
	"github.com/jowabu/plotpay/internal/modules/payments"
	"github.com/jowabu/plotpay/internal/modules/plots"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PayerResolver matches a hashed payer key to a billing record.
// Satisfied by *plots.Resolver.
type PayerResolver interface {
	Resolve(hashedKey string) (plots.Resolution, error)
}

// PaymentStore is the ledger the orchestrator writes to.
// Satisfied by *payments.Repository.
type PaymentStore interface {
	Exists(transID string) (bool, error)
	WriteIfAbsent(rec *payments.PaymentRecord) (bool, error)
	LatestByPayerKey(payerKey string) (*payments.PaymentRecord, error)
}

// IncomingPayment is a single payment event entering reconciliation.
// The callback layer has already filtered failed STK results and extracted
// and hashed the payer's phone number.
type IncomingPayment struct {
	TransID      string
	Mpesa        decimal.Decimal
	Cash         decimal.Decimal
	PayerKeyHash string
	TransTime    string // gateway "YYYYMMDDHHMMSS", may be empty
	Source       payments.Source
}

// Outcome reports what reconciliation did with an event.
type Outcome struct {
	Duplicate  bool // the transaction id was already on the ledger
	Recognized bool
	Record     *payments.PaymentRecord // nil on duplicates
}

// Service composes resolution, allocation and the idempotent ledger write for
// one incoming payment event.
type Service struct {
	resolver PayerResolver
	store    PaymentStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates a new reconciliation service
func NewService(resolver PayerResolver, store PaymentStore, log zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		store:    store,
		log:      log.With().Str("component", "reconciliation").Logger(),
		now:      time.Now,
	}
}

// Reconcile processes one payment event end to end:
// idempotency check, payer resolution, carried-shortfall lookup, allocation,
// idempotent write. Store failures surface as errors; callers that answer the
// gateway must still acknowledge the callback and rely on the sweep to replay.
func (s *Service) Reconcile(p IncomingPayment) (Outcome, error) {
	if p.TransID == "" {
		return Outcome{}, fmt.Errorf("incoming payment has no transaction id")
	}

	exists, err := s.store.Exists(p.TransID)
	if err != nil {
		return Outcome{}, fmt.Errorf("idempotency check failed for %s: %w", p.TransID, err)
	}
	if exists {
		s.log.Debug().Str("trans_id", p.TransID).Msg("Transaction already reconciled")
		return Outcome{Duplicate: true}, nil
	}

	total := p.Mpesa.Add(p.Cash)

	res, err := s.resolver.Resolve(p.PayerKeyHash)
	if err != nil {
		return Outcome{}, fmt.Errorf("payer resolution failed for %s: %w", p.TransID, err)
	}

	period, paidAt, parsed := paymentPeriod(p.TransTime, s.now)
	if !parsed && p.TransTime != "" {
		s.log.Warn().
			Str("trans_id", p.TransID).
			Str("trans_time", p.TransTime).
			Msg("Unparseable transaction time, falling back to current month")
	}

	rec := &payments.PaymentRecord{
		TransID:     p.TransID,
		PlotName:    res.PlotName,
		Units:       res.Units,
		Amount:      payments.AmountBreakdown{Mpesa: p.Mpesa, Cash: p.Cash, Total: total},
		PayerKey:    res.PayerKey,
		Name:        res.DisplayName,
		TimeDisplay: FormatTransTime(paidAt),
		Source:      p.Source,
		MonthsPaid:  []domain.Allocation{},
		Statuses:    []domain.PeriodStatus{},
		CreatedAt:   s.now().UTC(),
	}

	if !res.Recognized {
		// Never discard an unmatched payment: record it with the full amount
		// so an administrator can reassign it later.
		rec.Statuses = []domain.PeriodStatus{{State: domain.StateUnrecognized}}

		written, err := s.store.WriteIfAbsent(rec)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to record unrecognized payment %s: %w", p.TransID, err)
		}

		s.log.Info().
			Str("trans_id", p.TransID).
			Str("total", total.String()).
			Msg("Unrecognized payer, recorded as Unknown")
		return Outcome{Duplicate: !written, Record: rec}, nil
	}

	carried := s.carriedShortfall(res.PayerKey)

	allocation, err := Allocate(total, res.Expected, carried, period)
	if err != nil {
		return Outcome{}, fmt.Errorf("allocation failed for %s: %w", p.TransID, err)
	}

	rec.MonthsPaid = allocation.Allocations
	rec.Statuses = allocation.Statuses
	rec.Shortfall = allocation.Shortfall

	written, err := s.store.WriteIfAbsent(rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record payment %s: %w", p.TransID, err)
	}

	event := s.log.Info().
		Str("trans_id", p.TransID).
		Str("plot", res.PlotName).
		Str("payer", res.DisplayName).
		Str("total", total.String()).
		Int("periods", len(allocation.Allocations))
	if allocation.Shortfall != nil {
		event = event.
			Str("shortfall", allocation.Shortfall.Amount.String()).
			Str("due_period", allocation.Shortfall.DuePeriod.String())
	}
	event.Msg("Payment reconciled")

	return Outcome{Duplicate: !written, Recognized: true, Record: rec}, nil
}

// carriedShortfall finds the unpaid remainder left by the payer's most recent
// payment. Lookup failures degrade to "no shortfall": a missing supporting
// index must never abort the whole reconciliation.
func (s *Service) carriedShortfall(payerKey string) *domain.Shortfall {
	prev, err := s.store.LatestByPayerKey(payerKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("Carried-shortfall lookup failed, proceeding without")
		return nil
	}
	if prev == nil || prev.Shortfall == nil || !prev.Shortfall.Amount.IsPositive() {
		return nil
	}
	return prev.Shortfall
}
