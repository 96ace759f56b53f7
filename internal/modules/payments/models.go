// Package payments persists the reconciled payment ledger. One record per
// external transaction id; monetary fields and allocations are write-once.
package payments

import (
	"time"

	"github.com/jowabu/plotpay/internal/domain"
	"github.com/shopspring/decimal"
)

// Source identifies how a payment entered the system
type Source string

const (
	// SourceSTK - gateway-initiated push confirmed via the STK callback
	SourceSTK Source = "STK"
	// SourceC2B - payer-initiated payment confirmed via the C2B callback
	SourceC2B Source = "C2B"
	// SourceManual - entered by an administrator, reconciled the same way
	SourceManual Source = "MANUAL"
)

// AmountBreakdown splits a payment into its mobile-money and cash parts.
// Total is always Mpesa + Cash.
type AmountBreakdown struct {
	Mpesa decimal.Decimal `json:"mpesa"`
	Cash  decimal.Decimal `json:"cash"`
	Total decimal.Decimal `json:"total"`
}

// PaymentRecord is one reconciled payment. TransID is the idempotency
// boundary: the gateway's transaction identifier, written at most once.
type PaymentRecord struct {
	TransID     string                `json:"transID"`
	PlotName    string                `json:"plotName"` // "Unknown" when the payer was not matched
	Units       int                   `json:"units"`
	Amount      AmountBreakdown       `json:"amount"`
	PayerKey    string                `json:"phone"` // canonical hashed payer key
	Name        string                `json:"name"`
	TimeDisplay string                `json:"time"` // "DD/MM/YYYY HH:MM" from the gateway timestamp
	Source      Source                `json:"source"`
	MonthsPaid  []domain.Allocation   `json:"monthPaid"`
	Statuses    []domain.PeriodStatus `json:"status"`
	Shortfall   *domain.Shortfall     `json:"less"`
	CreatedAt   time.Time             `json:"createdAt"`
}
