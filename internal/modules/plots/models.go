// Package plots manages billing records: the rental plots whose tenants pay a
// recurring utility fee, and the resolution of an incoming payer to one of them.
package plots

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlotType distinguishes the two billing shapes
type PlotType string

const (
	// TypeLumpsum - one flat expected payment per period for the whole plot
	TypeLumpsum PlotType = "lumpsum"
	// TypeIndividual - every tenant is billed a fixed per-period amount
	TypeIndividual PlotType = "individual"
)

// Tenant is one resident of an individual plot. The phone number is kept for
// administration; matching always happens on the hashed payer key.
type Tenant struct {
	Name         string          `json:"name"`
	Phone        string          `json:"phone"`
	PayerKeyHash string          `json:"payerKeyHash"`
	Expected     decimal.Decimal `json:"amount"`
}

// Plot is a billing record
type Plot struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	CaretakerName  string    `json:"caretakerName,omitempty"`
	CaretakerPhone string    `json:"caretakerPhone,omitempty"`
	Type           PlotType  `json:"plotType"`
	Units          int       `json:"units"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`

	// Lumpsum fields
	PayerKeyHash    string          `json:"payerKeyHash,omitempty"`
	LumpsumExpected decimal.Decimal `json:"lumpsumExpected"`
	PayoutMSISDN    string          `json:"mpesaNumber,omitempty"`

	// Individual fields
	Tenants []Tenant `json:"tenants,omitempty"`
}

// Resolution is the outcome of matching a hashed payer key against the
// billing records.
type Resolution struct {
	Recognized  bool
	Expected    decimal.Decimal
	DisplayName string // tenant name, or the plot name for lumpsum plots
	PayerKey    string // canonical hashed payout identity for this payer
	PlotName    string
	Units       int
}
