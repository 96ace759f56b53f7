package domain

import "github.com/shopspring/decimal"

// PeriodState describes how a billing period came out of an allocation pass.
type PeriodState string

const (
	// StateComplete - the period received its full expected amount
	StateComplete PeriodState = "complete"
	// StateIncomplete - the period received a partial amount; the remainder
	// is carried forward as a shortfall
	StateIncomplete PeriodState = "incomplete"
	// StateUnrecognized - the payer could not be matched to any billing record
	StateUnrecognized PeriodState = "unrecognized"
)

// Allocation is one slice of a payment applied to a billing period.
type Allocation struct {
	Period Period          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// PeriodStatus records the resulting state of a period touched by an
// allocation pass. Unrecognized entries carry no period.
type PeriodStatus struct {
	Period *Period     `json:"month,omitempty"`
	State  PeriodState `json:"state"`
}

// Shortfall is the unpaid remainder of a period's expected amount ("less" in
// the books), cleared first by the payer's next payment.
type Shortfall struct {
	Amount    decimal.Decimal `json:"amount"`
	DuePeriod Period          `json:"dueMonth"`
}
