// Package reconciliation implements the payment reconciliation engine: the
// allocation of an incoming payment across monthly billing periods and the
// orchestration that turns a gateway event into exactly one ledger record.
package reconciliation

import (
	"fmt"

	"github.com/jowabu/plotpay/internal/domain"
	"github.com/shopspring/decimal"
)

// AllocationResult is the outcome of spreading a payment across periods.
type AllocationResult struct {
	Allocations []domain.Allocation
	Statuses    []domain.PeriodStatus
	Shortfall   *domain.Shortfall
}

// Allocate spreads total across billing periods, addition-only, in two phases.
//
// Phase 1 clears a shortfall carried over from the payer's previous payment:
// the carried amount is paid into its due period first. If the payment cannot
// cover it the whole payment goes there, the remainder is carried forward
// again, and allocation stops - phase 2 never runs.
//
// Phase 2 walks forward from start, filling each period with the expected
// amount until the money runs out. A period that receives less than expected
// is marked incomplete and its remainder becomes the new shortfall.
//
// Invariants: the allocated amounts sum to total exactly; at most one period
// is incomplete and it is always the last one touched; a shortfall is
// returned iff the last period is incomplete.
func Allocate(total, expected decimal.Decimal, carried *domain.Shortfall, start domain.Period) (AllocationResult, error) {
	if !expected.IsPositive() {
		return AllocationResult{}, fmt.Errorf("expected periodic amount must be positive, got %s", expected)
	}
	if total.IsNegative() {
		return AllocationResult{}, fmt.Errorf("payment total must not be negative, got %s", total)
	}

	var result AllocationResult
	remaining := total

	// Phase 1 - clear the carried shortfall
	if carried != nil && carried.Amount.IsPositive() {
		due := carried.Amount

		if remaining.GreaterThanOrEqual(due) {
			result.apply(carried.DuePeriod, due, domain.StateComplete)
			remaining = remaining.Sub(due)
		} else {
			result.apply(carried.DuePeriod, remaining, domain.StateIncomplete)
			result.Shortfall = &domain.Shortfall{
				Amount:    due.Sub(remaining),
				DuePeriod: carried.DuePeriod,
			}
			return result, nil
		}
	}

	// Phase 2 - forward allocation from the payment's own period
	cursor := start

	for remaining.IsPositive() {
		if remaining.GreaterThanOrEqual(expected) {
			result.apply(cursor, expected, domain.StateComplete)
			remaining = remaining.Sub(expected)
			cursor = cursor.Next()
		} else {
			result.apply(cursor, remaining, domain.StateIncomplete)
			result.Shortfall = &domain.Shortfall{
				Amount:    expected.Sub(remaining),
				DuePeriod: cursor,
			}
			remaining = decimal.Zero
		}
	}

	return result, nil
}

func (r *AllocationResult) apply(period domain.Period, amount decimal.Decimal, state domain.PeriodState) {
	p := period
	r.Allocations = append(r.Allocations, domain.Allocation{Period: period, Amount: amount})
	r.Statuses = append(r.Statuses, domain.PeriodStatus{Period: &p, State: state})
}
