package reconciliation

import (
	"testing"
	"time"

	"github.com/jowabu/plotpay/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func period(month time.Month, year int) domain.Period {
	return domain.NewPeriod(month, year)
}

// assertInvariants checks the structural allocation invariants: amounts sum
// to the payment total, at most one incomplete period and only at the end,
// and a shortfall exactly when the last period is incomplete.
func assertInvariants(t *testing.T, result AllocationResult, total decimal.Decimal) {
	t.Helper()

	sum := decimal.Zero
	for _, a := range result.Allocations {
		sum = sum.Add(a.Amount)
	}
	assert.True(t, sum.Equal(total), "allocations sum %s != total %s", sum, total)

	require.Equal(t, len(result.Allocations), len(result.Statuses))

	incomplete := 0
	for i, st := range result.Statuses {
		if st.State == domain.StateIncomplete {
			incomplete++
			assert.Equal(t, len(result.Statuses)-1, i, "incomplete period must be the last one touched")
		}
	}
	assert.LessOrEqual(t, incomplete, 1)

	if result.Shortfall != nil {
		require.NotEmpty(t, result.Statuses)
		last := result.Statuses[len(result.Statuses)-1]
		assert.Equal(t, domain.StateIncomplete, last.State)
		assert.Equal(t, result.Shortfall.DuePeriod, *last.Period)
	} else {
		for _, st := range result.Statuses {
			assert.NotEqual(t, domain.StateIncomplete, st.State)
		}
	}
}

func TestAllocate_OverpaymentRollsForward(t *testing.T) {
	// 1500 against an expected 1000 starting Mar-2024:
	// Mar complete, Apr incomplete with 500, shortfall 500 due Apr.
	result, err := Allocate(dec("1500"), dec("1000"), nil, period(time.March, 2024))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, period(time.March, 2024), result.Allocations[0].Period)
	assert.True(t, result.Allocations[0].Amount.Equal(dec("1000")))
	assert.Equal(t, period(time.April, 2024), result.Allocations[1].Period)
	assert.True(t, result.Allocations[1].Amount.Equal(dec("500")))

	assert.Equal(t, domain.StateComplete, result.Statuses[0].State)
	assert.Equal(t, domain.StateIncomplete, result.Statuses[1].State)

	require.NotNil(t, result.Shortfall)
	assert.True(t, result.Shortfall.Amount.Equal(dec("500")))
	assert.Equal(t, period(time.April, 2024), result.Shortfall.DuePeriod)

	assertInvariants(t, result, dec("1500"))
}

func TestAllocate_CarriedShortfallClearedThenForward(t *testing.T) {
	// Prior shortfall of 500 due Apr-2024; 1500 arrives in May.
	// Phase 1 clears Apr (500), phase 2 completes May (1000). Nothing carried.
	carried := &domain.Shortfall{Amount: dec("500"), DuePeriod: period(time.April, 2024)}

	result, err := Allocate(dec("1500"), dec("1000"), carried, period(time.May, 2024))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, period(time.April, 2024), result.Allocations[0].Period)
	assert.True(t, result.Allocations[0].Amount.Equal(dec("500")))
	assert.Equal(t, period(time.May, 2024), result.Allocations[1].Period)
	assert.True(t, result.Allocations[1].Amount.Equal(dec("1000")))

	assert.Equal(t, domain.StateComplete, result.Statuses[0].State)
	assert.Equal(t, domain.StateComplete, result.Statuses[1].State)
	assert.Nil(t, result.Shortfall)

	assertInvariants(t, result, dec("1500"))
}

func TestAllocate_PaymentSwallowedByCarriedShortfall(t *testing.T) {
	// 300 against a carried shortfall of 500: everything goes to the due
	// period, 200 stays owed there, and forward allocation never starts.
	carried := &domain.Shortfall{Amount: dec("500"), DuePeriod: period(time.April, 2024)}

	result, err := Allocate(dec("300"), dec("1000"), carried, period(time.May, 2024))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, period(time.April, 2024), result.Allocations[0].Period)
	assert.True(t, result.Allocations[0].Amount.Equal(dec("300")))
	assert.Equal(t, domain.StateIncomplete, result.Statuses[0].State)

	require.NotNil(t, result.Shortfall)
	assert.True(t, result.Shortfall.Amount.Equal(dec("200")))
	assert.Equal(t, period(time.April, 2024), result.Shortfall.DuePeriod)

	assertInvariants(t, result, dec("300"))
}

func TestAllocate_ExactPayment(t *testing.T) {
	result, err := Allocate(dec("1000"), dec("1000"), nil, period(time.March, 2024))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, domain.StateComplete, result.Statuses[0].State)
	assert.Nil(t, result.Shortfall)

	assertInvariants(t, result, dec("1000"))
}

func TestAllocate_ManyMonthsAheadAcrossYearEnd(t *testing.T) {
	// 3500 at 1000/month from Nov-2024: Nov, Dec, Jan-2025 complete,
	// Feb-2025 incomplete. Excess keeps rolling forward, including over the
	// year boundary - there is no separate overpayment concept.
	result, err := Allocate(dec("3500"), dec("1000"), nil, period(time.November, 2024))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 4)
	assert.Equal(t, period(time.November, 2024), result.Allocations[0].Period)
	assert.Equal(t, period(time.December, 2024), result.Allocations[1].Period)
	assert.Equal(t, period(time.January, 2025), result.Allocations[2].Period)
	assert.Equal(t, period(time.February, 2025), result.Allocations[3].Period)

	require.NotNil(t, result.Shortfall)
	assert.True(t, result.Shortfall.Amount.Equal(dec("500")))
	assert.Equal(t, period(time.February, 2025), result.Shortfall.DuePeriod)

	assertInvariants(t, result, dec("3500"))
}

func TestAllocate_FractionalAmountsExact(t *testing.T) {
	// Decimal arithmetic: no rounding loss on cent-level amounts.
	result, err := Allocate(dec("250.75"), dec("100.25"), nil, period(time.June, 2024))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 3)
	assert.True(t, result.Allocations[2].Amount.Equal(dec("50.25")))
	require.NotNil(t, result.Shortfall)
	assert.True(t, result.Shortfall.Amount.Equal(dec("50")))

	assertInvariants(t, result, dec("250.75"))
}

func TestAllocate_ZeroTotal(t *testing.T) {
	result, err := Allocate(decimal.Zero, dec("1000"), nil, period(time.March, 2024))
	require.NoError(t, err)

	assert.Empty(t, result.Allocations)
	assert.Nil(t, result.Shortfall)
	assertInvariants(t, result, decimal.Zero)
}

func TestAllocate_NonPositiveExpectedRejected(t *testing.T) {
	// Guard against the infinite loop a zero expected amount would cause.
	_, err := Allocate(dec("1000"), decimal.Zero, nil, period(time.March, 2024))
	assert.Error(t, err)

	_, err = Allocate(dec("1000"), dec("-5"), nil, period(time.March, 2024))
	assert.Error(t, err)
}

func TestAllocate_NegativeTotalRejected(t *testing.T) {
	_, err := Allocate(dec("-100"), dec("1000"), nil, period(time.March, 2024))
	assert.Error(t, err)
}

func TestAllocate_NonPositiveCarriedShortfallIgnored(t *testing.T) {
	carried := &domain.Shortfall{Amount: decimal.Zero, DuePeriod: period(time.April, 2024)}

	result, err := Allocate(dec("1000"), dec("1000"), carried, period(time.May, 2024))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, period(time.May, 2024), result.Allocations[0].Period)
	assert.Nil(t, result.Shortfall)
}
