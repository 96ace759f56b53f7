package reconciliation

import (
	"fmt"
	"time"

	"github.com/jowabu/plotpay/internal/domain"
)

// transTimeLayout is the gateway's transaction timestamp format,
// e.g. "20240315143000" (TransTime / TransactionDate).
const transTimeLayout = "20060102150405"

// displayLayout is the human-readable form stored on payment records.
const displayLayout = "02/01/2006 15:04"

// ParseTransTime parses a gateway "YYYYMMDDHHMMSS" timestamp.
func ParseTransTime(transTime string) (time.Time, error) {
	t, err := time.Parse(transTimeLayout, transTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid transaction time %q: %w", transTime, err)
	}
	return t, nil
}

// FormatTransTime renders a gateway timestamp as "DD/MM/YYYY HH:MM".
func FormatTransTime(t time.Time) string {
	return t.Format(displayLayout)
}

// paymentPeriod derives the billing period an incoming payment starts at.
// A missing or malformed gateway timestamp falls back to the wall-clock month:
// the money is real even when the timestamp is not, and allocation must start
// somewhere deterministic.
func paymentPeriod(transTime string, now func() time.Time) (domain.Period, time.Time, bool) {
	t, err := ParseTransTime(transTime)
	if err != nil {
		fallback := now()
		return domain.PeriodOf(fallback), fallback, false
	}
	return domain.PeriodOf(t), t, true
}
