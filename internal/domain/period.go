// Package domain contains the shared value types of the reconciliation engine:
// billing periods, period allocations and carried shortfalls.
package domain

import (
	"fmt"
	"time"
)

// Period identifies a single monthly billing cycle, e.g. "Mar-2024".
//
// It is an ordered value type: periods compare with Before and advance with
// Next, which rolls December over into January of the following year. The
// wire and storage representation is always the "Jan-2006" string form.
type Period struct {
	Month time.Month
	Year  int
}

// NewPeriod creates a period for the given month and year.
func NewPeriod(month time.Month, year int) Period {
	return Period{Month: month, Year: year}
}

// PeriodOf returns the billing period a point in time falls into.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

// ParsePeriod parses the "Jan-2006" form. Malformed input is an error, never
// echoed back.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("Jan-2006", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return Period{Month: t.Month(), Year: t.Year()}, nil
}

// String renders the canonical "Jan-2006" form.
func (p Period) String() string {
	return fmt.Sprintf("%s-%d", p.Month.String()[:3], p.Year)
}

// Next returns the following billing period, rolling Dec into Jan of year+1.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Month: time.January, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// IsZero reports whether the period is the zero value.
func (p Period) IsZero() bool {
	return p.Month == 0 && p.Year == 0
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
