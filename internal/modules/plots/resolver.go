package plots

import (
	"fmt"

	"github.com/jowabu/plotpay/internal/identity"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PlotLister provides the billing records to scan. Satisfied by *Repository.
type PlotLister interface {
	ListAll() ([]Plot, error)
}

// Resolver maps a hashed payer key to a billing record.
//
// Resolution is a full scan over every plot: lumpsum plots match on the plot's
// own payer key hash, individual plots on any tenant's. When the same key
// appears on more than one record - a data-quality violation the store does
// not prevent - the record scanned last wins. That tie-break is load-bearing:
// existing books were reconciled under it, so it must not change without a
// deliberate migration.
type Resolver struct {
	plots PlotLister
	log   zerolog.Logger
}

// NewResolver creates a new payer resolver
func NewResolver(plots PlotLister, log zerolog.Logger) *Resolver {
	return &Resolver{
		plots: plots,
		log:   log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve scans all billing records for the hashed payer key.
// A match with a non-positive expected amount is reported as unrecognized:
// allocating against it could never terminate.
func (r *Resolver) Resolve(hashedKey string) (Resolution, error) {
	res := Resolution{
		Recognized:  false,
		DisplayName: "Unknown",
		PayerKey:    hashedKey,
		PlotName:    "Unknown",
	}

	if hashedKey == "" {
		return res, nil
	}

	all, err := r.plots.ListAll()
	if err != nil {
		return res, fmt.Errorf("failed to scan billing records: %w", err)
	}

	for _, plot := range all {
		if plot.Type == TypeLumpsum && plot.PayerKeyHash == hashedKey {
			res.Recognized = true
			res.Expected = plot.LumpsumExpected
			res.DisplayName = plot.Name
			res.PlotName = plot.Name
			res.Units = plot.Units
			res.PayerKey = canonicalKey(plot.PayoutMSISDN, hashedKey)
		}

		if plot.Type == TypeIndividual {
			for _, tenant := range plot.Tenants {
				if tenant.PayerKeyHash == hashedKey {
					res.Recognized = true
					res.Expected = tenant.Expected
					res.DisplayName = tenant.Name
					res.PlotName = plot.Name
					res.Units = plot.Units
					res.PayerKey = canonicalKey(tenant.Phone, hashedKey)
				}
			}
		}
	}

	if res.Recognized && !res.Expected.IsPositive() {
		r.log.Warn().
			Str("plot", res.PlotName).
			Str("payer", res.DisplayName).
			Msg("Matched billing record has no positive expected amount, treating payer as unrecognized")
		res.Recognized = false
		res.DisplayName = "Unknown"
		res.PlotName = "Unknown"
		res.Units = 0
		res.PayerKey = hashedKey
		res.Expected = decimal.Zero
	}

	return res, nil
}

// canonicalKey hashes the record's payout phone into the payer key used for
// shortfall continuity. Falls back to the incoming hashed key when the record
// carries no canonical phone.
func canonicalKey(phone, fallback string) string {
	if phone == "" {
		return fallback
	}
	return identity.Hash(phone)
}
