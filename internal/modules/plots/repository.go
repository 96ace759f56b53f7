package plots

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// plotsColumns is the list of columns for the plots table.
// Column order must match scanPlot().
const plotsColumns = `id, name, location, caretaker_name, caretaker_phone, plot_type, units, payer_key_hash, lumpsum_expected, payout_msisdn, tenants, created_by, created_at`

// Repository handles plot persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new plot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "plots").Logger(),
	}
}

// Create inserts a new plot. The caller is expected to have hashed all MSISDNs
// already; this layer never sees plaintext payer numbers on the matching path.
func (r *Repository) Create(plot *Plot) error {
	if plot.ID == "" {
		plot.ID = uuid.NewString()
	}
	if plot.CreatedAt.IsZero() {
		plot.CreatedAt = time.Now().UTC()
	}

	tenantsJSON, err := json.Marshal(plot.Tenants)
	if err != nil {
		return fmt.Errorf("failed to encode tenants: %w", err)
	}

	query := `
		INSERT INTO plots
		(id, name, location, caretaker_name, caretaker_phone, plot_type, units,
		 payer_key_hash, lumpsum_expected, payout_msisdn, tenants, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		plot.ID,
		plot.Name,
		plot.Location,
		nullString(plot.CaretakerName),
		nullString(plot.CaretakerPhone),
		string(plot.Type),
		plot.Units,
		nullString(plot.PayerKeyHash),
		nullDecimal(plot.LumpsumExpected),
		nullString(plot.PayoutMSISDN),
		string(tenantsJSON),
		nullString(plot.CreatedBy),
		plot.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create plot: %w", err)
	}

	r.log.Info().
		Str("plot", plot.Name).
		Str("type", string(plot.Type)).
		Int("units", plot.Units).
		Msg("Plot registered")

	return nil
}

// GetByID retrieves a plot by id
func (r *Repository) GetByID(id string) (*Plot, error) {
	row := r.db.QueryRow("SELECT "+plotsColumns+" FROM plots WHERE id = ?", id)
	plot, err := scanPlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plot %s: %w", id, err)
	}
	return plot, nil
}

// GetByName retrieves a plot by its unique display name
func (r *Repository) GetByName(name string) (*Plot, error) {
	row := r.db.QueryRow("SELECT "+plotsColumns+" FROM plots WHERE name = ? LIMIT 1", name)
	plot, err := scanPlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plot %q: %w", name, err)
	}
	return plot, nil
}

// ListAll retrieves every plot, oldest first. The resolver depends on this
// ordering: a later record matching the same payer key wins.
func (r *Repository) ListAll() ([]Plot, error) {
	rows, err := r.db.Query("SELECT " + plotsColumns + " FROM plots ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list plots: %w", err)
	}
	defer rows.Close()

	var result []Plot
	for rows.Next() {
		plot, err := scanPlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plot: %w", err)
		}
		result = append(result, *plot)
	}
	return result, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlot(s scanner) (*Plot, error) {
	var (
		plot            Plot
		plotType        string
		caretakerName   sql.NullString
		caretakerPhone  sql.NullString
		payerKeyHash    sql.NullString
		lumpsumExpected sql.NullString
		payoutMSISDN    sql.NullString
		tenantsJSON     string
		createdBy       sql.NullString
		createdAt       string
	)

	err := s.Scan(
		&plot.ID,
		&plot.Name,
		&plot.Location,
		&caretakerName,
		&caretakerPhone,
		&plotType,
		&plot.Units,
		&payerKeyHash,
		&lumpsumExpected,
		&payoutMSISDN,
		&tenantsJSON,
		&createdBy,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	plot.Type = PlotType(plotType)
	plot.CaretakerName = caretakerName.String
	plot.CaretakerPhone = caretakerPhone.String
	plot.PayerKeyHash = payerKeyHash.String
	plot.PayoutMSISDN = payoutMSISDN.String
	plot.CreatedBy = createdBy.String

	if lumpsumExpected.Valid && lumpsumExpected.String != "" {
		expected, err := decimal.NewFromString(lumpsumExpected.String)
		if err != nil {
			return nil, fmt.Errorf("invalid lumpsum amount %q: %w", lumpsumExpected.String, err)
		}
		plot.LumpsumExpected = expected
	}

	if err := json.Unmarshal([]byte(tenantsJSON), &plot.Tenants); err != nil {
		return nil, fmt.Errorf("invalid tenants column: %w", err)
	}

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		plot.CreatedAt = ts
	}

	return &plot, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}
