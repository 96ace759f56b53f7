package payments

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jowabu/plotpay/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// paymentsColumns is the list of columns for the payments table.
// Column order must match scanPayment().
const paymentsColumns = `trans_id, plot_name, units, mpesa_amount, cash_amount, total_amount, payer_key, name, time_display, source, months_paid, statuses, shortfall, created_at`

// Repository handles payment ledger persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new payment repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "payments").Logger(),
	}
}

// WriteIfAbsent inserts the record unless a payment with the same transaction
// id already exists. Returns false without touching anything when the id is
// taken - the payment was already reconciled, and gateways redeliver
// callbacks routinely. The check and the write are a single statement, so
// concurrent duplicate deliveries cannot both land.
func (r *Repository) WriteIfAbsent(rec *PaymentRecord) (bool, error) {
	if rec.TransID == "" {
		return false, fmt.Errorf("payment record has no transaction id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	monthsJSON, err := json.Marshal(rec.MonthsPaid)
	if err != nil {
		return false, fmt.Errorf("failed to encode allocations: %w", err)
	}
	statusesJSON, err := json.Marshal(rec.Statuses)
	if err != nil {
		return false, fmt.Errorf("failed to encode statuses: %w", err)
	}

	var shortfallJSON interface{}
	if rec.Shortfall != nil {
		data, err := json.Marshal(rec.Shortfall)
		if err != nil {
			return false, fmt.Errorf("failed to encode shortfall: %w", err)
		}
		shortfallJSON = string(data)
	}

	query := `
		INSERT OR IGNORE INTO payments
		(trans_id, plot_name, units, mpesa_amount, cash_amount, total_amount,
		 payer_key, name, time_display, source, months_paid, statuses, shortfall, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		rec.TransID,
		rec.PlotName,
		rec.Units,
		rec.Amount.Mpesa.String(),
		rec.Amount.Cash.String(),
		rec.Amount.Total.String(),
		rec.PayerKey,
		rec.Name,
		rec.TimeDisplay,
		string(rec.Source),
		string(monthsJSON),
		string(statusesJSON),
		shortfallJSON,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("failed to write payment %s: %w", rec.TransID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for %s: %w", rec.TransID, err)
	}

	if affected == 0 {
		r.log.Debug().
			Str("trans_id", rec.TransID).
			Msg("Payment already recorded, skipping duplicate")
		return false, nil
	}

	r.log.Info().
		Str("trans_id", rec.TransID).
		Str("plot", rec.PlotName).
		Str("total", rec.Amount.Total.String()).
		Str("source", string(rec.Source)).
		Msg("Payment recorded")

	return true, nil
}

// Exists checks whether a payment with the given transaction id was recorded
func (r *Repository) Exists(transID string) (bool, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM payments WHERE trans_id = ?", transID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check payment %s: %w", transID, err)
	}
	return count > 0, nil
}

// GetByTransID retrieves a payment by its transaction id
func (r *Repository) GetByTransID(transID string) (*PaymentRecord, error) {
	row := r.db.QueryRow("SELECT "+paymentsColumns+" FROM payments WHERE trans_id = ?", transID)
	rec, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", transID, err)
	}
	return rec, nil
}

// List retrieves payments newest first. limit <= 0 means no limit.
func (r *Repository) List(limit int) ([]PaymentRecord, error) {
	query := "SELECT " + paymentsColumns + " FROM payments ORDER BY created_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var result []PaymentRecord
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// LatestByPayerKey retrieves the most recent payment for a payer key, or nil
// when the payer has no history. Used for the carried-shortfall lookup.
func (r *Repository) LatestByPayerKey(payerKey string) (*PaymentRecord, error) {
	query := "SELECT " + paymentsColumns + ` FROM payments
		WHERE payer_key = ?
		ORDER BY created_at DESC, trans_id DESC
		LIMIT 1`

	row := r.db.QueryRow(query, payerKey)
	rec, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest payment for payer: %w", err)
	}
	return rec, nil
}

// UpdateIdentity corrects the payer name and phone on an existing record.
// These are the only mutable fields: amounts, allocations and statuses are
// write-once, so no update path for them exists at all.
func (r *Repository) UpdateIdentity(transID, name, payerKey string) error {
	result, err := r.db.Exec(
		"UPDATE payments SET name = ?, payer_key = ? WHERE trans_id = ?",
		name, payerKey, transID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment identity %s: %w", transID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s: %w", transID, err)
	}
	if affected == 0 {
		return fmt.Errorf("payment %s not found", transID)
	}

	r.log.Info().Str("trans_id", transID).Msg("Payment identity corrected")
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(s scanner) (*PaymentRecord, error) {
	var (
		rec           PaymentRecord
		mpesa         string
		cash          string
		total         string
		timeDisplay   sql.NullString
		source        string
		monthsJSON    string
		statusesJSON  string
		shortfallJSON sql.NullString
		createdAt     string
	)

	err := s.Scan(
		&rec.TransID,
		&rec.PlotName,
		&rec.Units,
		&mpesa,
		&cash,
		&total,
		&rec.PayerKey,
		&rec.Name,
		&timeDisplay,
		&source,
		&monthsJSON,
		&statusesJSON,
		&shortfallJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.Amount.Mpesa, err = decimal.NewFromString(mpesa); err != nil {
		return nil, fmt.Errorf("invalid mpesa amount %q: %w", mpesa, err)
	}
	if rec.Amount.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("invalid cash amount %q: %w", cash, err)
	}
	if rec.Amount.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid total amount %q: %w", total, err)
	}

	rec.TimeDisplay = timeDisplay.String
	rec.Source = Source(source)

	if err := json.Unmarshal([]byte(monthsJSON), &rec.MonthsPaid); err != nil {
		return nil, fmt.Errorf("invalid months_paid column: %w", err)
	}
	if err := json.Unmarshal([]byte(statusesJSON), &rec.Statuses); err != nil {
		return nil, fmt.Errorf("invalid statuses column: %w", err)
	}

	if shortfallJSON.Valid && shortfallJSON.String != "" {
		var shortfall domain.Shortfall
		if err := json.Unmarshal([]byte(shortfallJSON.String), &shortfall); err != nil {
			return nil, fmt.Errorf("invalid shortfall column: %w", err)
		}
		rec.Shortfall = &shortfall
	}

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = ts
	}

	return &rec, nil
}
