package callbacks

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles gateway callback intake persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new callback intake repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "callbacks").Logger(),
	}
}

// SaveSTKIfAbsent stores an STK delivery unless its checkout request id was
// already seen. Redeliveries are a gateway normality, not an error.
func (r *Repository) SaveSTKIfAbsent(tx *STKTransaction) (bool, error) {
	if tx.CheckoutRequestID == "" {
		return false, fmt.Errorf("stk transaction has no checkout request id")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT OR IGNORE INTO stk_transactions
		(checkout_request_id, merchant_request_id, result_code, result_desc,
		 amount, payer_key, receipt, trans_time, status, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		tx.CheckoutRequestID,
		tx.MerchantRequestID,
		tx.ResultCode,
		tx.ResultDesc,
		tx.Amount,
		tx.PayerKeyHash,
		tx.Receipt,
		tx.TransTime,
		string(tx.Status),
		[]byte(tx.RawPayload),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save stk transaction %s: %w", tx.CheckoutRequestID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// SaveC2BIfAbsent stores a C2B confirmation unless its transaction id was
// already seen.
func (r *Repository) SaveC2BIfAbsent(tx *C2BTransaction) (bool, error) {
	if tx.TransID == "" {
		return false, fmt.Errorf("c2b transaction has no transaction id")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT OR IGNORE INTO c2b_transactions
		(trans_id, amount, payer_key, bill_ref, trans_time, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		tx.TransID,
		tx.Amount,
		tx.PayerKeyHash,
		tx.BillRef,
		tx.TransTime,
		[]byte(tx.RawPayload),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save c2b transaction %s: %w", tx.TransID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetSTK retrieves one STK delivery with its raw payload
func (r *Repository) GetSTK(checkoutRequestID string) (*STKTransaction, error) {
	row := r.db.QueryRow(`
		SELECT checkout_request_id, merchant_request_id, result_code, result_desc,
		       amount, payer_key, receipt, trans_time, status, raw_payload, created_at
		FROM stk_transactions WHERE checkout_request_id = ?`, checkoutRequestID)

	tx, err := scanSTK(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stk transaction %s: %w", checkoutRequestID, err)
	}
	return tx, nil
}

// ListUnreconciledSTK returns completed STK deliveries with a usable payer key
// that never made it onto the payments ledger - the replay backlog after a
// downstream failure.
func (r *Repository) ListUnreconciledSTK(limit int) ([]STKTransaction, error) {
	query := `
		SELECT s.checkout_request_id, s.merchant_request_id, s.result_code, s.result_desc,
		       s.amount, s.payer_key, s.receipt, s.trans_time, s.status, s.raw_payload, s.created_at
		FROM stk_transactions s
		WHERE s.result_code = 0
		  AND s.payer_key != ''
		  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.trans_id = s.checkout_request_id)
		ORDER BY s.created_at ASC
		LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreconciled stk transactions: %w", err)
	}
	defer rows.Close()

	var result []STKTransaction
	for rows.Next() {
		tx, err := scanSTK(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stk transaction: %w", err)
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

// ListUnreconciledC2B returns C2B confirmations missing from the ledger.
func (r *Repository) ListUnreconciledC2B(limit int) ([]C2BTransaction, error) {
	query := `
		SELECT c.trans_id, c.amount, c.payer_key, c.bill_ref, c.trans_time, c.raw_payload, c.created_at
		FROM c2b_transactions c
		WHERE c.payer_key != ''
		  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.trans_id = c.trans_id)
		ORDER BY c.created_at ASC
		LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreconciled c2b transactions: %w", err)
	}
	defer rows.Close()

	var result []C2BTransaction
	for rows.Next() {
		var (
			tx        C2BTransaction
			payload   []byte
			createdAt string
		)
		if err := rows.Scan(&tx.TransID, &tx.Amount, &tx.PayerKeyHash, &tx.BillRef,
			&tx.TransTime, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan c2b transaction: %w", err)
		}
		tx.RawPayload = payload
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			tx.CreatedAt = ts
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSTK(s scanner) (*STKTransaction, error) {
	var (
		tx        STKTransaction
		status    string
		payload   []byte
		createdAt string
	)

	err := s.Scan(
		&tx.CheckoutRequestID,
		&tx.MerchantRequestID,
		&tx.ResultCode,
		&tx.ResultDesc,
		&tx.Amount,
		&tx.PayerKeyHash,
		&tx.Receipt,
		&tx.TransTime,
		&status,
		&payload,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Status = STKStatus(status)
	tx.RawPayload = payload
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		tx.CreatedAt = ts
	}
	return &tx, nil
}
