package payments

import "database/sql"

// PaymentsSchema defines the payments ledger table. trans_id being the
// primary key is the sole idempotency mechanism: the existence check and the
// write collapse into a single INSERT OR IGNORE on it.
const PaymentsSchema = `
CREATE TABLE IF NOT EXISTS payments (
    trans_id TEXT PRIMARY KEY,
    plot_name TEXT NOT NULL,
    units INTEGER NOT NULL DEFAULT 0,
    mpesa_amount TEXT NOT NULL,
    cash_amount TEXT NOT NULL,
    total_amount TEXT NOT NULL,
    payer_key TEXT NOT NULL,
    name TEXT NOT NULL,
    time_display TEXT,
    source TEXT NOT NULL,
    months_paid TEXT NOT NULL DEFAULT '[]',
    statuses TEXT NOT NULL DEFAULT '[]',
    shortfall TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_payer_key ON payments(payer_key, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at DESC);
`

// InitSchema ensures the payments table exists
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(PaymentsSchema)
	return err
}
