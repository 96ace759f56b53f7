package plots

import "database/sql"

// PlotsSchema defines the plots table. Tenants are stored as a JSON column:
// they are only ever read as part of their plot, and the resolver scans whole
// records anyway.
const PlotsSchema = `
CREATE TABLE IF NOT EXISTS plots (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    location TEXT NOT NULL,
    caretaker_name TEXT,
    caretaker_phone TEXT,
    plot_type TEXT NOT NULL,
    units INTEGER NOT NULL,
    payer_key_hash TEXT,
    lumpsum_expected TEXT,
    payout_msisdn TEXT,
    tenants TEXT NOT NULL DEFAULT '[]',
    created_by TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plots_name ON plots(name);
`

// InitSchema ensures the plots table exists
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(PlotsSchema)
	return err
}
