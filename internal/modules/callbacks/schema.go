package callbacks

import "database/sql"

// CallbacksSchema defines the gateway intake tables. They live in the same
// database file as the payments ledger so the replay sweep can anti-join
// against payments in one query.
const CallbacksSchema = `
CREATE TABLE IF NOT EXISTS stk_transactions (
    checkout_request_id TEXT PRIMARY KEY,
    merchant_request_id TEXT,
    result_code INTEGER NOT NULL,
    result_desc TEXT,
    amount TEXT,
    payer_key TEXT,
    receipt TEXT,
    trans_time TEXT,
    status TEXT NOT NULL,
    raw_payload BLOB NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS c2b_transactions (
    trans_id TEXT PRIMARY KEY,
    amount TEXT,
    payer_key TEXT,
    bill_ref TEXT,
    trans_time TEXT,
    raw_payload BLOB NOT NULL,
    created_at TEXT NOT NULL
);
`

// InitSchema ensures the intake tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(CallbacksSchema)
	return err
}
