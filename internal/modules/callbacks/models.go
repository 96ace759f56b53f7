// Package callbacks stores raw gateway callback deliveries before
// reconciliation. Every delivery is kept byte-for-byte for audit, keyed by the
// gateway's request id, so a failed reconciliation can always be replayed.
package callbacks

import (
	"encoding/json"
	"time"
)

// STKStatus reflects the gateway result of an STK push
type STKStatus string

const (
	// StatusCompleted - result code 0, the payer confirmed the push
	StatusCompleted STKStatus = "completed"
	// StatusFailed - any non-zero result code (cancelled, timeout, no funds)
	StatusFailed STKStatus = "failed"
)

// STKTransaction is one STK callback delivery.
// CheckoutRequestID doubles as the ledger transaction id.
type STKTransaction struct {
	CheckoutRequestID string          `json:"checkoutRequestId"`
	MerchantRequestID string          `json:"merchantRequestId"`
	ResultCode        int             `json:"resultCode"`
	ResultDesc        string          `json:"resultDesc"`
	Amount            string          `json:"amount"`
	PayerKeyHash      string          `json:"phone"` // hashed MSISDN
	Receipt           string          `json:"receipt"`
	TransTime         string          `json:"transTime"`
	Status            STKStatus       `json:"status"`
	RawPayload        json.RawMessage `json:"rawPayload"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// C2BTransaction is one C2B confirmation delivery.
type C2BTransaction struct {
	TransID      string          `json:"transId"`
	Amount       string          `json:"amount"`
	PayerKeyHash string          `json:"phone"` // hashed MSISDN
	BillRef      string          `json:"billRef"`
	TransTime    string          `json:"transTime"`
	RawPayload   json.RawMessage `json:"rawPayload"`
	CreatedAt    time.Time       `json:"createdAt"`
}
