package scheduler

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jowabu/plotpay/internal/modules/callbacks"
	"github.com/jowabu/plotpay/internal/modules/payments"
	"github.com/jowabu/plotpay/internal/modules/reconciliation"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, payments.InitSchema(db))
	require.NoError(t, callbacks.InitSchema(db))
	return db
}

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

type fakeReconciler struct {
	received []reconciliation.IncomingPayment
	err      error
}

func (f *fakeReconciler) Reconcile(p reconciliation.IncomingPayment) (reconciliation.Outcome, error) {
	if f.err != nil {
		return reconciliation.Outcome{}, f.err
	}
	f.received = append(f.received, p)
	return reconciliation.Outcome{Recognized: true}, nil
}

func TestReplayPending_ReplaysStrandedTransactions(t *testing.T) {
	db := setupTestDB(t)
	intake := callbacks.NewRepository(db, testLog())

	_, err := intake.SaveSTKIfAbsent(&callbacks.STKTransaction{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		Amount:            "1500",
		PayerKeyHash:      "payer-hash-1",
		TransTime:         "20240315143000",
		Status:            callbacks.StatusCompleted,
		RawPayload:        []byte(`{}`),
	})
	require.NoError(t, err)

	_, err = intake.SaveC2BIfAbsent(&callbacks.C2BTransaction{
		TransID:      "QBC123",
		Amount:       "700",
		PayerKeyHash: "payer-hash-2",
		TransTime:    "20240316090000",
		RawPayload:   []byte(`{}`),
	})
	require.NoError(t, err)

	rec := &fakeReconciler{}
	job := NewReplayPendingJob(intake, rec, testLog())

	require.NoError(t, job.Run())

	require.Len(t, rec.received, 2)
	assert.Equal(t, "ws_CO_1", rec.received[0].TransID)
	assert.True(t, rec.received[0].Mpesa.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, payments.SourceSTK, rec.received[0].Source)
	assert.Equal(t, "QBC123", rec.received[1].TransID)
	assert.Equal(t, payments.SourceC2B, rec.received[1].Source)
}

func TestReplayPending_SkipsFailedAndPhonelessDeliveries(t *testing.T) {
	db := setupTestDB(t)
	intake := callbacks.NewRepository(db, testLog())

	_, err := intake.SaveSTKIfAbsent(&callbacks.STKTransaction{
		CheckoutRequestID: "ws_CO_cancelled",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
		Status:            callbacks.StatusFailed,
		RawPayload:        []byte(`{}`),
	})
	require.NoError(t, err)

	_, err = intake.SaveSTKIfAbsent(&callbacks.STKTransaction{
		CheckoutRequestID: "ws_CO_no_phone",
		ResultCode:        0,
		Amount:            "500",
		Status:            callbacks.StatusCompleted,
		RawPayload:        []byte(`{}`),
	})
	require.NoError(t, err)

	rec := &fakeReconciler{}
	job := NewReplayPendingJob(intake, rec, testLog())

	require.NoError(t, job.Run())
	assert.Empty(t, rec.received)
}

func TestReplayPending_IgnoresAlreadyReconciled(t *testing.T) {
	db := setupTestDB(t)
	intake := callbacks.NewRepository(db, testLog())
	ledger := payments.NewRepository(db, testLog())

	_, err := intake.SaveSTKIfAbsent(&callbacks.STKTransaction{
		CheckoutRequestID: "ws_CO_done",
		ResultCode:        0,
		Amount:            "1000",
		PayerKeyHash:      "payer-hash-1",
		Status:            callbacks.StatusCompleted,
		RawPayload:        []byte(`{}`),
	})
	require.NoError(t, err)

	written, err := ledger.WriteIfAbsent(&payments.PaymentRecord{
		TransID:  "ws_CO_done",
		PayerKey: "payer-hash-1",
		Source:   payments.SourceSTK,
	})
	require.NoError(t, err)
	require.True(t, written)

	rec := &fakeReconciler{}
	job := NewReplayPendingJob(intake, rec, testLog())

	require.NoError(t, job.Run())
	assert.Empty(t, rec.received)
}

func TestReplayPending_UnusableAmountSkippedWithoutError(t *testing.T) {
	db := setupTestDB(t)
	intake := callbacks.NewRepository(db, testLog())

	_, err := intake.SaveSTKIfAbsent(&callbacks.STKTransaction{
		CheckoutRequestID: "ws_CO_garbled",
		ResultCode:        0,
		Amount:            "not-a-number",
		PayerKeyHash:      "payer-hash-1",
		Status:            callbacks.StatusCompleted,
		RawPayload:        []byte(`{}`),
	})
	require.NoError(t, err)

	rec := &fakeReconciler{}
	job := NewReplayPendingJob(intake, rec, testLog())

	require.NoError(t, job.Run())
	assert.Empty(t, rec.received)
}

func TestReplayPending_ReconcilerFailureDoesNotAbortSweep(t *testing.T) {
	db := setupTestDB(t)
	intake := callbacks.NewRepository(db, testLog())

	_, err := intake.SaveSTKIfAbsent(&callbacks.STKTransaction{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		Amount:            "1000",
		PayerKeyHash:      "payer-hash-1",
		Status:            callbacks.StatusCompleted,
		RawPayload:        []byte(`{}`),
	})
	require.NoError(t, err)

	rec := &fakeReconciler{err: assert.AnError}
	job := NewReplayPendingJob(intake, rec, testLog())

	assert.NoError(t, job.Run())
}
