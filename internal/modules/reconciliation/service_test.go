package reconciliation

import (
	"errors"
	"testing"
	"time"

	"github.com/jowabu/plotpay/internal/domain"
	"github.com/jowabu/plotpay/internal/modules/payments"
	"github.com/jowabu/plotpay/internal/modules/plots"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock payer resolver

type mockResolver struct {
	resolution plots.Resolution
	err        error
}

func (m *mockResolver) Resolve(hashedKey string) (plots.Resolution, error) {
	if m.err != nil {
		return plots.Resolution{}, m.err
	}
	return m.resolution, nil
}

// In-memory payment store

type memStore struct {
	records    map[string]*payments.PaymentRecord
	order      []string
	latestErr  error
	existsErr  error
	writeErr   error
	writeCalls int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*payments.PaymentRecord{}}
}

func (m *memStore) Exists(transID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.records[transID]
	return ok, nil
}

func (m *memStore) WriteIfAbsent(rec *payments.PaymentRecord) (bool, error) {
	m.writeCalls++
	if m.writeErr != nil {
		return false, m.writeErr
	}
	if _, ok := m.records[rec.TransID]; ok {
		return false, nil
	}
	m.records[rec.TransID] = rec
	m.order = append(m.order, rec.TransID)
	return true, nil
}

func (m *memStore) LatestByPayerKey(payerKey string) (*payments.PaymentRecord, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	for i := len(m.order) - 1; i >= 0; i-- {
		if rec := m.records[m.order[i]]; rec.PayerKey == payerKey {
			return rec, nil
		}
	}
	return nil, nil
}

func recognizedResolver(expected string) *mockResolver {
	return &mockResolver{resolution: plots.Resolution{
		Recognized:  true,
		Expected:    dec(expected),
		DisplayName: "Jane Tenant",
		PayerKey:    "payer-key-1",
		PlotName:    "Green Court",
		Units:       12,
	}}
}

func newTestService(resolver PayerResolver, store PaymentStore) *Service {
	svc := NewService(resolver, store, zerolog.New(nil).Level(zerolog.Disabled))
	svc.now = func() time.Time {
		return time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestReconcile_RecognizedPayment(t *testing.T) {
	store := newMemStore()
	svc := newTestService(recognizedResolver("1000"), store)

	outcome, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX100",
		Mpesa:        dec("1500"),
		PayerKeyHash: "abc",
		TransTime:    "20240315143000",
		Source:       payments.SourceC2B,
	})
	require.NoError(t, err)

	assert.False(t, outcome.Duplicate)
	assert.True(t, outcome.Recognized)

	rec := store.records["TX100"]
	require.NotNil(t, rec)
	assert.Equal(t, "Green Court", rec.PlotName)
	assert.Equal(t, "Jane Tenant", rec.Name)
	assert.Equal(t, "payer-key-1", rec.PayerKey)
	assert.Equal(t, 12, rec.Units)
	assert.Equal(t, "15/03/2024 14:30", rec.TimeDisplay)
	assert.True(t, rec.Amount.Total.Equal(dec("1500")))

	require.Len(t, rec.MonthsPaid, 2)
	assert.Equal(t, domain.NewPeriod(time.March, 2024), rec.MonthsPaid[0].Period)
	assert.Equal(t, domain.NewPeriod(time.April, 2024), rec.MonthsPaid[1].Period)
	require.NotNil(t, rec.Shortfall)
	assert.True(t, rec.Shortfall.Amount.Equal(dec("500")))
}

func TestReconcile_Idempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(recognizedResolver("1000"), store)

	payment := IncomingPayment{
		TransID:      "TX200",
		Mpesa:        dec("1000"),
		PayerKeyHash: "abc",
		TransTime:    "20240315143000",
		Source:       payments.SourceSTK,
	}

	first, err := svc.Reconcile(payment)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.Reconcile(payment)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.Len(t, store.records, 1)
	assert.Equal(t, 1, store.writeCalls, "duplicate must short-circuit before the write")
}

func TestReconcile_ShortfallContinuity(t *testing.T) {
	// Payment N leaves 500 owed for Apr-2024; payment N+1 from the same payer
	// clears Apr first, then fills its own month.
	store := newMemStore()
	svc := newTestService(recognizedResolver("1000"), store)

	_, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX300",
		Mpesa:        dec("1500"),
		PayerKeyHash: "abc",
		TransTime:    "20240315143000",
		Source:       payments.SourceC2B,
	})
	require.NoError(t, err)

	outcome, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX301",
		Mpesa:        dec("1500"),
		PayerKeyHash: "abc",
		TransTime:    "20240510090000",
		Source:       payments.SourceC2B,
	})
	require.NoError(t, err)

	rec := outcome.Record
	require.NotNil(t, rec)
	require.Len(t, rec.MonthsPaid, 2)
	assert.Equal(t, domain.NewPeriod(time.April, 2024), rec.MonthsPaid[0].Period)
	assert.True(t, rec.MonthsPaid[0].Amount.Equal(dec("500")))
	assert.Equal(t, domain.NewPeriod(time.May, 2024), rec.MonthsPaid[1].Period)
	assert.True(t, rec.MonthsPaid[1].Amount.Equal(dec("1000")))
	assert.Nil(t, rec.Shortfall)
}

func TestReconcile_UnrecognizedPayerRecorded(t *testing.T) {
	store := newMemStore()
	resolver := &mockResolver{resolution: plots.Resolution{
		Recognized:  false,
		DisplayName: "Unknown",
		PlotName:    "Unknown",
		PayerKey:    "abc",
	}}
	svc := newTestService(resolver, store)

	outcome, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX400",
		Mpesa:        dec("750"),
		PayerKeyHash: "abc",
		TransTime:    "20240315143000",
		Source:       payments.SourceC2B,
	})
	require.NoError(t, err)
	assert.False(t, outcome.Recognized)

	rec := store.records["TX400"]
	require.NotNil(t, rec)
	assert.Equal(t, "Unknown", rec.PlotName)
	assert.Equal(t, "Unknown", rec.Name)
	assert.True(t, rec.Amount.Total.Equal(dec("750")), "raw amount must be preserved")
	assert.Empty(t, rec.MonthsPaid)
	require.Len(t, rec.Statuses, 1)
	assert.Equal(t, domain.StateUnrecognized, rec.Statuses[0].State)
	assert.Nil(t, rec.Statuses[0].Period)
}

func TestReconcile_ShortfallLookupFailureDegrades(t *testing.T) {
	// A failing prior-payment query must not abort reconciliation - it
	// degrades to "no carried shortfall".
	store := newMemStore()
	store.latestErr = errors.New("no supporting index")
	svc := newTestService(recognizedResolver("1000"), store)

	outcome, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX500",
		Mpesa:        dec("1000"),
		PayerKeyHash: "abc",
		TransTime:    "20240315143000",
		Source:       payments.SourceC2B,
	})
	require.NoError(t, err)

	rec := outcome.Record
	require.NotNil(t, rec)
	require.Len(t, rec.MonthsPaid, 1)
	assert.Equal(t, domain.NewPeriod(time.March, 2024), rec.MonthsPaid[0].Period)
}

func TestReconcile_StoreFailureSurfaces(t *testing.T) {
	store := newMemStore()
	store.writeErr = errors.New("disk full")
	svc := newTestService(recognizedResolver("1000"), store)

	_, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX600",
		Mpesa:        dec("1000"),
		PayerKeyHash: "abc",
		TransTime:    "20240315143000",
		Source:       payments.SourceC2B,
	})
	assert.Error(t, err)
}

func TestReconcile_MalformedTransTimeFallsBackToCurrentMonth(t *testing.T) {
	store := newMemStore()
	svc := newTestService(recognizedResolver("1000"), store)

	outcome, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX700",
		Mpesa:        dec("1000"),
		PayerKeyHash: "abc",
		TransTime:    "not-a-time",
		Source:       payments.SourceC2B,
	})
	require.NoError(t, err)

	rec := outcome.Record
	require.NotNil(t, rec)
	require.Len(t, rec.MonthsPaid, 1)
	// svc.now is pinned to 15 Mar 2024.
	assert.Equal(t, domain.NewPeriod(time.March, 2024), rec.MonthsPaid[0].Period)
}

func TestReconcile_CashIncludedInTotal(t *testing.T) {
	store := newMemStore()
	svc := newTestService(recognizedResolver("1000"), store)

	outcome, err := svc.Reconcile(IncomingPayment{
		TransID:      "TX800",
		Mpesa:        dec("600"),
		Cash:         dec("400"),
		PayerKeyHash: "abc",
		TransTime:    "20240315143000",
		Source:       payments.SourceManual,
	})
	require.NoError(t, err)

	rec := outcome.Record
	require.NotNil(t, rec)
	assert.True(t, rec.Amount.Total.Equal(dec("1000")))
	require.Len(t, rec.MonthsPaid, 1)
	assert.Equal(t, domain.StateComplete, rec.Statuses[0].State)
}

func TestReconcile_MissingTransIDRejected(t *testing.T) {
	svc := newTestService(recognizedResolver("1000"), newMemStore())

	_, err := svc.Reconcile(IncomingPayment{Mpesa: dec("1000"), PayerKeyHash: "abc"})
	assert.Error(t, err)
}
