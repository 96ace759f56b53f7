package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jowabu/plotpay/internal/modules/callbacks"
	"github.com/jowabu/plotpay/internal/modules/payments"
	"github.com/jowabu/plotpay/internal/modules/reconciliation"
)

// replayBatchSize caps how many stranded transactions one sweep touches.
const replayBatchSize = 100

// Reconciler runs a payment event through the reconciliation engine.
// Satisfied by *reconciliation.Service.
type Reconciler interface {
	Reconcile(p reconciliation.IncomingPayment) (reconciliation.Outcome, error)
}

// ReplayPendingJob re-runs reconciliation for gateway transactions that were
// stored at intake but never made it onto the payments ledger - the aftermath
// of a downstream failure during a callback. Reconciliation is idempotent, so
// racing a live callback is harmless.
type ReplayPendingJob struct {
	intake     *callbacks.Repository
	reconciler Reconciler
	log        zerolog.Logger
}

// NewReplayPendingJob creates a new replay job
func NewReplayPendingJob(intake *callbacks.Repository, reconciler Reconciler, log zerolog.Logger) *ReplayPendingJob {
	return &ReplayPendingJob{
		intake:     intake,
		reconciler: reconciler,
		log:        log.With().Str("job", "replay_pending").Logger(),
	}
}

// Name returns the job name
func (j *ReplayPendingJob) Name() string {
	return "replay_pending"
}

// Run replays stranded STK and C2B transactions
func (j *ReplayPendingJob) Run() error {
	replayed := 0

	stk, err := j.intake.ListUnreconciledSTK(replayBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list stranded stk transactions: %w", err)
	}
	for _, tx := range stk {
		if j.replay(tx.CheckoutRequestID, tx.Amount, tx.PayerKeyHash, tx.TransTime, payments.SourceSTK) {
			replayed++
		}
	}

	c2b, err := j.intake.ListUnreconciledC2B(replayBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list stranded c2b transactions: %w", err)
	}
	for _, tx := range c2b {
		if j.replay(tx.TransID, tx.Amount, tx.PayerKeyHash, tx.TransTime, payments.SourceC2B) {
			replayed++
		}
	}

	if replayed > 0 {
		j.log.Info().Int("replayed", replayed).Msg("Replayed stranded transactions")
	}
	return nil
}

func (j *ReplayPendingJob) replay(transID, amount, payerKey, transTime string, source payments.Source) bool {
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		j.log.Warn().
			Str("trans_id", transID).
			Str("amount", amount).
			Msg("Stranded transaction has unusable amount, skipping")
		return false
	}

	_, err = j.reconciler.Reconcile(reconciliation.IncomingPayment{
		TransID:      transID,
		Mpesa:        parsed,
		PayerKeyHash: payerKey,
		TransTime:    transTime,
		Source:       source,
	})
	if err != nil {
		j.log.Error().Err(err).Str("trans_id", transID).Msg("Replay failed")
		return false
	}
	return true
}
