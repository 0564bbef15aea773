package metrics

// Pre-defined metrics for the LitGhost manager core and operator daemon.
// All metrics live in DefaultRegistry so they are globally accessible
// without passing a registry around.

var (
	// ---- Manager batch metrics ----

	// BatchDuration records wall-clock time per manager invocation, in
	// milliseconds, regardless of whether it produced a batch.
	BatchDuration = DefaultRegistry.Histogram("manager.batch_duration_ms")
	// BatchesSubmitted counts batches successfully written via
	// Ledger.SubmitUpdate.
	BatchesSubmitted = DefaultRegistry.Counter("manager.batches_submitted")
	// BatchesEmpty counts invocations that found nothing to do.
	BatchesEmpty = DefaultRegistry.Counter("manager.batches_empty")
	// LeavesTouched tracks the size of the most recent batch's leaf set
	// (real + chaff).
	LeavesTouched = DefaultRegistry.Gauge("manager.leaves_touched")
	// ChaffSetSize tracks the number of chaff leaves selected in the
	// most recent batch.
	ChaffSetSize = DefaultRegistry.Gauge("manager.chaff_set_size")

	// ---- Skipped operation metrics, broken out by kind ----

	// SkippedDeposits counts skipped-operation records of kind deposit.
	// Deposits that could not be unblinded are refunded without such a
	// record and are not counted here.
	SkippedDeposits = DefaultRegistry.Counter("manager.skipped_deposits")
	// SkippedTransfers counts internal transfers the manager skipped:
	// an invalid sender or recipient username, or an amount capped to
	// zero by the sender's balance or the recipient's headroom.
	SkippedTransfers = DefaultRegistry.Counter("manager.skipped_transfers")
	// SkippedPayouts counts withdrawal requests dropped for
	// insufficient balance.
	SkippedPayouts = DefaultRegistry.Counter("manager.skipped_payouts")

	// ---- Operator daemon metrics ----

	// TicksRun counts completed operator loop iterations.
	TicksRun = DefaultRegistry.Counter("operator.ticks_run")
	// TickErrors counts ticks that aborted with an error rather than
	// producing or skipping a batch.
	TickErrors = DefaultRegistry.Counter("operator.tick_errors")
	// LastProcessedBlock tracks the ledger block height the operator
	// has most recently caught up to.
	LastProcessedBlock = DefaultRegistry.Gauge("operator.last_processed_block")
)
