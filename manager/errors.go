package manager

import "errors"

// Fatal errors abort the whole invocation; the operator retries the
// next cycle. Per-operation failures are never returned as errors —
// they become ledger.Skipped records instead.
var (
	ErrLedgerUnavailable = errors.New("manager: ledger unavailable")
	ErrTranscriptMismatch = errors.New("manager: transcript mismatch")
)
