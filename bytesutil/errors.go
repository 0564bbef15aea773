package bytesutil

import "errors"

// Primitive-level errors. These are fatal to whatever operation raised
// them; callers at the per-operation scope (deposit unblinding, transfer
// validation, ...) catch and convert them into skipped records instead of
// letting them bubble out of a batch.
var (
	ErrLengthMismatch  = errors.New("bytesutil: length mismatch")
	ErrInvalidEncoding = errors.New("bytesutil: invalid encoding")
)
