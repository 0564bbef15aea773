// Package ledger defines the on-chain contract surface the manager core
// consumes (C8): a read-mostly interface plus the supporting types every
// operation moves, and an in-memory Fixture implementation used by tests
// and dry runs in place of a live chain client.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/litghost/manager/leaf"
	"github.com/litghost/manager/transcript"
)

// Counters is the on-chain state the manager treats as read-only input.
type Counters struct {
	OpCount            uint64
	ProcessedOps       uint64
	UserCount          uint32
	LastProcessedBlock uint64
	Dust               uint32
}

// Status is the result of GetStatus.
type Status struct {
	Counters Counters
}

// UserInfo is a user's assigned global index and current leaf.
type UserInfo struct {
	UserIndex uint32
	Leaf      leaf.Leaf
}

// UpdateContext bundles the counters and per-user info the manager needs
// to plan a batch, keyed by the user public keys it was asked about.
type UpdateContext struct {
	Counters  Counters
	UserInfos map[[32]byte]UserInfo
}

// DepositEvent mirrors one OpDeposit log.
type DepositEvent struct {
	Idx         uint64
	BlockNumber uint64
	Removed     bool // true if this log was reorged out
	From        common.Address
	RandKey     [32]byte // ephemeral public key, x-only
	ToUser      [32]byte // blinded recipient username
	Amount      uint64   // full on-chain token units
}

// LeafChangeEvent mirrors one LeafChange log: a leaf rewrite, real or
// chaff, in its packed wire form.
type LeafChangeEvent struct {
	BlockNumber uint64
	TxHash      common.Hash
	LeafIdx     uint32
	PackedLeaf  [32]byte
}

// Entropy is the enclave's sealed bootstrap material: the sealed bytes,
// the host's signature over them, and the content-address binding the
// blob to the enclave image that sealed it. The core treats this as an
// opaque ledger read; verifying the signature or the CID binding is an
// enclave-host concern this package does not implement.
type Entropy struct {
	Sealed    []byte
	Signature []byte
	CID       string
}

// UpdateBatch is the sealed result of a manager invocation, ready for
// the operator to submit via Ledger.SubmitUpdate.
type UpdateBatch struct {
	OpStart    uint64
	OpCount    uint64
	NextBlock  uint64
	Updates    []leaf.Leaf
	NewUsers   []transcript.NewUser
	Payouts    []transcript.Payout
	Transcript [32]byte
}

// SkippedKind classifies a dropped operation for observability.
type SkippedKind string

const (
	SkippedDeposit  SkippedKind = "deposit"
	SkippedTransfer SkippedKind = "transfer"
	SkippedPayout   SkippedKind = "payout"
)

// Skipped is one operation the manager recorded and dropped rather than
// aborting the batch over.
type Skipped struct {
	Kind    SkippedKind
	Reason  string
	Details string
}
