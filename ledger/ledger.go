package ledger

import (
	"context"

	"github.com/litghost/manager/leaf"
)

// Ledger is the contract surface §6 of the manager spec exposes to the
// core. Every method is either a read against current on-chain state, a
// subscription to a log stream, or (SubmitUpdate) the one write the
// operator performs on the core's behalf; the core itself never writes.
type Ledger interface {
	// GetStatus returns the current on-chain counters.
	GetStatus(ctx context.Context) (Status, error)

	// GetUpdateContext batches GetStatus with a per-key user lookup, the
	// shape a batch-planning pass actually wants in one round trip.
	GetUpdateContext(ctx context.Context, userPublicKeys [][32]byte) (UpdateContext, error)

	// GetUserLeaves resolves each of the given public keys to the global
	// index currently registered for it (0 if unregistered).
	GetUserLeaves(ctx context.Context, userPublicKeys [][32]byte) ([]uint32, error)

	// GetUserInfo resolves a single public key's global index and
	// current leaf.
	GetUserInfo(ctx context.Context, userPublicKey [32]byte) (UserInfo, error)

	// GetLeaves batch-fetches leaves by index.
	GetLeaves(ctx context.Context, leafIndices []uint32) ([]leaf.Leaf, error)

	// GetUserPublicKeys batch-resolves global indices back to their
	// registered public keys, used to find the occupants of a leaf the
	// manager didn't already know from this batch's own operations.
	GetUserPublicKeys(ctx context.Context, userIndices []uint32) ([][32]byte, error)

	// GetEntropy returns the enclave's sealed bootstrap entropy. The
	// core reads it through this interface but does not itself verify
	// the attestation signature or CID binding.
	GetEntropy(ctx context.Context) (Entropy, error)

	// WatchDeposits streams OpDeposit events from fromBlock onward. The
	// channel is closed when ctx is canceled or the underlying
	// subscription ends.
	WatchDeposits(ctx context.Context, fromBlock uint64) (<-chan DepositEvent, error)

	// WatchLeafChanges streams LeafChange events from fromBlock onward,
	// closed under the same rules as WatchDeposits.
	WatchLeafChanges(ctx context.Context, fromBlock uint64) (<-chan LeafChangeEvent, error)

	// SubmitUpdate writes a sealed batch on-chain. Submission is the
	// operator's concern; the core only ever produces the batch.
	SubmitUpdate(ctx context.Context, batch UpdateBatch) error
}
