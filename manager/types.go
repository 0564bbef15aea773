package manager

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction is a proposed internal transfer, in internal cents.
type Transaction struct {
	From   string
	To     string
	Amount uint32
}

// PayoutRequest is a proposed withdrawal. Username == "" marks an
// auto-refund: the payout is emitted without touching any balance.
type PayoutRequest struct {
	Username           string
	ToAddress          common.Address
	AmountFullDecimals uint64
}

// Params bundles the secrets and tunables one manager invocation needs.
type Params struct {
	TeePriv       [32]byte
	UserMasterKey [32]byte

	// ScanTimeBudget bounds how long deposit scanning may run before the
	// manager moves on to planning with whatever it has found.
	ScanTimeBudget time.Duration

	// DepositCap bounds how many deposits (valid or invalid) one batch
	// will absorb, regardless of remaining time budget.
	DepositCap int

	// ChaffMultiplier sets the target chaff-to-real leaf ratio. Zero
	// means DefaultChaffMultiplier.
	ChaffMultiplier int
}

const idleHeadTimeout = 200 * time.Millisecond
