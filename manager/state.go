package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/litghost/manager/bytesutil"
	"github.com/litghost/manager/deposit"
	"github.com/litghost/manager/keys"
	"github.com/litghost/manager/leaf"
	"github.com/litghost/manager/ledger"
	"github.com/litghost/manager/transcript"
)

// userState is the manager's working record for one user touched by
// this batch: their identity, their balance as of the most recently
// applied delta, and the leaf slot they occupy.
type userState struct {
	username    string
	pubKey      keys.PublicKey
	shared      keys.SharedSecret
	globalIndex uint32
	isNew       bool
	balance     uint32
	leafIdx     uint32
	slot        int
}

// planner accumulates the effect of one batch: every user touched,
// every leaf that needs rewriting, every payout, and every skipped
// operation, in the order §4.6 processes them.
type planner struct {
	lg      ledger.Ledger
	teePriv keys.PrivateKey
	master  [32]byte

	baseUserCount uint32 // on-chain user count observed at the start of this batch
	nextIndex     uint32 // next global index to assign a newly seen user

	byUsername    map[string]*userState
	byIndex       map[uint32]*userState
	touchedLeaves map[uint32]bool

	skipped []ledger.Skipped
	payouts []transcript.Payout
}

func newPlanner(lg ledger.Ledger, teePriv keys.PrivateKey, master [32]byte, baseUserCount uint32) *planner {
	if baseUserCount == 0 {
		baseUserCount = 1 // index 0 is always the sentinel
	}
	return &planner{
		lg:            lg,
		teePriv:       teePriv,
		master:        master,
		baseUserCount: baseUserCount,
		nextIndex:     baseUserCount,
		byUsername:    make(map[string]*userState),
		byIndex:       make(map[uint32]*userState),
		touchedLeaves: make(map[uint32]bool),
	}
}

// postUserCount is the user count this batch will leave on-chain:
// everyone already registered plus everyone newly registered so far.
func (p *planner) postUserCount() uint32 {
	return p.nextIndex
}

// resolveUser returns the working state for username, fetching it from
// the ledger (or minting a new global index) on first reference.
func (p *planner) resolveUser(ctx context.Context, username string) (*userState, error) {
	if us, ok := p.byUsername[username]; ok {
		return us, nil
	}

	_, pub, err := keys.DeriveUserKeypair(p.master, username)
	if err != nil {
		return nil, fmt.Errorf("%w: derive user keypair: %v", ErrLedgerUnavailable, err)
	}
	shared, err := keys.ECDH(p.teePriv, pub)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh with user key: %v", ErrLedgerUnavailable, err)
	}

	info, err := p.lg.GetUserInfo(ctx, pub)
	us := &userState{username: username, pubKey: pub, shared: shared}
	switch {
	case err == nil:
		us.globalIndex = info.UserIndex
		us.isNew = false
		leafIdx, slot := leafIndexOf(us.globalIndex)
		us.leafIdx, us.slot = leafIdx, slot
		ciphertext, cerr := info.Leaf.Slot(slot)
		if cerr != nil {
			return nil, fmt.Errorf("%w: occupant slot: %v", ErrLedgerUnavailable, cerr)
		}
		us.balance = leaf.DecryptBalance(ciphertext, shared, info.Leaf.Nonce)
	case errors.Is(err, ledger.ErrNotFound):
		us.globalIndex = p.nextIndex
		us.isNew = true
		p.nextIndex++
		leafIdx, slot := leafIndexOf(us.globalIndex)
		us.leafIdx, us.slot = leafIdx, slot
		us.balance = 0
	default:
		return nil, fmt.Errorf("%w: get user info: %v", ErrLedgerUnavailable, err)
	}

	p.byUsername[username] = us
	p.byIndex[us.globalIndex] = us
	p.touchedLeaves[us.leafIdx] = true
	return us, nil
}

func leafIndexOf(globalIndex uint32) (leafIdx uint32, slot int) {
	return globalIndex / bytesutil.LeafCapacity, int(globalIndex % bytesutil.LeafCapacity)
}

// creditDeposit applies manager spec §4.6.2's deposit delta rule: credit
// up to the available headroom, refund any excess to the depositor.
func (p *planner) creditDeposit(ctx context.Context, username string, from common.Address, amountFull uint64) error {
	us, err := p.resolveUser(ctx, username)
	if err != nil {
		return err
	}
	internal := amountFull / bytesutil.ScaleFactor
	headroom := uint64(bytesutil.MaxBalance - us.balance)
	credit := internal
	if credit > headroom {
		credit = headroom
	}
	us.balance += uint32(credit)

	if excess := internal - credit; excess > 0 {
		p.payouts = append(p.payouts, transcript.Payout{
			ToWho:  from,
			Amount: uint256.NewInt(excess * bytesutil.ScaleFactor),
		})
	}
	return nil
}

// refundInvalidDeposit auto-refunds a deposit the manager could not
// unblind, touching no balance.
func (p *planner) refundInvalidDeposit(from common.Address, amountFull uint64) {
	p.payouts = append(p.payouts, transcript.Payout{
		ToWho:  from,
		Amount: uint256.NewInt(amountFull),
	})
}

// applyTransfer applies manager spec §4.6.2's internal-transfer rule.
func (p *planner) applyTransfer(ctx context.Context, tx Transaction) error {
	if err := deposit.ValidateUsername(tx.From); err != nil {
		p.skipped = append(p.skipped, ledger.Skipped{
			Kind:    ledger.SkippedTransfer,
			Reason:  "invalid sender username",
			Details: fmt.Sprintf("%s -> %s: %v", tx.From, tx.To, err),
		})
		return nil
	}
	if err := deposit.ValidateUsername(tx.To); err != nil {
		p.skipped = append(p.skipped, ledger.Skipped{
			Kind:    ledger.SkippedTransfer,
			Reason:  "invalid recipient username",
			Details: fmt.Sprintf("%s -> %s: %v", tx.From, tx.To, err),
		})
		return nil
	}

	from, err := p.resolveUser(ctx, tx.From)
	if err != nil {
		return err
	}
	to, err := p.resolveUser(ctx, tx.To)
	if err != nil {
		return err
	}

	available := from.balance
	headroom := bytesutil.MaxBalance - to.balance
	amount := tx.Amount
	if amount > available {
		amount = available
	}
	if amount > headroom {
		amount = headroom
	}
	if amount == 0 {
		p.skipped = append(p.skipped, ledger.Skipped{
			Kind:    ledger.SkippedTransfer,
			Reason:  "zero capacity after capping to sender balance and recipient headroom",
			Details: fmt.Sprintf("%s -> %s requested %d", tx.From, tx.To, tx.Amount),
		})
		return nil
	}

	from.balance -= amount
	to.balance += amount
	return nil
}

// applyPayout applies manager spec §4.6.3's payout rule for a
// username-bearing request (empty-username auto-refunds are handled by
// refundInvalidDeposit's sibling path in manager.go).
func (p *planner) applyPayout(ctx context.Context, req PayoutRequest) error {
	us, err := p.resolveUser(ctx, req.Username)
	if err != nil {
		return err
	}
	internal := req.AmountFullDecimals / bytesutil.ScaleFactor
	if uint64(us.balance) < internal {
		p.skipped = append(p.skipped, ledger.Skipped{
			Kind:    ledger.SkippedPayout,
			Reason:  "insufficient balance",
			Details: fmt.Sprintf("%s has %d, requested %d internal", req.Username, us.balance, internal),
		})
		return nil
	}
	us.balance -= uint32(internal)
	p.payouts = append(p.payouts, transcript.Payout{
		ToWho:  req.ToAddress,
		Amount: uint256.NewInt(req.AmountFullDecimals),
	})
	return nil
}
