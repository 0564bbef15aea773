// Package manager implements the manager spec's stateless batch
// construction engine (C6): a deterministic function of an on-chain
// snapshot, TEE master keys, and proposed operations that produces a
// sealed UpdateBatch ready for the operator to submit.
package manager

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/litghost/manager/bytesutil"
	"github.com/litghost/manager/leaf"
	"github.com/litghost/manager/ledger"
	"github.com/litghost/manager/metrics"
	"github.com/litghost/manager/transcript"
)

// Result is everything one manager invocation produces: the sealed
// batch (nil if nothing was found to do) and every operation the
// manager recorded and dropped rather than aborting over.
type Result struct {
	Batch   *ledger.UpdateBatch
	Skipped []ledger.Skipped
}

// Run executes one full manager invocation against lg: it scans
// deposits, applies transactions and payouts, selects and shuffles the
// touched leaf set, re-encrypts every touched leaf, registers new
// users, and seals the batch with its transcript.
//
// Run never writes to lg; submission is the operator's concern.
func Run(ctx context.Context, lg ledger.Ledger, params Params, transactions []Transaction, payoutRequests []PayoutRequest) (Result, error) {
	status, err := lg.GetStatus(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: get status: %v", ErrLedgerUnavailable, err)
	}
	counters := status.Counters

	scan, err := scanDeposits(ctx, lg, params.TeePriv, counters.LastProcessedBlock+1, counters.ProcessedOps, params.ScanTimeBudget, params.DepositCap)
	if err != nil {
		return Result{}, err
	}

	p := newPlanner(lg, params.TeePriv, params.UserMasterKey, counters.UserCount)

	for _, d := range scan.valid {
		if err := p.creditDeposit(ctx, d.username, d.from, d.amount); err != nil {
			return Result{}, err
		}
	}
	for _, d := range scan.invalid {
		p.refundInvalidDeposit(d.from, d.amount)
	}
	for _, tx := range transactions {
		if err := p.applyTransfer(ctx, tx); err != nil {
			return Result{}, err
		}
	}
	for _, req := range payoutRequests {
		if req.Username == "" {
			p.payouts = append(p.payouts, transcript.Payout{ToWho: req.ToAddress, Amount: uint256.NewInt(req.AmountFullDecimals)})
			continue
		}
		if err := p.applyPayout(ctx, req); err != nil {
			return Result{}, err
		}
	}

	opCount := uint64(len(scan.valid) + len(scan.invalid))
	if len(p.touchedLeaves) == 0 && opCount == 0 {
		return Result{Skipped: p.skipped}, nil // nothing to do this cycle
	}

	totalLeaves := ceilDiv(p.postUserCount(), bytesutil.LeafCapacity)
	chaffSet := selectChaff(params.TeePriv, counters.ProcessedOps, opCount, p.touchedLeaves, totalLeaves, params.ChaffMultiplier)
	metrics.ChaffSetSize.Set(int64(len(chaffSet)))

	union := make(map[uint32]bool, len(p.touchedLeaves)+len(chaffSet))
	for idx := range p.touchedLeaves {
		union[idx] = true
	}
	for idx := range chaffSet {
		union[idx] = true
	}
	order := shuffleLeafOrder(params.TeePriv, counters.ProcessedOps, union)

	updates := make([]transcript.Update, 0, len(order))
	newLeaves := make([]leaf.Leaf, 0, len(order))
	for _, leafIdx := range order {
		oldLeaf, newLeaf, err := p.reencryptLeaf(ctx, leafIdx, p.postUserCount())
		if err != nil {
			return Result{}, err
		}
		updates = append(updates, transcript.Update{Old: oldLeaf, New: newLeaf})
		newLeaves = append(newLeaves, newLeaf)
	}

	newUsers := make([]transcript.NewUser, 0, p.postUserCount()-counters.UserCount)
	for idx := counters.UserCount; idx < p.postUserCount(); idx++ {
		us := p.byIndex[idx]
		newUsers = append(newUsers, transcript.NewUser{Index: idx, PublicKey: us.pubKey})
	}

	tb := transcript.Batch{
		OpStart:   counters.ProcessedOps,
		OpCount:   opCount,
		UserCount: counters.UserCount,
		Updates:   updates,
		NewUsers:  newUsers,
		Payouts:   p.payouts,
	}
	digest, err := transcript.Compute(tb)
	if err != nil {
		return Result{}, fmt.Errorf("%w: compute transcript: %v", ErrTranscriptMismatch, err)
	}

	batch := &ledger.UpdateBatch{
		OpStart:    counters.ProcessedOps,
		OpCount:    opCount,
		NextBlock:  scan.nextBlock,
		Updates:    newLeaves,
		NewUsers:   newUsers,
		Payouts:    p.payouts,
		Transcript: digest,
	}

	return Result{Batch: batch, Skipped: p.skipped}, nil
}

// ceilDiv returns ceil(num/den) for den > 0.
func ceilDiv(num, den uint32) uint32 {
	if den == 0 {
		return 0
	}
	return (num + den - 1) / den
}
