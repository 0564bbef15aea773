package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/litghost/manager/deposit"
	"github.com/litghost/manager/keys"
	"github.com/litghost/manager/ledger"
)

// validDeposit is a successfully unblinded deposit ready to be folded
// into the delta pass.
type validDeposit struct {
	username string
	from     common.Address
	amount   uint64 // full on-chain token units
}

// invalidDeposit is a deposit the manager could not unblind; it is
// refunded in full rather than credited to anyone.
type invalidDeposit struct {
	from   common.Address
	amount uint64
}

// scanResult is everything deposit scanning produced, including the
// cursor the next invocation should resume from.
type scanResult struct {
	valid     []validDeposit
	invalid   []invalidDeposit
	nextBlock uint64
}

// scanDeposits implements manager spec §4.6.1: it drains OpDeposit
// events from fromBlock, unblinding each recipient via C3, until the
// time budget expires, the deposit cap is hit, or the event stream goes
// idle (treated as "head reached" since this ledger interface streams
// events rather than exposing a separate latest-block query).
func scanDeposits(ctx context.Context, lg ledger.Ledger, teePriv keys.PrivateKey, fromBlock, processedOps uint64, budget time.Duration, cap int) (scanResult, error) {
	scanCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ch, err := lg.WatchDeposits(scanCtx, fromBlock)
	if err != nil {
		return scanResult{}, fmt.Errorf("%w: watch deposits: %v", ErrLedgerUnavailable, err)
	}

	res := scanResult{nextBlock: fromBlock}
	idle := time.NewTimer(idleHeadTimeout)
	defer idle.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				res.nextBlock++ // subscription closed: treat as head reached
				return res, nil
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(idleHeadTimeout)

			if ev.Removed || ev.Idx <= processedOps {
				continue
			}
			if ev.BlockNumber > res.nextBlock {
				res.nextBlock = ev.BlockNumber
			}

			username, uerr := deposit.EnclaveUnblind(deposit.Intent{Rand: keys.PublicKey(ev.RandKey), User: ev.ToUser}, teePriv)
			if uerr != nil {
				res.invalid = append(res.invalid, invalidDeposit{from: ev.From, amount: ev.Amount})
			} else {
				res.valid = append(res.valid, validDeposit{username: username, from: ev.From, amount: ev.Amount})
			}

			if cap > 0 && len(res.valid)+len(res.invalid) >= cap {
				return res, nil // cap hit mid-block: nextBlock stays on this block
			}
		case <-idle.C:
			res.nextBlock++ // no more events arriving: advance past the last processed block
			return res, nil
		case <-scanCtx.Done():
			return res, nil
		}
	}
}
