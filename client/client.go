// Package client implements the manager spec's user client (C7): a
// read-only consumer of the same packed-leaf ciphertext layout the core
// writes, letting a user derive their own leaf position, query their
// current balance, and watch it change over time.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/litghost/manager/bytesutil"
	"github.com/litghost/manager/keys"
	"github.com/litghost/manager/ledger"
	"github.com/litghost/manager/leaf"
)

// ErrNotRegistered is returned by GetBalance and WatchBalance when the
// client's public key has no global index assigned yet.
var ErrNotRegistered = errors.New("client: user not registered")

// BalanceUpdate is one observation of a user's balance: either the
// current snapshot (from GetBalance, where BlockNumber and TxHash are
// zero) or one step of a watch sequence (where they identify the
// LeafChange that produced it).
type BalanceUpdate struct {
	BlockNumber uint64
	Balance     uint32
	Nonce       uint32
	TxHash      common.Hash
}

// Client is bound to one user: their username, their derived private
// key (bootstrapped to them out-of-band via the enclave's user-keypair
// derivation), and the enclave's public key.
type Client struct {
	lg     ledger.Ledger
	pub    keys.PublicKey
	shared keys.SharedSecret
}

// New binds a Client to userPriv against teePub. The shared secret is
// computed once and reused for every decrypt.
func New(lg ledger.Ledger, userPriv keys.PrivateKey, teePub keys.PublicKey) (*Client, error) {
	shared, err := keys.ECDH(userPriv, teePub)
	if err != nil {
		return nil, fmt.Errorf("client: derive shared secret: %w", err)
	}
	return &Client{
		lg:     lg,
		pub:    keys.PublicKeyFromPrivate(userPriv),
		shared: shared,
	}, nil
}

// resolve looks up the caller's global index and, if registered,
// returns the leaf index and slot it lives in.
func (c *Client) resolve(ctx context.Context) (leafIdx uint32, slot int, err error) {
	indices, err := c.lg.GetUserLeaves(ctx, [][32]byte{c.pub})
	if err != nil {
		return 0, 0, fmt.Errorf("client: get user leaves: %w", err)
	}
	idx := indices[0]
	if idx == 0 {
		return 0, 0, ErrNotRegistered
	}
	leafIdx, slot = leaf.GlobalIndex(idx)
	return leafIdx, slot, nil
}

// GetBalance fetches the caller's current leaf and decrypts their
// slot. It returns ErrNotRegistered if the caller has no global index
// yet.
func (c *Client) GetBalance(ctx context.Context) (BalanceUpdate, error) {
	leafIdx, slot, err := c.resolve(ctx)
	if err != nil {
		return BalanceUpdate{}, err
	}

	leaves, err := c.lg.GetLeaves(ctx, []uint32{leafIdx})
	if err != nil {
		return BalanceUpdate{}, fmt.Errorf("client: get leaves: %w", err)
	}
	l := leaves[0]

	ciphertext, err := l.Slot(slot)
	if err != nil {
		return BalanceUpdate{}, err
	}
	balance := leaf.DecryptBalance(ciphertext, c.shared, l.Nonce)
	return BalanceUpdate{Balance: balance, Nonce: l.Nonce}, nil
}

// WatchBalance produces a lazy, restartable sequence of BalanceUpdates
// for the caller's own leaf slot: it subscribes to leaf changes from
// fromBlock (the subscription first replays earlier events), then
// follows live ones, filtering to
// the caller's own leaf index and dropping anything whose nonce is not
// strictly greater than the last value yielded (idempotence under
// at-least-once delivery and reorg replay). The channel is closed, and
// the underlying subscription released, when ctx is canceled or the
// ledger's stream ends.
func (c *Client) WatchBalance(ctx context.Context, fromBlock uint64) (<-chan BalanceUpdate, error) {
	leafIdx, slot, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	events, err := c.lg.WatchLeafChanges(ctx, fromBlock)
	if err != nil {
		return nil, fmt.Errorf("client: watch leaf changes: %w", err)
	}

	out := make(chan BalanceUpdate, bytesutil.LeafCapacity)
	go func() {
		defer close(out)
		var lastNonce uint32
		seen := false
		for {
			var ev ledger.LeafChangeEvent
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				ev = e
			case <-ctx.Done():
				return
			}
			if ev.LeafIdx != leafIdx {
				continue
			}
			l, err := leaf.Unpack(ev.PackedLeaf[:])
			if err != nil {
				continue // malformed log: skip rather than abort the whole watch
			}
			if seen && l.Nonce <= lastNonce {
				continue
			}
			ciphertext, err := l.Slot(slot)
			if err != nil {
				continue
			}
			balance := leaf.DecryptBalance(ciphertext, c.shared, l.Nonce)
			update := BalanceUpdate{
				BlockNumber: ev.BlockNumber,
				Balance:     balance,
				Nonce:       l.Nonce,
				TxHash:      ev.TxHash,
			}
			select {
			case out <- update:
				lastNonce = l.Nonce
				seen = true
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
