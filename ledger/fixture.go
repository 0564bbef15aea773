package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/litghost/manager/leaf"
)

// ErrNotFound is returned by Fixture lookups for keys or indices that do
// not exist in the fixture's current state.
var ErrNotFound = errors.New("ledger: not found")

// Fixture is a deterministic in-memory Ledger used by tests and by the
// operator's dry-run mode. It is not a mock in the sense of asserting
// call expectations; it is a small, real implementation of the contract
// surface backed by Go maps instead of a chain client.
type Fixture struct {
	mu sync.Mutex

	counters Counters
	leaves   map[uint32]leaf.Leaf
	byIndex  map[uint32][32]byte // global index -> public key
	byKey    map[[32]byte]uint32 // public key -> global index
	entropy  Entropy

	deposits     []DepositEvent
	depositSubs  []chan DepositEvent
	leafChanges  []LeafChangeEvent
	leafChgSubs  []chan LeafChangeEvent
}

// NewFixture returns an empty fixture: no users, no leaves, UserCount
// 1 (index 0 is the sentinel) and the other counters zero.
func NewFixture() *Fixture {
	return &Fixture{
		counters: Counters{UserCount: 1}, // global index 0 is always the sentinel
		leaves:   make(map[uint32]leaf.Leaf),
		byIndex:  make(map[uint32][32]byte),
		byKey:    make(map[[32]byte]uint32),
	}
}

// SeedEntropy installs the bootstrap entropy GetEntropy will return.
func (f *Fixture) SeedEntropy(e Entropy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entropy = e
}

// SeedCounters overwrites the fixture's current counters directly,
// bypassing deposit/update bookkeeping — useful for constructing a
// specific on-chain snapshot in a test without replaying history.
func (f *Fixture) SeedCounters(c Counters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = c
}

// SeedLeaf installs a leaf directly, bypassing SubmitUpdate.
func (f *Fixture) SeedLeaf(l leaf.Leaf) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves[l.Idx] = l
}

// SeedUser registers a user at a specific global index directly,
// bypassing new-user assembly through SubmitUpdate.
func (f *Fixture) SeedUser(index uint32, publicKey [32]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIndex[index] = publicKey
	f.byKey[publicKey] = index
	if index >= f.counters.UserCount {
		f.counters.UserCount = index + 1
	}
}

// PushDeposit appends a deposit event and fans it out to any active
// WatchDeposits subscribers, as if it had just been mined.
func (f *Fixture) PushDeposit(ev DepositEvent) {
	f.mu.Lock()
	f.deposits = append(f.deposits, ev)
	subs := append([]chan DepositEvent(nil), f.depositSubs...)
	f.mu.Unlock()

	for _, ch := range subs {
		ch <- ev
	}
}

func (f *Fixture) GetStatus(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{Counters: f.counters}, nil
}

func (f *Fixture) GetUpdateContext(ctx context.Context, userPublicKeys [][32]byte) (UpdateContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	infos := make(map[[32]byte]UserInfo, len(userPublicKeys))
	for _, key := range userPublicKeys {
		idx, ok := f.byKey[key]
		if !ok {
			continue // unregistered users are simply absent from the map
		}
		leafIdx, _ := leaf.GlobalIndex(idx)
		infos[key] = UserInfo{UserIndex: idx, Leaf: f.leaves[leafIdx]}
	}
	return UpdateContext{Counters: f.counters, UserInfos: infos}, nil
}

func (f *Fixture) GetUserLeaves(ctx context.Context, userPublicKeys [][32]byte) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(userPublicKeys))
	for i, key := range userPublicKeys {
		out[i] = f.byKey[key] // 0 (sentinel) for unregistered keys
	}
	return out, nil
}

func (f *Fixture) GetUserInfo(ctx context.Context, userPublicKey [32]byte) (UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.byKey[userPublicKey]
	if !ok {
		return UserInfo{}, ErrNotFound
	}
	leafIdx, _ := leaf.GlobalIndex(idx)
	return UserInfo{UserIndex: idx, Leaf: f.leaves[leafIdx]}, nil
}

func (f *Fixture) GetLeaves(ctx context.Context, leafIndices []uint32) ([]leaf.Leaf, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]leaf.Leaf, len(leafIndices))
	for i, idx := range leafIndices {
		l, ok := f.leaves[idx]
		if !ok {
			l = leaf.Empty(idx)
		}
		out[i] = l
	}
	return out, nil
}

func (f *Fixture) GetUserPublicKeys(ctx context.Context, userIndices []uint32) ([][32]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][32]byte, len(userIndices))
	for i, idx := range userIndices {
		out[i] = f.byIndex[idx] // zero key for an index with no registered user
	}
	return out, nil
}

func (f *Fixture) GetEntropy(ctx context.Context) (Entropy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entropy, nil
}

// WatchDeposits replays pushed deposits from fromBlock onward and then
// delivers new ones. When ctx is canceled the subscription is removed
// from the fan-out list; the returned channel is not closed.
func (f *Fixture) WatchDeposits(ctx context.Context, fromBlock uint64) (<-chan DepositEvent, error) {
	f.mu.Lock()
	ch := make(chan DepositEvent, 64)
	f.depositSubs = append(f.depositSubs, ch)
	backfill := make([]DepositEvent, 0, len(f.deposits))
	for _, ev := range f.deposits {
		if ev.BlockNumber >= fromBlock {
			backfill = append(backfill, ev)
		}
	}
	f.mu.Unlock()

	go func() {
		defer f.removeDepositSub(ch)
		for _, ev := range backfill {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()

	return ch, nil
}

func (f *Fixture) removeDepositSub(ch chan DepositEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.depositSubs {
		if s == ch {
			f.depositSubs = append(f.depositSubs[:i], f.depositSubs[i+1:]...)
			break
		}
	}
}

// WatchLeafChanges replays recorded leaf changes from fromBlock onward
// and then delivers new ones. When ctx is canceled the subscription is
// removed from the fan-out list; the returned channel is not closed.
func (f *Fixture) WatchLeafChanges(ctx context.Context, fromBlock uint64) (<-chan LeafChangeEvent, error) {
	f.mu.Lock()
	ch := make(chan LeafChangeEvent, 64)
	f.leafChgSubs = append(f.leafChgSubs, ch)
	backfill := make([]LeafChangeEvent, 0, len(f.leafChanges))
	for _, ev := range f.leafChanges {
		if ev.BlockNumber >= fromBlock {
			backfill = append(backfill, ev)
		}
	}
	f.mu.Unlock()

	go func() {
		defer f.removeLeafChgSub(ch)
		for _, ev := range backfill {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()

	return ch, nil
}

func (f *Fixture) removeLeafChgSub(ch chan LeafChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.leafChgSubs {
		if s == ch {
			f.leafChgSubs = append(f.leafChgSubs[:i], f.leafChgSubs[i+1:]...)
			break
		}
	}
}

// SubmitUpdate applies a batch to the fixture's state: it writes every
// updated leaf, appends every new user at its assigned index, records a
// LeafChange event per update (fanned out to subscribers), and advances
// the processed-ops and next-block counters. It does not itself perform
// any batch validation; Fixture trusts its caller the way the real
// contract trusts the transcript instead.
func (f *Fixture) SubmitUpdate(ctx context.Context, batch UpdateBatch) error {
	f.mu.Lock()

	events := make([]LeafChangeEvent, 0, len(batch.Updates))
	for _, l := range batch.Updates {
		f.leaves[l.Idx] = l
		events = append(events, LeafChangeEvent{
			LeafIdx:     l.Idx,
			PackedLeaf:  leaf.Pack(l),
			BlockNumber: batch.NextBlock,
		})
	}
	f.leafChanges = append(f.leafChanges, events...)

	for _, nu := range batch.NewUsers {
		f.byIndex[nu.Index] = nu.PublicKey
		f.byKey[nu.PublicKey] = nu.Index
	}
	if n := uint32(len(batch.NewUsers)); n > 0 {
		f.counters.UserCount += n
	}

	f.counters.ProcessedOps = batch.OpStart + batch.OpCount
	f.counters.LastProcessedBlock = batch.NextBlock

	leafSubs := append([]chan LeafChangeEvent(nil), f.leafChgSubs...)
	f.mu.Unlock()

	for _, ev := range events {
		for _, ch := range leafSubs {
			select {
			case ch <- ev:
			default: // bounded queue: drop rather than block the submitter
			}
		}
	}
	return nil
}
