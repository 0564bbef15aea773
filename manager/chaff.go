package manager

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/litghost/manager/bytesutil"
	"github.com/litghost/manager/keys"
	"github.com/litghost/manager/leaf"
)

// selectChaff implements manager spec §4.6.4: it grows the real leaf set
// with deterministically chosen chaff leaves so an outside observer
// cannot tell which touched leaves carry a real delta.
func selectChaff(teePriv keys.PrivateKey, opStart, opCount uint64, real map[uint32]bool, totalLeaves uint32, multiplier int) map[uint32]bool {
	if multiplier <= 0 {
		multiplier = bytesutil.DefaultChaffMultiplier
	}
	target := len(real) * multiplier
	chaff := make(map[uint32]bool, target)
	if target == 0 || totalLeaves == 0 {
		return chaff
	}

	opStartB := bytesutil.EncodeU64(opStart)
	opCountB := bytesutil.EncodeU64(opCount)
	s := bytesutil.HMACNamespaced(teePriv[:], bytesutil.NamespaceChaff, opStartB[:], opCountB[:])

	maxIterations := 10 * target
	for i := 0; i < maxIterations && len(chaff) < target; i++ {
		v := binary.BigEndian.Uint32(s[:4]) % totalLeaves
		if !real[v] && !chaff[v] {
			chaff[v] = true
		}
		s = bytesutil.Keccak256(s)
	}
	return chaff
}

// shuffleLeafOrder implements manager spec §4.6.5: it orders the union
// of real and chaff leaves by a namespaced HMAC keyed on opStart and the
// leaf index, sorted byte-lexicographically. The result is the order
// updates[] is assembled in; the transcript binds this order.
func shuffleLeafOrder(teePriv keys.PrivateKey, opStart uint64, union map[uint32]bool) []uint32 {
	type keyed struct {
		idx uint32
		key []byte
	}
	opStartB := bytesutil.EncodeU64(opStart)

	entries := make([]keyed, 0, len(union))
	for idx := range union {
		idxB := bytesutil.EncodeU32(idx)
		key := bytesutil.HMACNamespaced(teePriv[:], bytesutil.NamespaceOrder, opStartB[:], idxB[:])
		entries = append(entries, keyed{idx: idx, key: key})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	out := make([]uint32, len(entries))
	for i, e := range entries {
		out[i] = e.idx
	}
	return out
}

// reencryptLeaf implements manager spec §4.6.6 for one touched leaf: it
// fetches the leaf as currently stored, decrypts every occupied slot
// the batch doesn't already know the plaintext for, overwrites the
// slots this batch changed, and re-encrypts every occupied slot under
// an incremented nonce. postUserCount is the user count after this
// batch's own new-user registrations, since a leaf's last slot can be
// occupied by a user this very batch just registered.
func (p *planner) reencryptLeaf(ctx context.Context, leafIdx uint32, postUserCount uint32) (oldLeaf, newLeaf leaf.Leaf, err error) {
	fetched, err := p.lg.GetLeaves(ctx, []uint32{leafIdx})
	if err != nil {
		return leaf.Leaf{}, leaf.Leaf{}, fmt.Errorf("%w: get leaves: %v", ErrLedgerUnavailable, err)
	}
	oldLeaf = fetched[0]
	newNonce := oldLeaf.Nonce + 1
	newLeaf = leaf.Leaf{Idx: leafIdx, Nonce: newNonce}

	var unknownIdx []uint32
	for slot := 0; slot < leaf.Capacity; slot++ {
		gIdx := leafIdx*bytesutil.LeafCapacity + uint32(slot)
		if gIdx == 0 || gIdx >= postUserCount {
			continue // sentinel or not-yet-occupied slot: stays zero
		}
		if _, known := p.byIndex[gIdx]; known {
			continue
		}
		unknownIdx = append(unknownIdx, gIdx)
	}

	unknownPub := make(map[uint32]keys.PublicKey, len(unknownIdx))
	if len(unknownIdx) > 0 {
		pubKeys, err := p.lg.GetUserPublicKeys(ctx, unknownIdx)
		if err != nil {
			return leaf.Leaf{}, leaf.Leaf{}, fmt.Errorf("%w: get user public keys: %v", ErrLedgerUnavailable, err)
		}
		for i, gIdx := range unknownIdx {
			unknownPub[gIdx] = keys.PublicKey(pubKeys[i])
		}
	}

	for slot := 0; slot < leaf.Capacity; slot++ {
		gIdx := leafIdx*bytesutil.LeafCapacity + uint32(slot)
		if gIdx == 0 || gIdx >= postUserCount {
			continue
		}
		if us, known := p.byIndex[gIdx]; known {
			newLeaf.EncryptedBalances[slot] = leaf.EncryptBalance(us.balance, us.shared, newNonce)
			continue
		}

		pub := unknownPub[gIdx]
		shared, err := keys.ECDH(p.teePriv, pub)
		if err != nil {
			return leaf.Leaf{}, leaf.Leaf{}, fmt.Errorf("%w: ecdh with occupant key: %v", ErrLedgerUnavailable, err)
		}
		ciphertext, serr := oldLeaf.Slot(slot)
		if serr != nil {
			return leaf.Leaf{}, leaf.Leaf{}, serr
		}
		balance := leaf.DecryptBalance(ciphertext, shared, oldLeaf.Nonce)
		newLeaf.EncryptedBalances[slot] = leaf.EncryptBalance(balance, shared, newNonce)
	}

	return oldLeaf, newLeaf, nil
}
