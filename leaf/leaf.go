// Package leaf implements the manager spec's leaf cipher (C4): the
// per-slot balance encryption keyed by (shared secret, leaf nonce), and
// the fixed 32-byte wire packing of a leaf record.
package leaf

import (
	"errors"
	"fmt"

	"github.com/litghost/manager/bytesutil"
	"github.com/litghost/manager/keys"
)

// Capacity is the number of user slots packed into one leaf.
const Capacity = bytesutil.LeafCapacity

// ErrInvalidSlot is returned when a slot index outside [0, Capacity) is
// used to address a leaf.
var ErrInvalidSlot = errors.New("leaf: invalid slot index")

// Leaf is the fixed record holding six per-user encrypted balance slots,
// its own leaf index, and a monotonically increasing nonce.
type Leaf struct {
	EncryptedBalances [Capacity][bytesutil.BalanceBytes]byte
	Idx               uint32
	Nonce             uint32
}

// GlobalIndex reports the leaf index and slot that global user index u
// occupies. Global index 0 is a sentinel and never belongs to a real
// user.
func GlobalIndex(u uint32) (idx uint32, slot int) {
	return u / Capacity, int(u % Capacity)
}

// BalanceKey derives the 4-byte XOR key for one slot's balance cipher
// from the occupant's ECDH shared secret and the leaf's nonce: the
// nonce enters the key so no two encryptions of the same slot under the
// same shared secret ever reuse key material.
func BalanceKey(shared keys.SharedSecret, nonce uint32) [bytesutil.BalanceBytes]byte {
	n := bytesutil.EncodeU32(nonce)
	full := bytesutil.HMACNamespaced(shared[:], bytesutil.NamespaceBalance, n[:])
	var key [bytesutil.BalanceBytes]byte
	copy(key[:], full[:bytesutil.BalanceBytes])
	return key
}

// EncryptBalance encrypts balance for one slot under shared and nonce.
func EncryptBalance(balance uint32, shared keys.SharedSecret, nonce uint32) [bytesutil.BalanceBytes]byte {
	key := BalanceKey(shared, nonce)
	plain := bytesutil.EncodeU32(balance)
	var out [bytesutil.BalanceBytes]byte
	for i := range out {
		out[i] = plain[i] ^ key[i]
	}
	return out
}

// DecryptBalance is the inverse of EncryptBalance: the cipher is a
// stream XOR, so encryption and decryption are the same operation.
func DecryptBalance(ciphertext [bytesutil.BalanceBytes]byte, shared keys.SharedSecret, nonce uint32) uint32 {
	key := BalanceKey(shared, nonce)
	var plain [bytesutil.BalanceBytes]byte
	for i := range plain {
		plain[i] = ciphertext[i] ^ key[i]
	}
	v, _ := bytesutil.DecodeU32(plain[:]) // fixed-width arrays always decode
	return v
}

// Slot returns the ciphertext at position slot.
func (l Leaf) Slot(slot int) ([bytesutil.BalanceBytes]byte, error) {
	if slot < 0 || slot >= Capacity {
		return [bytesutil.BalanceBytes]byte{}, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	return l.EncryptedBalances[slot], nil
}

// WithSlot returns a copy of l with slot's ciphertext replaced.
func (l Leaf) WithSlot(slot int, ciphertext [bytesutil.BalanceBytes]byte) (Leaf, error) {
	if slot < 0 || slot >= Capacity {
		return Leaf{}, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	out := l
	out.EncryptedBalances[slot] = ciphertext
	return out, nil
}

// DecryptLeaf decrypts every occupied slot of l given the occupants'
// shared secrets, indexed by slot. A slot whose shared secret is nil
// decrypts as zero; callers pass nil for shared secrets of
// unknown/empty slots.
func DecryptLeaf(l Leaf, shared [Capacity]*keys.SharedSecret) [Capacity]uint32 {
	var balances [Capacity]uint32
	for slot := 0; slot < Capacity; slot++ {
		if shared[slot] == nil {
			continue // empty slot decrypts as zero
		}
		balances[slot] = DecryptBalance(l.EncryptedBalances[slot], *shared[slot], l.Nonce)
	}
	return balances
}
