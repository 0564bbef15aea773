package leaf

import (
	"fmt"

	"github.com/litghost/manager/bytesutil"
)

// Pack serializes l into its 32-byte wire form: six 4-byte ciphertexts,
// followed by a 4-byte big-endian idx, followed by a 4-byte big-endian
// nonce. This is the exact layout LeafChange events carry on-chain.
func Pack(l Leaf) [bytesutil.LeafBytes]byte {
	var out [bytesutil.LeafBytes]byte
	off := 0
	for _, c := range l.EncryptedBalances {
		copy(out[off:], c[:])
		off += bytesutil.BalanceBytes
	}
	idx := bytesutil.EncodeU32(l.Idx)
	copy(out[off:], idx[:])
	off += 4
	nonce := bytesutil.EncodeU32(l.Nonce)
	copy(out[off:], nonce[:])
	return out
}

// Unpack is the inverse of Pack.
func Unpack(b []byte) (Leaf, error) {
	if len(b) != bytesutil.LeafBytes {
		return Leaf{}, fmt.Errorf("%w: leaf wants %d bytes, got %d", bytesutil.ErrLengthMismatch, bytesutil.LeafBytes, len(b))
	}
	var l Leaf
	off := 0
	for i := range l.EncryptedBalances {
		copy(l.EncryptedBalances[i][:], b[off:off+bytesutil.BalanceBytes])
		off += bytesutil.BalanceBytes
	}
	idx, err := bytesutil.DecodeU32(b[off : off+4])
	if err != nil {
		return Leaf{}, err
	}
	l.Idx = idx
	off += 4
	nonce, err := bytesutil.DecodeU32(b[off : off+4])
	if err != nil {
		return Leaf{}, err
	}
	l.Nonce = nonce
	return l, nil
}

// Empty returns the all-zero leaf for idx, representing a leaf that has
// never been written on-chain.
func Empty(idx uint32) Leaf {
	return Leaf{Idx: idx}
}
