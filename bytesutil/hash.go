package bytesutil

import "golang.org/x/crypto/sha3"

// Keccak256 hashes the concatenation of data with Keccak-256, the hash
// function §6 of the manager spec designates HASH and the one every
// transcript link in the transcript package chains through.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Array32 is Keccak256 with its output fixed to a [32]byte array,
// the shape most callers in this system want (leaf hashes, transcript
// links, shared-secret-derived masks).
func Keccak256Array32(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], Keccak256(data...))
	return out
}
