// Package bytesutil provides the fixed-width byte primitives shared by the
// rest of the manager: big-endian codecs, XOR, and the namespaced KDF/HMAC
// constructions every other package derives its keys through.
package bytesutil

// Domain constants shared across the manager. Changing any of these
// changes every derived key and every transcript this system has ever
// produced.
const (
	// ScaleFactor bridges internal balances (two implicit decimals) to
	// full on-chain token amounts.
	ScaleFactor = 10_000

	// MaxBalance is the largest representable internal balance.
	MaxBalance = 1<<32 - 1

	// LeafCapacity is the number of user slots packed into one leaf.
	LeafCapacity = 6

	// DefaultChaffMultiplier is the default ratio of chaff leaves to
	// real leaves touched by a batch.
	DefaultChaffMultiplier = 3

	// PublicKeyLen is the length of an x-only secp256k1 public key.
	PublicKeyLen = 32

	// PrivateKeyLen is the length of a secp256k1 private scalar.
	PrivateKeyLen = 32

	// BalanceBytes is the width of one encrypted balance slot.
	BalanceBytes = 4

	// LeafBytes is the packed wire size of one leaf: six 4-byte
	// ciphertexts plus a 4-byte idx and a 4-byte nonce.
	LeafBytes = LeafCapacity*BalanceBytes + 4 + 4
)

// Namespace strings used to domain-separate every HMAC/KDF derivation in
// the system. These are exact ASCII bytes; they must match on both sides
// of the transcript boundary (enclave and verifier).
const (
	NamespaceDeposit = "LitGhost.deposit"
	NamespaceBalance = "LitGhost.balance"
	NamespaceUser    = "LitGhost.user"
	NamespaceChaff   = "LitGhost.chaff"
	NamespaceOrder   = "LitGhost.leaf.order"
)
