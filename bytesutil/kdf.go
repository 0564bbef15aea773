package bytesutil

import (
	"crypto/hmac"
	"crypto/sha256"
)

// KDF is the static (nonce-less) namespaced key derivation function used
// exclusively by deposit blinding, which has no nonce to fold in:
//
//	kdf(secret, namespace) = Keccak256(namespace || secret)
func KDF(secret []byte, namespace string) []byte {
	return Keccak256([]byte(namespace), secret)
}

// HMACNamespaced is the namespaced HMAC construction used for every other
// per-balance and per-leaf-choice derivation in the system (balance keys,
// chaff seeding, leaf-order shuffling, user-keypair derivation):
//
//	hmac_ns(key, namespace, data...) = HMAC-SHA-256(key, namespace || data...)
//
// The spec leaves the exact HMAC primitive as an implementation choice,
// provided both sides of the transcript boundary agree on it; this system
// standardizes on full, untruncated HMAC-SHA-256 everywhere.
func HMACNamespaced(key []byte, namespace string, data ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(namespace))
	for _, b := range data {
		mac.Write(b)
	}
	return mac.Sum(nil)
}
