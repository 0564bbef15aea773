// Package deposit implements the manager spec's deposit-blinding scheme
// (C3): a client masks a recipient username into a 32-byte field using
// ephemeral ECDH against the enclave's long-term public key, and the
// enclave later unblinds it to recover the plaintext username.
package deposit

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/litghost/manager/bytesutil"
	"github.com/litghost/manager/keys"
)

// ErrCorruptDeposit is returned when a blinded deposit fails to unblind
// into a valid username, whether due to key mismatch or wire corruption.
var ErrCorruptDeposit = errors.New("deposit: corrupt deposit")

// Intent is the two 32-byte fields a client posts on-chain to credit a
// user: an ephemeral public key and the XOR-masked, zero-padded username.
type Intent struct {
	Rand keys.PublicKey
	User [32]byte
}

// mask derives the XOR mask applied to a zero-padded username, from the
// ECDH shared secret between the depositor's ephemeral key and the
// enclave's long-term key.
func mask(shared keys.SharedSecret) []byte {
	return bytesutil.KDF(shared[:], bytesutil.NamespaceDeposit)
}

// Blind masks username under the given shared secret, producing the
// 32-byte field that goes on the wire as Intent.User. It returns the
// ValidateUsername error for an invalid username.
func Blind(username string, shared keys.SharedSecret) ([32]byte, error) {
	if err := ValidateUsername(username); err != nil {
		return [32]byte{}, err
	}
	padded := make([]byte, 32)
	copy(padded, username)
	masked, err := bytesutil.XOR(padded, mask(shared))
	if err != nil {
		return [32]byte{}, fmt.Errorf("deposit: blind: %w", err)
	}
	var out [32]byte
	copy(out[:], masked)
	return out, nil
}

// Unblind reverses Blind: it XORs with the same mask, strips the
// zero-padding, and re-validates the result as a username. Any failure
// is reported as ErrCorruptDeposit, since from the enclave's point of
// view a key mismatch and wire corruption look identical.
func Unblind(blinded [32]byte, shared keys.SharedSecret) (string, error) {
	plain, err := bytesutil.XOR(blinded[:], mask(shared))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDeposit, err)
	}
	trimmed := bytes.TrimRight(plain, "\x00")
	username := string(trimmed)
	if err := ValidateUsername(username); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDeposit, err)
	}
	return username, nil
}

// ClientBlind implements the client-side deposit flow: generate an
// ephemeral keypair (the caller supplies it, so tests can make it
// deterministic), ECDH against the enclave's long-term public key, and
// blind the recipient username.
func ClientBlind(username string, ephemeralPriv keys.PrivateKey, teePub keys.PublicKey) (Intent, error) {
	shared, err := keys.ECDH(ephemeralPriv, teePub)
	if err != nil {
		return Intent{}, fmt.Errorf("deposit: client ecdh: %w", err)
	}
	blinded, err := Blind(username, shared)
	if err != nil {
		return Intent{}, err
	}
	return Intent{
		Rand: keys.PublicKeyFromPrivate(ephemeralPriv),
		User: blinded,
	}, nil
}

// EnclaveUnblind implements the enclave-side flow: ECDH the TEE's
// long-term private key against the intent's ephemeral public key, then
// unblind.
func EnclaveUnblind(intent Intent, teePriv keys.PrivateKey) (string, error) {
	shared, err := keys.ECDH(teePriv, intent.Rand)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDeposit, err)
	}
	return Unblind(intent.User, shared)
}
