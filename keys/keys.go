// Package keys implements the secp256k1 key agreement the manager spec
// calls C2: an even-y keypair convention that lets a public key serialize
// as its 32-byte x-coordinate alone, ECDH shared-secret derivation, and
// deterministic per-user keypair derivation from a master key.
//
// Curve operations are grounded on the teacher repo's ecdhAgreement
// pattern (crypto/ecies.go) but use go-ethereum's real secp256k1
// implementation (crypto.S256()) rather than the teacher's from-scratch
// curve, since go-ethereum is already a direct dependency everywhere else
// this system touches on-chain types.
package keys

import (
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/litghost/manager/bytesutil"
)

// PrivateKey is a 32-byte secp256k1 scalar.
type PrivateKey [bytesutil.PrivateKeyLen]byte

// PublicKey is the x-only, even-y serialization of a secp256k1 point.
type PublicKey [bytesutil.PublicKeyLen]byte

// SharedSecret is the full compressed-point serialization of an ECDH
// shared secret (33 bytes: a parity prefix plus the x-coordinate), used
// as downstream KDF/HMAC key material.
type SharedSecret [33]byte

var (
	// ErrInvalidPoint is returned when a public key does not correspond
	// to a valid point on secp256k1, or a shared-secret computation
	// lands on the point at infinity.
	ErrInvalidPoint = errors.New("keys: invalid point")

	// ErrDerivationDiverged is returned when deterministic user keypair
	// derivation fails to find an even-y seed within the bounded retry
	// count.
	ErrDerivationDiverged = errors.New("keys: derivation diverged")

	// maxUserDerivationAttempts bounds the user-keypair rejection loop.
	// 256 iterations leaves a (1/2)^256 chance of failure, i.e. none in
	// practice; it exists so the loop is provably total.
	maxUserDerivationAttempts = 256
)

func curve() elliptic.Curve { return gethcrypto.S256() }

// evenYScalar reports whether the public point for scalar d has an
// even y-coordinate, along with the point's compressed serialization.
func evenYScalar(d []byte) (compressed []byte, even bool) {
	x, y := curve().ScalarBaseMult(d)
	compressed = elliptic.MarshalCompressed(curve(), x, y)
	return compressed, compressed[0] == 0x02
}

// GenerateKeypair draws a random private key whose public point has an
// even y-coordinate, redrawing as needed, and returns it along with the
// corresponding x-only public key.
func GenerateKeypair(r io.Reader) (PrivateKey, PublicKey, error) {
	if r == nil {
		r = rand.Reader
	}
	var priv PrivateKey
	buf := make([]byte, bytesutil.PrivateKeyLen)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return PrivateKey{}, PublicKey{}, fmt.Errorf("keys: read random: %w", err)
		}
		d := new(big.Int).SetBytes(buf)
		if d.Sign() == 0 || d.Cmp(curve().Params().N) >= 0 {
			continue // out of range, redraw
		}
		compressed, even := evenYScalar(buf)
		if !even {
			continue // odd y, redraw per the even-y convention
		}
		copy(priv[:], buf)
		var pub PublicKey
		copy(pub[:], compressed[1:])
		return priv, pub, nil
	}
}

// reconstructPoint prepends the even-y prefix to an x-only public key and
// recovers the full point.
func reconstructPoint(pub PublicKey) (x, y *big.Int, err error) {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], pub[:])
	x, y = elliptic.UnmarshalCompressed(curve(), compressed)
	if x == nil {
		return nil, nil, ErrInvalidPoint
	}
	return x, y, nil
}

// ECDH performs scalar multiplication of priv against pub's reconstructed
// point and returns the full compressed serialization of the resulting
// point as the shared secret.
func ECDH(priv PrivateKey, pub PublicKey) (SharedSecret, error) {
	x, y, err := reconstructPoint(pub)
	if err != nil {
		return SharedSecret{}, err
	}
	sx, sy := curve().ScalarMult(x, y, priv[:])
	if sx.Sign() == 0 && sy.Sign() == 0 {
		return SharedSecret{}, ErrInvalidPoint
	}
	compressed := elliptic.MarshalCompressed(curve(), sx, sy)
	var out SharedSecret
	copy(out[:], compressed)
	return out, nil
}

// DeriveUserKeypair deterministically derives a user's keypair from their
// username and the enclave's user-master key: the seed is itself used as
// the private scalar, with a namespaced-HMAC rejection loop run until the
// implied public point has an even y-coordinate.
func DeriveUserKeypair(masterKey [32]byte, username string) (PrivateKey, PublicKey, error) {
	seed := bytesutil.HMACNamespaced(masterKey[:], bytesutil.NamespaceUser, []byte(username))
	for i := 0; i < maxUserDerivationAttempts; i++ {
		d := new(big.Int).SetBytes(seed)
		if d.Sign() != 0 && d.Cmp(curve().Params().N) < 0 {
			if compressed, even := evenYScalar(seed); even {
				var priv PrivateKey
				copy(priv[:], seed)
				var pub PublicKey
				copy(pub[:], compressed[1:])
				return priv, pub, nil
			}
		}
		seed = bytesutil.HMACNamespaced(masterKey[:], bytesutil.NamespaceUser, seed)
	}
	return PrivateKey{}, PublicKey{}, ErrDerivationDiverged
}

// PublicKeyFromPrivate recovers the even-y x-only public key for a known
// valid private key (one produced by GenerateKeypair or
// DeriveUserKeypair; it is never valid to call this on arbitrary bytes).
func PublicKeyFromPrivate(priv PrivateKey) PublicKey {
	compressed, _ := evenYScalar(priv[:])
	var pub PublicKey
	copy(pub[:], compressed[1:])
	return pub
}
