// Package transcript implements the manager spec's transcript
// construction (C5): a linear chain of keccak-256 hashes over
// canonically ABI-encoded tuples, binding a batch's entire effect into
// the single 32-byte digest an on-chain verifier recomputes from the
// same inputs. Byte-exact equivalence with that verifier is the whole
// point, so every tuple shape here mirrors a Solidity struct exactly.
package transcript

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/litghost/manager/leaf"
)

// Update is one leaf rewrite: the leaf as it was stored on-chain before
// this batch (the all-zero record if it didn't exist yet) and the leaf
// the manager is about to write.
type Update struct {
	Old leaf.Leaf
	New leaf.Leaf
}

// NewUser is one user appended to the ledger's public-key registry by
// this batch. Index is the user's assigned global index, i.e.
// userCount-before-batch + position in the batch's newUsers list.
type NewUser struct {
	Index     uint32
	PublicKey [32]byte
}

// Payout is one withdrawal this batch instructs the ledger to pay out,
// in full on-chain token units.
type Payout struct {
	ToWho  common.Address
	Amount *uint256.Int
}

// Batch bundles everything Compute needs: the fields the manager
// itself does not otherwise track end to end (opStart/opCount and the
// pre-batch userCount) plus the three ordered lists §4.5 hashes over.
type Batch struct {
	OpStart   uint64
	OpCount   uint64
	UserCount uint32 // on-chain user count before this batch
	Updates   []Update
	NewUsers  []NewUser
	Payouts   []Payout
}

// Compute runs the chained-hash construction of manager spec §4.5 and
// returns the resulting 32-byte transcript digest.
func Compute(b Batch) ([32]byte, error) {
	t, err := hashHeader(b.OpStart, b.OpCount, uint256.NewInt(uint64(len(b.Updates))))
	if err != nil {
		return [32]byte{}, err
	}

	for _, u := range b.Updates {
		t, err = hashUpdate(t, u.Old, u.New)
		if err != nil {
			return [32]byte{}, err
		}
	}

	t, err = hashUserHeader(t, b.UserCount, uint32(len(b.NewUsers)))
	if err != nil {
		return [32]byte{}, err
	}

	for i, nu := range b.NewUsers {
		t, err = hashNewUser(t, b.UserCount+uint32(i), nu.PublicKey)
		if err != nil {
			return [32]byte{}, err
		}
	}

	payoutsLen := new(big.Int).SetInt64(int64(len(b.Payouts)))
	t, err = hashPayoutHeader(t, payoutsLen)
	if err != nil {
		return [32]byte{}, err
	}

	for _, p := range b.Payouts {
		t, err = hashPayout(t, p)
		if err != nil {
			return [32]byte{}, err
		}
	}

	return t, nil
}
