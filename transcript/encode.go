package transcript

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/litghost/manager/bytesutil"
	"github.com/litghost/manager/leaf"
)

// leafTuple mirrors the on-chain LeafTuple struct §4.5 defines:
// (bytes4[6] encryptedBalances, u32 idx, u32 nonce). Field order and
// exported names must track the ABI tuple's component order exactly;
// go-ethereum's abi.Pack aligns Go struct fields to tuple components
// positionally.
type leafTuple struct {
	EncryptedBalances [leaf.Capacity][bytesutil.BalanceBytes]byte
	Idx               uint32
	Nonce             uint32
}

// payoutTuple mirrors PayoutTuple{address toWho, u256 amount}.
type payoutTuple struct {
	ToWho  common.Address
	Amount *big.Int
}

func toLeafTuple(l leaf.Leaf) leafTuple {
	return leafTuple{
		EncryptedBalances: l.EncryptedBalances,
		Idx:               l.Idx,
		Nonce:             l.Nonce,
	}
}

var (
	typU64, _     = abi.NewType("uint64", "", nil)
	typU256, _    = abi.NewType("uint256", "", nil)
	typU32, _     = abi.NewType("uint32", "", nil)
	typBytes32, _ = abi.NewType("bytes32", "", nil)
	typAddress, _ = abi.NewType("address", "", nil)
	typLeafTuple, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "encryptedBalances", Type: "bytes4[6]"},
		{Name: "idx", Type: "uint32"},
		{Name: "nonce", Type: "uint32"},
	})
	typPayoutTuple, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "toWho", Type: "address"},
		{Name: "amount", Type: "uint256"},
	})
)

func pack(args abi.Arguments, values ...interface{}) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("transcript: abi pack: %w", err)
	}
	return packed, nil
}

// hashHeader is transcript §4.5 step 1:
// t ← H(enc(u64 opStart, u64 opCount, u256 updates.len)).
func hashHeader(opStart, opCount uint64, updatesLen *uint256.Int) ([32]byte, error) {
	args := abi.Arguments{{Type: typU64}, {Type: typU64}, {Type: typU256}}
	packed, err := pack(args, opStart, opCount, updatesLen.ToBig())
	if err != nil {
		return [32]byte{}, err
	}
	return bytesutil.Keccak256Array32(packed), nil
}

// hashUpdate is transcript §4.5 step 2:
// t ← H(enc(bytes32 t, LeafTuple oldLeaf, LeafTuple newLeaf)).
func hashUpdate(t [32]byte, oldLeaf, newLeaf leaf.Leaf) ([32]byte, error) {
	args := abi.Arguments{{Type: typBytes32}, {Type: typLeafTuple}, {Type: typLeafTuple}}
	packed, err := pack(args, t, toLeafTuple(oldLeaf), toLeafTuple(newLeaf))
	if err != nil {
		return [32]byte{}, err
	}
	return bytesutil.Keccak256Array32(packed), nil
}

// hashUserHeader is transcript §4.5 step 3:
// t ← H(enc(bytes32 t, u32 userCount, u32 newUsers.len)).
func hashUserHeader(t [32]byte, userCount, newUsersLen uint32) ([32]byte, error) {
	args := abi.Arguments{{Type: typBytes32}, {Type: typU32}, {Type: typU32}}
	packed, err := pack(args, t, userCount, newUsersLen)
	if err != nil {
		return [32]byte{}, err
	}
	return bytesutil.Keccak256Array32(packed), nil
}

// hashNewUser is transcript §4.5 step 4:
// t ← H(enc(bytes32 t, u32 userCount + i, bytes32 userPublicKey_i)).
func hashNewUser(t [32]byte, globalIndex uint32, publicKey [32]byte) ([32]byte, error) {
	args := abi.Arguments{{Type: typBytes32}, {Type: typU32}, {Type: typBytes32}}
	packed, err := pack(args, t, globalIndex, publicKey)
	if err != nil {
		return [32]byte{}, err
	}
	return bytesutil.Keccak256Array32(packed), nil
}

// hashPayoutHeader is transcript §4.5 step 5:
// t ← H(enc(bytes32 t, u256 payouts.len)).
func hashPayoutHeader(t [32]byte, payoutsLen *big.Int) ([32]byte, error) {
	args := abi.Arguments{{Type: typBytes32}, {Type: typU256}}
	packed, err := pack(args, t, payoutsLen)
	if err != nil {
		return [32]byte{}, err
	}
	return bytesutil.Keccak256Array32(packed), nil
}

// hashPayout is transcript §4.5 step 6:
// t ← H(enc(bytes32 t, PayoutTuple{address toWho, u256 amount})).
func hashPayout(t [32]byte, p Payout) ([32]byte, error) {
	args := abi.Arguments{{Type: typBytes32}, {Type: typPayoutTuple}}
	amount := new(big.Int)
	if p.Amount != nil {
		amount = p.Amount.ToBig()
	}
	packed, err := pack(args, t, payoutTuple{ToWho: p.ToWho, Amount: amount})
	if err != nil {
		return [32]byte{}, err
	}
	return bytesutil.Keccak256Array32(packed), nil
}
