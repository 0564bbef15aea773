package transcript

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/litghost/manager/leaf"
)

func sampleBatch() Batch {
	oldLeaf := leaf.Empty(0)
	newLeaf := leaf.Leaf{Idx: 0, Nonce: 1}
	newLeaf.EncryptedBalances[0] = [4]byte{1, 2, 3, 4}

	return Batch{
		OpStart:   7,
		OpCount:   2,
		UserCount: 3,
		Updates:   []Update{{Old: oldLeaf, New: newLeaf}},
		NewUsers:  []NewUser{{Index: 3, PublicKey: [32]byte{0xAA}}},
		Payouts: []Payout{
			{ToWho: common.HexToAddress("0xA"), Amount: uint256.NewInt(50_000_000)},
		},
	}
}

func TestComputeDeterministic(t *testing.T) {
	b := sampleBatch()
	t1, err := Compute(b)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	t2, err := Compute(b)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if t1 != t2 {
		t.Fatal("Compute must be deterministic for identical input")
	}
}

func TestComputeSensitiveToEveryField(t *testing.T) {
	base := sampleBatch()
	baseDigest, err := Compute(base)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	mutations := map[string]func(b *Batch){
		"opStart": func(b *Batch) { b.OpStart++ },
		"opCount": func(b *Batch) { b.OpCount++ },
		"userCount": func(b *Batch) { b.UserCount++ },
		"update nonce": func(b *Batch) { b.Updates[0].New.Nonce++ },
		"update ciphertext": func(b *Batch) { b.Updates[0].New.EncryptedBalances[0][0] ^= 0xFF },
		"new user key": func(b *Batch) { b.NewUsers[0].PublicKey[1] = 0x01 },
		"payout amount": func(b *Batch) { b.Payouts[0].Amount = uint256.NewInt(1) },
		"payout address": func(b *Batch) { b.Payouts[0].ToWho = common.HexToAddress("0xB") },
	}

	for name, mutate := range mutations {
		mutated := sampleBatch()
		mutate(&mutated)
		digest, err := Compute(mutated)
		if err != nil {
			t.Fatalf("Compute(%s): %v", name, err)
		}
		if digest == baseDigest {
			t.Errorf("mutation %q did not change the transcript digest", name)
		}
	}
}

func TestComputeEmptyBatch(t *testing.T) {
	digest, err := Compute(Batch{OpStart: 1, OpCount: 0, UserCount: 0})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if digest == ([32]byte{}) {
		t.Fatal("empty batch must still produce a non-zero digest")
	}
}
