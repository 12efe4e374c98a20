package address

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
)

func testProgram() Address {
	var p Address
	for i := range p {
		p[i] = byte(i + 1)
	}
	return p
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	program := testProgram()
	seeds := [][]byte{[]byte("mint-authority"), []byte("abc")}

	a, bumpA, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	b, bumpB, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if a != b || bumpA != bumpB {
		t.Fatalf("expected deterministic derivation")
	}
	if IsOnCurve(a) {
		t.Fatalf("derived address must be off curve")
	}

	again, err := CreateProgramAddress(seeds, bumpA, program)
	if err != nil {
		t.Fatalf("CreateProgramAddress: %v", err)
	}
	if again != a {
		t.Fatalf("CreateProgramAddress with found bump should match")
	}

	other, _, err := FindProgramAddress([][]byte{[]byte("mint-authority"), []byte("abd")}, program)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if other == a {
		t.Fatalf("different seeds must derive different addresses")
	}
}

func TestFindProgramAddressProgramScoped(t *testing.T) {
	seeds := [][]byte{[]byte("record")}
	a, _, err := FindProgramAddress(seeds, testProgram())
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	var otherProgram Address
	otherProgram[0] = 0xAA
	b, _, err := FindProgramAddress(seeds, otherProgram)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if a == b {
		t.Fatalf("expected program-scoped derivation")
	}
}

func TestCreateProgramAddressLimits(t *testing.T) {
	long := []byte(strings.Repeat("x", MaxSeedLen+1))
	if _, err := CreateProgramAddress([][]byte{long}, 255, testProgram()); !errors.Is(err, ErrSeedTooLong) {
		t.Fatalf("expected ErrSeedTooLong, got %v", err)
	}

	many := make([][]byte, MaxSeeds+1)
	for i := range many {
		many[i] = []byte{byte(i)}
	}
	if _, err := CreateProgramAddress(many, 255, testProgram()); !errors.Is(err, ErrTooManySeeds) {
		t.Fatalf("expected ErrTooManySeeds, got %v", err)
	}
}

func TestProofVerify(t *testing.T) {
	addr, proof, err := Derive(testProgram(), []byte("mint-authority"), []byte("m1"))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if err := proof.Verify(addr); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	var stranger Address
	stranger[5] = 9
	if err := proof.Verify(stranger); !errors.Is(err, ErrProofMismatch) {
		t.Fatalf("expected ErrProofMismatch, got %v", err)
	}

	forged := proof
	forged.Bump = proof.Bump + 1
	if err := forged.Verify(addr); err == nil {
		t.Fatalf("expected forged bump to fail")
	}
}

func TestPublicKeysAreOnCurve(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	a, err := FromPublicKey(pub)
	if err != nil {
		t.Fatalf("FromPublicKey: %v", err)
	}
	if !IsOnCurve(a) {
		t.Fatalf("ed25519 public key should be on curve")
	}
}
