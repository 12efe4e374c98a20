package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"
)

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := make([]byte, ed25519.SeedSize)
	for i := range root {
		root[i] = byte(i)
	}

	a, err := DeriveRoleSeed(root, "minter")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "minter")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveRoleSeed(root, "registrar")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
}

func TestDeriveRoleSeedRejectsBadInput(t *testing.T) {
	if _, err := DeriveRoleSeed([]byte("short"), "minter"); err == nil {
		t.Fatalf("expected error for short root seed")
	}
	root := make([]byte, ed25519.SeedSize)
	if _, err := DeriveRoleSeed(root, "bad role"); err == nil {
		t.Fatalf("expected error for invalid role")
	}
}

func TestSignerKeyFromSeedFormat(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	signerKey := SignerKeyFromSeed(seed)
	if !strings.HasPrefix(signerKey, "ed25519:") {
		t.Fatalf("expected ed25519 prefix, got %q", signerKey)
	}
	b64 := strings.TrimPrefix(signerKey, "ed25519:")
	pubBytes, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("expected valid base64: %v", err)
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		t.Fatalf("expected %d pubkey bytes, got %d", ed25519.PublicKeySize, len(pubBytes))
	}

	alg, pub, err := ParseSignerKey(signerKey)
	if err != nil {
		t.Fatalf("ParseSignerKey: %v", err)
	}
	id, err := IdentityOf(alg, pub)
	if err != nil {
		t.Fatalf("IdentityOf: %v", err)
	}
	if id != AddressFromSeed(seed) {
		t.Fatalf("identity mismatch")
	}
}
