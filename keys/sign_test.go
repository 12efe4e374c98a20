package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func TestEd25519Signer_Verifies(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	s, err := NewEd25519SignerFromSeed(seed)
	if err != nil {
		t.Fatalf("NewEd25519SignerFromSeed: %v", err)
	}

	digest, err := Digest(HashSHA256, []byte("hello"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	want := sha256.Sum256([]byte("hello"))
	if string(digest) != string(want[:]) {
		t.Fatalf("unexpected sha256 digest")
	}
	sig, err := s.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := VerifyDigest(AlgEd25519, s.PublicKey(), digest, sig); err != nil {
		t.Fatalf("VerifyDigest: %v", err)
	}
	if s.Address() != AddressFromSeed(seed) {
		t.Fatalf("address mismatch")
	}

	sig[0] ^= 0xff
	if err := VerifyDigest(AlgEd25519, s.PublicKey(), digest, sig); err == nil {
		t.Fatalf("expected tampered signature to fail")
	}
}

func TestDilithium3Signer_Verifies_SHA3_256(t *testing.T) {
	s, err := GenerateDilithium3Signer(&deterministicReader{})
	if err != nil {
		t.Fatalf("GenerateDilithium3Signer: %v", err)
	}

	digest, err := Digest(HashSHA3_256, []byte("hello"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	sig, err := s.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := VerifyDigest(AlgDilithium3, s.PublicKey(), digest, sig); err != nil {
		t.Fatalf("VerifyDigest: %v", err)
	}

	id, err := IdentityOf(AlgDilithium3, s.PublicKey())
	if err != nil {
		t.Fatalf("IdentityOf: %v", err)
	}
	if id != s.Address() {
		t.Fatalf("identity mismatch")
	}
}

func TestDigestRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := Digest("md5", []byte("x")); err == nil {
		t.Fatalf("expected error")
	}
}
