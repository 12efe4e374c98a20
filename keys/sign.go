package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/mcpreg/address"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"

	HashSHA256   = "sha256"
	HashSHA512   = "sha512"
	HashSHA3_256 = "sha3-256"
)

// Digest hashes message with hashAlg (sha256, sha512 or sha3-256).
func Digest(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case HashSHA256:
		s := sha256.Sum256(message)
		return s[:], nil
	case HashSHA512:
		s := sha512.Sum512(message)
		return s[:], nil
	case HashSHA3_256:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// Signer signs request digests on behalf of one identity.
type Signer interface {
	// Algorithm is the Signature-Alg name.
	Algorithm() string
	// PublicKey returns the raw public key bytes.
	PublicKey() []byte
	// Address is the identity the signature authenticates.
	Address() address.Address
	// Sign signs a digest.
	Sign(digest []byte) ([]byte, error)
}

// Ed25519Signer signs with an ed25519 private key. Its identity is the public key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key must be %d bytes", ed25519.PrivateKeySize)
	}
	return &Ed25519Signer{key: priv}, nil
}

// NewEd25519SignerFromSeed builds a signer from a 32-byte seed.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) Algorithm() string { return AlgEd25519 }

func (s *Ed25519Signer) PublicKey() []byte {
	return append([]byte(nil), s.key.Public().(ed25519.PublicKey)...)
}

func (s *Ed25519Signer) Address() address.Address {
	var a address.Address
	copy(a[:], s.key.Public().(ed25519.PublicKey))
	return a
}

func (s *Ed25519Signer) Sign(digest []byte) ([]byte, error) {
	return ed25519.Sign(s.key, digest), nil
}

// Dilithium3Signer signs with a post-quantum dilithium3 key. Its identity is
// sha256 of the packed public key.
type Dilithium3Signer struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

func NewDilithium3Signer(pub *mode3.PublicKey, priv *mode3.PrivateKey) (*Dilithium3Signer, error) {
	if pub == nil || priv == nil {
		return nil, errors.New("missing dilithium3 key")
	}
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

// NewDilithium3SignerFromSeed expands a 32-byte seed into a dilithium3 keypair.
func NewDilithium3SignerFromSeed(seed []byte) (*Dilithium3Signer, error) {
	if len(seed) != mode3.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", mode3.SeedSize, len(seed))
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

// NewSignerFromSeed builds a signer of algorithm alg from a 32-byte seed.
func NewSignerFromSeed(alg string, seed []byte) (Signer, error) {
	switch alg {
	case AlgEd25519:
		return NewEd25519SignerFromSeed(seed)
	case AlgDilithium3:
		return NewDilithium3SignerFromSeed(seed)
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", alg)
	}
}

// GenerateDilithium3Signer returns a signer backed by a new Dilithium3 keypair.
func GenerateDilithium3Signer(rand io.Reader) (*Dilithium3Signer, error) {
	pub, priv, err := mode3.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

func (s *Dilithium3Signer) Algorithm() string { return AlgDilithium3 }

func (s *Dilithium3Signer) PublicKey() []byte { return s.pub.Bytes() }

func (s *Dilithium3Signer) Address() address.Address {
	return address.Address(sha256.Sum256(s.pub.Bytes()))
}

func (s *Dilithium3Signer) Sign(digest []byte) ([]byte, error) {
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest, sig)
	return sig, nil
}

// VerifyDigest checks sig over digest for the given algorithm and raw public key.
func VerifyDigest(alg string, pub, digest, sig []byte) error {
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return errors.New("invalid ed25519 public key length")
		}
		if len(sig) != ed25519.SignatureSize {
			return errors.New("invalid ed25519 signature length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return errors.New("signature invalid")
		}
		return nil
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize {
			return errors.New("invalid dilithium3 signature length")
		}
		if !mode3.Verify(&pk, digest, sig) {
			return errors.New("signature invalid")
		}
		return nil
	default:
		return fmt.Errorf("unsupported signature algorithm: %q", alg)
	}
}
