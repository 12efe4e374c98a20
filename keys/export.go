package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"xdao.co/mcpreg/address"
)

// SignerKeyFromSeed returns the signer-key string for an Ed25519 seed:
// "ed25519:" + base64(pubkey).
func SignerKeyFromSeed(seed []byte) string {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return AlgEd25519 + ":" + base64.StdEncoding.EncodeToString(pub)
}

// SignerKey encodes a signer's public key as "<alg>:<base64>".
func SignerKey(s Signer) string {
	return s.Algorithm() + ":" + base64.StdEncoding.EncodeToString(s.PublicKey())
}

// ParseSignerKey splits a signer-key string into its algorithm and raw public key.
func ParseSignerKey(key string) (alg string, pub []byte, err error) {
	alg, enc, ok := strings.Cut(key, ":")
	if !ok {
		return "", nil, fmt.Errorf("invalid signer key encoding")
	}
	pub, err = base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("invalid signer key base64: %w", err)
	}
	switch alg {
	case AlgEd25519:
		if l := len(pub); l != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("unsupported signer key algorithm %q", alg)
	}
	return alg, pub, nil
}

// IdentityOf returns the address a public key authenticates as.
func IdentityOf(alg string, pub []byte) (address.Address, error) {
	switch alg {
	case AlgEd25519:
		return address.FromBytes(pub)
	case AlgDilithium3:
		return address.Address(sha256.Sum256(pub)), nil
	default:
		return address.Address{}, fmt.Errorf("unsupported signer key algorithm %q", alg)
	}
}

// AddressFromSeed returns the identity address of an Ed25519 seed.
func AddressFromSeed(seed []byte) address.Address {
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	var a address.Address
	copy(a[:], pub)
	return a
}
