package keys

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// LoadKeypairFile reads a keypair file holding a JSON array of the 64 bytes
// seed||pubkey (the format written by Solana tooling) and returns the seed.
// The embedded public key must match the seed.
func LoadKeypairFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("keypair file: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	b := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file: byte %d out of range", i)
		}
		b[i] = byte(v)
	}
	seed := b[:ed25519.SeedSize]
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	if string(pub) != string(b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keypair file: public key does not match seed")
	}
	return append([]byte(nil), seed...), nil
}

// WriteKeypairFile writes seed in the keypair JSON format with 0600 permissions.
// It refuses to overwrite an existing file.
func WriteKeypairFile(path string, seed []byte) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	raw := make([]int, len(priv))
	for i, v := range priv {
		raw[i] = int(v)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Close()
}
