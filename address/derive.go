package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// MaxSeeds is the maximum number of seeds (excluding the bump) in a derivation.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of one seed.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrSeedTooLong   = errors.New("address: seed too long")
	ErrTooManySeeds  = errors.New("address: too many seeds")
	ErrOnCurve       = errors.New("address: derived address is on the ed25519 curve")
	ErrNoViableBump  = errors.New("address: no viable bump seed")
	ErrProofMismatch = errors.New("address: proof does not derive identity")
)

// CreateProgramAddress derives the address for seeds and bump under program.
//
// The result is sha256(seeds... || bump || program || "ProgramDerivedAddress").
// A result that decodes as an ed25519 point is rejected with ErrOnCurve: a
// derived address must never have a private key.
func CreateProgramAddress(seeds [][]byte, bump uint8, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrTooManySeeds
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return Address{}, fmt.Errorf("%w: %d bytes", ErrSeedTooLong, len(s))
		}
		_, _ = h.Write(s)
	}
	_, _ = h.Write([]byte{bump})
	_, _ = h.Write(program[:])
	_, _ = h.Write([]byte(pdaMarker))

	var out Address
	copy(out[:], h.Sum(nil))
	if IsOnCurve(out) {
		return Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// off-curve address.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	for b := 255; b >= 0; b-- {
		addr, err := CreateProgramAddress(seeds, uint8(b), program)
		if err == nil {
			return addr, uint8(b), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether a is the encoding of a point on edwards25519.
func IsOnCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// Proof is the reproducible derivation of a program address. A derived
// identity signs by presenting its Proof instead of a signature.
type Proof struct {
	Program Address
	Seeds   [][]byte
	Bump    uint8
}

// Derive computes the canonical address and proof for seeds under program.
func Derive(program Address, seeds ...[]byte) (Address, Proof, error) {
	addr, bump, err := FindProgramAddress(seeds, program)
	if err != nil {
		return Address{}, Proof{}, err
	}
	cp := make([][]byte, len(seeds))
	for i, s := range seeds {
		cp[i] = append([]byte(nil), s...)
	}
	return addr, Proof{Program: program, Seeds: cp, Bump: bump}, nil
}

// Address re-derives the identity this proof stands for.
func (p Proof) Address() (Address, error) {
	return CreateProgramAddress(p.Seeds, p.Bump, p.Program)
}

// Verify checks that p derives identity.
func (p Proof) Verify(identity Address) error {
	got, err := p.Address()
	if err != nil {
		return err
	}
	if got != identity {
		return ErrProofMismatch
	}
	return nil
}
