package facade

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"xdao.co/mcpreg/address"
)

var ErrCorruptAuthority = errors.New("facade: corrupt mint authority record")

// MintAuthoritySize is discriminator(8) authority(32) bump(1).
const MintAuthoritySize = 8 + address.Size + 1

// MintAuthority is stored at the derived mint-authority address. The ledger
// knows the derived address as the mint's authority; this record names the
// human who established it and the bump that reproduces the derivation.
type MintAuthority struct {
	Authority address.Address
	Bump      uint8
}

var mintAuthorityDiscriminator = func() [8]byte {
	sum := sha256.Sum256([]byte("account:MintAuthority"))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}()

func (m MintAuthority) encode() []byte {
	b := make([]byte, MintAuthoritySize)
	off := copy(b, mintAuthorityDiscriminator[:])
	off += copy(b[off:], m.Authority[:])
	b[off] = m.Bump
	return b
}

func decodeMintAuthority(b []byte) (MintAuthority, error) {
	if len(b) != MintAuthoritySize || !bytes.Equal(b[:8], mintAuthorityDiscriminator[:]) {
		return MintAuthority{}, ErrCorruptAuthority
	}
	var m MintAuthority
	copy(m.Authority[:], b[8:])
	m.Bump = b[8+address.Size]
	return m, nil
}

// DeriveMint returns the mint address a caller gets for seed:
// PDA(["mint", caller, seed]) under program.
func DeriveMint(program, caller address.Address, seed []byte) (address.Address, error) {
	a, _, err := address.Derive(program, []byte("mint"), caller[:], seed)
	return a, err
}

// DeriveMintAuthority returns the signing proxy of mint:
// PDA(["mint-authority", mint]) under program, with its derivation proof.
func DeriveMintAuthority(program, mint address.Address) (address.Address, address.Proof, error) {
	return address.Derive(program, []byte("mint-authority"), mint[:])
}
