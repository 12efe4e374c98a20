package token

import (
	"encoding/binary"
	"fmt"

	"xdao.co/mcpreg/address"
)

const (
	MintSize    = address.Size + 8 + 1 + 1
	AccountSize = address.Size + address.Size + 8 + 1

	// DefaultDecimals is used when a mint is created without an explicit precision.
	DefaultDecimals = 9
)

type Mint struct {
	MintAuthority address.Address
	Supply        uint64
	Decimals      uint8
	Initialized   bool
}

func (m Mint) encode() []byte {
	b := make([]byte, MintSize)
	off := copy(b, m.MintAuthority[:])
	binary.LittleEndian.PutUint64(b[off:], m.Supply)
	off += 8
	b[off] = m.Decimals
	b[off+1] = boolByte(m.Initialized)
	return b
}

func decodeMint(b []byte) (Mint, error) {
	if len(b) != MintSize {
		return Mint{}, fmt.Errorf("%w: mint data is %d bytes", ErrUninitialized, len(b))
	}
	var m Mint
	off := copy(m.MintAuthority[:], b)
	m.Supply = binary.LittleEndian.Uint64(b[off:])
	off += 8
	m.Decimals = b[off]
	m.Initialized = b[off+1] == 1
	if !m.Initialized {
		return Mint{}, ErrUninitialized
	}
	return m, nil
}

// Account is a token holding account.
type Account struct {
	Mint        address.Address
	Owner       address.Address
	Amount      uint64
	Initialized bool
}

func (a Account) encode() []byte {
	b := make([]byte, AccountSize)
	off := copy(b, a.Mint[:])
	off += copy(b[off:], a.Owner[:])
	binary.LittleEndian.PutUint64(b[off:], a.Amount)
	b[off+8] = boolByte(a.Initialized)
	return b
}

func decodeAccount(b []byte) (Account, error) {
	if len(b) != AccountSize {
		return Account{}, fmt.Errorf("%w: token account data is %d bytes", ErrUninitialized, len(b))
	}
	var a Account
	off := copy(a.Mint[:], b)
	off += copy(a.Owner[:], b[off:])
	a.Amount = binary.LittleEndian.Uint64(b[off:])
	a.Initialized = b[off+8] == 1
	if !a.Initialized {
		return Account{}, ErrUninitialized
	}
	return a, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
