package storage

import (
	"encoding/binary"
	"fmt"

	"xdao.co/mcpreg/address"
)

const headerSize = address.Size + 8 + 4

// Account is the unit of storage: a lamport balance and an opaque data block
// owned by a program.
//
// Owner is the program allowed to interpret Data. Plain funding accounts are
// owned by address.Zero and carry no data.
type Account struct {
	Address  address.Address
	Owner    address.Address
	Lamports uint64
	Data     []byte
}

// Clone returns a deep copy.
func (a Account) Clone() Account {
	a.Data = append([]byte(nil), a.Data...)
	return a
}

// IsPlain reports whether a is a funding account no program has claimed.
func (a Account) IsPlain() bool {
	return a.Owner == address.Zero && len(a.Data) == 0
}

// Encode returns owner(32) || lamports(u64 LE) || len(u32 LE) || data.
func (a Account) Encode() []byte {
	out := make([]byte, headerSize+len(a.Data))
	copy(out, a.Owner[:])
	binary.LittleEndian.PutUint64(out[address.Size:], a.Lamports)
	binary.LittleEndian.PutUint32(out[address.Size+8:], uint32(len(a.Data)))
	copy(out[headerSize:], a.Data)
	return out
}

// DecodeAccount parses the Encode form for the account at addr.
func DecodeAccount(addr address.Address, b []byte) (Account, error) {
	if len(b) < headerSize {
		return Account{}, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(b))
	}
	n := binary.LittleEndian.Uint32(b[address.Size+8:])
	if uint64(len(b)-headerSize) != uint64(n) {
		return Account{}, fmt.Errorf("%w: data length %d, have %d", ErrCorrupt, n, len(b)-headerSize)
	}
	var acct Account
	acct.Address = addr
	copy(acct.Owner[:], b[:address.Size])
	acct.Lamports = binary.LittleEndian.Uint64(b[address.Size:])
	acct.Data = append([]byte(nil), b[headerSize:]...)
	return acct, nil
}
