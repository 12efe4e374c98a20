package request

import (
	"encoding/hex"
	"strconv"

	"xdao.co/mcpreg/address"
)

// Field returns the raw value of an operation field.
func (r *Request) Field(key string) string { return r.Fields[key] }

// Address parses a base58 address field.
func (r *Request) Address(key string) (address.Address, error) {
	a, err := address.Parse(r.Fields[key])
	if err != nil {
		return address.Address{}, wrapError(KindValidation, "REQ-VAL-201", key+" is not an address", err)
	}
	return a, nil
}

// Uint64 parses a canonical decimal field (no sign, no leading zeros).
func (r *Request) Uint64(key string) (uint64, error) {
	s := r.Fields[key]
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || strconv.FormatUint(v, 10) != s {
		return 0, newError(KindValidation, "REQ-VAL-202", key+" must be a canonical unsigned integer")
	}
	return v, nil
}

// Uint8 is Uint64 bounded to a byte. It returns def when the field is absent.
func (r *Request) Uint8(key string, def uint8) (uint8, error) {
	if _, ok := r.Fields[key]; !ok {
		return def, nil
	}
	v, err := r.Uint64(key)
	if err != nil {
		return 0, err
	}
	if v > 255 {
		return 0, newError(KindValidation, "REQ-VAL-202", key+" out of range")
	}
	return uint8(v), nil
}

// Bytes32 parses a lowercase hex field of exactly 32 bytes.
func (r *Request) Bytes32(key string) ([32]byte, error) {
	var out [32]byte
	s := r.Fields[key]
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) || hex.EncodeToString(b) != s {
		return out, newError(KindValidation, "REQ-VAL-203", key+" must be 64 lowercase hex characters")
	}
	copy(out[:], b)
	return out, nil
}

// Seed returns a derivation seed field as bytes. Seeds are 1..32 bytes.
func (r *Request) Seed(key string) ([]byte, error) {
	s := r.Fields[key]
	if len(s) == 0 || len(s) > address.MaxSeedLen {
		return nil, newError(KindValidation, "REQ-VAL-204", key+" must be 1..32 bytes")
	}
	return []byte(s), nil
}
