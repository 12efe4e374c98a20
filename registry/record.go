package registry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"xdao.co/mcpreg/address"
)

var (
	ErrUnknownKind   = errors.New("registry: unknown kind")
	ErrWrongKind     = errors.New("registry: account holds a different record kind")
	ErrCorruptRecord = errors.New("registry: corrupt record")
)

// Status is the lifecycle state stored in a record's header.
type Status uint8

const StatusActive Status = 1

func (s Status) String() string {
	if s == StatusActive {
		return "active"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// RecordSize is discriminator(8) authority(32) status(1) payload(32) created_at(8).
const RecordSize = 8 + address.Size + 1 + 32 + 8

type Record struct {
	Kind      Kind
	Authority address.Address
	Status    Status
	Payload   [32]byte
	CreatedAt int64
}

func (r Record) Encode() []byte {
	out := make([]byte, RecordSize)
	d := r.Kind.Discriminator()
	off := copy(out, d[:])
	off += copy(out[off:], r.Authority[:])
	out[off] = byte(r.Status)
	off++
	off += copy(out[off:], r.Payload[:])
	binary.LittleEndian.PutUint64(out[off:], uint64(r.CreatedAt))
	return out
}

// Decode parses b as a record of kind k.
func Decode(k Kind, b []byte) (Record, error) {
	if len(b) != RecordSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(b))
	}
	d := k.Discriminator()
	if !bytes.Equal(b[:8], d[:]) {
		return Record{}, ErrWrongKind
	}
	r := Record{Kind: k}
	off := 8
	off += copy(r.Authority[:], b[off:])
	r.Status = Status(b[off])
	off++
	off += copy(r.Payload[:], b[off:off+32])
	r.CreatedAt = int64(binary.LittleEndian.Uint64(b[off:]))
	return r, nil
}

// DecodeAny detects the kind from the discriminator.
func DecodeAny(b []byte) (Record, error) {
	if len(b) < 8 {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(b))
	}
	for _, k := range Kinds() {
		d := k.Discriminator()
		if bytes.Equal(b[:8], d[:]) {
			return Decode(k, b)
		}
	}
	return Record{}, ErrUnknownKind
}
