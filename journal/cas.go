package journal

import (
	"errors"

	"github.com/ipfs/go-cid"
)

var (
	ErrNotFound    = errors.New("journal: not found")
	ErrImmutable   = errors.New("journal: immutable object mismatch")
	ErrCIDMismatch = errors.New("journal: CID mismatch")
	ErrInvalidCID  = errors.New("journal: invalid CID")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
