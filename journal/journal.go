// Package journal tracks signed requests by content address. Acceptance is
// recorded by a marker account written in the request's own storage
// transaction; the CAS archive keeps a copy for lookup and export.
package journal

import (
	"errors"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/mcpreg/cidutil"
)

var (
	ErrDuplicate = errors.New("journal: request already accepted")
	ErrInFlight  = errors.New("journal: request already in flight")
)

// Journal keeps one process from running the same bytes twice at once and
// archives accepted requests. Callers Begin a request, run it with Guard
// attached, then Commit (archive) or Abort (release).
type Journal struct {
	cas CAS

	mu       sync.Mutex
	inflight map[cid.Cid]struct{}
}

func New(cas CAS) *Journal {
	return &Journal{cas: cas, inflight: map[cid.Cid]struct{}{}}
}

// ID returns the content address of raw.
func ID(raw []byte) (cid.Cid, error) {
	return cidutil.CIDv1RawSHA256CID(raw)
}

// Begin reserves raw for execution. It fails with ErrDuplicate if raw was
// already archived and ErrInFlight if another caller holds it.
func (j *Journal) Begin(raw []byte) (cid.Cid, error) {
	id, err := ID(raw)
	if err != nil {
		return cid.Undef, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, busy := j.inflight[id]; busy {
		return cid.Undef, ErrInFlight
	}
	if j.cas.Has(id) {
		return cid.Undef, ErrDuplicate
	}
	j.inflight[id] = struct{}{}
	return id, nil
}

// Commit archives raw and releases the reservation.
func (j *Journal) Commit(id cid.Cid, raw []byte) error {
	defer j.release(id)
	got, err := j.cas.Put(raw)
	if err != nil {
		return err
	}
	if got != id {
		return ErrCIDMismatch
	}
	return nil
}

// Abort releases the reservation without archiving; the request may be retried.
func (j *Journal) Abort(id cid.Cid) { j.release(id) }

func (j *Journal) release(id cid.Cid) {
	j.mu.Lock()
	delete(j.inflight, id)
	j.mu.Unlock()
}

// Get returns the archived request bytes for id.
func (j *Journal) Get(id cid.Cid) ([]byte, error) {
	return j.cas.Get(id)
}

// Parse decodes a receipt id.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}

// Lookup parses s as a CID and returns the archived request.
func (j *Journal) Lookup(s string) ([]byte, error) {
	id, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return j.cas.Get(id)
}
