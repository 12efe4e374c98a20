package journal

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/mcpreg/cidutil"
)

// Fallback writes to the first CAS and reads from each in order.
type Fallback []CAS

func (f Fallback) Put(bytes []byte) (cid.Cid, error) {
	if len(f) == 0 {
		return cid.Undef, errors.New("journal: no backends")
	}
	return f[0].Put(bytes)
}

func (f Fallback) Get(id cid.Cid) ([]byte, error) {
	return getInOrder(id, []CAS(f))
}

func (f Fallback) Has(id cid.Cid) bool {
	for _, c := range f {
		if c.Has(id) {
			return true
		}
	}
	return false
}

// Named associates a CAS with a stable backend name for error reporting.
type Named struct {
	Name string
	CAS  CAS
}

// Replicating writes to every backend and requires each to return the
// canonical CID. Reads fall back in order.
type Replicating []Named

func (r Replicating) Put(bytes []byte) (cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if len(r) == 0 {
		return cid.Undef, errors.New("journal: no backends")
	}
	for _, b := range r {
		got, err := b.CAS.Put(bytes)
		if err != nil {
			return cid.Undef, fmt.Errorf("journal: backend %q: %w", b.Name, err)
		}
		if got != want {
			return cid.Undef, fmt.Errorf("journal: backend %q: %w", b.Name, ErrCIDMismatch)
		}
	}
	return want, nil
}

func (r Replicating) Get(id cid.Cid) ([]byte, error) {
	cs := make([]CAS, 0, len(r))
	for _, b := range r {
		cs = append(cs, b.CAS)
	}
	return getInOrder(id, cs)
}

func (r Replicating) Has(id cid.Cid) bool {
	for _, b := range r {
		if b.CAS.Has(id) {
			return true
		}
	}
	return false
}

func getInOrder(id cid.Cid, cs []CAS) ([]byte, error) {
	for _, c := range cs {
		b, err := c.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}
