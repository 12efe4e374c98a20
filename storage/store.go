package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"xdao.co/mcpreg/address"
)

// Backend persists encoded accounts.
//
// Contract:
//   - Read MUST return ok=false (and no error) when addr holds no account.
//   - Commit MUST apply writes all-or-nothing.
//   - Commit MUST return ErrConflict, applying nothing, unless every entry in
//     reads still holds: a nil value means "absent", anything else must equal
//     the stored bytes.
//   - Two Commits whose read sets overlap MUST NOT both succeed on stale reads.
type Backend interface {
	Read(ctx context.Context, addr address.Address) (data []byte, ok bool, err error)
	Commit(ctx context.Context, reads map[address.Address][]byte, writes map[address.Address][]byte) error
	Close() error
}

// Tx is the view an atomic operation gets of the store. Writes are buffered
// and become visible to other operations only when the operation commits.
type Tx interface {
	// Get returns the account at addr or ErrNotFound.
	Get(addr address.Address) (Account, error)
	// Create allocates acct.Address, debiting the rent deposit for
	// len(acct.Data) from payer. It fails with ErrAlreadyExists when the
	// address is occupied and ErrInsufficientFunds when payer cannot cover
	// the deposit.
	Create(payer address.Address, acct Account) error
	// Put overwrites an existing account.
	Put(acct Account) error
	// Credit adds lamports to addr, creating a plain account if needed.
	Credit(addr address.Address, lamports uint64) error
	// Debit removes lamports from a plain account. It fails with
	// ErrInsufficientFunds when addr holds fewer.
	Debit(addr address.Address, lamports uint64) error
	// Allocate creates acct without a rent deposit. It fails with
	// ErrAlreadyExists when the address is occupied.
	Allocate(acct Account) error
}

// Guard runs first inside every transaction of the operation it is attached
// to. An error from it aborts the transaction before the operation runs.
type Guard func(Tx) error

type guardKey struct{}

type guardState struct {
	fn   Guard
	done atomic.Bool
}

// WithGuard attaches g to ctx. Atomic applies it to each transaction it runs
// with ctx until one commits; after that g is not run again.
func WithGuard(ctx context.Context, g Guard) context.Context {
	return context.WithValue(ctx, guardKey{}, &guardState{fn: g})
}

func guardFrom(ctx context.Context) *guardState {
	g, _ := ctx.Value(guardKey{}).(*guardState)
	if g == nil || g.done.Load() {
		return nil
	}
	return g
}

const defaultMaxAttempts = 16

// Store runs atomic operations over a Backend.
//
// Each Atomic call is an optimistic transaction: reads are recorded, writes
// are buffered, and the backend commits them only if the reads are still
// current. On a conflict the operation function is run again on fresh state,
// so it must not have side effects outside the Tx.
type Store struct {
	backend     Backend
	maxAttempts int
}

type Option func(*Store)

// WithMaxAttempts bounds how often a conflicting operation is re-run.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// View reads one committed account.
func (s *Store) View(ctx context.Context, addr address.Address) (Account, error) {
	b, ok, err := s.backend.Read(ctx, addr)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ErrNotFound
	}
	return DecodeAccount(addr, b)
}

// Atomic runs fn and commits its writes as one unit. If fn returns an error
// nothing is written and the error is returned unchanged.
func (s *Store) Atomic(ctx context.Context, fn func(Tx) error) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := &txn{ctx: ctx, backend: s.backend, reads: map[address.Address][]byte{}, writes: map[address.Address]Account{}}
		guard := guardFrom(ctx)
		if guard != nil {
			if err := guard.fn(t); err != nil {
				return err
			}
		}
		if err := fn(t); err != nil {
			return err
		}
		if len(t.writes) == 0 {
			return nil
		}
		writes := make(map[address.Address][]byte, len(t.writes))
		for addr, acct := range t.writes {
			writes[addr] = acct.Encode()
		}
		err := s.backend.Commit(ctx, t.reads, writes)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err == nil && guard != nil {
			guard.done.Store(true)
		}
		return err
	}
	return fmt.Errorf("%w: gave up after %d attempts", ErrConflict, s.maxAttempts)
}

type txn struct {
	ctx     context.Context
	backend Backend
	reads   map[address.Address][]byte
	writes  map[address.Address]Account
}

func (t *txn) load(addr address.Address) (Account, bool, error) {
	if acct, ok := t.writes[addr]; ok {
		return acct.Clone(), true, nil
	}
	b, seen := t.reads[addr]
	if !seen {
		var ok bool
		var err error
		b, ok, err = t.backend.Read(t.ctx, addr)
		if err != nil {
			return Account{}, false, err
		}
		if !ok {
			b = nil
		}
		t.reads[addr] = b
	}
	if b == nil {
		return Account{}, false, nil
	}
	acct, err := DecodeAccount(addr, b)
	if err != nil {
		return Account{}, false, err
	}
	return acct, true, nil
}

func (t *txn) Get(addr address.Address) (Account, error) {
	acct, ok, err := t.load(addr)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

// Create takes over a plain funded account at acct.Address, keeping its
// lamports, the way a transfer to an unallocated address does not reserve it.
func (t *txn) Create(payer address.Address, acct Account) error {
	prior, exists, err := t.load(acct.Address)
	if err != nil {
		return err
	}
	if exists && !prior.IsPlain() {
		return ErrAlreadyExists
	}
	rent := RentExemptMinimum(len(acct.Data))
	funder, ok, err := t.load(payer)
	if err != nil {
		return err
	}
	if !ok || funder.Lamports < rent {
		return ErrInsufficientFunds
	}
	if acct.Lamports > math.MaxUint64-rent {
		return ErrOverflow
	}
	funder.Lamports -= rent
	t.writes[payer] = funder

	acct = acct.Clone()
	acct.Lamports += rent
	if exists {
		if payer == acct.Address {
			prior.Lamports = funder.Lamports
		}
		if acct.Lamports > math.MaxUint64-prior.Lamports {
			return ErrOverflow
		}
		acct.Lamports += prior.Lamports
	}
	t.writes[acct.Address] = acct
	return nil
}

func (t *txn) Allocate(acct Account) error {
	_, exists, err := t.load(acct.Address)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	t.writes[acct.Address] = acct.Clone()
	return nil
}

func (t *txn) Put(acct Account) error {
	_, ok, err := t.load(acct.Address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	t.writes[acct.Address] = acct.Clone()
	return nil
}

func (t *txn) Credit(addr address.Address, lamports uint64) error {
	acct, ok, err := t.load(addr)
	if err != nil {
		return err
	}
	if !ok {
		acct = Account{Address: addr, Owner: address.Zero}
	}
	if acct.Lamports > math.MaxUint64-lamports {
		return ErrOverflow
	}
	acct.Lamports += lamports
	t.writes[addr] = acct
	return nil
}

func (t *txn) Debit(addr address.Address, lamports uint64) error {
	acct, ok, err := t.load(addr)
	if err != nil {
		return err
	}
	if !ok || acct.Lamports < lamports {
		return ErrInsufficientFunds
	}
	if !acct.IsPlain() {
		return ErrNotPlain
	}
	acct.Lamports -= lamports
	t.writes[addr] = acct
	return nil
}

// ReadsHold reports whether every read still matches current. Backends use it
// inside their critical section to implement the Commit contract.
func ReadsHold(reads map[address.Address][]byte, current func(address.Address) ([]byte, bool, error)) (bool, error) {
	for addr, want := range reads {
		got, ok, err := current(addr)
		if err != nil {
			return false, err
		}
		if want == nil {
			if ok {
				return false, nil
			}
			continue
		}
		if !ok || !bytes.Equal(got, want) {
			return false, nil
		}
	}
	return true, nil
}

// Addresses returns the union of the keys of the given maps in byte order.
// Backends that lock rows use it for a deterministic lock order.
func Addresses(sets ...map[address.Address][]byte) []address.Address {
	seen := map[address.Address]struct{}{}
	var out []address.Address
	for _, m := range sets {
		for addr := range m {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
