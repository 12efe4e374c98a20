// Package registry is the authority-gated record store: records are created
// once at an address and afterwards only their authority may replace the
// payload.
package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/model"
	"xdao.co/mcpreg/storage"
)

const recordSeedPrefix = "record"

// DeriveAddress returns the record address for (kind, seed) under program:
// PDA(["record", kind tag, seed]).
func DeriveAddress(program address.Address, kind Kind, seed []byte) (address.Address, address.Proof, error) {
	if !kind.Valid() {
		return address.Address{}, address.Proof{}, ErrUnknownKind
	}
	return address.Derive(program, []byte(recordSeedPrefix), []byte(kind.String()), seed)
}

// Registry creates and updates records in accounts owned by its program.
type Registry struct {
	store   *storage.Store
	program address.Address
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now as the source of created_at.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New returns a registry whose records live under program in store.
func New(store *storage.Store, program address.Address, opts ...Option) *Registry {
	r := &Registry{store: store, program: program, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Program is the id that owns record accounts and derives their addresses.
func (r *Registry) Program() address.Address { return r.program }

// Initialize creates an Active record with a zero payload owned by caller.
// The caller pays the rent deposit.
func (r *Registry) Initialize(ctx context.Context, caller address.Address, kind Kind, addr address.Address) (Record, error) {
	if !kind.Valid() {
		return Record{}, model.NewError(model.ErrInvalidRequest, "unknown record kind").WithCause(ErrUnknownKind)
	}
	var rec Record
	err := r.store.Atomic(ctx, func(tx storage.Tx) error {
		rec = Record{
			Kind:      kind,
			Authority: caller,
			Status:    StatusActive,
			CreatedAt: r.now().Unix(),
		}
		return tx.Create(caller, storage.Account{Address: addr, Owner: r.program, Data: rec.Encode()})
	})
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, storage.ErrAlreadyExists):
		return Record{}, model.NewError(model.ErrAlreadyExists, "record already initialized").WithAddress(addr).WithCause(err)
	case errors.Is(err, storage.ErrInsufficientFunds):
		return Record{}, model.NewError(model.ErrInsufficientFunds, "caller cannot pay for record allocation").WithAddress(addr).WithIdentity(caller).WithCause(err)
	default:
		return Record{}, err
	}
}

// Update replaces the payload of the record at addr. Only the record's
// authority may do so.
func (r *Registry) Update(ctx context.Context, caller address.Address, kind Kind, addr address.Address, payload [32]byte) (Record, error) {
	var rec Record
	err := r.store.Atomic(ctx, func(tx storage.Tx) error {
		acct, err := tx.Get(addr)
		if err != nil {
			return err
		}
		cur, err := r.decode(kind, addr, acct)
		if err != nil {
			return err
		}
		if cur.Authority != caller {
			return model.NewError(model.ErrUnauthorized, "caller is not the record authority").WithAddress(addr).WithIdentity(caller)
		}
		cur.Payload = payload
		acct.Data = cur.Encode()
		rec = cur
		return tx.Put(acct)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, model.NewError(model.ErrNotFound, "record not found").WithAddress(addr).WithCause(err)
	}
	return rec, err
}

// Get reads the committed record at addr, whatever its kind.
func (r *Registry) Get(ctx context.Context, addr address.Address) (Record, error) {
	acct, err := r.store.View(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, model.NewError(model.ErrNotFound, "record not found").WithAddress(addr).WithCause(err)
	}
	if err != nil {
		return Record{}, err
	}
	if acct.Owner != r.program {
		return Record{}, model.NewError(model.ErrInvalidRequest, "account is not a registry record").WithAddress(addr)
	}
	rec, err := DecodeAny(acct.Data)
	if err != nil {
		return Record{}, model.NewError(model.ErrInvalidRequest, "account is not a registry record").WithAddress(addr).WithCause(err)
	}
	return rec, nil
}

func (r *Registry) decode(kind Kind, addr address.Address, acct storage.Account) (Record, error) {
	if acct.Owner != r.program {
		return Record{}, model.NewError(model.ErrInvalidRequest, "account is not a registry record").WithAddress(addr)
	}
	rec, err := Decode(kind, acct.Data)
	if err != nil {
		return Record{}, model.NewError(model.ErrInvalidRequest, "account is not a "+kind.String()+" record").WithAddress(addr).WithCause(err)
	}
	return rec, nil
}

// View projects a record for JSON output.
func View(addr address.Address, rec Record) model.RecordView {
	return model.RecordView{
		Address:   addr,
		Kind:      rec.Kind.String(),
		Authority: rec.Authority,
		Status:    rec.Status.String(),
		Payload:   hex.EncodeToString(rec.Payload[:]),
		CreatedAt: rec.CreatedAt,
	}
}
