// Package processor verifies signed requests and executes them against the
// registry and the token facade.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/facade"
	"xdao.co/mcpreg/journal"
	"xdao.co/mcpreg/model"
	"xdao.co/mcpreg/registry"
	"xdao.co/mcpreg/request"
	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/telemetry"
	"xdao.co/mcpreg/token"
)

const genesisSeed = "genesis"

// Address keys used in receipts.
const (
	AddrRecord        = "record"
	AddrMint          = "mint"
	AddrMintAuthority = "mint_authority"
	AddrHolding       = "holding"
	AddrTo            = "to"
	AddrFrom          = "from"
	AddrAccount       = "account"
)

// Processor verifies signed requests and applies them to the registry,
// the token facade and native balances.
type Processor struct {
	store    *storage.Store
	registry *registry.Registry
	facade   *facade.Facade
	journal  *journal.Journal

	log       *zap.Logger
	telemetry *telemetry.Instruments
	faucetMax uint64
	now       func() time.Time

	slot atomic.Uint64
}

// Option configures a Processor.
type Option func(*Processor)

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

func WithTelemetry(t *telemetry.Instruments) Option {
	return func(p *Processor) { p.telemetry = t }
}

// WithFaucet enables system.airdrop, crediting at most max lamports per
// request. Zero disables it.
func WithFaucet(max uint64) Option {
	return func(p *Processor) { p.faucetMax = max }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(store *storage.Store, reg *registry.Registry, fac *facade.Facade, j *journal.Journal, opts ...Option) *Processor {
	p := &Processor{
		store:    store,
		registry: reg,
		facade:   fac,
		journal:  j,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Slot returns the number of requests accepted so far.
func (p *Processor) Slot() uint64 { return p.slot.Load() }

// Submit executes one signed request. The same bytes are accepted at most
// once; a request that fails may be corrected and resubmitted with a new
// nonce, or resubmitted as-is once the failure cause is gone.
func (p *Processor) Submit(ctx context.Context, raw []byte) (model.Receipt, error) {
	start := p.now()
	var span *telemetry.Span
	if p.telemetry != nil {
		ctx, span = p.telemetry.Start(ctx, "mcpreg.submit")
	}

	receipt, err := p.submit(ctx, raw)

	code := string(model.CodeOf(err))
	if span != nil {
		span.SetAttributes(attribute.String("mcpreg.op", receipt.Op))
		span.End(ctx, receipt.Op, code)
	}
	fields := []zap.Field{
		zap.String("op", receipt.Op),
		zap.Duration("elapsed", p.now().Sub(start)),
	}
	if !receipt.Caller.IsZero() {
		fields = append(fields, zap.Stringer("caller", receipt.Caller))
	}
	if err != nil {
		p.log.Warn("request rejected", append(fields, zap.String("code", code), zap.Error(err))...)
		return model.Receipt{}, err
	}
	p.log.Info("request accepted", append(fields, zap.String("id", receipt.ID), zap.Uint64("slot", receipt.Slot))...)
	return receipt, nil
}

func (p *Processor) submit(ctx context.Context, raw []byte) (model.Receipt, error) {
	req, err := request.Parse(raw)
	if err != nil {
		return model.Receipt{}, invalid("malformed request", err)
	}
	receipt := model.Receipt{Op: string(req.Op)}
	caller, err := req.Verify()
	if err != nil {
		return receipt, invalid("signature verification failed", err)
	}
	receipt.Caller = caller

	id, err := p.journal.Begin(req.Raw)
	switch {
	case errors.Is(err, journal.ErrDuplicate):
		return receipt, duplicate(caller, err)
	case errors.Is(err, journal.ErrInFlight):
		return receipt, model.NewError(model.ErrAlreadyExists, "request is being processed").WithIdentity(caller).WithCause(err)
	case err != nil:
		return receipt, model.NewError(model.ErrInternal, "journal").WithCause(err)
	}
	guard, err := journal.Guard(id, req.Raw)
	if err != nil {
		p.journal.Abort(id)
		return receipt, model.NewError(model.ErrInternal, "journal").WithCause(err)
	}

	addrs, err := p.dispatch(storage.WithGuard(ctx, guard), caller, req)
	if err != nil {
		p.journal.Abort(id)
		if errors.Is(err, journal.ErrDuplicate) {
			return receipt, duplicate(caller, err)
		}
		return receipt, err
	}
	// The marker committed with the operation; the archive copy only serves
	// lookups and bundle export.
	if err := p.journal.Commit(id, req.Raw); err != nil {
		p.log.Warn("archive request", zap.Stringer("id", id), zap.Error(err))
	}

	receipt.ID = id.String()
	receipt.Addresses = addrs
	receipt.Slot = p.slot.Add(1)
	return receipt, nil
}

func (p *Processor) dispatch(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	switch req.Op {
	case request.OpRecordInitialize:
		return p.recordInitialize(ctx, caller, req)
	case request.OpRecordUpdate:
		return p.recordUpdate(ctx, caller, req)
	case request.OpInitializeMint:
		return p.initializeMint(ctx, caller, req)
	case request.OpMint:
		return p.mint(ctx, caller, req)
	case request.OpOpenAccount:
		return p.openAccount(ctx, caller, req)
	case request.OpTransfer:
		return p.transfer(ctx, caller, req)
	case request.OpAirdrop:
		return p.airdrop(ctx, req)
	case request.OpSystemTransfer:
		return p.systemTransfer(ctx, caller, req)
	default:
		return nil, model.NewError(model.ErrInvalidRequest, "unsupported operation "+string(req.Op))
	}
}

func (p *Processor) recordInitialize(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	kind, err := registry.ParseKind(req.Field(request.FieldKind))
	if err != nil {
		return nil, invalid("invalid kind", err)
	}
	seed, err := req.Seed(request.FieldSeed)
	if err != nil {
		return nil, invalid("invalid seed", err)
	}
	addr, _, err := registry.DeriveAddress(p.registry.Program(), kind, seed)
	if err != nil {
		return nil, invalid("invalid seed", err)
	}
	if _, err := p.registry.Initialize(ctx, caller, kind, addr); err != nil {
		return nil, err
	}
	return map[string]string{AddrRecord: addr.String()}, nil
}

func (p *Processor) recordUpdate(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	kind, err := registry.ParseKind(req.Field(request.FieldKind))
	if err != nil {
		return nil, invalid("invalid kind", err)
	}
	addr, err := req.Address(request.FieldRecord)
	if err != nil {
		return nil, invalid("invalid record address", err)
	}
	payload, err := req.Bytes32(request.FieldPayload)
	if err != nil {
		return nil, invalid("invalid payload", err)
	}
	if _, err := p.registry.Update(ctx, caller, kind, addr, payload); err != nil {
		return nil, err
	}
	return map[string]string{AddrRecord: addr.String()}, nil
}

func (p *Processor) initializeMint(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	seed, err := req.Seed(request.FieldSeed)
	if err != nil {
		return nil, invalid("invalid seed", err)
	}
	supply, err := req.Uint64(request.FieldAmount)
	if err != nil {
		return nil, invalid("invalid amount", err)
	}
	decimals, err := req.Uint8(request.FieldDecimals, token.DefaultDecimals)
	if err != nil {
		return nil, invalid("invalid decimals", err)
	}
	res, err := p.facade.InitializeMint(ctx, caller, seed, supply, decimals)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		AddrMint:          res.Mint.String(),
		AddrMintAuthority: res.MintAuthority.String(),
		AddrHolding:       res.Holding.String(),
	}, nil
}

func (p *Processor) mint(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	mint, err := req.Address(request.FieldMint)
	if err != nil {
		return nil, invalid("invalid mint", err)
	}
	to, err := req.Address(request.FieldTo)
	if err != nil {
		return nil, invalid("invalid destination", err)
	}
	amount, err := req.Uint64(request.FieldAmount)
	if err != nil {
		return nil, invalid("invalid amount", err)
	}
	if err := p.facade.Mint(ctx, caller, mint, to, amount); err != nil {
		return nil, err
	}
	return map[string]string{AddrMint: mint.String(), AddrTo: to.String()}, nil
}

func (p *Processor) openAccount(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	mint, err := req.Address(request.FieldMint)
	if err != nil {
		return nil, invalid("invalid mint", err)
	}
	owner, err := req.Address(request.FieldOwner)
	if err != nil {
		return nil, invalid("invalid owner", err)
	}
	acct, err := p.facade.OpenAccount(ctx, caller, mint, owner)
	if err != nil {
		return nil, err
	}
	return map[string]string{AddrMint: mint.String(), AddrAccount: acct.String()}, nil
}

func (p *Processor) transfer(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	from, err := req.Address(request.FieldFrom)
	if err != nil {
		return nil, invalid("invalid source", err)
	}
	to, err := req.Address(request.FieldTo)
	if err != nil {
		return nil, invalid("invalid destination", err)
	}
	amount, err := req.Uint64(request.FieldAmount)
	if err != nil {
		return nil, invalid("invalid amount", err)
	}
	if err := p.facade.Transfer(ctx, caller, from, to, amount); err != nil {
		return nil, err
	}
	return map[string]string{AddrFrom: from.String(), AddrTo: to.String()}, nil
}

func (p *Processor) airdrop(ctx context.Context, req *request.Request) (map[string]string, error) {
	if p.faucetMax == 0 {
		return nil, model.NewError(model.ErrInvalidRequest, "faucet is disabled")
	}
	to, err := req.Address(request.FieldTo)
	if err != nil {
		return nil, invalid("invalid destination", err)
	}
	amount, err := req.Uint64(request.FieldAmount)
	if err != nil {
		return nil, invalid("invalid amount", err)
	}
	if amount == 0 || amount > p.faucetMax {
		return nil, model.NewError(model.ErrInvalidRequest, "airdrop amount out of range").WithAddress(to)
	}
	err = p.store.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Credit(to, amount)
	})
	if errors.Is(err, storage.ErrOverflow) {
		return nil, model.NewError(model.ErrInvalidRequest, "balance overflow").WithAddress(to).WithCause(err)
	}
	if err != nil {
		return nil, err
	}
	return map[string]string{AddrTo: to.String()}, nil
}

// systemTransfer moves native lamports from the caller's funding account.
func (p *Processor) systemTransfer(ctx context.Context, caller address.Address, req *request.Request) (map[string]string, error) {
	to, err := req.Address(request.FieldTo)
	if err != nil {
		return nil, invalid("invalid destination", err)
	}
	amount, err := req.Uint64(request.FieldAmount)
	if err != nil {
		return nil, invalid("invalid amount", err)
	}
	if amount == 0 {
		return nil, model.NewError(model.ErrInvalidRequest, "transfer amount must be positive").WithAddress(to)
	}
	err = p.store.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.Debit(caller, amount); err != nil {
			return err
		}
		return tx.Credit(to, amount)
	})
	switch {
	case err == nil:
		return map[string]string{AddrFrom: caller.String(), AddrTo: to.String()}, nil
	case errors.Is(err, storage.ErrInsufficientFunds):
		return nil, model.NewError(model.ErrInsufficientFunds, "caller cannot cover the transfer").WithAddress(caller).WithIdentity(caller).WithCause(err)
	case errors.Is(err, storage.ErrNotPlain):
		return nil, model.NewError(model.ErrInvalidRequest, "source account is owned by a program").WithAddress(caller).WithCause(err)
	case errors.Is(err, storage.ErrOverflow):
		return nil, model.NewError(model.ErrInvalidRequest, "balance overflow").WithAddress(to).WithCause(err)
	default:
		return nil, err
	}
}

// Allocation is a native balance granted at genesis.
type Allocation struct {
	To       address.Address
	Lamports uint64
}

// Genesis credits allocs once per store, together with a marker account that
// records it ran. It reports whether this call applied them.
func (p *Processor) Genesis(ctx context.Context, allocs []Allocation) (bool, error) {
	if len(allocs) == 0 {
		return false, nil
	}
	marker, _, err := address.Derive(journal.ProgramID, []byte(genesisSeed))
	if err != nil {
		return false, err
	}
	err = p.store.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.Allocate(storage.Account{Address: marker, Owner: journal.ProgramID}); err != nil {
			return err
		}
		for _, a := range allocs {
			if err := tx.Credit(a.To, a.Lamports); err != nil {
				return fmt.Errorf("genesis %s: %w", a.To, err)
			}
		}
		return nil
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.log.Info("genesis applied", zap.Int("allocations", len(allocs)))
	return true, nil
}

// Record returns the view of the registry record at addr.
func (p *Processor) Record(ctx context.Context, addr address.Address) (model.RecordView, error) {
	rec, err := p.registry.Get(ctx, addr)
	if err != nil {
		return model.RecordView{}, err
	}
	return registry.View(addr, rec), nil
}

// Balance returns the view of the token holding account at addr.
func (p *Processor) Balance(ctx context.Context, addr address.Address) (model.BalanceView, error) {
	return p.facade.Balance(ctx, addr)
}

// Lamports returns the native balance of addr, zero if it holds no account.
func (p *Processor) Lamports(ctx context.Context, addr address.Address) (uint64, error) {
	acct, err := p.store.View(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// Request returns the archived bytes of the accepted request with receipt id.
func (p *Processor) Request(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rid, err := journal.Parse(id)
	if err != nil {
		return nil, invalid("invalid receipt id", err)
	}
	raw, err := p.journal.Get(rid)
	if journal.IsNotFound(err) {
		raw, err = journal.Accepted(ctx, p.store, rid)
	}
	switch {
	case journal.IsNotFound(err):
		return nil, model.NewError(model.ErrNotFound, "no accepted request with id "+id).WithCause(err)
	case err != nil:
		return nil, err
	}
	return raw, nil
}

func duplicate(caller address.Address, err error) error {
	return model.NewError(model.ErrAlreadyExists, "request already accepted").WithIdentity(caller).WithCause(err)
}

func invalid(msg string, err error) error {
	return model.NewError(model.ErrInvalidRequest, msg).WithCause(err)
}
