// Package facade exposes mint, transfer and account operations over a token
// ledger. Minting is signed by a derived proxy identity per mint; the proxy
// holds no key and authorizes by derivation proof.
package facade

import (
	"context"
	"errors"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/model"
	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/token"
)

// DefaultProgramID is the facade (and registry) program id used when none is configured.
var DefaultProgramID = address.MustParse("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

// Facade runs token operations in storage transactions and maps ledger
// failures to coded errors.
type Facade struct {
	store       *storage.Store
	ledger      token.Ledger
	program     address.Address
	openMinting bool
}

// Option configures a Facade.
type Option func(*Facade)

// WithOpenMinting lets any caller mint through a mint's proxy. By default only
// the identity that initialized the mint may.
func WithOpenMinting(open bool) Option {
	return func(f *Facade) { f.openMinting = open }
}

// New returns a facade over ledger whose proxies derive from program.
func New(store *storage.Store, ledger token.Ledger, program address.Address, opts ...Option) *Facade {
	f := &Facade{store: store, ledger: ledger, program: program}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Program is the id mint authorities are derived under.
func (f *Facade) Program() address.Address { return f.program }

// MintResult names the accounts created by InitializeMint.
type MintResult struct {
	Mint          address.Address
	MintAuthority address.Address
	Holding       address.Address
	Bump          uint8
}

// InitializeMint creates a mint, its authority proxy and the caller's holding
// account, then mints supply to that holding account signed by the proxy.
// The caller pays every allocation.
func (f *Facade) InitializeMint(ctx context.Context, caller address.Address, seed []byte, supply uint64, decimals uint8) (MintResult, error) {
	mint, err := DeriveMint(f.program, caller, seed)
	if err != nil {
		return MintResult{}, model.NewError(model.ErrInvalidRequest, "invalid mint seed").WithCause(err)
	}
	authAddr, proof, err := DeriveMintAuthority(f.program, mint)
	if err != nil {
		return MintResult{}, model.NewError(model.ErrInternal, "derive mint authority").WithAddress(mint).WithCause(err)
	}
	holding, err := f.ledger.HoldingAddress(caller, mint)
	if err != nil {
		return MintResult{}, model.NewError(model.ErrInternal, "derive holding account").WithAddress(mint).WithCause(err)
	}
	res := MintResult{Mint: mint, MintAuthority: authAddr, Holding: holding, Bump: proof.Bump}

	err = f.store.Atomic(ctx, func(tx storage.Tx) error {
		rec := MintAuthority{Authority: caller, Bump: proof.Bump}
		if err := tx.Create(caller, storage.Account{Address: authAddr, Owner: f.program, Data: rec.encode()}); err != nil {
			return ledgerError(authAddr, caller, err)
		}
		if err := f.ledger.CreateMint(tx, caller, mint, authAddr, decimals); err != nil {
			return ledgerError(mint, caller, err)
		}
		if err := f.ledger.CreateAccount(tx, caller, holding, mint, caller); err != nil {
			return ledgerError(holding, caller, err)
		}
		if supply == 0 {
			return nil
		}
		auth, err := token.Derived(proof)
		if err != nil {
			return err
		}
		return ledgerError(holding, caller, f.ledger.MintTo(tx, mint, holding, auth, supply))
	})
	if err != nil {
		return MintResult{}, err
	}
	return res, nil
}

// Mint mints amount to dest, signed by mint's derived proxy.
func (f *Facade) Mint(ctx context.Context, caller, mint, dest address.Address, amount uint64) error {
	authAddr, proof, err := DeriveMintAuthority(f.program, mint)
	if err != nil {
		return model.NewError(model.ErrInternal, "derive mint authority").WithAddress(mint).WithCause(err)
	}
	return f.store.Atomic(ctx, func(tx storage.Tx) error {
		rec, err := f.loadAuthority(tx, mint, authAddr)
		if err != nil {
			return err
		}
		if !f.openMinting && rec.Authority != caller {
			return model.NewError(model.ErrUnauthorized, "caller is not the mint authority").WithAddress(mint).WithIdentity(caller)
		}
		auth, err := token.Derived(proof)
		if err != nil {
			return err
		}
		return ledgerError(dest, caller, f.ledger.MintTo(tx, mint, dest, auth, amount))
	})
}

// Transfer moves amount from one holding account to another. The ledger
// checks that caller owns from.
func (f *Facade) Transfer(ctx context.Context, caller, from, to address.Address, amount uint64) error {
	return f.store.Atomic(ctx, func(tx storage.Tx) error {
		return ledgerError(from, caller, f.ledger.Transfer(tx, from, to, token.Signer(caller), amount))
	})
}

// OpenAccount creates owner's holding account for mint, paid by caller.
func (f *Facade) OpenAccount(ctx context.Context, caller, mint, owner address.Address) (address.Address, error) {
	holding, err := f.ledger.HoldingAddress(owner, mint)
	if err != nil {
		return address.Address{}, model.NewError(model.ErrInternal, "derive holding account").WithAddress(mint).WithCause(err)
	}
	err = f.store.Atomic(ctx, func(tx storage.Tx) error {
		return ledgerError(holding, caller, f.ledger.CreateAccount(tx, caller, holding, mint, owner))
	})
	if err != nil {
		return address.Address{}, err
	}
	return holding, nil
}

// HoldingAddress returns owner's canonical holding account for mint.
func (f *Facade) HoldingAddress(owner, mint address.Address) (address.Address, error) {
	return f.ledger.HoldingAddress(owner, mint)
}

// Balance reads a holding account.
func (f *Facade) Balance(ctx context.Context, account address.Address) (model.BalanceView, error) {
	var view model.BalanceView
	err := f.store.Atomic(ctx, func(tx storage.Tx) error {
		a, err := f.ledger.Account(tx, account)
		if errors.Is(err, storage.ErrNotFound) {
			return model.NewError(model.ErrNotFound, "token account not found").WithAddress(account)
		}
		if err != nil {
			return model.NewError(model.ErrInvalidRequest, "not a token account").WithAddress(account).WithCause(err)
		}
		view = model.BalanceView{Account: account, Mint: a.Mint, Owner: a.Owner, Amount: a.Amount}
		return nil
	})
	return view, err
}

// Authority reads the mint authority record of mint.
func (f *Facade) Authority(ctx context.Context, mint address.Address) (MintAuthority, error) {
	authAddr, _, err := DeriveMintAuthority(f.program, mint)
	if err != nil {
		return MintAuthority{}, model.NewError(model.ErrInternal, "derive mint authority").WithAddress(mint).WithCause(err)
	}
	var rec MintAuthority
	err = f.store.Atomic(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = f.loadAuthority(tx, mint, authAddr)
		return err
	})
	return rec, err
}

func (f *Facade) loadAuthority(tx storage.Tx, mint, authAddr address.Address) (MintAuthority, error) {
	acct, err := tx.Get(authAddr)
	if errors.Is(err, storage.ErrNotFound) {
		return MintAuthority{}, model.NewError(model.ErrNotFound, "mint has no authority record").WithAddress(mint)
	}
	if err != nil {
		return MintAuthority{}, err
	}
	if acct.Owner != f.program {
		return MintAuthority{}, model.NewError(model.ErrInvalidRequest, "mint authority not owned by this program").WithAddress(authAddr)
	}
	rec, err := decodeMintAuthority(acct.Data)
	if err != nil {
		return MintAuthority{}, model.NewError(model.ErrInternal, "mint authority record").WithAddress(authAddr).WithCause(err)
	}
	return rec, nil
}

// ledgerError classifies a failure from an allocation or ledger call.
// Allocation failures keep their own codes; everything the ledger rejects is
// a delegate failure carrying the ledger's error verbatim. Infrastructure
// errors pass through unchanged.
func ledgerError(addr, caller address.Address, err error) error {
	if err == nil {
		return nil
	}
	var ae *token.AccountError
	if errors.As(err, &ae) {
		addr = ae.Account
	}
	var ce *model.CodedError
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, storage.ErrAlreadyExists):
		return model.NewError(model.ErrAlreadyExists, "account already exists").WithAddress(addr).WithCause(err)
	case errors.Is(err, storage.ErrInsufficientFunds):
		return model.NewError(model.ErrInsufficientFunds, "caller cannot pay for allocation").WithAddress(addr).WithIdentity(caller).WithCause(err)
	case isLedgerRejection(err):
		return model.NewError(model.ErrDelegateFailure, "token ledger rejected the operation").WithAddress(addr).WithIdentity(caller).WithCause(err)
	default:
		return err
	}
}

func isLedgerRejection(err error) bool {
	for _, target := range []error{
		token.ErrInsufficientFunds,
		token.ErrOwnerMismatch,
		token.ErrMintMismatch,
		token.ErrInvalidAuthority,
		token.ErrOverflow,
		token.ErrUninitialized,
		token.ErrNotTokenAccount,
		storage.ErrNotFound,
		storage.ErrOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
