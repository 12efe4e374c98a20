// Package token is the fungible-token ledger the facade delegates to. It
// keeps mint and holding-account state in storage accounts owned by its
// program id and enforces its own authority checks.
package token

import (
	"errors"
	"fmt"
	"math"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
)

var (
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrOwnerMismatch     = errors.New("token: owner does not match")
	ErrMintMismatch      = errors.New("token: account mint does not match")
	ErrInvalidAuthority  = errors.New("token: invalid mint authority")
	ErrOverflow          = errors.New("token: amount overflow")
	ErrUninitialized     = errors.New("token: account not initialized")
	ErrNotTokenAccount   = errors.New("token: account not owned by the token program")
)

// DefaultProgramID is the token program id used when none is configured.
var DefaultProgramID = address.MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// Ledger is the token ledger as seen by its callers. Every method runs inside
// the caller's storage transaction.
type Ledger interface {
	Program() address.Address
	HoldingAddress(owner, mint address.Address) (address.Address, error)
	CreateMint(tx storage.Tx, payer, mint, mintAuthority address.Address, decimals uint8) error
	CreateAccount(tx storage.Tx, payer, account, mint, owner address.Address) error
	MintTo(tx storage.Tx, mint, dest address.Address, auth Authority, amount uint64) error
	Transfer(tx storage.Tx, from, to address.Address, auth Authority, amount uint64) error
	Mint(tx storage.Tx, mint address.Address) (Mint, error)
	Account(tx storage.Tx, account address.Address) (Account, error)
}

// AccountError names the account a ledger operation was rejected on.
type AccountError struct {
	Account address.Address
	Err     error
}

func (e *AccountError) Error() string { return fmt.Sprintf("%v (account %s)", e.Err, e.Account) }

func (e *AccountError) Unwrap() error { return e.Err }

func accountError(addr address.Address, err error) error {
	return &AccountError{Account: addr, Err: err}
}

// Program is the storage-backed Ledger. Its accounts are owned by id.
type Program struct {
	id address.Address
}

var _ Ledger = (*Program)(nil)

// New returns the ledger whose accounts are owned by program id.
func New(id address.Address) *Program { return &Program{id: id} }

func (p *Program) Program() address.Address { return p.id }

// HoldingAddress is the canonical holding account of owner for mint:
// PDA(["holding", owner, mint]) under the token program.
func (p *Program) HoldingAddress(owner, mint address.Address) (address.Address, error) {
	a, _, err := address.Derive(p.id, []byte("holding"), owner[:], mint[:])
	return a, err
}

func (p *Program) CreateMint(tx storage.Tx, payer, mint, mintAuthority address.Address, decimals uint8) error {
	m := Mint{MintAuthority: mintAuthority, Decimals: decimals, Initialized: true}
	return tx.Create(payer, storage.Account{Address: mint, Owner: p.id, Data: m.encode()})
}

func (p *Program) CreateAccount(tx storage.Tx, payer, account, mint, owner address.Address) error {
	if _, err := p.Mint(tx, mint); err != nil {
		return err
	}
	a := Account{Mint: mint, Owner: owner, Initialized: true}
	return tx.Create(payer, storage.Account{Address: account, Owner: p.id, Data: a.encode()})
}

func (p *Program) MintTo(tx storage.Tx, mint, dest address.Address, auth Authority, amount uint64) error {
	mAcct, m, err := p.loadMint(tx, mint)
	if err != nil {
		return accountError(mint, err)
	}
	dAcct, d, err := p.loadAccount(tx, dest)
	if err != nil {
		return accountError(dest, err)
	}
	if d.Mint != mint {
		return accountError(dest, ErrMintMismatch)
	}
	if err := auth.authorize(m.MintAuthority, ErrInvalidAuthority); err != nil {
		return accountError(mint, err)
	}
	if m.Supply > math.MaxUint64-amount {
		return accountError(mint, ErrOverflow)
	}
	if d.Amount > math.MaxUint64-amount {
		return accountError(dest, ErrOverflow)
	}
	m.Supply += amount
	d.Amount += amount
	mAcct.Data = m.encode()
	dAcct.Data = d.encode()
	if err := tx.Put(mAcct); err != nil {
		return err
	}
	return tx.Put(dAcct)
}

func (p *Program) Transfer(tx storage.Tx, from, to address.Address, auth Authority, amount uint64) error {
	fAcct, f, err := p.loadAccount(tx, from)
	if err != nil {
		return accountError(from, err)
	}
	tAcct, t, err := p.loadAccount(tx, to)
	if err != nil {
		return accountError(to, err)
	}
	if f.Mint != t.Mint {
		return accountError(to, ErrMintMismatch)
	}
	if err := auth.authorize(f.Owner, ErrOwnerMismatch); err != nil {
		return accountError(from, err)
	}
	if f.Amount < amount {
		return accountError(from, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, f.Amount, amount))
	}
	if from == to {
		return nil
	}
	if t.Amount > math.MaxUint64-amount {
		return accountError(to, ErrOverflow)
	}
	f.Amount -= amount
	t.Amount += amount
	fAcct.Data = f.encode()
	tAcct.Data = t.encode()
	if err := tx.Put(fAcct); err != nil {
		return err
	}
	return tx.Put(tAcct)
}

func (p *Program) Mint(tx storage.Tx, mint address.Address) (Mint, error) {
	_, m, err := p.loadMint(tx, mint)
	return m, err
}

func (p *Program) Account(tx storage.Tx, account address.Address) (Account, error) {
	_, a, err := p.loadAccount(tx, account)
	return a, err
}

func (p *Program) loadMint(tx storage.Tx, addr address.Address) (storage.Account, Mint, error) {
	acct, err := p.load(tx, addr)
	if err != nil {
		return storage.Account{}, Mint{}, err
	}
	m, err := decodeMint(acct.Data)
	return acct, m, err
}

func (p *Program) loadAccount(tx storage.Tx, addr address.Address) (storage.Account, Account, error) {
	acct, err := p.load(tx, addr)
	if err != nil {
		return storage.Account{}, Account{}, err
	}
	a, err := decodeAccount(acct.Data)
	return acct, a, err
}

func (p *Program) load(tx storage.Tx, addr address.Address) (storage.Account, error) {
	acct, err := tx.Get(addr)
	if err != nil {
		return storage.Account{}, err
	}
	if acct.Owner != p.id {
		return storage.Account{}, fmt.Errorf("%w: %s", ErrNotTokenAccount, addr)
	}
	return acct, nil
}
