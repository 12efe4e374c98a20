package token

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/memstore"
)

var facadeProgram = address.MustParse("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

func ident(b byte) address.Address {
	var a address.Address
	for i := range a {
		a[i] = b
	}
	return a
}

type fixture struct {
	store  *storage.Store
	ledger *Program
	payer  address.Address
	mint   address.Address
	proof  address.Proof
	auth   address.Address
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: storage.New(memstore.New()), ledger: New(DefaultProgramID), payer: ident(1), mint: ident(2)}
	var err error
	f.auth, f.proof, err = address.Derive(facadeProgram, []byte("mint-authority"), f.mint[:])
	require.NoError(t, err)
	require.NoError(t, f.store.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.Credit(f.payer, 1_000_000_000); err != nil {
			return err
		}
		return f.ledger.CreateMint(tx, f.payer, f.mint, f.auth, DefaultDecimals)
	}))
	return f
}

func (f *fixture) open(t *testing.T, owner address.Address) address.Address {
	t.Helper()
	acct, err := f.ledger.HoldingAddress(owner, f.mint)
	require.NoError(t, err)
	require.NoError(t, f.store.Atomic(context.Background(), func(tx storage.Tx) error {
		return f.ledger.CreateAccount(tx, f.payer, acct, f.mint, owner)
	}))
	return acct
}

func (f *fixture) run(fn func(tx storage.Tx) error) error {
	return f.store.Atomic(context.Background(), fn)
}

func (f *fixture) balance(t *testing.T, acct address.Address) uint64 {
	t.Helper()
	var a Account
	require.NoError(t, f.run(func(tx storage.Tx) error {
		var err error
		a, err = f.ledger.Account(tx, acct)
		return err
	}))
	return a.Amount
}

func TestMintToWithDerivedAuthority(t *testing.T) {
	f := setup(t)
	holder := f.open(t, ident(3))
	auth, err := Derived(f.proof)
	require.NoError(t, err)

	require.NoError(t, f.run(func(tx storage.Tx) error { return f.ledger.MintTo(tx, f.mint, holder, auth, 1000) }))
	require.NoError(t, f.run(func(tx storage.Tx) error { return f.ledger.MintTo(tx, f.mint, holder, auth, 500) }))
	assert.Equal(t, uint64(1500), f.balance(t, holder))

	var m Mint
	require.NoError(t, f.run(func(tx storage.Tx) error {
		var err error
		m, err = f.ledger.Mint(tx, f.mint)
		return err
	}))
	assert.Equal(t, uint64(1500), m.Supply)
	assert.Equal(t, uint8(9), m.Decimals)
}

func TestMintToRejectsWrongAuthority(t *testing.T) {
	f := setup(t)
	holder := f.open(t, ident(3))

	err := f.run(func(tx storage.Tx) error { return f.ledger.MintTo(tx, f.mint, holder, Signer(ident(3)), 1) })
	assert.ErrorIs(t, err, ErrInvalidAuthority)

	forged := Authority{Identity: f.auth, Proof: &address.Proof{Program: facadeProgram, Seeds: [][]byte{[]byte("other")}, Bump: f.proof.Bump}}
	err = f.run(func(tx storage.Tx) error { return f.ledger.MintTo(tx, f.mint, holder, forged, 1) })
	assert.ErrorIs(t, err, ErrInvalidAuthority)
	assert.Equal(t, uint64(0), f.balance(t, holder))
}

func TestTransfer(t *testing.T) {
	f := setup(t)
	owner, other := ident(3), ident(4)
	from, to := f.open(t, owner), f.open(t, other)
	auth, err := Derived(f.proof)
	require.NoError(t, err)
	require.NoError(t, f.run(func(tx storage.Tx) error { return f.ledger.MintTo(tx, f.mint, from, auth, 500) }))

	require.NoError(t, f.run(func(tx storage.Tx) error { return f.ledger.Transfer(tx, from, to, Signer(owner), 200) }))
	assert.Equal(t, uint64(300), f.balance(t, from))
	assert.Equal(t, uint64(200), f.balance(t, to))

	err = f.run(func(tx storage.Tx) error { return f.ledger.Transfer(tx, from, to, Signer(other), 1) })
	assert.ErrorIs(t, err, ErrOwnerMismatch)

	err = f.run(func(tx storage.Tx) error { return f.ledger.Transfer(tx, from, to, Signer(owner), 301) })
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, f.run(func(tx storage.Tx) error { return f.ledger.Transfer(tx, from, from, Signer(owner), 300) }))
	assert.Equal(t, uint64(300), f.balance(t, from))
	assert.Equal(t, uint64(200), f.balance(t, to))
}

func TestTransferAcrossMintsRejected(t *testing.T) {
	f := setup(t)
	from := f.open(t, ident(3))
	otherMint := ident(9)
	require.NoError(t, f.run(func(tx storage.Tx) error {
		return f.ledger.CreateMint(tx, f.payer, otherMint, f.auth, 0)
	}))
	to, err := f.ledger.HoldingAddress(ident(4), otherMint)
	require.NoError(t, err)
	require.NoError(t, f.run(func(tx storage.Tx) error {
		return f.ledger.CreateAccount(tx, f.payer, to, otherMint, ident(4))
	}))
	err = f.run(func(tx storage.Tx) error { return f.ledger.Transfer(tx, from, to, Signer(ident(3)), 0) })
	assert.ErrorIs(t, err, ErrMintMismatch)
	var ae *AccountError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, to, ae.Account)

	err = f.run(func(tx storage.Tx) error { return f.ledger.Transfer(tx, ident(12), to, Signer(ident(3)), 0) })
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ident(12), ae.Account)
}

func TestCreateAccountRequiresMint(t *testing.T) {
	f := setup(t)
	err := f.run(func(tx storage.Tx) error {
		return f.ledger.CreateAccount(tx, f.payer, ident(7), ident(8), ident(3))
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = f.run(func(tx storage.Tx) error {
		return f.ledger.CreateAccount(tx, f.payer, ident(7), f.payer, ident(3))
	})
	assert.ErrorIs(t, err, ErrNotTokenAccount)
}

func TestCreateMintTwice(t *testing.T) {
	f := setup(t)
	err := f.run(func(tx storage.Tx) error {
		return f.ledger.CreateMint(tx, f.payer, f.mint, f.auth, 0)
	})
	assert.True(t, errors.Is(err, storage.ErrAlreadyExists))
}

func TestMintToOverflow(t *testing.T) {
	f := setup(t)
	holder := f.open(t, ident(3))
	auth, err := Derived(f.proof)
	require.NoError(t, err)
	require.NoError(t, f.run(func(tx storage.Tx) error { return f.ledger.MintTo(tx, f.mint, holder, auth, ^uint64(0)) }))
	err = f.run(func(tx storage.Tx) error { return f.ledger.MintTo(tx, f.mint, holder, auth, 1) })
	assert.ErrorIs(t, err, ErrOverflow)
}
