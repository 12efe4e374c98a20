package storage_test

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

func mkAddr(b byte) address.Address {
	var a address.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func fund(t *testing.T, s *storage.Store, addr address.Address, lamports uint64) {
	t.Helper()
	require.NoError(t, s.Atomic(context.Background(), func(tx storage.Tx) error {
		return tx.Credit(addr, lamports)
	}))
}

func TestCreateDebitsRentFromPayer(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	payer, target := mkAddr(1), mkAddr(2)
	fund(t, s, payer, 1_000_000_000)

	data := make([]byte, 81)
	err := s.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Create(payer, storage.Account{Address: target, Owner: mkAddr(9), Data: data})
	})
	require.NoError(t, err)

	rent := storage.RentExemptMinimum(81)
	assert.Equal(t, uint64((128+81)*3480*2), rent)

	p, err := s.View(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, 1_000_000_000-rent, p.Lamports)

	acct, err := s.View(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, rent, acct.Lamports)
	assert.Equal(t, mkAddr(9), acct.Owner)
	assert.Len(t, acct.Data, 81)
}

func TestCreateRejectsOccupiedAddress(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	payer, target := mkAddr(1), mkAddr(2)
	fund(t, s, payer, 1_000_000_000)

	create := func(tx storage.Tx) error {
		return tx.Create(payer, storage.Account{Address: target, Data: []byte{1}})
	}
	require.NoError(t, s.Atomic(ctx, create))
	before, err := s.View(ctx, payer)
	require.NoError(t, err)

	err = s.Atomic(ctx, create)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	after, err := s.View(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, before.Lamports, after.Lamports, "failed create must not charge rent")
}

func TestCreateInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	payer := mkAddr(1)
	fund(t, s, payer, 10)

	err := s.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Create(payer, storage.Account{Address: mkAddr(2), Data: make([]byte, 81)})
	})
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	_, err = s.View(ctx, mkAddr(2))
	assert.True(t, storage.IsNotFound(err))

	err = s.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Create(mkAddr(3), storage.Account{Address: mkAddr(4)})
	})
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds, "unfunded payer")
}

func TestAtomicDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.Credit(mkAddr(1), 5); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.View(ctx, mkAddr(1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTxSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	fund(t, s, mkAddr(1), 100)
	err := s.Atomic(ctx, func(tx storage.Tx) error {
		acct, err := tx.Get(mkAddr(1))
		if err != nil {
			return err
		}
		acct.Data = []byte("x")
		if err := tx.Put(acct); err != nil {
			return err
		}
		again, err := tx.Get(mkAddr(1))
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("x"), again.Data)
		return nil
	})
	require.NoError(t, err)
}

func TestPutRequiresExisting(t *testing.T) {
	s := storage.New(memstore.New())
	err := s.Atomic(context.Background(), func(tx storage.Tx) error {
		return tx.Put(storage.Account{Address: mkAddr(7)})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreditOverflow(t *testing.T) {
	s := storage.New(memstore.New())
	fund(t, s, mkAddr(1), ^uint64(0))
	err := s.Atomic(context.Background(), func(tx storage.Tx) error {
		return tx.Credit(mkAddr(1), 1)
	})
	assert.ErrorIs(t, err, storage.ErrOverflow)
}

func TestCreateClaimsPlainAccount(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	payer, target := mkAddr(1), mkAddr(2)
	fund(t, s, payer, 1_000_000_000)
	fund(t, s, target, 1)

	err := s.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Create(payer, storage.Account{Address: target, Owner: mkAddr(9), Data: make([]byte, 81)})
	})
	require.NoError(t, err)

	acct, err := s.View(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, mkAddr(9), acct.Owner)
	assert.Equal(t, storage.RentExemptMinimum(81)+1, acct.Lamports, "prior lamports are kept")

	err = s.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Create(payer, storage.Account{Address: target, Owner: mkAddr(9)})
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestAllocateIsRentFree(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	alloc := func(tx storage.Tx) error {
		return tx.Allocate(storage.Account{Address: mkAddr(5), Owner: mkAddr(9), Data: []byte("m")})
	}
	require.NoError(t, s.Atomic(ctx, alloc))
	acct, err := s.View(ctx, mkAddr(5))
	require.NoError(t, err)
	assert.Zero(t, acct.Lamports)
	assert.ErrorIs(t, s.Atomic(ctx, alloc), storage.ErrAlreadyExists)
}

func TestDebit(t *testing.T) {
	ctx := context.Background()
	s := storage.New(memstore.New())
	fund(t, s, mkAddr(1), 10)

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error { return tx.Debit(mkAddr(1), 4) }))
	acct, err := s.View(ctx, mkAddr(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), acct.Lamports)

	err = s.Atomic(ctx, func(tx storage.Tx) error { return tx.Debit(mkAddr(1), 7) })
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
	err = s.Atomic(ctx, func(tx storage.Tx) error { return tx.Debit(mkAddr(2), 1) })
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	fund(t, s, mkAddr(1), 1_000_000_000)
	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Create(mkAddr(1), storage.Account{Address: mkAddr(3), Owner: mkAddr(9), Data: []byte{1}})
	}))
	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		return tx.Credit(mkAddr(3), 100)
	}))
	err = s.Atomic(ctx, func(tx storage.Tx) error { return tx.Debit(mkAddr(3), 1) })
	assert.ErrorIs(t, err, storage.ErrNotPlain)
}

func TestGuardCommitsWithOperation(t *testing.T) {
	s := storage.New(memstore.New())
	marker := storage.Account{Address: mkAddr(8), Owner: mkAddr(9), Data: []byte("req")}
	runs := 0
	ctx := storage.WithGuard(context.Background(), func(tx storage.Tx) error {
		runs++
		return tx.Allocate(marker)
	})

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx storage.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	_, err = s.View(ctx, marker.Address)
	assert.ErrorIs(t, err, storage.ErrNotFound, "guard writes roll back with the operation")

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error { return tx.Credit(mkAddr(1), 1) }))
	_, err = s.View(ctx, marker.Address)
	require.NoError(t, err)

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error { return tx.Credit(mkAddr(1), 1) }))
	assert.Equal(t, 2, runs, "guard is spent once a transaction commits")

	again := storage.WithGuard(context.Background(), func(tx storage.Tx) error { return tx.Allocate(marker) })
	ran := false
	err = s.Atomic(again, func(tx storage.Tx) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	assert.False(t, ran)
}

type conflictingBackend struct {
	*memstore.Backend
	commits int
}

func (b *conflictingBackend) Commit(ctx context.Context, reads, writes map[address.Address][]byte) error {
	b.commits++
	return storage.ErrConflict
}

func TestAtomicGivesUpAfterMaxAttempts(t *testing.T) {
	b := &conflictingBackend{Backend: memstore.New()}
	s := storage.New(b, storage.WithMaxAttempts(3))
	err := s.Atomic(context.Background(), func(tx storage.Tx) error {
		return tx.Credit(mkAddr(1), 1)
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 3, b.commits)
}

func TestAccountEncoding(t *testing.T) {
	acct := storage.Account{Address: mkAddr(1), Owner: mkAddr(2), Lamports: 42, Data: []byte("payload")}
	got, err := storage.DecodeAccount(mkAddr(1), acct.Encode())
	require.NoError(t, err)
	assert.Equal(t, acct, got)

	_, err = storage.DecodeAccount(mkAddr(1), []byte{1, 2, 3})
	assert.ErrorIs(t, err, storage.ErrCorrupt)

	b := acct.Encode()
	_, err = storage.DecodeAccount(mkAddr(1), b[:len(b)-1])
	assert.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestAddressesSortedUnion(t *testing.T) {
	got := storage.Addresses(
		map[address.Address][]byte{mkAddr(3): nil, mkAddr(1): nil},
		map[address.Address][]byte{mkAddr(2): nil, mkAddr(1): nil},
	)
	assert.Equal(t, []address.Address{mkAddr(1), mkAddr(2), mkAddr(3)}, got)
}
