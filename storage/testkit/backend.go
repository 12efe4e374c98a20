package testkit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
)

// NewBackend constructs a fresh, empty backend for a test.
// The returned backend MUST be isolated from other tests.
type NewBackend func(t *testing.T) storage.Backend

func addr(b byte) address.Address {
	var a address.Address
	a[0] = b
	a[31] = b
	return a
}

func RunBackendConformance(t *testing.T, newBackend NewBackend) {
	t.Helper()
	ctx := context.Background()

	t.Run("ReadMissing", func(t *testing.T) {
		b := newBackend(t)
		_, ok, err := b.Read(ctx, addr(1))
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if ok {
			t.Fatalf("Read returned ok for missing account")
		}
	})

	t.Run("CommitCreateThenRead", func(t *testing.T) {
		b := newBackend(t)
		want := storage.Account{Address: addr(2), Lamports: 7, Data: []byte("hello")}.Encode()
		err := b.Commit(ctx,
			map[address.Address][]byte{addr(2): nil},
			map[address.Address][]byte{addr(2): want})
		if err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		got, ok, err := b.Read(ctx, addr(2))
		if err != nil || !ok {
			t.Fatalf("Read after commit: ok=%v err=%v", ok, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Read bytes mismatch")
		}
	})

	t.Run("CommitRejectsStaleAbsentRead", func(t *testing.T) {
		b := newBackend(t)
		v1 := storage.Account{Address: addr(3), Lamports: 1}.Encode()
		if err := b.Commit(ctx, map[address.Address][]byte{addr(3): nil}, map[address.Address][]byte{addr(3): v1}); err != nil {
			t.Fatalf("Commit(1) failed: %v", err)
		}
		v2 := storage.Account{Address: addr(3), Lamports: 2}.Encode()
		err := b.Commit(ctx, map[address.Address][]byte{addr(3): nil}, map[address.Address][]byte{addr(3): v2})
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("second create: got %v want ErrConflict", err)
		}
		got, _, _ := b.Read(ctx, addr(3))
		if !bytes.Equal(got, v1) {
			t.Fatalf("conflicting commit must not overwrite")
		}
	})

	t.Run("CommitIsAllOrNothing", func(t *testing.T) {
		b := newBackend(t)
		v1 := storage.Account{Address: addr(4), Lamports: 1}.Encode()
		if err := b.Commit(ctx, map[address.Address][]byte{addr(4): nil}, map[address.Address][]byte{addr(4): v1}); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		stale := storage.Account{Address: addr(4), Lamports: 99}.Encode()
		err := b.Commit(ctx,
			map[address.Address][]byte{addr(4): stale, addr(5): nil},
			map[address.Address][]byte{
				addr(4): storage.Account{Address: addr(4), Lamports: 3}.Encode(),
				addr(5): storage.Account{Address: addr(5), Lamports: 3}.Encode(),
			})
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("stale commit: got %v want ErrConflict", err)
		}
		if _, ok, _ := b.Read(ctx, addr(5)); ok {
			t.Fatalf("partial write observed")
		}
	})

	t.Run("StoreSerializesConcurrentCredits", func(t *testing.T) {
		s := storage.New(newBackend(t), storage.WithMaxAttempts(1000))
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Atomic(ctx, func(tx storage.Tx) error {
					return tx.Credit(addr(6), 10)
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Atomic failed: %v", err)
			}
		}
		acct, err := s.View(ctx, addr(6))
		if err != nil {
			t.Fatalf("View failed: %v", err)
		}
		if acct.Lamports != workers*10 {
			t.Fatalf("lost update: got %d want %d", acct.Lamports, workers*10)
		}
	})
}
