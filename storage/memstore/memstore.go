// Package memstore is a process-local storage.Backend. Contents are lost when
// the process exits.
package memstore

import (
	"context"
	"sync"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
)

type Backend struct {
	mu       sync.RWMutex
	accounts map[address.Address][]byte
}

func New() *Backend {
	return &Backend{accounts: map[address.Address][]byte{}}
}

func (b *Backend) Read(ctx context.Context, addr address.Address) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.accounts[addr]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *Backend) Commit(ctx context.Context, reads, writes map[address.Address][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ok, err := storage.ReadsHold(reads, func(addr address.Address) ([]byte, bool, error) {
		v, ok := b.accounts[addr]
		return v, ok, nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrConflict
	}
	for addr, v := range writes {
		b.accounts[addr] = append([]byte(nil), v...)
	}
	return nil
}

func (b *Backend) Close() error { return nil }

// Len reports the number of stored accounts.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.accounts)
}
