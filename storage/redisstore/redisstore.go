// Package redisstore keeps accounts as Redis string values.
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
)

const defaultPrefix = "mcpreg:account:"

type Backend struct {
	client redis.UniversalClient
	prefix string
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func New(opts Options) *Backend {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(rdb, opts.Prefix)
}

func NewWithClient(client redis.UniversalClient, prefix string) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) key(addr address.Address) string {
	return b.prefix + addr.String()
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Backend) Read(ctx context.Context, addr address.Address) ([]byte, bool, error) {
	return get(ctx, b.client, b.key(addr))
}

func get(ctx context.Context, c redis.Cmdable, key string) ([]byte, bool, error) {
	v, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return v, true, nil
}

// Commit uses WATCH on every touched key: the MULTI/EXEC block is discarded by
// the server if any of them changed after it was checked.
func (b *Backend) Commit(ctx context.Context, reads, writes map[address.Address][]byte) error {
	addrs := storage.Addresses(reads, writes)
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = b.key(a)
	}

	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		for addr, want := range reads {
			got, ok, err := get(ctx, tx, b.key(addr))
			if err != nil {
				return err
			}
			if want == nil && ok {
				return storage.ErrConflict
			}
			if want != nil && (!ok || !bytes.Equal(got, want)) {
				return storage.ErrConflict
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for addr, v := range writes {
				pipe.Set(ctx, b.key(addr), v, 0)
			}
			return nil
		})
		return err
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return storage.ErrConflict
	}
	return err
}

func (b *Backend) Close() error {
	return b.client.Close()
}
