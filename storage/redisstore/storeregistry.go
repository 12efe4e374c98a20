package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/storeregistry"
)

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "redis",
		Description: "Redis account store",
		Usage:       storeregistry.UsageDaemon,
		Options: []storeregistry.Option{
			{Name: "redis-addr", Usage: "Redis host:port", Default: "localhost:6379"},
			{Name: "redis-password", Usage: "Redis password"},
			{Name: "redis-db", Usage: "Redis database number", Default: "0"},
			{Name: "redis-prefix", Usage: "key prefix", Default: defaultPrefix},
		},
		Open: func(opts map[string]string) (storage.Backend, func() error, error) {
			db, err := strconv.Atoi(opts["redis-db"])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --redis-db: %w", err)
			}
			b := New(Options{
				Addr:     opts["redis-addr"],
				Password: opts["redis-password"],
				DB:       db,
				Prefix:   opts["redis-prefix"],
			})
			if err := b.Ping(context.Background()); err != nil {
				_ = b.Close()
				return nil, nil, fmt.Errorf("redis: %w", err)
			}
			return b, nil, nil
		},
	})
}
