package sqlstore

import (
	"context"
	"fmt"

	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/storeregistry"
)

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "sqlite",
		Description: "SQLite account store (single file)",
		Usage:       storeregistry.UsageCLI | storeregistry.UsageDaemon,
		Options: []storeregistry.Option{
			{Name: "sqlite-path", Usage: "SQLite database file"},
		},
		Open: func(opts map[string]string) (storage.Backend, func() error, error) {
			path := opts["sqlite-path"]
			if path == "" {
				return nil, nil, fmt.Errorf("missing --sqlite-path")
			}
			b, err := OpenSQLite(context.Background(), path)
			return b, nil, err
		},
	})
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "postgres",
		Description: "PostgreSQL account store",
		Usage:       storeregistry.UsageDaemon,
		Options: []storeregistry.Option{
			{Name: "postgres-dsn", Usage: "PostgreSQL connection string"},
		},
		Open: func(opts map[string]string) (storage.Backend, func() error, error) {
			dsn := opts["postgres-dsn"]
			if dsn == "" {
				return nil, nil, fmt.Errorf("missing --postgres-dsn")
			}
			b, err := OpenPostgres(context.Background(), dsn)
			return b, nil, err
		},
	})
}
