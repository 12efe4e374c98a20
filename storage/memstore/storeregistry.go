package memstore

import (
	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/storeregistry"
)

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "memory",
		Description: "In-process account store (volatile)",
		Usage:       storeregistry.UsageCLI | storeregistry.UsageDaemon,
		Open: func(map[string]string) (storage.Backend, func() error, error) {
			return New(), nil, nil
		},
	})
}
