package localfs

import (
	"fmt"

	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/storeregistry"
)

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem account store (directory)",
		Usage:       storeregistry.UsageCLI | storeregistry.UsageDaemon,
		Options: []storeregistry.Option{
			{Name: "localfs-dir", Usage: "account store directory"},
		},
		Open: func(opts map[string]string) (storage.Backend, func() error, error) {
			dir := opts["localfs-dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("missing --localfs-dir")
			}
			b, err := New(dir)
			return b, nil, err
		},
	})
}
