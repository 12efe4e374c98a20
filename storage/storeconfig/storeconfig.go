// Package storeconfig opens an account store from configuration.
package storeconfig

import (
	"errors"

	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/storeregistry"
)

// Config names a registered backend and its option values.
type Config struct {
	Backend string            `mapstructure:"backend" yaml:"backend"`
	Options map[string]string `mapstructure:"options" yaml:"options,omitempty"`
}

// WithOverrides returns a copy of c whose options are overlaid by overrides,
// typically the flags set on the command line.
func (c Config) WithOverrides(overrides map[string]string) Config {
	out := Config{Backend: c.Backend, Options: make(map[string]string, len(c.Options)+len(overrides))}
	for k, v := range c.Options {
		out.Options[k] = v
	}
	for k, v := range overrides {
		out.Options[k] = v
	}
	return out
}

// Open opens the configured backend and wraps it in a Store. The returned
// close function releases the backend and any extra resources.
func (c Config) Open(usage storeregistry.Usage, opts ...storage.Option) (*storage.Store, func() error, error) {
	if c.Backend == "" {
		return nil, nil, errors.New("storeconfig: backend is required")
	}
	b, closeFn, err := storeregistry.OpenWithConfig(c.Backend, usage, c.Options)
	if err != nil {
		return nil, nil, err
	}
	store := storage.New(b, opts...)
	return store, func() error {
		err := store.Close()
		if closeFn != nil {
			if cerr := closeFn(); err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}
