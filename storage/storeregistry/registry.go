package storeregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"xdao.co/mcpreg/storage"
)

// Backend is a build-time plugin that can open a storage.Backend.
//
// Backends register themselves in init():
//
//	storeregistry.MustRegister(storeregistry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Options declares the configuration keys Open accepts. Each key doubles
	// as a command-line flag name.
	Options []Option

	// Open constructs the backend from option values keyed by Option.Name.
	// Missing keys take their declared default. It returns an optional close
	// function for resources beyond the backend itself.
	Open func(opts map[string]string) (storage.Backend, func() error, error)
}

type Option struct {
	Name    string
	Usage   string
	Default string
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("storeregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("storeregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("storeregistry: backend %q missing Usage", b.Name)
	}
	for _, o := range b.Options {
		if o.Name == "" || strings.ContainsAny(o.Name, " =") {
			return fmt.Errorf("storeregistry: backend %q has invalid option name %q", b.Name, o.Name)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("storeregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Flags holds option values bound by RegisterFlags.
type Flags struct {
	fs     *pflag.FlagSet
	values map[string]*string
}

// RegisterFlags adds one flag per declared option of every backend matching
// usage. Options shared by name across backends are registered once.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) *Flags {
	f := &Flags{fs: fs, values: map[string]*string{}}
	for _, b := range List(usage) {
		for _, o := range b.Options {
			if _, ok := f.values[o.Name]; ok {
				continue
			}
			if fs.Lookup(o.Name) != nil {
				continue
			}
			f.values[o.Name] = fs.String(o.Name, o.Default, fmt.Sprintf("%s (backend %s)", o.Usage, b.Name))
		}
	}
	return f
}

// Changed returns the option values explicitly set on the command line.
func (f *Flags) Changed() map[string]string {
	out := map[string]string{}
	if f == nil {
		return out
	}
	for name, v := range f.values {
		if f.fs.Changed(name) {
			out[name] = *v
		}
	}
	return out
}

// Open opens the named backend with default option values.
func Open(name string, usage Usage) (storage.Backend, func() error, error) {
	return OpenWithConfig(name, usage, nil)
}

// OpenWithConfig opens the named backend if it exists and matches usage.
// Keys in opts that the backend does not declare are rejected.
func OpenWithConfig(name string, usage Usage, opts map[string]string) (storage.Backend, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}

	resolved := make(map[string]string, len(b.Options))
	declared := make(map[string]struct{}, len(b.Options))
	for _, o := range b.Options {
		declared[o.Name] = struct{}{}
		resolved[o.Name] = o.Default
	}
	for k, v := range opts {
		if _, ok := declared[k]; !ok {
			return nil, nil, fmt.Errorf("backend %q: unknown option %q", name, k)
		}
		resolved[k] = v
	}
	return b.Open(resolved)
}
