package journal

import (
	"errors"
	"fmt"
)

// Config selects the journal backends.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to every backend and require CID equality
type Config struct {
	WritePolicy string          `mapstructure:"write_policy" yaml:"write_policy,omitempty"`
	Backends    []BackendConfig `mapstructure:"backends" yaml:"backends"`
}

type BackendConfig struct {
	// Name is "memory", "localfs" or "ipfs".
	Name string `mapstructure:"name" yaml:"name"`
	// ID is an optional alias used in error messages. If empty, Name is used.
	ID  string `mapstructure:"id" yaml:"id,omitempty"`
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
	// Bin and RepoPath configure the ipfs backend.
	Bin      string `mapstructure:"bin" yaml:"bin,omitempty"`
	RepoPath string `mapstructure:"repo_path" yaml:"repo_path,omitempty"`
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("journal: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		switch b.Name {
		case "memory", "ipfs":
		case "localfs":
			if b.Dir == "" {
				return errors.New("journal: localfs backend requires dir")
			}
		default:
			return fmt.Errorf("journal: unknown backend %q", b.Name)
		}
		id := b.Name
		if b.ID != "" {
			id = b.ID
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("journal: duplicate backend id %q", id)
		}
		seen[id] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("journal: invalid write_policy %q", c.WritePolicy)
	}
}

// Open builds the CAS described by c.
func (c Config) Open() (CAS, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	named := make([]Named, 0, len(c.Backends))
	for _, b := range c.Backends {
		var cas CAS
		switch b.Name {
		case "memory":
			cas = NewMemory()
		case "localfs":
			fs, err := NewLocalFS(b.Dir)
			if err != nil {
				return nil, err
			}
			cas = fs
		case "ipfs":
			cas = NewKubo(KuboOptions{Bin: b.Bin, RepoPath: b.RepoPath})
		}
		name := b.Name
		if b.ID != "" {
			name = b.ID
		}
		named = append(named, Named{Name: name, CAS: cas})
	}
	if len(named) == 1 {
		return named[0].CAS, nil
	}
	if c.WritePolicy == "all" {
		return Replicating(named), nil
	}
	out := make(Fallback, 0, len(named))
	for _, n := range named {
		out = append(out, n.CAS)
	}
	return out, nil
}
