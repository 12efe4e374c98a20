// Package config loads daemon and CLI settings from a YAML file, MCPREG_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/facade"
	"xdao.co/mcpreg/journal"
	"xdao.co/mcpreg/processor"
	"xdao.co/mcpreg/storage/storeconfig"
	"xdao.co/mcpreg/token"
)

const (
	EnvPrefix = "MCPREG"
	fileType  = "yaml"
)

type Config struct {
	Listen      string             `mapstructure:"listen" yaml:"listen"`
	MaxMsgBytes int                `mapstructure:"max_msg_bytes" yaml:"max_msg_bytes"`
	Store       storeconfig.Config `mapstructure:"store" yaml:"store"`
	Journal     journal.Config     `mapstructure:"journal" yaml:"journal"`
	Programs    Programs           `mapstructure:"programs" yaml:"programs"`
	Minting     Minting            `mapstructure:"minting" yaml:"minting"`
	Faucet      Faucet             `mapstructure:"faucet" yaml:"faucet"`
	Log         Log                `mapstructure:"log" yaml:"log"`
	RateLimit   RateLimit          `mapstructure:"ratelimit" yaml:"ratelimit"`
	Genesis     []Allocation       `mapstructure:"genesis" yaml:"genesis,omitempty"`
}

// Allocation grants lamports to a base58 address the first time a store is
// opened.
type Allocation struct {
	Address  string `mapstructure:"address" yaml:"address"`
	Lamports uint64 `mapstructure:"lamports" yaml:"lamports"`
}

// Programs are the base58 program ids records and token accounts are derived under.
type Programs struct {
	Registry string `mapstructure:"registry" yaml:"registry"`
	Token    string `mapstructure:"token" yaml:"token"`
}

type Minting struct {
	// Open lets any caller mint through a mint's proxy.
	Open bool `mapstructure:"open" yaml:"open"`
}

type Faucet struct {
	// Max lamports per airdrop; 0 disables the faucet.
	Max uint64 `mapstructure:"max" yaml:"max"`
}

type Log struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

type RateLimit struct {
	// RPS per peer; 0 disables limiting.
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// Default returns the built-in settings: an in-memory store and journal, no
// faucet, owner-only minting.
func Default() Config {
	return Config{
		Listen:      "127.0.0.1:7777",
		MaxMsgBytes: 1 << 20,
		Store:       storeconfig.Config{Backend: "memory"},
		Journal: journal.Config{
			WritePolicy: "first",
			Backends:    []journal.BackendConfig{{Name: "memory"}},
		},
		Programs: Programs{
			Registry: facade.DefaultProgramID.String(),
			Token:    token.DefaultProgramID.String(),
		},
		Log:       Log{Level: "info"},
		RateLimit: RateLimit{Burst: 20},
	}
}

// Flag names bound to config keys by Load.
var flagKeys = map[string]string{
	"listen":       "listen",
	"backend":      "store.backend",
	"log-level":    "log.level",
	"log-dev":      "log.development",
	"faucet-max":   "faucet.max",
	"open-minting": "minting.open",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("listen", d.Listen, "gRPC listen address")
	fs.String("backend", d.Store.Backend, "account store backend")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.Bool("log-dev", d.Log.Development, "human-readable console logs")
	fs.Uint64("faucet-max", d.Faucet.Max, "max lamports per airdrop (0 disables the faucet)")
	fs.Bool("open-minting", d.Minting.Open, "let any caller mint through a mint's proxy")
}

// Load reads path (optional), the environment and the flags in fs (optional).
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	if err := setDefaults(v, Default()); err != nil {
		return Config{}, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(fileType)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of d so that environment variables can
// override keys absent from the file.
func setDefaults(v *viper.Viper, d Config) error {
	b, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(b, &tree); err != nil {
		return err
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("config: listen is required")
	}
	if c.Store.Backend == "" {
		return errors.New("config: store.backend is required")
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	if _, err := c.RegistryProgram(); err != nil {
		return err
	}
	if _, err := c.TokenProgram(); err != nil {
		return err
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: ratelimit values must not be negative")
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	return nil
}

// GenesisAllocations parses Genesis. Entries must name distinct addresses
// and positive amounts whose total fits in a uint64.
func (c Config) GenesisAllocations() ([]processor.Allocation, error) {
	out := make([]processor.Allocation, 0, len(c.Genesis))
	seen := map[address.Address]bool{}
	var total uint64
	for i, g := range c.Genesis {
		a, err := address.Parse(g.Address)
		if err != nil {
			return nil, fmt.Errorf("config: genesis[%d].address: %w", i, err)
		}
		if seen[a] {
			return nil, fmt.Errorf("config: genesis[%d]: duplicate address %s", i, a)
		}
		seen[a] = true
		if g.Lamports == 0 {
			return nil, fmt.Errorf("config: genesis[%d].lamports must be positive", i)
		}
		if total > math.MaxUint64-g.Lamports {
			return nil, fmt.Errorf("config: genesis lamports overflow")
		}
		total += g.Lamports
		out = append(out, processor.Allocation{To: a, Lamports: g.Lamports})
	}
	return out, nil
}

func (c Config) RegistryProgram() (address.Address, error) {
	a, err := address.Parse(c.Programs.Registry)
	if err != nil {
		return address.Address{}, fmt.Errorf("config: programs.registry: %w", err)
	}
	return a, nil
}

func (c Config) TokenProgram() (address.Address, error) {
	a, err := address.Parse(c.Programs.Token)
	if err != nil {
		return address.Address{}, fmt.Errorf("config: programs.token: %w", err)
	}
	return a, nil
}

// Render returns c as a YAML document.
func Render(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	b, err := Render(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
