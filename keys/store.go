package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/mcpreg/address"
)

const entrySuffix = ".key"

var ErrNoSigner = errors.New("keys: no signer provided")

// Wallet is a directory of named signing keys.
//
// Each entry is <dir>/<name>.key, a JSON document holding the algorithm and
// the 32-byte seed the key expands from, written once with 0600 permissions.
// A role entry records the entry it was derived from; its seed is
// DeriveRoleSeed(parent seed, role), so it can always be re-created.
type Wallet struct {
	dir string
}

// Entry describes a stored key without its secret.
type Entry struct {
	Name      string          `json:"name"`
	Algorithm string          `json:"algorithm"`
	Parent    string          `json:"parent,omitempty"`
	Role      string          `json:"role,omitempty"`
	Address   address.Address `json:"address"`
	SignerKey string          `json:"signer_key"`
}

type entryFile struct {
	Algorithm string `json:"algorithm"`
	Seed      string `json:"seed"`
	Parent    string `json:"parent,omitempty"`
	Role      string `json:"role,omitempty"`
}

// DefaultWalletDir is ~/.xdao/mcpreg/keys.
func DefaultWalletDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "mcpreg", "keys"), nil
}

// OpenWallet returns the wallet at dir, or at DefaultWalletDir if dir is empty.
// The directory is created on first write.
func OpenWallet(dir string) (*Wallet, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultWalletDir(); err != nil {
			return nil, err
		}
	}
	return &Wallet{dir: dir}, nil
}

func (w *Wallet) Dir() string { return w.dir }

func checkName(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", c, kind)
	}
	return nil
}

func CheckKeyName(name string) error { return checkName("key name", name) }

func CheckRole(role string) error { return checkName("role", role) }

// RoleEntryName is the entry name Derive uses for role of parent.
func RoleEntryName(parent, role string) string { return parent + "-" + role }

// ParseSeedHex decodes a 32-byte seed, with or without a 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func (w *Wallet) path(name string) string {
	return filepath.Join(w.dir, name+entrySuffix)
}

// Create stores a new key. A nil seed draws one from crypto/rand.
func (w *Wallet) Create(name, alg string, seed []byte, overwrite bool) (Entry, error) {
	if err := CheckKeyName(name); err != nil {
		return Entry{}, err
	}
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := io.ReadFull(rand.Reader, seed); err != nil {
			return Entry{}, err
		}
	}
	return w.write(name, entryFile{Algorithm: alg, Seed: hex.EncodeToString(seed)}, overwrite)
}

// Derive stores the role key of parent under RoleEntryName(parent, role).
// The role key uses the parent's algorithm.
func (w *Wallet) Derive(parent, role string, overwrite bool) (Entry, error) {
	if err := CheckRole(role); err != nil {
		return Entry{}, err
	}
	pf, err := w.load(parent)
	if err != nil {
		return Entry{}, err
	}
	rootSeed, err := ParseSeedHex(pf.Seed)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", parent, err)
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return Entry{}, err
	}
	ef := entryFile{Algorithm: pf.Algorithm, Seed: hex.EncodeToString(roleSeed), Parent: parent, Role: role}
	return w.write(RoleEntryName(parent, role), ef, overwrite)
}

// ImportKeypair stores the ed25519 key of a JSON keypair file under name.
func (w *Wallet) ImportKeypair(name, path string, overwrite bool) (Entry, error) {
	seed, err := LoadKeypairFile(path)
	if err != nil {
		return Entry{}, err
	}
	return w.Create(name, AlgEd25519, seed, overwrite)
}

func (w *Wallet) write(name string, ef entryFile, overwrite bool) (Entry, error) {
	e, err := ef.entry(name)
	if err != nil {
		return Entry{}, err
	}
	data, err := json.MarshalIndent(ef, "", "  ")
	if err != nil {
		return Entry{}, err
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return Entry{}, err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(w.path(name), flags, 0o600)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return Entry{}, err
	}
	return e, f.Close()
}

func (w *Wallet) load(name string) (entryFile, error) {
	if err := CheckKeyName(name); err != nil {
		return entryFile{}, err
	}
	return readEntryFile(w.path(name))
}

func readEntryFile(path string) (entryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entryFile{}, err
	}
	var ef entryFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return entryFile{}, fmt.Errorf("key file %s: %w", path, err)
	}
	return ef, nil
}

func (ef entryFile) signer() (Signer, error) {
	seed, err := ParseSeedHex(ef.Seed)
	if err != nil {
		return nil, err
	}
	return NewSignerFromSeed(ef.Algorithm, seed)
}

func (ef entryFile) entry(name string) (Entry, error) {
	s, err := ef.signer()
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", name, err)
	}
	return Entry{
		Name:      name,
		Algorithm: ef.Algorithm,
		Parent:    ef.Parent,
		Role:      ef.Role,
		Address:   s.Address(),
		SignerKey: SignerKey(s),
	}, nil
}

// Get describes the entry name.
func (w *Wallet) Get(name string) (Entry, error) {
	ef, err := w.load(name)
	if err != nil {
		return Entry{}, err
	}
	return ef.entry(name)
}

// Signer loads the signer of entry name.
func (w *Wallet) Signer(name string) (Signer, error) {
	ef, err := w.load(name)
	if err != nil {
		return nil, err
	}
	return ef.signer()
}

// Seed returns the algorithm and seed of entry name.
func (w *Wallet) Seed(name string) (string, []byte, error) {
	ef, err := w.load(name)
	if err != nil {
		return "", nil, err
	}
	seed, err := ParseSeedHex(ef.Seed)
	return ef.Algorithm, seed, err
}

// List describes every entry, sorted by name.
func (w *Wallet) List() ([]Entry, error) {
	des, err := os.ReadDir(w.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, de := range des {
		name, ok := strings.CutSuffix(de.Name(), entrySuffix)
		if !ok || de.IsDir() || CheckKeyName(name) != nil {
			continue
		}
		e, err := w.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SignerSource names where a signer comes from. Exactly one of SeedHex,
// KeyFile and Name is used, in that order of preference.
type SignerSource struct {
	// SeedHex is a raw seed for Algorithm (default ed25519).
	SeedHex   string
	Algorithm string
	// KeyFile is a JSON keypair array or a wallet entry file.
	KeyFile string
	// Name and Role select a wallet entry, Role naming a derived entry.
	Name string
	Role string
}

// Resolve loads the signer src names.
func (w *Wallet) Resolve(src SignerSource) (Signer, error) {
	switch {
	case src.SeedHex != "":
		seed, err := ParseSeedHex(src.SeedHex)
		if err != nil {
			return nil, err
		}
		alg := src.Algorithm
		if alg == "" {
			alg = AlgEd25519
		}
		return NewSignerFromSeed(alg, seed)
	case src.KeyFile != "":
		return LoadSignerFile(src.KeyFile)
	case src.Name != "":
		name := src.Name
		if src.Role != "" {
			if err := CheckRole(src.Role); err != nil {
				return nil, err
			}
			name = RoleEntryName(src.Name, src.Role)
		}
		return w.Signer(name)
	default:
		return nil, ErrNoSigner
	}
}

// LoadSignerFile reads a JSON keypair array or a wallet entry file.
func LoadSignerFile(path string) (Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		seed, err := LoadKeypairFile(path)
		if err != nil {
			return nil, err
		}
		return NewEd25519SignerFromSeed(seed)
	}
	ef, err := readEntryFile(path)
	if err != nil {
		return nil, err
	}
	return ef.signer()
}
