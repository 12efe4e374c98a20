package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
)

const intentFile = "commit.intent"

// ErrUnsettled reports a commit whose intent is durable but whose account
// files could not all be replaced. The commit takes effect once the intent is
// replayed; until then the store refuses reads and further commits.
var ErrUnsettled = errors.New("localfs: commit not yet applied")

// Backend is a local filesystem-backed account store.
//
// Each account lives in its own file named by its base58 address. A commit
// first writes every new value to an intent file, then replaces the account
// files one by one, then removes the intent. If the process dies mid-commit
// the intent is replayed the next time the directory is opened. If replacing
// the files fails in a running process, the intent stays pending and is
// replayed before the next read or commit, so a commit is never observed
// half-applied.
//
// A directory must be opened by at most one process at a time.
type Backend struct {
	root string

	mu      sync.RWMutex
	pending bool
}

type intent struct {
	Writes map[string][]byte `json:"writes"`
}

// New opens a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	b := &Backend{root: root}
	if err := b.recover(); err != nil {
		return nil, fmt.Errorf("localfs: replay intent: %w", err)
	}
	return b, nil
}

func (b *Backend) Read(ctx context.Context, addr address.Address) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	if !b.pending {
		defer b.mu.RUnlock()
		return b.read(addr)
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.settle(); err != nil {
		return nil, false, err
	}
	return b.read(addr)
}

func (b *Backend) read(addr address.Address) ([]byte, bool, error) {
	data, err := os.ReadFile(b.pathFor(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (b *Backend) Commit(ctx context.Context, reads, writes map[address.Address][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.settle(); err != nil {
		return err
	}

	ok, err := storage.ReadsHold(reads, b.read)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrConflict
	}
	if len(writes) == 0 {
		return nil
	}

	in := intent{Writes: make(map[string][]byte, len(writes))}
	for addr, v := range writes {
		in.Writes[addr.String()] = v
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := writeFileSync(filepath.Join(b.root, intentFile), raw); err != nil {
		return err
	}
	// From here the commit is decided.
	b.pending = true
	if err := b.apply(in); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsettled, err)
	}
	b.pending = false
	return nil
}

// settle replays a pending intent. Callers hold mu for writing.
func (b *Backend) settle() error {
	if !b.pending {
		return nil
	}
	if err := b.recover(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsettled, err)
	}
	b.pending = false
	return nil
}

func (b *Backend) Close() error { return nil }

func (b *Backend) recover() error {
	raw, err := os.ReadFile(filepath.Join(b.root, intentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var in intent
	if err := json.Unmarshal(raw, &in); err != nil {
		// A torn intent was never acknowledged; no account file was touched.
		return os.Remove(filepath.Join(b.root, intentFile))
	}
	return b.apply(in)
}

func (b *Backend) apply(in intent) error {
	for s, v := range in.Writes {
		addr, err := address.Parse(s)
		if err != nil {
			return err
		}
		path := b.pathFor(addr)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := writeFileSync(path, v); err != nil {
			return err
		}
	}
	return os.Remove(filepath.Join(b.root, intentFile))
}

// writeFileSync replaces path atomically via a synced temp file and rename.
func writeFileSync(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (b *Backend) pathFor(addr address.Address) string {
	s := addr.String()
	return filepath.Join(b.root, "accounts", s[:2], s)
}
