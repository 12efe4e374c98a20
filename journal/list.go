package journal

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
)

// Lister is implemented by backends that can enumerate their objects.
type Lister interface {
	List() ([]cid.Cid, error)
}

// ErrNotListable is returned by List when no backend can enumerate objects.
var ErrNotListable = errors.New("journal: backend cannot list objects")

// List returns every object id held by cas, sorted by string form.
func List(cas CAS) ([]cid.Cid, error) {
	switch c := cas.(type) {
	case Lister:
		return c.List()
	case Fallback:
		return listUnion([]CAS(c))
	case Replicating:
		cs := make([]CAS, 0, len(c))
		for _, n := range c {
			cs = append(cs, n.CAS)
		}
		return listUnion(cs)
	default:
		return nil, ErrNotListable
	}
}

func listUnion(cs []CAS) ([]cid.Cid, error) {
	seen := map[cid.Cid]struct{}{}
	listed := false
	for _, c := range cs {
		ids, err := List(c)
		if errors.Is(err, ErrNotListable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		listed = true
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	if !listed {
		return nil, ErrNotListable
	}
	out := make([]cid.Cid, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sortCIDs(out)
	return out, nil
}

func (m *Memory) List() ([]cid.Cid, error) {
	m.mu.RLock()
	out := make([]cid.Cid, 0, len(m.objects))
	for id := range m.objects {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sortCIDs(out)
	return out, nil
}

func (c *LocalFS) List() ([]cid.Cid, error) {
	var out []cid.Cid
	err := filepath.WalkDir(filepath.Join(c.root, "requests"), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name, ok := strings.CutSuffix(d.Name(), archiveSuffix)
		if d.IsDir() || !ok {
			return nil
		}
		id, derr := cid.Decode(name)
		if derr != nil || c.pathFor(id) != path {
			return nil
		}
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortCIDs(out)
	return out, nil
}

func sortCIDs(ids []cid.Cid) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
