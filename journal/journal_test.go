package journal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/mcpreg/cidutil"
)

func runCASConformance(t *testing.T, newCAS func(t *testing.T) CAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("signed request bytes")

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}
		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")
		id1, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := cas.Get(id); !IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if _, err := cas.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}

func TestMemory_Conformance(t *testing.T) {
	runCASConformance(t, func(t *testing.T) CAS { return NewMemory() })
}

func TestLocalFS_Conformance(t *testing.T) {
	runCASConformance(t, func(t *testing.T) CAS {
		t.Helper()
		c, err := NewLocalFS(t.TempDir())
		if err != nil {
			t.Fatalf("NewLocalFS failed: %v", err)
		}
		return c
	})
}

func TestLocalFS_DetectsTampering(t *testing.T) {
	c, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	orig := []byte("original")
	id, err := c.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	path := c.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := c.Get(id); err != ErrCIDMismatch {
		t.Fatalf("Get: got %v want %v", err, ErrCIDMismatch)
	}
	if _, err := c.Put(orig); err != ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, ErrImmutable)
	}
}

func TestLocalFS_ArchiveLayout(t *testing.T) {
	root := t.TempDir()
	c, err := NewLocalFS(root)
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	id, err := c.Put([]byte("archived request"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := c.Put([]byte("archived request")); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	path := c.pathFor(id)
	if filepath.Dir(filepath.Dir(path)) != filepath.Join(root, "requests") || filepath.Base(path) != id.String()+archiveSuffix {
		t.Fatalf("unexpected archive path %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o444 {
		t.Fatalf("archive file mode: %v", info.Mode().Perm())
	}
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".put-*"))
	if err != nil || len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v %v", leftovers, err)
	}
	ids, err := c.List()
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Fatalf("List: %v %v", ids, err)
	}
}

func TestReplicating_Conformance(t *testing.T) {
	runCASConformance(t, func(t *testing.T) CAS {
		return Replicating{{Name: "a", CAS: NewMemory()}, {Name: "b", CAS: NewMemory()}}
	})
}

func TestFallback_ReadsSecondary(t *testing.T) {
	primary, secondary := NewMemory(), NewMemory()
	id, err := secondary.Put([]byte("old entry"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	f := Fallback{primary, secondary}
	if !f.Has(id) {
		t.Fatalf("Has should consult secondary")
	}
	if _, err := f.Get(id); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := f.Put([]byte("new entry")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	newID, _ := cidutil.CIDv1RawSHA256CID([]byte("new entry"))
	if secondary.Has(newID) {
		t.Fatalf("Fallback must write only to the first backend")
	}
}

func TestConfigOpen(t *testing.T) {
	cfg := Config{WritePolicy: "all", Backends: []BackendConfig{
		{Name: "memory"},
		{Name: "localfs", Dir: t.TempDir()},
	}}
	cas, err := cfg.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := cas.(Replicating); !ok {
		t.Fatalf("expected Replicating, got %T", cas)
	}

	bad := []Config{
		{},
		{Backends: []BackendConfig{{Name: "s3"}}},
		{Backends: []BackendConfig{{Name: "localfs"}}},
		{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}},
		{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestJournalRejectsReplay(t *testing.T) {
	j := New(NewMemory())
	raw := []byte("request")

	id, err := j.Begin(raw)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := j.Begin(raw); !errors.Is(err, ErrInFlight) {
		t.Fatalf("concurrent Begin: got %v want ErrInFlight", err)
	}
	if err := j.Commit(id, raw); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := j.Begin(raw); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("replay: got %v want ErrDuplicate", err)
	}
	got, err := j.Lookup(id.String())
	if err != nil || string(got) != "request" {
		t.Fatalf("Lookup: %q %v", got, err)
	}
}

func TestJournalAbortAllowsRetry(t *testing.T) {
	j := New(NewMemory())
	raw := []byte("request")
	id, err := j.Begin(raw)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	j.Abort(id)
	if _, err := j.Begin(raw); err != nil {
		t.Fatalf("Begin after Abort: %v", err)
	}
}
