package journal

import (
	"archive/tar"
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
)

func TestBundle_ExportIsDeterministic(t *testing.T) {
	cas, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id1, err := cas.Put([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := cas.Put([]byte("world"))
	if err != nil {
		t.Fatal(err)
	}

	var outA, outB bytes.Buffer
	if err := Export(&outA, cas, []cid.Cid{id2, id1, id2}); err != nil {
		t.Fatal(err)
	}
	if err := Export(&outB, cas, []cid.Cid{id1, id2}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	src := NewMemory()
	id, err := src.Put([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Export(&buf, src, []cid.Cid{id}); err != nil {
		t.Fatal(err)
	}

	dst, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ids, err := Import(bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected imported ids: %v", ids)
	}
	got, err := dst.Get(id)
	if err != nil || string(got) != "payload" {
		t.Fatalf("Get: %q %v", got, err)
	}
}

func TestBundle_ImportRejectsTamperedAndUnknown(t *testing.T) {
	id, err := NewMemory().Put([]byte("original"))
	if err != nil {
		t.Fatal(err)
	}

	tampered := tarOf(t, map[string][]byte{"requests/" + id.String(): []byte("forged")})
	if _, err := Import(bytes.NewReader(tampered), NewMemory()); !errors.Is(err, ErrCIDMismatch) {
		t.Fatalf("tampered entry: got %v want ErrCIDMismatch", err)
	}

	unknown := tarOf(t, map[string][]byte{"notes.txt": []byte("hi")})
	if _, err := Import(bytes.NewReader(unknown), NewMemory()); err == nil {
		t.Fatalf("expected unknown entry to be rejected")
	}

	escape := tarOf(t, map[string][]byte{"../requests/x": []byte("hi")})
	if _, err := Import(bytes.NewReader(escape), NewMemory()); err == nil {
		t.Fatalf("expected path traversal to be rejected")
	}
}

func TestList(t *testing.T) {
	mem := NewMemory()
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := mem.Put([]byte("a"))
	b, _ := fs.Put([]byte("b"))
	if _, err := fs.Put([]byte("a")); err != nil {
		t.Fatal(err)
	}

	ids, err := List(Fallback{mem, fs})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected union of 2 ids, got %v", ids)
	}
	want := []cid.Cid{a, b}
	sortCIDs(want)
	if ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("unexpected order: %v", ids)
	}

	if _, err := List(NewKubo(KuboOptions{})); !errors.Is(err, ErrNotListable) {
		t.Fatalf("kubo: got %v want ErrNotListable", err)
	}
}

func tarOf(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), ModTime: time.Unix(0, 0), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
