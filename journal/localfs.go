package journal

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/mcpreg/cidutil"
)

const archiveSuffix = ".req"

// LocalFS archives requests in a directory:
// <root>/requests/<first digest byte, hex>/<cid>.req.
//
// A request file appears only once fully written (temp file, fsync, rename)
// and is read-only afterwards. Reads re-derive the CID, so a file edited on
// disk reads as ErrCIDMismatch.
type LocalFS struct {
	root string
}

// NewLocalFS opens the archive under root, creating it if needed.
func NewLocalFS(root string) (*LocalFS, error) {
	if root == "" {
		return nil, errors.New("journal: root directory is required")
	}
	if err := os.MkdirAll(filepath.Join(root, "requests"), 0o755); err != nil {
		return nil, err
	}
	return &LocalFS{root: root}, nil
}

func (c *LocalFS) Put(raw []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(raw)
	if err != nil {
		return cid.Undef, err
	}
	path := c.pathFor(id)
	if existing, err := os.ReadFile(path); err == nil {
		if !bytes.Equal(existing, raw) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	} else if !os.IsNotExist(err) {
		return cid.Undef, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cid.Undef, err
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return cid.Undef, err
	}
	cleanup := func(err error) (cid.Cid, error) {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return cid.Undef, err
	}
	if _, err := tmp.Write(raw); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0o444); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	// Concurrent puts of the same request rename identical bytes.
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return cid.Undef, err
	}
	return id, nil
}

func (c *LocalFS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	raw, err := os.ReadFile(c.pathFor(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA256CID(raw)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, ErrCIDMismatch
	}
	return raw, nil
}

func (c *LocalFS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *LocalFS) pathFor(id cid.Cid) string {
	shard := "xx"
	if mh, err := multihash.Decode(id.Hash()); err == nil && len(mh.Digest) > 0 {
		shard = hex.EncodeToString(mh.Digest[:1])
	}
	return filepath.Join(c.root, "requests", shard, id.String()+archiveSuffix)
}
