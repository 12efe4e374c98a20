package journal

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/mcpreg/cidutil"
)

// BundleVersion is the current bundle index schema version.
const BundleVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// Export writes a deterministic TAR bundle holding the archived requests
// ids, followed by an index.json. Entry order is lexicographic and headers
// are normalized, so equal inputs give equal bytes. Every exported object is
// verified against its CID.
func Export(w io.Writer, cas CAS, ids []cid.Cid) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}
	uniq := make(map[cid.Cid]struct{}, len(ids))
	sorted := make([]cid.Cid, 0, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return ErrInvalidCID
		}
		if _, ok := uniq[id]; ok {
			continue
		}
		uniq[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sortCIDs(sorted)

	tw := tar.NewWriter(w)
	blocks := make([]indexBlock, 0, len(sorted))
	for _, id := range sorted {
		b, err := cas.Get(id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		got, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if got != id {
			_ = tw.Close()
			return ErrCIDMismatch
		}
		if err := writeEntry(tw, "requests/"+id.String(), b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, indexBlock{CID: id.String(), Size: len(b)})
	}

	idx, err := json.Marshal(indexJSON{
		Version:   BundleVersion,
		CIDCodec:  "raw",
		Multihash: "sha2-256",
		Requests:  blocks,
	})
	if err != nil {
		_ = tw.Close()
		return err
	}
	if err := writeEntry(tw, "index.json", append(idx, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

// Import reads a bundle from r into cas and returns the imported ids.
// Unknown entries are rejected, as are objects whose bytes do not match the
// CID in their entry name.
func Import(r io.Reader, cas CAS) ([]cid.Cid, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}
	tr := tar.NewReader(r)
	seen := map[cid.Cid]struct{}{}
	var out []cid.Cid
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return out, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			return out, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}
		if !strings.HasPrefix(name, "requests/") {
			return out, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "requests/"))
		if derr != nil || !id.Defined() {
			return out, ErrInvalidCID
		}
		payload, err := io.ReadAll(io.LimitReader(tr, h.Size))
		if err != nil {
			return out, err
		}
		got, err := cidutil.CIDv1RawSHA256CID(payload)
		if err != nil {
			return out, err
		}
		if got != id {
			return out, ErrCIDMismatch
		}
		if _, ok := seen[id]; ok {
			return out, fmt.Errorf("bundle: duplicate entry: %s", id)
		}
		seen[id] = struct{}{}

		putID, err := cas.Put(payload)
		if err != nil {
			return out, err
		}
		if putID != id {
			return out, ErrCIDMismatch
		}
		out = append(out, id)
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Requests  []indexBlock `json:"requests"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
