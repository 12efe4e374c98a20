package journal

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/mcpreg/cidutil"
)

// Kubo archives requests as raw blocks in a local IPFS repository through
// the Kubo "ipfs" CLI. It works offline on the repo and needs no daemon.
// Blocks are stored as CIDv1 raw sha2-256, so ids match every other backend.
type Kubo struct {
	bin string
	env []string
}

type KuboOptions struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// RepoPath sets IPFS_PATH for the command. If empty, the process
	// environment decides.
	RepoPath string
}

func NewKubo(opts KuboOptions) *Kubo {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	k := &Kubo{bin: bin}
	if opts.RepoPath != "" {
		k.env = append(os.Environ(), "IPFS_PATH="+opts.RepoPath)
	}
	return k
}

func (k *Kubo) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	out, err := k.run(data,
		"block", "put",
		"--quiet",
		"--cid-codec=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if got != id {
		return cid.Undef, ErrCIDMismatch
	}
	return id, nil
}

func (k *Kubo) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	out, err := k.run(nil, "block", "get", "--offline", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA256CID(out)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, ErrCIDMismatch
	}
	return out, nil
}

func (k *Kubo) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := k.run(nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (k *Kubo) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(k.bin, args...)
	if k.env != nil {
		cmd.Env = k.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found")
}
