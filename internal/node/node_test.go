package node

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/mcpreg/config"
	"xdao.co/mcpreg/journal"
	"xdao.co/mcpreg/keys"
	"xdao.co/mcpreg/model"
	"xdao.co/mcpreg/request"
	"xdao.co/mcpreg/storage/storeconfig"
	"xdao.co/mcpreg/storage/storeregistry"
)

func TestNodePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store = storeconfig.Config{Backend: "sqlite", Options: map[string]string{"sqlite-path": filepath.Join(dir, "accounts.db")}}
	cfg.Journal = journal.Config{Backends: []journal.BackendConfig{{Name: "localfs", Dir: filepath.Join(dir, "journal")}}}
	cfg.Faucet.Max = 1_000_000_000

	s, err := keys.NewEd25519SignerFromSeed(bytes.Repeat([]byte{4}, ed25519.SeedSize))
	require.NoError(t, err)
	raw, err := request.Sign(s, request.OpAirdrop, map[string]string{
		request.FieldTo:     s.Address().String(),
		request.FieldAmount: "500",
	})
	require.NoError(t, err)

	n, err := Open(context.Background(), cfg, storeregistry.UsageCLI, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = n.Processor.Submit(context.Background(), raw)
	require.NoError(t, err)
	require.NoError(t, n.Close())

	n, err = Open(context.Background(), cfg, storeregistry.UsageCLI, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer n.Close()
	_, err = n.Processor.Submit(context.Background(), raw)
	assert.True(t, model.Is(err, model.ErrAlreadyExists), "replay after restart: got %v", err)
	lamports, err := n.Processor.Lamports(context.Background(), s.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), lamports)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "tape"
	_, err := Open(context.Background(), cfg, storeregistry.UsageCLI, nil, nil)
	assert.Error(t, err)
}

func TestGenesisAppliedOnce(t *testing.T) {
	dir := t.TempDir()
	s, err := keys.NewEd25519SignerFromSeed(bytes.Repeat([]byte{5}, ed25519.SeedSize))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Store = storeconfig.Config{Backend: "localfs", Options: map[string]string{"localfs-dir": filepath.Join(dir, "accounts")}}
	cfg.Genesis = []config.Allocation{{Address: s.Address().String(), Lamports: 5_000_000_000}}

	for i := 0; i < 2; i++ {
		n, err := Open(context.Background(), cfg, storeregistry.UsageCLI, nil, zaptest.NewLogger(t))
		require.NoError(t, err)
		lamports, err := n.Processor.Lamports(context.Background(), s.Address())
		require.NoError(t, err)
		assert.Equal(t, uint64(5_000_000_000), lamports, "open %d", i)
		require.NoError(t, n.Close())
	}

	n, err := Open(context.Background(), cfg, storeregistry.UsageCLI, nil, nil)
	require.NoError(t, err)
	defer n.Close()
	raw, err := request.Sign(s, request.OpRecordInitialize, map[string]string{
		request.FieldKind: "model",
		request.FieldSeed: "genesis-funded",
	})
	require.NoError(t, err)
	_, err = n.Processor.Submit(context.Background(), raw)
	assert.NoError(t, err, "a genesis-funded payer can allocate without a faucet")
}
