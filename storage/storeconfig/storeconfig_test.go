package storeconfig

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
	_ "xdao.co/mcpreg/storage/localfs"
	_ "xdao.co/mcpreg/storage/memstore"
	"xdao.co/mcpreg/storage/storeregistry"
)

func TestOpenLocalFSFromConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "accounts")
	cfg := Config{Backend: "localfs"}.WithOverrides(map[string]string{"localfs-dir": dir})

	store, closeFn, err := cfg.Open(storeregistry.UsageDaemon)
	require.NoError(t, err)
	var who address.Address
	who[0] = 7
	require.NoError(t, store.Atomic(context.Background(), func(tx storage.Tx) error {
		return tx.Credit(who, 5)
	}))
	require.NoError(t, closeFn())

	store, closeFn, err = cfg.Open(storeregistry.UsageDaemon)
	require.NoError(t, err)
	defer closeFn()
	acct, err := store.View(context.Background(), who)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), acct.Lamports)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, _, err := Config{}.Open(storeregistry.UsageCLI)
	assert.Error(t, err)

	_, _, err = Config{Backend: "memory", Options: map[string]string{"localfs-dir": "/tmp"}}.Open(storeregistry.UsageCLI)
	assert.Error(t, err, "options of another backend")

	_, _, err = Config{Backend: "tape"}.Open(storeregistry.UsageCLI)
	assert.Error(t, err)
}

func TestWithOverridesDoesNotMutate(t *testing.T) {
	base := Config{Backend: "sqlite", Options: map[string]string{"sqlite-path": "a.db"}}
	got := base.WithOverrides(map[string]string{"sqlite-path": "b.db"})
	assert.Equal(t, "b.db", got.Options["sqlite-path"])
	assert.Equal(t, "a.db", base.Options["sqlite-path"])
}
