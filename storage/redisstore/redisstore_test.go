package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/testkit"
)

// Requires a running Redis at MCPREG_REDIS_ADDR.
func TestRedis_Conformance(t *testing.T) {
	addr := os.Getenv("MCPREG_REDIS_ADDR")
	if addr == "" {
		t.Skip("MCPREG_REDIS_ADDR not set")
	}
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		t.Helper()
		b := New(Options{Addr: addr, Prefix: fmt.Sprintf("mcpreg-test:%d:", time.Now().UnixNano())})
		if err := b.Ping(context.Background()); err != nil {
			t.Skipf("redis not available: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}
