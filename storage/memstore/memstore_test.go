package memstore

import (
	"testing"

	"xdao.co/mcpreg/storage"
	"xdao.co/mcpreg/storage/storeregistry"
	"xdao.co/mcpreg/storage/testkit"
)

func TestMemstore_Conformance(t *testing.T) {
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		return New()
	})
}

func TestMemstore_Registered(t *testing.T) {
	b, closeFn, err := storeregistry.Open("memory", storeregistry.UsageDaemon)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("unexpected close func")
	}
	if _, ok := b.(*Backend); !ok {
		t.Fatalf("unexpected backend type %T", b)
	}
	if _, _, err := storeregistry.OpenWithConfig("memory", storeregistry.UsageCLI, map[string]string{"bogus": "1"}); err == nil {
		t.Fatalf("expected unknown option to be rejected")
	}
}
