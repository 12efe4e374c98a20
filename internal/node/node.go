// Package node assembles a processor from configuration.
package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"xdao.co/mcpreg/config"
	"xdao.co/mcpreg/facade"
	"xdao.co/mcpreg/journal"
	"xdao.co/mcpreg/processor"
	"xdao.co/mcpreg/registry"
	"xdao.co/mcpreg/storage/storeregistry"
	"xdao.co/mcpreg/telemetry"
	"xdao.co/mcpreg/token"

	// Account store backends register themselves.
	_ "xdao.co/mcpreg/storage/localfs"
	_ "xdao.co/mcpreg/storage/memstore"
	_ "xdao.co/mcpreg/storage/redisstore"
	_ "xdao.co/mcpreg/storage/sqlstore"
)

// Node owns the resources behind a Processor.
type Node struct {
	Processor *processor.Processor

	closeStore func() error
}

// Open builds a processor from cfg and applies the genesis allocations if
// the store has not seen them. storeFlags overlay cfg.Store.Options.
func Open(ctx context.Context, cfg config.Config, usage storeregistry.Usage, storeFlags map[string]string, log *zap.Logger) (*Node, error) {
	if log == nil {
		log = zap.NewNop()
	}
	genesis, err := cfg.GenesisAllocations()
	if err != nil {
		return nil, err
	}
	regProgram, err := cfg.RegistryProgram()
	if err != nil {
		return nil, err
	}
	tokProgram, err := cfg.TokenProgram()
	if err != nil {
		return nil, err
	}
	cas, err := cfg.Journal.Open()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := cfg.Store.WithOverrides(storeFlags).Open(usage)
	if err != nil {
		return nil, err
	}
	ins, err := telemetry.Global()
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}

	reg := registry.New(store, regProgram)
	fac := facade.New(store, token.New(tokProgram), regProgram, facade.WithOpenMinting(cfg.Minting.Open))
	p := processor.New(store, reg, fac, journal.New(cas),
		processor.WithLogger(log),
		processor.WithTelemetry(ins),
		processor.WithFaucet(cfg.Faucet.Max),
	)
	if _, err := p.Genesis(ctx, genesis); err != nil {
		return nil, errors.Join(fmt.Errorf("genesis: %w", err), closeStore())
	}
	log.Info("node ready",
		zap.String("backend", cfg.Store.Backend),
		zap.Stringer("registry_program", regProgram),
		zap.Stringer("token_program", tokProgram),
		zap.Bool("open_minting", cfg.Minting.Open),
		zap.Uint64("faucet_max", cfg.Faucet.Max),
	)
	return &Node{Processor: p, closeStore: closeStore}, nil
}

func (n *Node) Close() error {
	if n == nil || n.closeStore == nil {
		return nil
	}
	return n.closeStore()
}
