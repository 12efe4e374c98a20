package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"xdao.co/mcpreg/config"
	"xdao.co/mcpreg/internal/node"
	"xdao.co/mcpreg/keys"
	"xdao.co/mcpreg/rpc"
	"xdao.co/mcpreg/storage/storeregistry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

type cli struct {
	target     string
	local      bool
	configPath string
	keysDir    string
	storeFlags *storeregistry.Flags
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "mcpreg",
		Short:         "Model context registry and token ledger client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&c.target, "target", "127.0.0.1:7777", "mcpregd gRPC address")
	pf.BoolVar(&c.local, "local", false, "execute against a local store instead of --target")
	pf.StringVar(&c.configPath, "config", "", "config file for --local (YAML)")
	pf.StringVar(&c.keysDir, "keys-dir", "", "wallet directory (default ~/.xdao/mcpreg/keys)")
	c.storeFlags = storeregistry.RegisterFlags(pf, storeregistry.UsageCLI)

	cmd.AddCommand(
		c.newKeyCmd(),
		c.newRecordCmd(),
		c.newTokenCmd(),
		c.newFaucetCmd(),
		c.newTransferCmd(),
		c.newLamportsCmd(),
		c.newRequestCmd(),
	)
	return cmd
}

func (c *cli) wallet() (*keys.Wallet, error) {
	w, err := keys.OpenWallet(c.keysDir)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	return w, nil
}

func (c *cli) entryPath(name string) string {
	w, err := c.wallet()
	if err != nil {
		return name
	}
	return filepath.Join(w.Dir(), name+".key")
}

// service connects to mcpregd, or with --local opens the configured store
// in-process.
func (c *cli) service(cmd *cobra.Command) (rpc.Service, func() error, error) {
	if !c.local {
		client, err := rpc.Dial(c.target, rpc.DialOptions{})
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	cfg, err := config.Load(c.configPath, nil)
	if err != nil {
		return nil, nil, err
	}
	n, err := node.Open(cmd.Context(), cfg, storeregistry.UsageCLI, c.storeFlags.Changed(), nil)
	if err != nil {
		return nil, nil, err
	}
	return n.Processor, n.Close, nil
}

func (c *cli) withService(cmd *cobra.Command, fn func(rpc.Service) error) (err error) {
	svc, closeFn, err := c.service(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); err == nil {
			err = cerr
		}
	}()
	return fn(svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
