package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"xdao.co/mcpreg/config"
	"xdao.co/mcpreg/internal/node"
	"xdao.co/mcpreg/rpc"
	"xdao.co/mcpreg/storage/storeregistry"
	"xdao.co/mcpreg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	cmd := newRootCmd(ctx, nil)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

// newRootCmd builds the daemon command. ready, if set, receives the bound
// listen address once the server is accepting connections.
func newRootCmd(ctx context.Context, ready chan<- net.Addr) *cobra.Command {
	var configPath string
	var listBackends bool
	var storeFlags *storeregistry.Flags

	cmd := &cobra.Command{
		Use:           "mcpregd",
		Short:         "Serve the model context registry ledger over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listBackends {
				for _, b := range storeregistry.List(storeregistry.UsageDaemon) {
					if b.Description == "" {
						fmt.Fprintln(cmd.OutOrStdout(), b.Name)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", b.Name, b.Description)
				}
				return nil
			}
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return serve(ctx, cfg, storeFlags.Changed(), ready)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (YAML)")
	cmd.Flags().BoolVar(&listBackends, "list-backends", false, "list supported account store backends and exit")
	config.RegisterFlags(cmd.Flags())
	storeFlags = storeregistry.RegisterFlags(cmd.Flags(), storeregistry.UsageDaemon)
	cmd.AddCommand(newConfigCmd(), newJournalCmd())
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage the daemon configuration file"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func serve(ctx context.Context, cfg config.Config, storeFlags map[string]string, ready chan<- net.Addr) error {
	log, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	n, err := node.Open(ctx, cfg, storeregistry.UsageDaemon, storeFlags, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}

	opts := []rpc.ServerOption{rpc.WithServerLogger(log), rpc.WithMaxMsgBytes(cfg.MaxMsgBytes)}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, rpc.WithRateLimit(rpc.NewPeerLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
	}
	srv := rpc.NewGRPCServer(n.Processor, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", lis.Addr().String()), zap.String("backend", cfg.Store.Backend))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		srv.GracefulStop()
		return nil
	})
	if ready != nil {
		ready <- lis.Addr()
	}
	return g.Wait()
}
