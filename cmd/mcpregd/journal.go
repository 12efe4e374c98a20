package main

import (
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/mcpreg/config"
	"xdao.co/mcpreg/journal"
)

func newJournalCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{Use: "journal", Short: "Back up and restore the accepted-request journal"}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML)")

	open := func() (journal.CAS, error) {
		cfg, err := config.Load(configPath, nil)
		if err != nil {
			return nil, err
		}
		return cfg.Journal.Open()
	}

	var out string
	exportCmd := &cobra.Command{
		Use:   "export [receipt-id ...]",
		Short: "Write accepted requests to a TAR bundle (all of them when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, err := open()
			if err != nil {
				return err
			}
			var ids []cid.Cid
			if len(args) == 0 {
				if ids, err = journal.List(cas); err != nil {
					return err
				}
			}
			for _, a := range args {
				id, err := cid.Decode(a)
				if err != nil {
					return fmt.Errorf("invalid receipt id %q: %w", a, err)
				}
				ids = append(ids, id)
			}
			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return err
			}
			if err := journal.Export(f, cas, ids); err != nil {
				_ = f.Close()
				_ = os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d requests to %s\n", len(ids), out)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&out, "out", "", "bundle path (must not exist)")
	_ = exportCmd.MarkFlagRequired("out")

	importCmd := &cobra.Command{
		Use:   "import <bundle>",
		Short: "Restore accepted requests from a TAR bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, err := open()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			ids, err := journal.Import(f, cas)
			if err != nil {
				return fmt.Errorf("import after %d requests: %w", len(ids), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d requests\n", len(ids))
			return nil
		},
	}
	cmd.AddCommand(exportCmd, importCmd)
	return cmd
}
