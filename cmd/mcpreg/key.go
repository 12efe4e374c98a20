package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"xdao.co/mcpreg/keys"
)

func (c *cli) newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "Manage signing keys in the local wallet"}
	cmd.AddCommand(
		c.newKeyInitCmd(),
		c.newKeyDeriveCmd(),
		c.newKeyImportCmd(),
		c.newKeyListCmd(),
		c.newKeyExportCmd(),
		c.newKeyAddressCmd(),
		c.newKeyKeypairCmd(),
	)
	return cmd
}

func printEntry(w io.Writer, verb string, e keys.Entry, path string) {
	fmt.Fprintf(w, "%s key %s: %s\n", verb, e.Name, e.SignerKey)
	fmt.Fprintf(w, "Address: %s\n", e.Address)
	fmt.Fprintf(w, "Stored at: %s\n", path)
}

func (c *cli) newKeyInitCmd() *cobra.Command {
	var name, seedHex, alg string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := c.wallet()
			if err != nil {
				return err
			}
			var seed []byte
			if seedHex != "" {
				if seed, err = keys.ParseSeedHex(seedHex); err != nil {
					return fmt.Errorf("invalid --seed-hex: %w", err)
				}
			}
			e, err := w.Create(name, alg, seed, force)
			if err != nil {
				return fmt.Errorf("create key: %w", err)
			}
			printEntry(cmd.OutOrStdout(), "Created", e, c.entryPath(name))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&alg, "alg", keys.AlgEd25519, "signature algorithm (ed25519, dilithium3)")
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "optional 32-byte seed as 64 hex chars (for reproducible demos)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) newKeyDeriveCmd() *cobra.Command {
	var from, role string
	var force bool
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a role key from a stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := c.wallet()
			if err != nil {
				return err
			}
			e, err := w.Derive(from, role, force)
			if err != nil {
				return fmt.Errorf("derive role key: %w", err)
			}
			printEntry(cmd.OutOrStdout(), "Derived", e, c.entryPath(e.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "parent key name")
	cmd.Flags().StringVar(&role, "role", "", "role identifier (e.g. minter, registrar)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (c *cli) newKeyImportCmd() *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "import <keypair.json>",
		Short: "Store the ed25519 key of a JSON keypair file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := c.wallet()
			if err != nil {
				return err
			}
			e, err := w.ImportKeypair(name, args[0], force)
			if err != nil {
				return fmt.Errorf("import keypair: %w", err)
			}
			printEntry(cmd.OutOrStdout(), "Imported", e, c.entryPath(name))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) newKeyListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := c.wallet()
			if err != nil {
				return err
			}
			entries, err := w.List()
			if err != nil {
				return fmt.Errorf("list keys: %w", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s\t%s\t%s", e.Name, e.Algorithm, e.Address)
				if e.Role != "" {
					line += fmt.Sprintf("\t(%s of %s)", e.Role, e.Parent)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func (c *cli) newKeyExportCmd() *cobra.Command {
	var sf signerFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the Signer-Key of a signer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.loadSigner(sf)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keys.SignerKey(s))
			return nil
		},
	}
	sf.register(cmd)
	return cmd
}

func (c *cli) newKeyAddressCmd() *cobra.Command {
	var sf signerFlags
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the base58 identity of a signer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.loadSigner(sf)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Address())
			return nil
		},
	}
	sf.register(cmd)
	return cmd
}

func (c *cli) newKeyKeypairCmd() *cobra.Command {
	var name, out string
	cmd := &cobra.Command{
		Use:   "keypair",
		Short: "Write a stored ed25519 key as a JSON keypair file (64-byte array)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := c.wallet()
			if err != nil {
				return err
			}
			alg, seed, err := w.Seed(name)
			if err != nil {
				return fmt.Errorf("load key: %w", err)
			}
			if alg != keys.AlgEd25519 {
				return fmt.Errorf("keypair files hold ed25519 keys; %s is %s", name, alg)
			}
			if err := keys.WriteKeypairFile(out, seed); err != nil {
				return fmt.Errorf("write keypair: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&out, "out", "", "output path")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
