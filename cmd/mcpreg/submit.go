package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/keys"
	"xdao.co/mcpreg/request"
	"xdao.co/mcpreg/rpc"
)

type signerFlags struct {
	src keys.SignerSource
}

func (f *signerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.src.SeedHex, "seed-hex", "", "32-byte seed as 64 hex chars")
	cmd.Flags().StringVar(&f.src.Algorithm, "seed-alg", keys.AlgEd25519, "algorithm of --seed-hex (ed25519, dilithium3)")
	cmd.Flags().StringVar(&f.src.Name, "signer", "", "wallet key name")
	cmd.Flags().StringVar(&f.src.Role, "signer-role", "", "role key derived from --signer")
	cmd.Flags().StringVar(&f.src.KeyFile, "key-file", "", "JSON keypair file or wallet key file")
}

func (c *cli) loadSigner(f signerFlags) (keys.Signer, error) {
	w, err := c.wallet()
	if err != nil {
		return nil, err
	}
	s, err := w.Resolve(f.src)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return s, nil
}

// submitCmd builds a command that signs op with the fields returned by
// fields, given the signer's identity, and submits it. With --print the signed request is written to
// stdout instead.
func (c *cli) submitCmd(use, short string, op request.Op, bind func(*cobra.Command), fields func(self address.Address) (map[string]string, error)) *cobra.Command {
	var sf signerFlags
	var hashAlg string
	var printOnly bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.loadSigner(sf)
			if err != nil {
				return err
			}
			fv, err := fields(s.Address())
			if err != nil {
				return err
			}
			raw, err := request.Sign(s, op, fv, request.WithHashAlg(hashAlg))
			if err != nil {
				return err
			}
			if printOnly {
				_, err := cmd.OutOrStdout().Write(raw)
				return err
			}
			return c.withService(cmd, func(svc rpc.Service) error {
				receipt, err := svc.Submit(cmd.Context(), raw)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&hashAlg, "hash-alg", keys.HashSHA256, "digest algorithm (sha256, sha512, sha3-256)")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the signed request instead of submitting it")
	bind(cmd)
	return cmd
}

func (c *cli) newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "record", Short: "Registry records (model, dataset, analysis, context, inference)"}

	var kind, seed string
	initCmd := c.submitCmd("init", "Initialize a record owned by the signer", request.OpRecordInitialize,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&kind, "kind", "", "record kind")
			cmd.Flags().StringVar(&seed, "seed", "", "derivation seed (1..32 bytes)")
		},
		func(address.Address) (map[string]string, error) {
			return map[string]string{request.FieldKind: kind, request.FieldSeed: seed}, nil
		})

	var ukind, rec, payload string
	updateCmd := c.submitCmd("update", "Replace the payload of a record", request.OpRecordUpdate,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&ukind, "kind", "", "record kind")
			cmd.Flags().StringVar(&rec, "record", "", "record address")
			cmd.Flags().StringVar(&payload, "payload", "", "32-byte payload as 64 lowercase hex chars")
		},
		func(address.Address) (map[string]string, error) {
			return map[string]string{request.FieldKind: ukind, request.FieldRecord: rec, request.FieldPayload: payload}, nil
		})

	getCmd := &cobra.Command{
		Use:   "get <address>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.Parse(args[0])
			if err != nil {
				return err
			}
			return c.withService(cmd, func(svc rpc.Service) error {
				view, err := svc.Record(cmd.Context(), addr)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.AddCommand(initCmd, updateCmd, getCmd)
	return cmd
}

func (c *cli) newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Token mints, accounts and transfers"}

	var mseed string
	var supply uint64
	var decimals int
	initMint := c.submitCmd("init-mint", "Create a mint and mint the initial supply to the signer", request.OpInitializeMint,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&mseed, "seed", "", "mint seed (1..32 bytes)")
			cmd.Flags().Uint64Var(&supply, "supply", 0, "initial supply")
			cmd.Flags().IntVar(&decimals, "decimals", -1, "decimals (default 9)")
		},
		func(address.Address) (map[string]string, error) {
			f := map[string]string{request.FieldSeed: mseed, request.FieldAmount: strconv.FormatUint(supply, 10)}
			if decimals >= 0 {
				f[request.FieldDecimals] = strconv.Itoa(decimals)
			}
			return f, nil
		})

	var mint, to string
	var amount uint64
	mintCmd := c.submitCmd("mint", "Mint tokens to a holding account", request.OpMint,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&mint, "mint", "", "mint address")
			cmd.Flags().StringVar(&to, "to", "", "destination holding account")
			cmd.Flags().Uint64Var(&amount, "amount", 0, "amount")
		},
		func(address.Address) (map[string]string, error) {
			return map[string]string{request.FieldMint: mint, request.FieldTo: to, request.FieldAmount: strconv.FormatUint(amount, 10)}, nil
		})

	var omint, owner string
	openCmd := c.submitCmd("open", "Open a holding account for an owner", request.OpOpenAccount,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&omint, "mint", "", "mint address")
			cmd.Flags().StringVar(&owner, "owner", "", "account owner")
		},
		func(address.Address) (map[string]string, error) {
			return map[string]string{request.FieldMint: omint, request.FieldOwner: owner}, nil
		})

	var from, tto string
	var tamount uint64
	transferCmd := c.submitCmd("transfer", "Transfer tokens between holding accounts", request.OpTransfer,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&from, "from", "", "source holding account (owned by the signer)")
			cmd.Flags().StringVar(&tto, "to", "", "destination holding account")
			cmd.Flags().Uint64Var(&tamount, "amount", 0, "amount")
		},
		func(address.Address) (map[string]string, error) {
			return map[string]string{request.FieldFrom: from, request.FieldTo: tto, request.FieldAmount: strconv.FormatUint(tamount, 10)}, nil
		})

	balanceCmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show a holding account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.Parse(args[0])
			if err != nil {
				return err
			}
			return c.withService(cmd, func(svc rpc.Service) error {
				view, err := svc.Balance(cmd.Context(), addr)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.AddCommand(initMint, mintCmd, openCmd, transferCmd, balanceCmd)
	return cmd
}

func (c *cli) newFaucetCmd() *cobra.Command {
	var to string
	var amount uint64
	return c.submitCmd("faucet", "Request lamports from the development faucet", request.OpAirdrop,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&to, "to", "", "recipient (default: the signer)")
			cmd.Flags().Uint64Var(&amount, "amount", 1_000_000_000, "lamports")
		},
		func(self address.Address) (map[string]string, error) {
			if to == "" {
				to = self.String()
			}
			return map[string]string{request.FieldTo: to, request.FieldAmount: strconv.FormatUint(amount, 10)}, nil
		})
}

func (c *cli) newTransferCmd() *cobra.Command {
	var to string
	var amount uint64
	cmd := c.submitCmd("transfer", "Send lamports from the signer to another address", request.OpSystemTransfer,
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&to, "to", "", "recipient")
			cmd.Flags().Uint64Var(&amount, "amount", 0, "lamports")
			_ = cmd.MarkFlagRequired("to")
			_ = cmd.MarkFlagRequired("amount")
		},
		func(address.Address) (map[string]string, error) {
			return map[string]string{request.FieldTo: to, request.FieldAmount: strconv.FormatUint(amount, 10)}, nil
		})
	return cmd
}

func (c *cli) newLamportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lamports <address>",
		Short: "Show the native balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.Parse(args[0])
			if err != nil {
				return err
			}
			return c.withService(cmd, func(svc rpc.Service) error {
				n, err := svc.Lamports(cmd.Context(), addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func (c *cli) newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "request", Short: "Signed request envelopes"}
	getCmd := &cobra.Command{
		Use:   "get <receipt-id>",
		Short: "Print an accepted request by receipt id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(svc rpc.Service) error {
				raw, err := svc.Request(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			})
		},
	}
	verifyCmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a signed request and print its signer identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			req, err := request.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid request (%s): %w", request.RuleID(err), err)
			}
			id, err := req.Verify()
			if err != nil {
				return fmt.Errorf("invalid signature (%s): %w", request.RuleID(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s %s\n", req.Op, id)
			return nil
		},
	}
	submitCmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a signed request from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return c.withService(cmd, func(svc rpc.Service) error {
				receipt, err := svc.Submit(cmd.Context(), raw)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
	cmd.AddCommand(getCmd, verifyCmd, submitCmd)
	return cmd
}
