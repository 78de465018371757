package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"msigwallet/client/internal/config"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/keys"
)

func newInitCmd(g *globalFlags) *cobra.Command {
	var rpc, multisig, storage, variant string
	var chainID int64
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file and a default signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			cfgPath, err := configPath(g)
			if err != nil {
				return err
			}
			cfg := config.Default(home)
			if rpc != "" {
				cfg.Chain.RPC = rpc
			}
			if chainID != 0 {
				cfg.Chain.ChainID = chainID
			}
			if multisig != "" {
				cfg.Contract.Multisig = multisig
			}
			if storage != "" {
				cfg.Contract.Storage = storage
			}
			if variant != "" {
				cfg.Contract.Variant = variant
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Signer.KeyStore, 0o700); err != nil {
				return err
			}
			key, created, err := keys.EnsureKey(keys.DefaultKeyPath(cfg.Signer.KeyStore), "default")
			if err != nil {
				return err
			}
			if err := config.Write(cfgPath, cfg); err != nil {
				return err
			}

			fmt.Printf("initialized %s\n", cfgPath)
			fmt.Printf("default address: %s\n", key.Address)
			if created {
				fmt.Printf("key stored in %s\n", filepath.Clean(cfg.Signer.KeyStore))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rpc, "rpc", "", "node RPC URL")
	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "expected chain id (0 accepts any)")
	cmd.Flags().StringVar(&multisig, "contract", "", "multisig wallet address")
	cmd.Flags().StringVar(&storage, "storage", "", "age storage contract address")
	cmd.Flags().StringVar(&variant, "variant", "", "contract variant: deadline, basic or admin")
	return cmd
}

func newKeysCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage local signing keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List keys, active first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(g)
				if err != nil {
					return err
				}
				ring, err := keys.OpenKeyring(cfg.Signer.KeyStore)
				if err != nil {
					return err
				}
				active := ring.Accounts()
				for _, key := range ring.Keys() {
					mark := " "
					if len(active) > 0 && key.Addr() == active[0] {
						mark = "*"
					}
					fmt.Printf("%s %-12s %s\n", mark, key.Name, key.Address)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <name>",
			Short: "Generate a new key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return storeKey(g, args[0], func() (keys.StoredKey, error) { return keys.Generate(args[0]) })
			},
		},
		&cobra.Command{
			Use:   "import <name> <hex>",
			Short: "Import a hex private key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return storeKey(g, args[0], func() (keys.StoredKey, error) { return keys.Import(args[0], args[1]) })
			},
		},
	)
	return cmd
}

func storeKey(g *globalFlags, name string, build func() (keys.StoredKey, error)) error {
	if err := keys.ValidateName(name); err != nil {
		return errs.Validation("name", "%v", err)
	}
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	path := keys.PathFor(cfg.Signer.KeyStore, name)
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("key %q already exists at %s", name, path)
	}
	key, err := build()
	if err != nil {
		return err
	}
	if err := keys.Save(path, key); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", key.Name, key.Address)
	return nil
}
