package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/contract"
	"msigwallet/client/internal/errs"
)

func withStorage(ctx context.Context, g *globalFlags, fn func(context.Context, *env, *contract.Storage) error) error {
	e, err := openEnv(ctx, g, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()
	if _, err := e.gateway.RequestAccounts(ctx); err != nil {
		return err
	}
	st, err := e.storage()
	if err != nil {
		return err
	}
	return fn(ctx, e, st)
}

func printAge(ctx context.Context, e *env, st *contract.Storage) error {
	readCtx, cancel := context.WithTimeout(ctx, readTimeout(e.cfg))
	defer cancel()
	age, err := st.CurrentAge(readCtx)
	if err != nil {
		return err
	}
	fmt.Printf("age: %s\n", age)
	return nil
}

func parseAge(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errs.Validation(field, "%q is not an integer", s)
	}
	return v, nil
}

func newAgeCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "age",
		Short: "Read and change the age storage contract",
	}
	write := func(field, op string, send func(*contract.Storage, context.Context, common.Address, *big.Int) (*chain.Receipt, error)) *cobra.Command {
		return &cobra.Command{
			Use:   op + " <n>",
			Short: op + " the stored age",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := parseAge(field, args[0])
				if err != nil {
					return err
				}
				return withStorage(cmd.Context(), g, func(ctx context.Context, e *env, st *contract.Storage) error {
					r, err := send(st, ctx, activeAccount(e), n)
					if err != nil {
						return err
					}
					printReceipt(cmd.OutOrStdout(), op, r)
					return printAge(ctx, e, st)
				})
			},
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the stored age",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStorage(cmd.Context(), g, printAge)
			},
		},
		write("age", "set", (*contract.Storage).SetAge),
		write("multiplier", "multiply", (*contract.Storage).MultiplyAge),
	)
	return cmd
}

func activeAccount(e *env) (addr common.Address) {
	if accounts := e.gateway.Accounts(); len(accounts) > 0 {
		addr = accounts[0]
	}
	return addr
}
