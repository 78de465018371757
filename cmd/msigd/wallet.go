package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/contract"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/session"
	"msigwallet/client/internal/units"
	"msigwallet/client/internal/view"
)

func render(w io.Writer, wallet *contract.Multisig, s *session.Session, now time.Time) error {
	st, views := s.View(now)
	if err := view.Summary(w, wallet.Address(), st); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return view.Transactions(w, views)
}

func printReceipt(w io.Writer, op string, r *chain.Receipt) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "%s mined in block %d (%s, gas %d)\n", op, r.BlockNumber, r.TxHash.Hex(), r.GasUsed)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errs.Validation("id", "%q is not a transaction id", s)
	}
	return id, nil
}

func parseAmount(field, s string) (*big.Int, error) {
	wei, err := units.ParseEther(s)
	if err != nil {
		return nil, errs.Validation(field, "%v", err)
	}
	return wei, nil
}

// deadlineAfter turns a relative duration into a unix deadline; zero means none.
func deadlineAfter(now time.Time, d time.Duration) (int64, error) {
	if d < 0 {
		return 0, errs.Validation("deadline", "must not be negative")
	}
	if d == 0 {
		return 0, nil
	}
	return now.Add(d).Unix(), nil
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Load the wallet and print its transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), g, func(_ *env, wallet *contract.Multisig, s *session.Session) error {
				return render(os.Stdout, wallet, s, time.Now())
			})
		},
	}
}

func newSubmitCmd(g *globalFlags) *cobra.Command {
	var to, value, data string
	var deadline time.Duration
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Propose a transaction from the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wei, err := parseAmount("value", value)
			if err != nil {
				return err
			}
			at, err := deadlineAfter(time.Now(), deadline)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), g, func(_ *env, wallet *contract.Multisig, s *session.Session) error {
				r, err := s.Submit(cmd.Context(), session.SubmitInput{To: to, Value: wei, Data: data, Deadline: at})
				if err != nil {
					return err
				}
				printReceipt(os.Stdout, "submit", r)
				return render(os.Stdout, wallet, s, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&value, "value", "0", "amount in ether")
	cmd.Flags().StringVar(&data, "data", "", "0x-prefixed calldata")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "time until the transaction expires, e.g. 120s")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func voteFunc(s *session.Session, op string) func(context.Context, uint64) (*chain.Receipt, error) {
	switch op {
	case "approve":
		return s.Approve
	case "revoke":
		return s.Revoke
	case "execute":
		return s.Execute
	}
	return nil
}

func newVoteCmd(g *globalFlags, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), g, func(_ *env, wallet *contract.Multisig, s *session.Session) error {
				r, err := voteFunc(s, op)(cmd.Context(), id)
				if err != nil {
					return err
				}
				printReceipt(os.Stdout, op, r)
				return render(os.Stdout, wallet, s, time.Now())
			})
		},
	}
}

func newAdminCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Wallet administration",
	}
	write := func(op string, fn func(ctx context.Context, s *session.Session) (*chain.Receipt, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), g, func(_ *env, _ *contract.Multisig, s *session.Session) error {
				r, err := fn(cmd.Context(), s)
				if err != nil {
					return err
				}
				printReceipt(os.Stdout, op, r)
				return nil
			})
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "threshold <ether>",
			Short: "Set the auto-approval threshold",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				wei, err := parseAmount("threshold", args[0])
				if err != nil {
					return err
				}
				return write("updateThreshold", func(ctx context.Context, s *session.Session) (*chain.Receipt, error) {
					return s.UpdateThreshold(ctx, wei)
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "extend <id> <duration>",
			Short: "Move a transaction's deadline to now plus duration",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				d, err := time.ParseDuration(args[1])
				if err != nil {
					return errs.Validation("duration", "%v", err)
				}
				at, err := deadlineAfter(time.Now(), d)
				if err != nil {
					return err
				}
				if at == 0 {
					return errs.Validation("duration", "must be positive")
				}
				return write("extendDeadline", func(ctx context.Context, s *session.Session) (*chain.Receipt, error) {
					return s.ExtendDeadline(ctx, id, at)
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "cancel <id>",
			Short: "Cancel a pending transaction",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return write("cancelTransaction", func(ctx context.Context, s *session.Session) (*chain.Receipt, error) {
					return s.CancelTransaction(ctx, id)
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "pause",
			Short: "Pause the contract",
			Args:  cobra.NoArgs,
			RunE: write("pause", func(ctx context.Context, s *session.Session) (*chain.Receipt, error) {
				return s.Pause(ctx)
			}),
		},
		&cobra.Command{
			Use:   "unpause",
			Short: "Unpause the contract",
			Args:  cobra.NoArgs,
			RunE: write("unpause", func(ctx context.Context, s *session.Session) (*chain.Receipt, error) {
				return s.Unpause(ctx)
			}),
		},
	)
	return cmd
}
