package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"msigwallet/client/internal/errs"
)

type globalFlags struct {
	configPath string
	account    string
	yes        bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g := &globalFlags{}
	root := newRootCmd(g)
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %v\n", cmd.Name(), errs.Kind(err), err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(g *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "msigd",
		Short:         "Multisig wallet client",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.msigd/config.yaml)")
	root.PersistentFlags().StringVar(&g.account, "account", "", "key name or address to act as")
	root.PersistentFlags().BoolVar(&g.yes, "yes", false, "sign without asking for confirmation")

	root.AddCommand(
		newInitCmd(g),
		newKeysCmd(g),
		newStatusCmd(g),
		newSubmitCmd(g),
		newVoteCmd(g, "approve", "Approve a transaction"),
		newVoteCmd(g, "revoke", "Revoke your approval of a transaction"),
		newVoteCmd(g, "execute", "Execute a transaction"),
		newAdminCmd(g),
		newAgeCmd(g),
		newWatchCmd(g),
	)
	return root
}
