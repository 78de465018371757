package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"msigwallet/client/internal/session"
	"msigwallet/client/internal/store"
	"msigwallet/client/internal/units"
)

func short(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + ".." + hex[len(hex)-4:]
}

func flag(ok bool, label string) string {
	if ok {
		return label
	}
	return "-"
}

// Summary renders wallet-level state.
func Summary(w io.Writer, contract common.Address, st session.State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "contract\t%s\n", contract.Hex())
	fmt.Fprintf(tw, "account\t%s\towner=%t\n", st.Account.Hex(), st.IsOwner)
	if st.AccountBalance != nil {
		fmt.Fprintf(tw, "account balance\t%s ETH\n", units.FormatEther(st.AccountBalance))
	}
	if st.WalletBalance != nil {
		fmt.Fprintf(tw, "wallet balance\t%s ETH\n", units.FormatEther(st.WalletBalance))
	}
	owners := make([]string, len(st.Owners))
	for i, o := range st.Owners {
		owners[i] = short(o)
	}
	fmt.Fprintf(tw, "owners\t%s\trequired=%d\n", strings.Join(owners, " "), st.Required)
	if st.Threshold != nil {
		fmt.Fprintf(tw, "threshold\t%s ETH\n", units.FormatEther(st.Threshold))
	}
	if st.Paused {
		fmt.Fprintln(tw, "paused\tyes")
	}
	if !st.RefreshedAt.IsZero() {
		fmt.Fprintf(tw, "refreshed\t%s\n", st.RefreshedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// Transactions renders one row per evaluated transaction.
func Transactions(w io.Writer, views []session.TxView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "no transactions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTO\tVALUE (ETH)\tDATA\tAPPROVALS\tSTATUS\tDEADLINE\tMINE\tREADY")
	for _, v := range views {
		data := "-"
		if len(v.Data) > 0 {
			data = hexutil.Encode(v.Data)
			if len(data) > 12 {
				data = data[:12] + ".."
			}
		}
		ready := flag(v.Ready, "yes")
		if v.AutoApproved {
			ready = "auto"
		}
		countdown := v.Countdown()
		if countdown == "" {
			countdown = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			v.ID,
			short(v.To),
			units.FormatEther(v.Value),
			data,
			v.NumApprovals,
			v.Status,
			countdown,
			flag(v.ApprovedByAccount, "approved"),
			ready,
		)
	}
	return tw.Flush()
}

// Journal renders recorded write attempts, newest last.
func Journal(w io.Writer, receipts []store.Receipt) error {
	if len(receipts) == 0 {
		_, err := fmt.Fprintln(w, "no operations yet")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tOP\tTX\tRESULT\tHASH\tERROR")
	for _, r := range receipts {
		id := "-"
		if r.TxID != nil {
			id = fmt.Sprint(*r.TxID)
		}
		hash := r.TxHash
		if hash == "" {
			hash = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.At.Format(time.TimeOnly), r.Op, id, r.Result, hash, r.Error)
	}
	return tw.Flush()
}
