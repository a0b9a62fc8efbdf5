package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/selection"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
)

type sweepOptions struct {
	all     bool
	indexes []int
	yes     bool
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	so := &sweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep wallets without the interactive UI",
		Example: `  emergency-withdraw sweep --all --yes
  emergency-withdraw sweep --index 0,3 --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !so.all && len(so.indexes) == 0 {
				return fmt.Errorf("choose wallets with --all or --index")
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := selectWallets(s.state, so); err != nil {
				return err
			}
			if err := s.dir.RefreshBalances(cmd.Context(), s.client); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d wallet(s) selected holding %s %s, rescue address %s\n",
				s.state.SelectedCount(), blockchain.FormatEther(s.state.SelectedBalance()), currencyOf(cfg.Chain), s.rescue.Hex())

			report := confirmSweep(context.WithoutCancel(cmd.Context()), s.state, so.yes)
			if report == nil {
				fmt.Fprintln(out, "Nothing sent. Re-run with --yes to transfer.")
				return nil
			}

			printReport(out, report, cfg.Chain)
			if n := report.Count(sweep.StatusFailed); n > 0 {
				return fmt.Errorf("%d wallet(s) failed to sweep", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&so.all, "all", false, "select every derived wallet")
	cmd.Flags().IntSliceVar(&so.indexes, "index", nil, "derivation indexes to select, e.g. 0,2,5")
	cmd.Flags().BoolVarP(&so.yes, "yes", "y", false, "confirm the transfer")
	return cmd
}

// selectWallets drives the same transitions the interactive UI uses.
func selectWallets(state *selection.State, so *sweepOptions) error {
	if so.all {
		state.ToggleAll()
		return nil
	}
	dir := state.Directory()
	for _, i := range so.indexes {
		w := dir.At(i)
		if w == nil {
			return fmt.Errorf("wallet index %d out of range 0..%d", i, dir.Len()-1)
		}
		if !state.IsSelected(w.Address()) {
			state.Toggle(w.Address())
		}
	}
	return nil
}

// confirmSweep answers the confirmation gate with Yes only when yes is set.
func confirmSweep(ctx context.Context, state *selection.State, yes bool) *sweep.Report {
	state.EnterConfirm()
	if !yes {
		state.FlipChoice()
	}
	return state.Confirm(ctx)
}

func printReport(out io.Writer, r *sweep.Report, chain config.EVMChain) {
	fmt.Fprintf(out, "Run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS\tSTATUS\tSENT\tDETAILS")
	for _, o := range r.Sorted() {
		sent := ""
		if o.Status == sweep.StatusSent && o.Amount != nil {
			sent = blockchain.FormatEther(o.Amount) + " " + currencyOf(chain)
		}
		detail := o.Reason.String()
		if o.Submitted() {
			detail = o.TxHash.Hex()
		}
		if o.Err != nil {
			detail += " " + o.ErrorText()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.Index, o.Address.Hex(), o.Status, sent, detail)
	}
	tw.Flush()

	fmt.Fprintf(out, "Sent %d, skipped %d, failed %d, total %s %s\n",
		r.Count(sweep.StatusSent), r.Count(sweep.StatusSkipped), r.Count(sweep.StatusFailed),
		blockchain.FormatEther(r.TotalSent()), currencyOf(chain))
}
