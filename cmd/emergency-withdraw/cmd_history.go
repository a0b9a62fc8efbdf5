package main

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/journal"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded sweep runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// No seed needed: only the journal location is read.
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}

			j, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				entries, err := j.Outcomes(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return fmt.Errorf("no run %q in %s", runID, cfg.JournalPath())
				}
				printEntries(out, entries, cfg.Chain)
				return nil
			}

			runs, err := j.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No sweeps recorded yet.")
				return nil
			}
			printRuns(out, runs, cfg.Chain)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show, newest first")
	cmd.Flags().StringVar(&runID, "run", "", "show the outcomes of one run")
	return cmd
}

func printRuns(out io.Writer, runs []journal.Run, chain config.EVMChain) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSENT\tSKIPPED\tFAILED\tTOTAL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s %s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime),
			r.Sent, r.Skipped, r.Failed,
			blockchain.FormatEther(r.TotalSent), currencyOf(chain))
	}
	tw.Flush()
}

func printEntries(out io.Writer, entries []journal.Entry, chain config.EVMChain) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS\tSTATUS\tSENT\tDETAILS")
	for _, e := range entries {
		sent := ""
		if amount, ok := new(big.Int).SetString(e.Amount, 10); ok && e.Status == "sent" {
			sent = blockchain.FormatEther(amount) + " " + currencyOf(chain)
		}
		details := e.TxHash
		if e.Reason != "" {
			details = e.Reason
			if e.Error != "" {
				details += " " + e.Error
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Index, e.Address.Hex(), e.Status, sent, details)
	}
	tw.Flush()
}
