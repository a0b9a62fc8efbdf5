package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/wallet"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the derived wallets and their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.dir.RefreshBalances(cmd.Context(), s.client); err != nil {
				logger.WarnCF("wallet", "Some balances could not be fetched", map[string]any{
					"error": err.Error(),
				})
			}

			printWallets(cmd.OutOrStdout(), s.dir, cfg.Chain)
			return nil
		},
	}
}

func printWallets(out io.Writer, dir *wallet.Directory, chain config.EVMChain) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS\tBALANCE")
	for _, w := range dir.Wallets() {
		fmt.Fprintf(tw, "%d\t%s\t%s %s\n", w.Index(), w.Address().Hex(), blockchain.FormatEther(w.Balance()), currencyOf(chain))
	}
	fmt.Fprintf(tw, "\ttotal\t%s %s\n", blockchain.FormatEther(dir.TotalBalance(dir.Addresses())), currencyOf(chain))
	tw.Flush()
}

func currencyOf(chain config.EVMChain) string {
	if chain.Currency == "" {
		return "ETH"
	}
	return chain.Currency
}
