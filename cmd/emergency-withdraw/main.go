// Emergency Withdraw - sweep every wallet of a compromised seed to safety
// License: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/wallet"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion = runtime.Version()
)

const logo = "⛑"

type rootOptions struct {
	configPath       string
	promptPassphrase bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, config.ErrConfiguration) || errors.Is(err, wallet.ErrDerivation) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "emergency-withdraw",
		Short: "Sweep every wallet derived from a seed phrase to a rescue address",
		Long: `emergency-withdraw derives the wallets of a (possibly leaked) seed phrase,
lets you pick the ones to evacuate and sends each selected wallet's whole
balance, minus the network fee, to a single rescue address.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), opts)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "config file (.json or .yaml)")
	root.PersistentFlags().BoolVar(&opts.promptPassphrase, "prompt-passphrase", false, "read the optional seed passphrase from the terminal")

	root.AddCommand(
		newRunCommand(opts),
		newListCommand(opts),
		newSweepCommand(opts),
		newHistoryCommand(opts),
		newOnboardCommand(opts),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the interactive wallet selector (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), opts)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s emergency-withdraw %s\n", logo, version)
			if gitCommit != "" {
				fmt.Fprintf(out, "  commit: %s\n", gitCommit)
			}
			if buildTime != "" {
				fmt.Fprintf(out, "  built:  %s\n", buildTime)
			}
			fmt.Fprintf(out, "  go:     %s\n", goVersion)
		},
	}
}

// getConfigPath prefers $EMERGENCY_WITHDRAW_CONFIG, then
// ~/.emergency-withdraw/config.json.
func getConfigPath() string {
	if p := os.Getenv("EMERGENCY_WITHDRAW_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".emergency-withdraw", "config.json")
}
