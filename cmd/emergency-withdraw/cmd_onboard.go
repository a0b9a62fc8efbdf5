package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/emergency-withdraw/pkg/config"
)

func newOnboardCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard(cmd, opts.configPath, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}

func onboard(cmd *cobra.Command, configPath string, force bool) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(out, "Config already exists at %s\n", configPath)
		fmt.Fprintln(out, "Run 'emergency-withdraw onboard --force' to overwrite it.")
		return nil
	}

	// Start from whatever the environment already provides, minus secrets.
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(out, "Warning: could not read environment: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if cfg.Wallet.Count == 0 {
		cfg.Wallet.Count = 10
	}

	if err := config.SaveConfig(configPath, cfg.Template()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(out, "%s Created config at %s\n", logo, configPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set chain.rpc and wallet.rescue_address in", configPath)
	fmt.Fprintln(out, "  2. Provide the seed phrase through the environment, never the file:")
	fmt.Fprintln(out, "       export PHRASE_MNEMONIC=\"word1 word2 ...\"")
	fmt.Fprintln(out, "     or put it in a .env file in the working directory.")
	fmt.Fprintln(out, "  3. Inspect the wallets: emergency-withdraw list")
	fmt.Fprintln(out, "  4. Sweep interactively: emergency-withdraw")
	return nil
}
