package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/journal"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/notify"
	"github.com/sipeed/emergency-withdraw/pkg/selection"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
	"github.com/sipeed/emergency-withdraw/pkg/wallet"
)

// session is everything a command needs once startup has succeeded.
type session struct {
	cfg      *config.Config
	rescue   common.Address
	client   *blockchain.Client
	dir      *wallet.Directory
	executor *sweep.Executor
	state    *selection.State
	journal  *journal.Journal
}

// loadConfig resolves and validates the configuration. Any failure here is
// fatal and wraps config.ErrConfiguration.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.promptPassphrase {
		pass, err := readPassphrase(os.Stdin, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("%w: read passphrase: %v", config.ErrConfiguration, err)
		}
		cfg.Wallet.Passphrase = pass
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.WarnCF("config", "Unknown log level, using info", map[string]any{"level": cfg.Log.Level})
	}
	logger.SetLevel(level)
	return cfg, nil
}

func readPassphrase(in *os.File, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Seed passphrase: ")
	defer fmt.Fprintln(prompt)

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// openSession derives the wallets, connects to the node and wires the sweep
// pipeline with its optional journal and Telegram hooks.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	rescue, err := cfg.RescueAddress()
	if err != nil {
		return nil, err
	}

	dir, err := wallet.Derive(cfg.Wallet.Mnemonic, cfg.Wallet.Passphrase, cfg.Wallet.Count)
	if err != nil {
		return nil, err
	}

	client, err := blockchain.Dial(ctx, cfg.Chain,
		blockchain.WithRateLimit(cfg.Chain.RateLimit),
		blockchain.WithReceiptPolling(cfg.ReceiptPollInterval(), cfg.ReceiptTimeout()),
	)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, rescue: rescue, client: client, dir: dir}

	execOpts := []sweep.ExecutorOption{sweep.WithGasLimit(cfg.Chain.GasLimit)}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.JournalPath())
		if err != nil {
			logger.WarnCF("journal", "Journal disabled", map[string]any{"error": err.Error()})
		} else {
			s.journal = j
			execOpts = append(execOpts, sweep.WithReportHook(j.Hook()))
		}
	}

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram, cfg.Chain)
		if err != nil {
			logger.WarnCF("notify", "Telegram notifications disabled", map[string]any{"error": err.Error()})
		} else {
			execOpts = append(execOpts, sweep.WithReportHook(tg.Hook()))
		}
	}

	s.executor = sweep.NewExecutor(client, rescue, execOpts...)
	s.state = selection.New(dir, s.executor)
	return s, nil
}

func (s *session) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			logger.WarnCF("journal", "Failed to close journal", map[string]any{"error": err.Error()})
		}
	}
	s.client.Close()
}
