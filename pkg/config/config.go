package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Wallet   WalletConfig   `json:"wallet" yaml:"wallet"`
	Chain    EVMChain       `json:"chain" yaml:"chain"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Status   StatusConfig   `json:"status" yaml:"status"`
	mu       sync.RWMutex
}

// WalletConfig holds the secret seed and the sweep destination.
// Mnemonic and Passphrase are never written back by SaveConfig templates.
type WalletConfig struct {
	Mnemonic      string `json:"mnemonic" yaml:"mnemonic" env:"PHRASE_MNEMONIC"`
	Passphrase    string `json:"passphrase,omitempty" yaml:"passphrase,omitempty" env:"PASSWORD"`
	Count         int    `json:"count" yaml:"count" env:"WALLETS_NUMBER"`
	RescueAddress string `json:"rescue_address" yaml:"rescue_address" env:"TO_ADDRESS"`
}

type EVMChain struct {
	Name                  string  `json:"name" yaml:"name" env:"CHAIN_NAME"`
	ChainID               int64   `json:"chain_id" yaml:"chain_id" env:"CHAIN_ID"` // 0 means use the node's chain id
	RPC                   string  `json:"rpc" yaml:"rpc" env:"PROVIDER_URL"`
	Explorer              string  `json:"explorer,omitempty" yaml:"explorer,omitempty" env:"CHAIN_EXPLORER"`
	Currency              string  `json:"currency" yaml:"currency" env:"CHAIN_CURRENCY"`
	GasLimit              uint64  `json:"gas_limit" yaml:"gas_limit" env:"GAS_LIMIT"`
	ReceiptTimeoutSeconds int     `json:"receipt_timeout_seconds" yaml:"receipt_timeout_seconds" env:"RECEIPT_TIMEOUT"`
	ReceiptPollMillis     int     `json:"receipt_poll_millis" yaml:"receipt_poll_millis" env:"RECEIPT_POLL_MILLIS"`
	RateLimit             float64 `json:"rpc_rate_limit" yaml:"rpc_rate_limit" env:"RPC_RATE_LIMIT"` // requests per second, 0 = unlimited
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	File  string `json:"file" yaml:"file" env:"LOG_FILE"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"JOURNAL_ENABLED"`
	Path    string `json:"path" yaml:"path" env:"JOURNAL_PATH"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"TELEGRAM_ENABLED"`
	Token   string `json:"token" yaml:"token" env:"TELEGRAM_TOKEN"`
	ChatID  int64  `json:"chat_id" yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type StatusConfig struct {
	Listen string `json:"listen" yaml:"listen" env:"STATUS_LISTEN"` // empty disables the status server
}

func DefaultConfig() *Config {
	return &Config{
		Chain: EVMChain{
			Name:                  "ethereum",
			Currency:              "ETH",
			GasLimit:              21000,
			ReceiptTimeoutSeconds: 300,
			ReceiptPollMillis:     1500,
			RateLimit:             0,
		},
		Log: LogConfig{
			Level: "info",
			File:  "emergency-withdraw.log",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "~/.emergency-withdraw/journal.db",
		},
	}
}

// LoadConfig reads path (JSON or YAML by extension, a missing file is not an
// error), then the .env file next to the working directory, then the process
// environment. Later sources win.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := unmarshal(path, data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: load %s: %v", ErrConfiguration, path, err)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate reports every startup problem at once. All returned errors wrap
// ErrConfiguration.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if strings.TrimSpace(c.Wallet.Mnemonic) == "" {
		errs = append(errs, ErrMissingMnemonic)
	}
	if c.Wallet.Count < 1 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidWalletCount, c.Wallet.Count))
	}
	if _, err := parseRescueAddress(c.Wallet.RescueAddress); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Chain.RPC) == "" {
		errs = append(errs, ErrMissingRPC)
	}
	if c.Chain.GasLimit == 0 {
		errs = append(errs, ErrInvalidGasLimit)
	}
	if c.Chain.ReceiptTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid receipt timeout %d", c.Chain.ReceiptTimeoutSeconds))
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, ErrTelegramIncomplete)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}

// RescueAddress returns the validated sweep destination.
func (c *Config) RescueAddress() (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addr, err := parseRescueAddress(c.Wallet.RescueAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return addr, nil
}

func parseRescueAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, fmt.Errorf("%w: empty", ErrInvalidRescueAddress)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidRescueAddress, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidRescueAddress)
	}
	return addr, nil
}

func (c *Config) ReceiptTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Chain.ReceiptTimeoutSeconds) * time.Second
}

func (c *Config) ReceiptPollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Chain.ReceiptPollMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.Chain.ReceiptPollMillis) * time.Millisecond
}

func (c *Config) JournalPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Journal.Path)
}

// Template returns a copy safe to write to disk: secrets are blanked.
func (c *Config) Template() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Wallet: WalletConfig{
			Count:         c.Wallet.Count,
			RescueAddress: c.Wallet.RescueAddress,
		},
		Chain:    c.Chain,
		Log:      c.Log,
		Journal:  c.Journal,
		Telegram: TelegramConfig{Enabled: c.Telegram.Enabled, ChatID: c.Telegram.ChatID},
		Status:   c.Status,
	}
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
