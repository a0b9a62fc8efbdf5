package config

import "errors"

var (
	// ErrConfiguration wraps every startup configuration failure
	ErrConfiguration = errors.New("configuration error")

	// ErrMissingMnemonic is returned when no seed phrase is configured
	ErrMissingMnemonic = errors.New("mnemonic phrase not set (PHRASE_MNEMONIC)")

	// ErrInvalidWalletCount is returned when the wallet count is missing or below 1
	ErrInvalidWalletCount = errors.New("wallet count must be at least 1 (WALLETS_NUMBER)")

	// ErrInvalidRescueAddress is returned when the destination is not a usable address
	ErrInvalidRescueAddress = errors.New("invalid rescue address (TO_ADDRESS)")

	// ErrMissingRPC is returned when no provider URL is configured
	ErrMissingRPC = errors.New("provider url not set (PROVIDER_URL)")

	// ErrInvalidGasLimit is returned when the transfer gas limit is zero
	ErrInvalidGasLimit = errors.New("gas limit must be positive")

	ErrTelegramIncomplete = errors.New("telegram enabled without token and chat id")
)
