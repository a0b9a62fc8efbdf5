package wallet

import "errors"

var (
	// ErrDerivation wraps every failure to build the wallet directory
	ErrDerivation = errors.New("wallet derivation failed")

	// ErrInvalidMnemonic is returned when the phrase has a bad word count, unknown words or a bad checksum
	ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

	// ErrInvalidWalletCount is returned when fewer than one wallet is requested
	ErrInvalidWalletCount = errors.New("wallet count must be between 1 and 2^31")
)
