package blockchain

import "errors"

var (
	// ErrBalanceQuery is returned when a balance lookup fails
	ErrBalanceQuery = errors.New("balance query failed")

	// ErrFeeQuery is returned when the gas price quote fails
	ErrFeeQuery = errors.New("fee query failed")

	// ErrSubmission covers pre-broadcast rejection and failed settlement
	ErrSubmission = errors.New("transfer submission failed")

	// ErrReverted is returned when the transaction was mined with a failure status
	ErrReverted = errors.New("transaction reverted")

	// ErrReceiptTimeout is returned when no receipt shows up in time
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")

	ErrClosed = errors.New("chain client closed")
)
