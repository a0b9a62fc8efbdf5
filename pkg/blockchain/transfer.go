package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sipeed/emergency-withdraw/pkg/logger"
)

// SignerFunc is a function that signs transactions
type SignerFunc func(ctx context.Context, chainID int64, tx *types.Transaction) (*types.Transaction, error)

// TransferRequest describes one native value transfer. GasPrice must be the
// price the amount was planned with, so amount plus fee never exceeds the balance.
type TransferRequest struct {
	From     common.Address
	To       common.Address
	Amount   *big.Int
	GasPrice *big.Int
	GasLimit uint64
	Signer   SignerFunc
}

// SubmitTransfer builds, signs and broadcasts a legacy native transfer.
func (c *Client) SubmitTransfer(ctx context.Context, req TransferRequest) (common.Hash, error) {
	if req.Signer == nil {
		return common.Hash{}, fmt.Errorf("%w: no signer", ErrSubmission)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("%w: non-positive amount", ErrSubmission)
	}
	if req.GasPrice == nil || req.GasLimit == 0 {
		return common.Hash{}, fmt.Errorf("%w: missing gas parameters", ErrSubmission)
	}

	rpc, err := c.rpc()
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	if err := c.wait(ctx); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	nonce, err := rpc.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to get nonce: %w", ErrSubmission, err)
	}

	tx := types.NewTransaction(nonce, req.To, req.Amount, req.GasLimit, req.GasPrice, nil)

	chainID := c.ChainID()
	signedTx, err := req.Signer(ctx, chainID.Int64(), tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to sign transaction: %w", ErrSubmission, err)
	}

	if err := c.wait(ctx); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	if err := rpc.SendTransaction(ctx, signedTx); err != nil {
		logger.ErrorCF("blockchain", "Send transaction failed", map[string]any{
			"from":  req.From.Hex(),
			"error": err.Error(),
		})
		return common.Hash{}, fmt.Errorf("%w: failed to send transaction: %w", ErrSubmission, err)
	}

	logger.InfoCF("blockchain", "Transfer broadcast", map[string]any{
		"from":    req.From.Hex(),
		"to":      req.To.Hex(),
		"amount":  req.Amount.String(),
		"nonce":   nonce,
		"tx_hash": signedTx.Hash().Hex(),
	})

	return signedTx.Hash(), nil
}

// WaitReceipt polls until the transaction is mined, the receipt timeout
// elapses or ctx is done. A mined transaction with failure status is
// reported as ErrReverted together with its receipt.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	rpc, err := c.rpc()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	if c.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.receiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.wait(ctx); err != nil {
			return nil, c.receiptWaitError(ctx, txHash, err)
		}

		receipt, err := rpc.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %w: %s", ErrSubmission, ErrReverted, txHash.Hex())
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		default:
			// Already broadcast: keep polling through transient RPC failures.
			logger.WarnCF("blockchain", "Receipt lookup failed, retrying", map[string]any{
				"tx_hash": txHash.Hex(),
				"error":   err.Error(),
			})
		}

		select {
		case <-ctx.Done():
			return nil, c.receiptWaitError(ctx, txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) receiptWaitError(ctx context.Context, txHash common.Hash, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %s", ErrSubmission, ErrReceiptTimeout, txHash.Hex())
	}
	return fmt.Errorf("%w: %s: %w", ErrSubmission, txHash.Hex(), err)
}
