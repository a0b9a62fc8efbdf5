package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceOf returns the latest native balance of address in wei.
func (c *Client) BalanceOf(ctx context.Context, address common.Address) (*big.Int, error) {
	rpc, err := c.rpc()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBalanceQuery, err)
	}
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBalanceQuery, err)
	}

	balance, err := rpc.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBalanceQuery, address.Hex(), err)
	}

	return balance, nil
}

// SuggestFeePrice returns the node's current legacy gas price in wei.
func (c *Client) SuggestFeePrice(ctx context.Context) (*big.Int, error) {
	rpc, err := c.rpc()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeeQuery, err)
	}
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeeQuery, err)
	}

	price, err := rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeeQuery, err)
	}

	return price, nil
}
