package blockchain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
)

// Backend is the subset of *ethclient.Client the tool talks to.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Client is the chain-client capability used by the directory and the sweep
// executor: fee quotes, balances, signed transfers and receipts on one EVM chain.
type Client struct {
	mu      sync.RWMutex
	backend Backend
	chain   config.EVMChain
	chainID *big.Int
	limiter *rate.Limiter

	pollInterval   time.Duration
	receiptTimeout time.Duration
}

type Option func(*Client)

// WithRateLimit caps outgoing RPC requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		c.limiter = newLimiter(perSecond)
	}
}

// WithReceiptPolling sets how often and how long WaitReceipt polls.
func WithReceiptPolling(interval, timeout time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		c.receiptTimeout = timeout
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(math.Ceil(perSecond))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Dial connects to chain.RPC and verifies the chain id when one is configured.
func Dial(ctx context.Context, chain config.EVMChain, opts ...Option) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, chain.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", chain.Name, err)
	}

	client, err := NewClient(ctx, rpc, chain, opts...)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	return client, nil
}

// NewClient wraps an already connected backend.
func NewClient(ctx context.Context, backend Backend, chain config.EVMChain, opts ...Option) (*Client, error) {
	c := &Client{
		backend:        backend,
		chain:          chain,
		limiter:        newLimiter(chain.RateLimit),
		pollInterval:   time.Second,
		receiptTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID for %s: %w", chain.Name, err)
	}

	if chain.ChainID != 0 && chainID.Int64() != chain.ChainID {
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", chain.ChainID, chainID.Int64())
	}
	c.chainID = chainID

	logger.InfoCF("blockchain", "Connected to chain", map[string]any{
		"name":    chain.Name,
		"chainId": chainID.String(),
	})

	return c, nil
}

// ChainID returns the id reported by the node.
func (c *Client) ChainID() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.chainID)
}

// Chain returns the chain configuration the client was built with.
func (c *Client) Chain() config.EVMChain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chain
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// Close closes the RPC connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend == nil {
		return
	}
	c.backend.Close()
	c.backend = nil
	logger.InfoCF("blockchain", "Disconnected from chain", map[string]any{
		"name": c.chain.Name,
	})
}

func (c *Client) rpc() (Backend, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.backend == nil {
		return nil, ErrClosed
	}
	return c.backend, nil
}
