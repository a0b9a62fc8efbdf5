package sweep

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/emergency-withdraw/pkg/blockchain"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/wallet"
)

// ChainClient is everything the executor needs from the network.
// *blockchain.Client implements it.
type ChainClient interface {
	SuggestFeePrice(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, address common.Address) (*big.Int, error)
	SubmitTransfer(ctx context.Context, req blockchain.TransferRequest) (common.Hash, error)
	WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ReportHook runs after every attempt of a run has settled.
type ReportHook func(ctx context.Context, report *Report)

// DefaultHookTimeout bounds each report hook. A hook still running after it
// is abandoned and Execute returns.
const DefaultHookTimeout = 30 * time.Second

// Executor sweeps wallets to a single rescue address, one concurrent attempt
// per wallet.
type Executor struct {
	client   ChainClient
	rescue   common.Address
	gasLimit uint64
	hooks    []ReportHook

	hookTimeout time.Duration
}

type ExecutorOption func(*Executor)

// WithGasLimit overrides the gas units reserved per transfer.
func WithGasLimit(gas uint64) ExecutorOption {
	return func(e *Executor) {
		if gas > 0 {
			e.gasLimit = gas
		}
	}
}

// WithReportHook registers fn to receive each finished report.
func WithReportHook(fn ReportHook) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.hooks = append(e.hooks, fn)
		}
	}
}

// WithHookTimeout overrides DefaultHookTimeout.
func WithHookTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.hookTimeout = d
		}
	}
}

func NewExecutor(client ChainClient, rescue common.Address, opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:   client,
		rescue:   rescue,
		gasLimit: params.TxGas,

		hookTimeout: DefaultHookTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rescue returns the destination address.
func (e *Executor) Rescue() common.Address {
	return e.rescue
}

// Execute attempts a sweep of every given wallet in parallel and returns once
// all attempts have settled. The report holds exactly one outcome per
// distinct address; a failing wallet never stops the others.
func (e *Executor) Execute(ctx context.Context, wallets []*wallet.Wallet) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		Rescue:    e.rescue,
		StartedAt: time.Now(),
		Outcomes:  make(map[common.Address]Outcome, len(wallets)),
	}

	unique := make([]*wallet.Wallet, 0, len(wallets))
	seen := make(map[common.Address]struct{}, len(wallets))
	for _, w := range wallets {
		if w == nil {
			continue
		}
		if _, dup := seen[w.Address()]; dup {
			continue
		}
		seen[w.Address()] = struct{}{}
		unique = append(unique, w)
	}

	logger.InfoCF("sweep", "Sweep started", map[string]any{
		"run_id":  report.RunID,
		"wallets": len(unique),
		"rescue":  e.rescue.Hex(),
	})

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, w := range unique {
		g.Go(func() error {
			outcome := e.attempt(ctx, w)
			mu.Lock()
			report.Outcomes[w.Address()] = outcome
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	report.FinishedAt = time.Now()

	logger.InfoCF("sweep", "Sweep finished", map[string]any{
		"run_id":   report.RunID,
		"sent":     report.Count(StatusSent),
		"skipped":  report.Count(StatusSkipped),
		"failed":   report.Count(StatusFailed),
		"total":    report.TotalSent().String(),
		"duration": report.Duration().String(),
	})

	for _, hook := range e.hooks {
		e.runHook(ctx, hook, report)
	}

	return report
}

// runHook gives hook a deadline and stops waiting for it once the deadline
// passes, so a stalled notifier cannot hold the report back.
func (e *Executor) runHook(ctx context.Context, hook ReportHook, report *Report) {
	hctx, cancel := context.WithTimeout(ctx, e.hookTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("sweep", "Report hook panicked", map[string]any{
					"run_id": report.RunID,
					"panic":  fmt.Sprint(r),
				})
			}
		}()
		hook(hctx, report)
	}()

	select {
	case <-done:
	case <-hctx.Done():
		logger.WarnCF("sweep", "Report hook abandoned", map[string]any{
			"run_id":  report.RunID,
			"timeout": e.hookTimeout.String(),
			"error":   hctx.Err().Error(),
		})
	}
}

// attempt never panics and never returns without an outcome.
func (e *Executor) attempt(ctx context.Context, w *wallet.Wallet) (outcome Outcome) {
	outcome = Outcome{Index: w.Index(), Address: w.Address()}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = StatusFailed
			outcome.Reason = ReasonInternal
			outcome.Err = fmt.Errorf("sweep attempt panicked: %v", r)
		}
		e.logOutcome(outcome)
	}()

	balance, err := e.client.BalanceOf(ctx, w.Address())
	if err != nil {
		return failed(outcome, ReasonNetworkError, err)
	}
	outcome.Balance = balance
	w.SetBalance(balance)

	price, err := e.client.SuggestFeePrice(ctx)
	if err != nil {
		return failed(outcome, ReasonNetworkError, err)
	}
	outcome.FeePrice = price

	plan := PlanSweep(balance, price, e.gasLimit)
	if !plan.Feasible {
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonInsufficientFunds
		return outcome
	}
	outcome.Amount = plan.Amount

	hash, err := e.client.SubmitTransfer(ctx, blockchain.TransferRequest{
		From:     w.Address(),
		To:       e.rescue,
		Amount:   plan.Amount,
		GasPrice: price,
		GasLimit: e.gasLimit,
		Signer:   w.Signer(),
	})
	if err != nil {
		return failed(outcome, ReasonReverted, err)
	}
	outcome.TxHash = hash

	receipt, err := e.client.WaitReceipt(ctx, hash)
	outcome.Receipt = receipt
	e.refreshBalance(ctx, w)
	if err != nil {
		return failed(outcome, ReasonReverted, err)
	}

	outcome.Status = StatusSent
	return outcome
}

func failed(o Outcome, reason Reason, err error) Outcome {
	o.Status = StatusFailed
	o.Reason = reason
	o.Err = err
	return o
}

// refreshBalance is best effort: the attempt's outcome does not depend on it.
func (e *Executor) refreshBalance(ctx context.Context, w *wallet.Wallet) {
	balance, err := e.client.BalanceOf(ctx, w.Address())
	if err != nil {
		logger.WarnCF("sweep", "Post-sweep balance refresh failed", map[string]any{
			"address": w.Address().Hex(),
			"error":   err.Error(),
		})
		return
	}
	w.SetBalance(balance)
}

func (e *Executor) logOutcome(o Outcome) {
	fields := map[string]any{
		"index":   o.Index,
		"address": o.Address.Hex(),
		"status":  o.Status.String(),
	}
	if o.Reason != ReasonNone {
		fields["reason"] = o.Reason.String()
	}
	if o.Amount != nil {
		fields["amount"] = o.Amount.String()
	}
	if o.Submitted() {
		fields["tx_hash"] = o.TxHash.Hex()
	}
	if o.Err != nil {
		fields["error"] = o.Err.Error()
		logger.WarnCF("sweep", "Sweep attempt failed", fields)
		return
	}
	logger.InfoCF("sweep", "Sweep attempt settled", fields)
}
