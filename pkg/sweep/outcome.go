package sweep

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Status int

const (
	StatusSent Status = iota + 1
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonInsufficientFunds
	ReasonReverted     // submission rejected, reverted, dropped or never settled
	ReasonNetworkError // balance or fee lookup failed, nothing submitted
	ReasonInternal     // the attempt panicked
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonInsufficientFunds:
		return "insufficient funds"
	case ReasonReverted:
		return "reverted"
	case ReasonNetworkError:
		return "network error"
	case ReasonInternal:
		return "internal error"
	}
	return "unknown"
}

// Outcome is the recorded result of one wallet's sweep attempt.
type Outcome struct {
	Index    uint32
	Address  common.Address
	Status   Status
	Reason   Reason
	Balance  *big.Int // balance seen at attempt time, nil if the lookup failed
	FeePrice *big.Int
	Amount   *big.Int // planned transfer amount, nil unless a transfer was attempted
	TxHash   common.Hash
	Receipt  *types.Receipt
	Err      error
}

// Submitted reports whether a transaction left this process for the wallet.
func (o Outcome) Submitted() bool {
	return o.TxHash != (common.Hash{})
}

func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Report collects one Outcome per distinct attempted address.
type Report struct {
	RunID      string
	Rescue     common.Address
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   map[common.Address]Outcome
}

// Len returns the number of outcomes.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Outcomes)
}

// Sorted returns the outcomes ordered by derivation index.
func (r *Report) Sorted() []Outcome {
	if r == nil {
		return nil
	}
	out := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s Status) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// TotalSent sums the amounts of successful transfers.
func (r *Report) TotalSent() *big.Int {
	total := new(big.Int)
	if r == nil {
		return total
	}
	for _, o := range r.Outcomes {
		if o.Status == StatusSent && o.Amount != nil {
			total.Add(total, o.Amount)
		}
	}
	return total
}

func (r *Report) Duration() time.Duration {
	if r == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
