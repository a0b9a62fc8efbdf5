package selection

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
	"github.com/sipeed/emergency-withdraw/pkg/wallet"
)

type Screen int

const (
	ScreenMain Screen = iota
	ScreenTransfering
)

func (s Screen) String() string {
	switch s {
	case ScreenMain:
		return "main"
	case ScreenTransfering:
		return "transfering"
	}
	return "unknown"
}

type Choice int

const (
	ChoiceYes Choice = iota
	ChoiceNo
)

func (c Choice) String() string {
	if c == ChoiceNo {
		return "No"
	}
	return "Yes"
}

// Sweeper runs a sweep over the given wallets and blocks until it settles.
// *sweep.Executor implements it.
type Sweeper interface {
	Execute(ctx context.Context, wallets []*wallet.Wallet) *sweep.Report
}

// State holds the operator's selection and the confirmation gate in front of
// the sweeper. Inputs that do not match a transition for the current screen
// are ignored.
type State struct {
	dir     *wallet.Directory
	sweeper Sweeper

	mu        sync.RWMutex
	selected  map[common.Address]struct{}
	screen    Screen
	choice    Choice
	executing bool
	last      *sweep.Report
}

func New(dir *wallet.Directory, sweeper Sweeper) *State {
	return &State{
		dir:      dir,
		sweeper:  sweeper,
		selected: make(map[common.Address]struct{}),
		screen:   ScreenMain,
	}
}

// Directory returns the wallets the selection draws from.
func (s *State) Directory() *wallet.Directory {
	return s.dir
}

func (s *State) Screen() Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screen
}

func (s *State) Choice() Choice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.choice
}

func (s *State) IsExecuting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executing
}

// LastReport returns the report of the most recent sweep, or nil.
func (s *State) LastReport() *sweep.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *State) IsSelected(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[addr]
	return ok
}

func (s *State) SelectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected)
}

// Selected returns the selected wallets in derivation order.
func (s *State) Selected() []*wallet.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedLocked()
}

func (s *State) selectedLocked() []*wallet.Wallet {
	out := make([]*wallet.Wallet, 0, len(s.selected))
	for _, w := range s.dir.Wallets() {
		if _, ok := s.selected[w.Address()]; ok {
			out = append(out, w)
		}
	}
	return out
}

// SelectedBalance sums the cached balances of the selected wallets.
func (s *State) SelectedBalance() *big.Int {
	s.mu.RLock()
	addrs := make([]common.Address, 0, len(s.selected))
	for addr := range s.selected {
		addrs = append(addrs, addr)
	}
	s.mu.RUnlock()
	return s.dir.TotalBalance(addrs)
}

// Toggle flips addr in the selection. Addresses outside the directory are
// ignored.
func (s *State) Toggle(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.idleOn(ScreenMain) {
		return false
	}
	if _, ok := s.dir.Lookup(addr); !ok {
		return false
	}
	if _, ok := s.selected[addr]; ok {
		delete(s.selected, addr)
	} else {
		s.selected[addr] = struct{}{}
	}
	return true
}

// ToggleAll clears the selection when every wallet is selected and selects
// every wallet otherwise.
func (s *State) ToggleAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.idleOn(ScreenMain) {
		return false
	}
	if len(s.selected) == s.dir.Len() {
		s.selected = make(map[common.Address]struct{})
		return true
	}
	s.selected = make(map[common.Address]struct{}, s.dir.Len())
	for _, addr := range s.dir.Addresses() {
		s.selected[addr] = struct{}{}
	}
	return true
}

// EnterConfirm opens the confirmation gate with Yes preselected.
func (s *State) EnterConfirm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.idleOn(ScreenMain) {
		return false
	}
	s.screen = ScreenTransfering
	s.choice = ChoiceYes
	return true
}

func (s *State) FlipChoice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.idleOn(ScreenTransfering) {
		return false
	}
	if s.choice == ChoiceYes {
		s.choice = ChoiceNo
	} else {
		s.choice = ChoiceYes
	}
	return true
}

func (s *State) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.idleOn(ScreenTransfering) {
		return false
	}
	s.screen = ScreenMain
	s.choice = ChoiceYes
	return true
}

// Confirm resolves the confirmation gate. With Yes selected it sweeps the
// current selection and blocks until every attempt has settled; the returned
// report is nil when nothing was executed. The selection is left as is.
func (s *State) Confirm(ctx context.Context) *sweep.Report {
	s.mu.Lock()
	if !s.idleOn(ScreenTransfering) {
		s.mu.Unlock()
		return nil
	}
	if s.choice == ChoiceNo {
		s.screen = ScreenMain
		s.choice = ChoiceYes
		s.mu.Unlock()
		return nil
	}
	wallets := s.selectedLocked()
	s.executing = true
	s.mu.Unlock()

	logger.InfoCF("selection", "Sweep confirmed", map[string]any{
		"wallets": len(wallets),
	})

	var report *sweep.Report
	defer func() {
		s.mu.Lock()
		s.executing = false
		s.screen = ScreenMain
		s.choice = ChoiceYes
		if report != nil {
			s.last = report
		}
		s.mu.Unlock()
	}()

	report = s.sweeper.Execute(ctx, wallets)
	return report
}

// idleOn reports whether a transition from screen may run now. Callers hold mu.
func (s *State) idleOn(screen Screen) bool {
	return !s.executing && s.screen == screen
}
