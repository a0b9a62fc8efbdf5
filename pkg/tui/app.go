// Package tui is the interactive front end: a wallet table with selection, a
// Yes/No gate in front of the sweep and a table of outcomes after each run.
// All business decisions live in pkg/selection; this package only maps keys
// to its transitions and draws what it reports.
package tui

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sipeed/emergency-withdraw/pkg/config"
	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/selection"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
	"github.com/sipeed/emergency-withdraw/pkg/wallet"
)

const (
	pageMain    = "main"
	pageConfirm = "confirm"
	pageReport  = "report"
)

type App struct {
	ctx    context.Context
	state  *selection.State
	source wallet.BalanceSource
	chain  config.EVMChain
	rescue common.Address

	app     *tview.Application
	pages   *tview.Pages
	table   *tview.Table
	footer  *tview.TextView
	confirm *tview.TextView
	results *tview.Table

	// Set from accept until the outcome table is drawn.
	sweeping atomic.Bool

	// Touched only on the tview goroutine.
	cursor     int
	showReport bool
	status     string
}

func New(ctx context.Context, state *selection.State, source wallet.BalanceSource, chain config.EVMChain, rescue common.Address) *App {
	a := &App{
		ctx:    ctx,
		state:  state,
		source: source,
		chain:  chain,
		rescue: rescue,
		app:    tview.NewApplication(),
	}

	a.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.table.SetBorder(true).SetTitle(" Wallets ")
	a.table.SetSelectionChangedFunc(func(row, _ int) {
		if row > 0 {
			a.cursor = row - 1
		}
	})

	a.footer = tview.NewTextView().SetDynamicColors(true)

	a.confirm = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.confirm.SetBorder(true).SetTitle(" Confirm transfer ")

	a.results = tview.NewTable().SetFixed(1, 0)
	a.results.SetBorder(true)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.table, 0, 1, true).
		AddItem(a.footer, 2, 0, false)

	a.pages = tview.NewPages().
		AddPage(pageMain, layout, true, true).
		AddPage(pageConfirm, centered(a.confirm, 72, 11), true, false).
		AddPage(pageReport, a.results, true, false)

	a.app.SetRoot(a.pages, true).SetInputCapture(a.handleKey)
	return a
}

// Run blocks until the operator quits.
func (a *App) Run() error {
	a.render()
	a.refresh()
	return a.app.Run()
}

func (a *App) Stop() {
	a.app.Stop()
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	view := View{Screen: a.state.Screen(), Executing: a.Executing(), Report: a.showReport}

	switch Resolve(view, ev.Key(), ev.Rune()) {
	case ActionNone:
		// Ctrl-C still quits, except while transfers are in flight.
		if ev.Key() == tcell.KeyCtrlC && !view.Executing {
			return ev
		}
		return nil
	case ActionQuit:
		a.app.Stop()
	case ActionUp:
		a.move(-1)
	case ActionDown:
		a.move(1)
	case ActionToggle:
		if w := a.state.Directory().At(a.cursor); w != nil {
			a.state.Toggle(w.Address())
		}
	case ActionToggleAll:
		a.state.ToggleAll()
	case ActionEnterConfirm:
		a.state.EnterConfirm()
	case ActionRefresh:
		a.refresh()
	case ActionFlip:
		a.state.FlipChoice()
	case ActionCancel:
		a.state.Cancel()
	case ActionAccept:
		a.accept()
	case ActionDismiss:
		a.showReport = false
	}

	a.render()
	return nil
}

func (a *App) move(delta int) {
	n := a.state.Directory().Len()
	if n == 0 {
		return
	}
	a.cursor = (a.cursor + delta + n) % n
}

// accept resolves the gate off the draw loop so the progress text stays
// visible while the sweep settles.
func (a *App) accept() {
	if a.state.Choice() == selection.ChoiceNo {
		a.state.Confirm(a.ctx)
		return
	}

	a.sweeping.Store(true)
	go func() {
		report := a.state.Confirm(a.ctx)
		a.app.QueueUpdateDraw(func() {
			a.sweeping.Store(false)
			if report != nil {
				a.fillReport(report)
				a.showReport = true
			}
			a.render()
		})
	}()
}

// Executing reports whether a sweep is running or its outcomes are not yet
// on screen. Safe to call from any goroutine.
func (a *App) Executing() bool {
	return a.sweeping.Load() || a.state.IsExecuting()
}

func (a *App) refresh() {
	a.status = "[yellow]refreshing balances...[-]"
	go func() {
		err := a.state.Directory().RefreshBalances(a.ctx, a.source)
		a.app.QueueUpdateDraw(func() {
			a.status = ""
			if err != nil {
				logger.WarnCF("tui", "Balance refresh incomplete", map[string]any{
					"error": err.Error(),
				})
				a.status = "[red]some balances could not be refreshed[-]"
			}
			a.render()
		})
	}()
}

func (a *App) render() {
	a.renderTable()
	a.footer.SetText(footerText(a.state, a.chain, a.rescue, a.status))

	switch {
	case a.showReport:
		a.pages.HidePage(pageConfirm)
		a.pages.ShowPage(pageReport)
	case a.state.Screen() == selection.ScreenTransfering || a.Executing():
		a.confirm.SetText(confirmText(a.state, a.chain, a.rescue, a.Executing()))
		a.pages.HidePage(pageReport)
		a.pages.ShowPage(pageConfirm)
	default:
		a.pages.HidePage(pageReport)
		a.pages.HidePage(pageConfirm)
	}
}

func (a *App) renderTable() {
	a.table.Clear()
	for col, title := range []string{"", "#", "Address", "Balance"} {
		a.table.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	for i, w := range a.state.Directory().Wallets() {
		mark := "[ ]"
		color := tcell.ColorWhite
		if a.state.IsSelected(w.Address()) {
			mark = "[x]"
			color = tcell.ColorGreen
		}
		row := i + 1
		a.table.SetCell(row, 0, tview.NewTableCell(tview.Escape(mark)).SetTextColor(color))
		a.table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", w.Index())).SetTextColor(color))
		a.table.SetCell(row, 2, tview.NewTableCell(w.Address().Hex()).SetTextColor(color).SetExpansion(1))
		a.table.SetCell(row, 3, tview.NewTableCell(amount(w.Balance(), a.chain)).
			SetTextColor(color).
			SetAlign(tview.AlignRight))
	}
	a.table.Select(a.cursor+1, 0)
}

func (a *App) fillReport(r *sweep.Report) {
	a.results.Clear()
	a.results.SetTitle(reportTitle(r, a.chain))
	for col, title := range []string{"#", "Address", "Status", "Sent", "Details"} {
		a.results.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	for i, o := range r.Sorted() {
		color := tcell.ColorWhite
		switch o.Status {
		case sweep.StatusSent:
			color = tcell.ColorGreen
		case sweep.StatusFailed:
			color = tcell.ColorRed
		}
		for col, text := range outcomeRow(o, a.chain) {
			cell := tview.NewTableCell(tview.Escape(text)).SetTextColor(color)
			if col == 4 {
				cell.SetExpansion(1)
			}
			a.results.SetCell(i+1, col, cell)
		}
	}
}

func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}
