package tui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/sipeed/emergency-withdraw/pkg/selection"
)

type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionUp
	ActionDown
	ActionToggle
	ActionToggleAll
	ActionEnterConfirm
	ActionRefresh
	ActionFlip
	ActionAccept
	ActionCancel
	ActionDismiss
)

// View is what the key map needs to know about the screen being shown.
type View struct {
	Screen    selection.Screen
	Executing bool
	Report    bool // the outcome table of the last run is on screen
}

// Resolve maps a key press to an action for the given view. Keys without a
// meaning in that view resolve to ActionNone.
func Resolve(v View, key tcell.Key, r rune) Action {
	switch {
	case v.Executing:
		return ActionNone
	case v.Report:
		if key == tcell.KeyCtrlC {
			return ActionNone
		}
		return ActionDismiss
	case v.Screen == selection.ScreenTransfering:
		switch key {
		case tcell.KeyLeft, tcell.KeyRight:
			return ActionFlip
		case tcell.KeyEnter:
			return ActionAccept
		case tcell.KeyEscape:
			return ActionCancel
		}
		return ActionNone
	}

	switch key {
	case tcell.KeyUp:
		return ActionUp
	case tcell.KeyDown:
		return ActionDown
	case tcell.KeyEnter:
		return ActionToggle
	case tcell.KeyRune:
		switch r {
		case 'q':
			return ActionQuit
		case 'k':
			return ActionUp
		case 'j':
			return ActionDown
		case ' ':
			return ActionToggle
		case 'a':
			return ActionToggleAll
		case 't':
			return ActionEnterConfirm
		case 'r':
			return ActionRefresh
		}
	}
	return ActionNone
}
