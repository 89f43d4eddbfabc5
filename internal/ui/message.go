package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/a2s/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgCoordinatorUpdate MsgKind = iota
	MsgSubscriptionClosed
	MsgRefreshTick
	MsgAPIChecked
	MsgControlDone
)

// coordinatorUpdateMsg is the constructor for [MsgCoordinatorUpdate]
func coordinatorUpdateMsg(u tasks.Update) Msg {
	return Msg{kind: MsgCoordinatorUpdate, data: u}
}

// subscriptionClosedMsg is the constructor for [MsgSubscriptionClosed]
func subscriptionClosedMsg() Msg {
	return Msg{kind: MsgSubscriptionClosed}
}

// refreshTickMsg is the constructor for [MsgRefreshTick]
func refreshTickMsg() Msg {
	return Msg{kind: MsgRefreshTick}
}

// apiCheckedMsg is the constructor for [MsgAPIChecked]
func apiCheckedMsg(err error) Msg {
	return Msg{kind: MsgAPIChecked, data: err}
}

// controlDoneMsg is the constructor for [MsgControlDone]
func controlDoneMsg(err error) Msg {
	return Msg{kind: MsgControlDone, data: err}
}

// errData extracts the error carried by [MsgAPIChecked] and [MsgControlDone].
func (m Msg) errData() error {
	err, _ := m.data.(error)
	return err
}
