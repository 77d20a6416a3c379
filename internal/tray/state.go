package tray

import (
	"github.com/ItsNotGoodName/x-traybar/internal/xembed"
)

// State is the embedding visibility state of a client.
type State int

const (
	// StateUnmapped means the icon does not want to be visible.
	StateUnmapped State = iota
	// StateMappedVisible means the icon wants to be visible and the host
	// shows it.
	StateMappedVisible
	// StateMappedHidden means the icon wants to be visible but the host
	// hides it.
	StateMappedHidden
)

func (s State) String() string {
	switch s {
	case StateUnmapped:
		return "unmapped"
	case StateMappedVisible:
		return "mapped"
	case StateMappedHidden:
		return "hidden"
	default:
		return "invalid"
	}
}

// Mapped reports whether a client in this state has its windows mapped.
func (s State) Mapped() bool {
	return s == StateMappedVisible
}

// DesiredState derives the target visibility state. The host's hidden
// override wins over the icon's own wishes; icons that do not speak XEmbed
// are assumed to want to be visible.
func DesiredState(hidden, xembedSupported bool, info xembed.Info) State {
	if xembedSupported && !info.Mapped() {
		return StateUnmapped
	}
	if hidden {
		return StateMappedHidden
	}
	return StateMappedVisible
}
