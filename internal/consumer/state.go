// Package consumer holds the processes that react to bus events: the audit
// trail writer and the notification dispatcher.
package consumer

import "sync/atomic"

// State is the lifecycle of a consumer process.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateSubscribed
	StateConsuming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateConsuming:
		return "CONSUMING"
	default:
		return "STOPPED"
	}
}

type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) State() State {
	return State(l.state.Load())
}

func (l *lifecycle) set(s State) {
	l.state.Store(int32(s))
}

// consuming moves SUBSCRIBED to CONSUMING on the first delivered message.
func (l *lifecycle) consuming() {
	l.state.CompareAndSwap(int32(StateSubscribed), int32(StateConsuming))
}
