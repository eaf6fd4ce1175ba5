package xpad

import "sync/atomic"

// ConnState is the lifecycle state of a Client connection.
type ConnState uint32

const (
	// DisconnectedState means no socket is open.
	DisconnectedState ConnState = iota
	// ConnectingState means a dial is in progress.
	ConnectingState
	// ConnectedState means the socket is open and exchanges are allowed.
	ConnectedState
	// ClosingState means the connection is being torn down.
	ClosingState
)

// String returns string representation of the state.
func (s ConnState) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	case ClosingState:
		return "closing"
	default:
		return "unknown"
	}
}

// atomicConnState is a ConnState that only moves along
// Disconnected -> Connecting -> Connected -> Closing -> Disconnected,
// with Connecting allowed to fall back to Disconnected on dial failure.
type atomicConnState struct {
	state atomic.Uint32
}

func (st *atomicConnState) Get() ConnState {
	return ConnState(st.state.Load())
}

func (st *atomicConnState) IsConnected() bool {
	return st.Get() == ConnectedState
}

func (st *atomicConnState) ToConnecting() bool {
	return st.state.CompareAndSwap(uint32(DisconnectedState), uint32(ConnectingState))
}

func (st *atomicConnState) ToConnected() bool {
	return st.state.CompareAndSwap(uint32(ConnectingState), uint32(ConnectedState))
}

// ToClosing moves a connected or connecting state to closing.
func (st *atomicConnState) ToClosing() bool {
	if st.state.CompareAndSwap(uint32(ConnectedState), uint32(ClosingState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(ConnectingState), uint32(ClosingState))
}

func (st *atomicConnState) ToDisconnected() bool {
	if st.Get() == DisconnectedState {
		return true
	}

	if st.state.CompareAndSwap(uint32(ClosingState), uint32(DisconnectedState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(ConnectingState), uint32(DisconnectedState))
}
