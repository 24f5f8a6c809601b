package recording

import "fmt"

// State is the lifecycle state of a recording session. Sessions only move
// forward and are never reused once finished.
type State uint8

const (
	// StateReady means outputs are wired but nothing is written yet.
	StateReady State = iota
	// StateRecording means samples are being written.
	StateRecording
	// StateFinishing means the file is being closed.
	StateFinishing
	// StateFinished means the file is complete.
	StateFinished
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StateFinishing:
		return "finishing"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// transitions lists the legal successor of every state.
var transitions = map[State]State{
	StateReady:     StateRecording,
	StateRecording: StateFinishing,
	StateFinishing: StateFinished,
}

// CanTransition reports whether moving from s to to is legal.
func (s State) CanTransition(to State) bool {
	next, ok := transitions[s]
	return ok && next == to
}

// AcceptsSamples reports whether incoming samples are processed. Ready
// sessions accept them because capture callbacks can start before Start.
func (s State) AcceptsSamples() bool {
	return s == StateReady || s == StateRecording
}
