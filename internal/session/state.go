package session

import (
	"fmt"
	"time"
)

// Lifecycle of a DuplexSession:
//
//	Idle -> Starting -> Running -> Stopping -> Idle
//
// Starting covers opening the ports. Stopping covers joining the loops and
// releasing the ports.
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// When a running session ends.
//
// A zero Duration runs until Stop is called or the context given to
// Start or Run is cancelled. A positive Duration additionally stops the
// session once it has elapsed.
type StopCondition struct {
	Duration time.Duration
}

// A timed session.
func StopAfter(d time.Duration) StopCondition {
	return StopCondition{Duration: max(d, 0)}
}

// A session that runs until stopped.
func StopOnSignal() StopCondition {
	return StopCondition{}
}

func (c StopCondition) Timed() bool {
	return c.Duration > 0
}
