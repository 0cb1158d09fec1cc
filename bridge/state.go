package bridge

import "time"

// State is the lifecycle state of the process-wide runtime.
type State int32

const (
	NotStarted State = iota
	Starting
	Running
	Attached
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Attached:
		return "attached"
	case ShuttingDown:
		return "shutting down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Live reports whether calls may cross into the runtime.
func (s State) Live() bool {
	return s == Running || s == Attached
}

// startable reports whether start or attach may begin from s.
func (s State) startable() bool {
	return s == NotStarted || s == Stopped
}

// RuntimeInstance describes the runtime a bridge is bound to.
type RuntimeInstance struct {
	StartedAt   time.Time
	ID          string
	LibraryPath string
	Args        []string
	// Owned is false for runtimes joined with Attach; shutdown leaves them
	// running.
	Owned bool
}
