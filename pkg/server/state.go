package server

// State is the lifecycle state of an Instance.
//
//	Constructed --Start--> Running --drain--> Stopped
//
// Stopped is terminal.
type State int32

const (
	StateConstructed State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "CONSTRUCTED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
