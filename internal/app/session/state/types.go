// Package state provides session lifecycle state management.
package state

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseWaiting    Phase = iota // Media not prepared yet
	PhaseActive                  // Media prepared, commands are routed to the controller
	PhaseTerminated              // Session has ended
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseActive:
		return "active"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// AcceptingState represents whether control commands are being accepted.
type AcceptingState int

const (
	NotAccepting AcceptingState = iota // Not accepting commands
	Accepting                          // Accepting commands
)

// String returns the string representation of the accepting state.
func (a AcceptingState) String() string {
	switch a {
	case NotAccepting:
		return "not_accepting"
	case Accepting:
		return "accepting"
	default:
		return "unknown"
	}
}
