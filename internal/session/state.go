package session

// State is the lifecycle state of a session. The legal order is
//
//	Loaded → Instantiated → Initialized ⇄ Simulated
//
// with Closed reachable from every state and terminal, and state-load
// returning an Initialized/Simulated session to Initialized.
type State int

const (
	Loaded State = iota
	Instantiated
	Initialized
	Simulated
	Closed
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Instantiated:
		return "instantiated"
	case Initialized:
		return "initialized"
	case Simulated:
		return "simulated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) oneOf(states ...State) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}
