package call

// State is the controller's local state. It is synchronized from, but
// independent of, the remote record's status: idle exists only locally and
// a setup failure can end the local call without any remote write landing.
type State string

const (
	StateIdle       State = "idle"
	StateRinging    State = "ringing"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateEnded      State = "ended"
)

// Trigger is an input to the state machine. Remote notifications, local
// user actions and failures all reduce to one of these.
type Trigger int

const (
	// TriggerDial moves a caller from idle to ringing.
	TriggerDial Trigger = iota
	// TriggerAccept moves a callee from ringing to connecting.
	TriggerAccept
	// TriggerRemoteConnecting is a status=connecting notification.
	TriggerRemoteConnecting
	// TriggerConnected is any of the independent "call is live" signals:
	// a status=connected notification, a non-empty answer notification,
	// or the callee's own accept flow completing.
	TriggerConnected
	// TriggerEnd is a hangup, a decline, a status=ended notification or a
	// setup failure. Valid from every non-terminal state.
	TriggerEnd
)

// apply is the pure transition function. Invalid triggers leave the state
// unchanged, which is what makes duplicate deliveries harmless: applying
// TriggerConnected to an already-connected call is a no-op, so the two
// unordered notification paths that both signal "connected" cannot
// double-start anything.
func apply(s State, t Trigger) State {
	if s == StateEnded {
		return StateEnded
	}
	switch t {
	case TriggerDial:
		if s == StateIdle {
			return StateRinging
		}
	case TriggerAccept:
		if s == StateRinging {
			return StateConnecting
		}
	case TriggerRemoteConnecting:
		if s == StateRinging {
			return StateConnecting
		}
	case TriggerConnected:
		if s == StateRinging || s == StateConnecting || s == StateConnected {
			return StateConnected
		}
	case TriggerEnd:
		return StateEnded
	}
	return s
}
