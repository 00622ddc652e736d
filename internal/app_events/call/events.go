package call

import (
	appevents "github.com/llinks/callSignaler/internal/app_events"
)

// --- App Events (from TUI to App) ---

// StartCallEvent asks the controller to dial the other participant.
type StartCallEvent struct {
	appevents.Event
}

// AcceptCallEvent is sent when the user accepts a ringing incoming call.
type AcceptCallEvent struct {
	appevents.Event
}

// DeclineCallEvent is sent when the user declines a ringing incoming call.
type DeclineCallEvent struct {
	appevents.Event
}

// HangUpEvent is sent when the user ends the call, in any state.
type HangUpEvent struct {
	appevents.Event
}

// ToggleMuteEvent flips the local microphone mute flag.
type ToggleMuteEvent struct {
	appevents.Event
}

// ToggleSpeakerEvent flips the local speakerphone flag.
type ToggleSpeakerEvent struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = (*StartCallEvent)(nil)
	_ appevents.AppEvent = (*AcceptCallEvent)(nil)
	_ appevents.AppEvent = (*DeclineCallEvent)(nil)
	_ appevents.AppEvent = (*HangUpEvent)(nil)
	_ appevents.AppEvent = (*ToggleMuteEvent)(nil)
	_ appevents.AppEvent = (*ToggleSpeakerEvent)(nil)
)

// --- UI Messages (from App to TUI) ---

// RingingMsg reports that the outgoing call record exists and is ringing.
type RingingMsg struct{}

// ConnectingMsg reports that the remote side started answering.
type ConnectingMsg struct{}

// ConnectedMsg reports that the call is live.
type ConnectedMsg struct{}

// EndedMsg reports the terminal state, regardless of cause. A setup failure
// additionally sends an appevents.Error before the call ends.
type EndedMsg struct{}

// DurationMsg carries the elapsed in-call time, sent once per second.
type DurationMsg struct {
	Seconds   int
	Formatted string
}

// ControlsMsg carries the local-only toggles for the in-call screen.
type ControlsMsg struct {
	Muted   bool
	Speaker bool
}

// IncomingCallMsg prompts the callee UI with a ringing call.
type IncomingCallMsg struct {
	CallID  string
	FromUID string
}
