package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/llinks/callSignaler/internal/app_events"
	callevents "github.com/llinks/callSignaler/internal/app_events/call"
	"github.com/llinks/callSignaler/internal/util"
	"github.com/llinks/callSignaler/pkg/signaling"
)

// endWriteTimeout bounds the best-effort ended write during teardown, which
// runs detached from the (possibly already cancelled) call context.
const endWriteTimeout = 5 * time.Second

// remoteEvent is a notification from one of the channel's subscriptions,
// queued onto the controller's event loop.
type remoteEvent interface {
	isRemoteEvent()
}

type statusChangedEvent struct {
	status signaling.CallStatus
}

type answerSetEvent struct{}

func (statusChangedEvent) isRemoteEvent() {}
func (answerSetEvent) isRemoteEvent()     {}

// Controller is the logic controller for one call attempt. It owns one
// signaling channel and one duration clock, and it is the only writer of
// the call session state: user actions and subscription notifications are
// queued as events and consumed sequentially by the Run loop, so no mutex
// is needed around the state machine itself.
//
// A Controller is single-use. Once the call reaches the ended state the
// loop exits and a new call needs a new Controller.
type Controller struct {
	chatID   string
	myUID    string
	otherUID string
	isCaller bool

	channel *signaling.Channel
	clock   *Clock

	appEvents  chan appevents.AppEvent
	remote     chan remoteEvent
	uiMessages chan tea.Msg
	done       chan struct{}

	teardownOnce sync.Once

	// Snapshot of the session for accessors; mirrors what the loop owns.
	mu      sync.Mutex
	state   State
	muted   bool
	speaker bool
	seconds int
}

// NewCaller creates the controller for an outgoing call. The call record
// does not exist yet; StartCallEvent creates it.
func NewCaller(store signaling.Store, chatID, myUID, otherUID string) *Controller {
	return newController(store, chatID, myUID, otherUID, true, "")
}

// NewCallee creates the controller for an incoming call that is already
// ringing under callID.
func NewCallee(store signaling.Store, chatID, myUID, otherUID, callID string) *Controller {
	return newController(store, chatID, myUID, otherUID, false, callID)
}

func newController(store signaling.Store, chatID, myUID, otherUID string, isCaller bool, callID string) *Controller {
	c := &Controller{
		chatID:     chatID,
		myUID:      myUID,
		otherUID:   otherUID,
		isCaller:   isCaller,
		channel:    signaling.NewChannel(store, chatID),
		clock:      NewClock(),
		appEvents:  make(chan appevents.AppEvent),
		remote:     make(chan remoteEvent, 16),
		uiMessages: make(chan tea.Msg, 32),
		done:       make(chan struct{}),
		state:      StateIdle,
	}
	if callID != "" {
		c.channel.Bind(callID)
		// An incoming call is already ringing on the wire.
		c.state = StateRinging
	}
	return c
}

// UIMessages returns the channel the TUI listens on for session updates.
func (c *Controller) UIMessages() <-chan tea.Msg {
	return c.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the
// controller.
func (c *Controller) AppEvents() chan<- appevents.AppEvent {
	return c.appEvents
}

// Done is closed once the controller has fully torn down.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// CallID returns the bound call id, or "" before the record exists.
func (c *Controller) CallID() string {
	return c.channel.CallID()
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Muted reports the local-only microphone toggle.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Speaker reports the local-only speakerphone toggle.
func (c *Controller) Speaker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaker
}

// DurationSeconds returns the elapsed in-call seconds.
func (c *Controller) DurationSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seconds
}

// FormattedDuration returns the elapsed in-call time as MM:SS.
func (c *Controller) FormattedDuration() string {
	return util.FormatDuration(c.DurationSeconds())
}

// ActiveSubscriptions reports how many store subscriptions are held.
func (c *Controller) ActiveSubscriptions() int {
	return c.channel.ActiveSubscriptions()
}

// Start dials the other participant (caller role).
func (c *Controller) Start() { c.send(callevents.StartCallEvent{}) }

// Accept answers a ringing incoming call (callee role).
func (c *Controller) Accept() { c.send(callevents.AcceptCallEvent{}) }

// Decline rejects a ringing incoming call (callee role).
func (c *Controller) Decline() { c.send(callevents.DeclineCallEvent{}) }

// HangUp ends the call from any state. Safe to call repeatedly.
func (c *Controller) HangUp() { c.send(callevents.HangUpEvent{}) }

// ToggleMute flips the local mute flag.
func (c *Controller) ToggleMute() { c.send(callevents.ToggleMuteEvent{}) }

// ToggleSpeaker flips the local speaker flag.
func (c *Controller) ToggleSpeaker() { c.send(callevents.ToggleSpeakerEvent{}) }

func (c *Controller) send(ev appevents.AppEvent) {
	select {
	case c.appEvents <- ev:
	case <-c.done:
		// The call is already over; late events are dropped, not errors.
	}
}

func (c *Controller) enqueueRemote(ev remoteEvent) {
	select {
	case c.remote <- ev:
	case <-c.done:
	}
}

// Run is the controller's event loop. Every state mutation happens here.
// It returns when the call ends or ctx is cancelled; either way teardown
// runs exactly once. The cancel func is accepted for AppController parity
// and is invoked when the call reaches its terminal state, so sibling
// services of the owning app wind down with the call.
func (c *Controller) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.teardown()
	if cancel != nil {
		defer cancel()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.C():
			seconds := c.clock.Tick()
			c.setSeconds(seconds)
			c.publish(callevents.DurationMsg{Seconds: seconds, Formatted: util.FormatDuration(seconds)})
		case ev := <-c.appEvents:
			c.handleAppEvent(ctx, ev)
		case ev := <-c.remote:
			c.handleRemoteEvent(ev)
		}
		if c.State() == StateEnded {
			return
		}
	}
}

func (c *Controller) handleAppEvent(ctx context.Context, ev appevents.AppEvent) {
	switch ev.(type) {
	case callevents.StartCallEvent:
		c.startCall(ctx)
	case callevents.AcceptCallEvent:
		c.acceptCall(ctx)
	case callevents.DeclineCallEvent:
		c.declineCall()
	case callevents.HangUpEvent:
		c.transition(TriggerEnd)
	case callevents.ToggleMuteEvent:
		c.mu.Lock()
		c.muted = !c.muted
		muted, speaker := c.muted, c.speaker
		c.mu.Unlock()
		c.publish(callevents.ControlsMsg{Muted: muted, Speaker: speaker})
	case callevents.ToggleSpeakerEvent:
		c.mu.Lock()
		c.speaker = !c.speaker
		muted, speaker := c.muted, c.speaker
		c.mu.Unlock()
		c.publish(callevents.ControlsMsg{Muted: muted, Speaker: speaker})
	default:
		slog.Warn("Received unhandled app event", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) handleRemoteEvent(ev remoteEvent) {
	switch ev := ev.(type) {
	case statusChangedEvent:
		switch ev.status {
		case signaling.StatusConnecting:
			c.transition(TriggerRemoteConnecting)
		case signaling.StatusConnected:
			c.transition(TriggerConnected)
		case signaling.StatusEnded:
			c.transition(TriggerEnd)
		case signaling.StatusRinging:
			// Redundant echo of our own offer write.
		}
	case answerSetEvent:
		// The answer field and the status field are independent signals of
		// the same logical event; apply makes the second one a no-op.
		c.transition(TriggerConnected)
	}
}

// startCall drives the caller flow: create the record, write the stub
// offer, then subscribe to the two fields that can report the callee's
// answer. Any failure ends the call locally; the UI sees a plain hangup.
func (c *Controller) startCall(ctx context.Context) {
	if !c.isCaller {
		slog.Warn("StartCallEvent on a callee controller, ignoring")
		return
	}
	if c.State() != StateIdle {
		return
	}
	c.transition(TriggerDial)

	callID, err := c.channel.CreateCall(ctx, c.myUID, c.otherUID)
	if err != nil {
		c.failSetup("Failed to create call record", err)
		return
	}
	if err := c.channel.WriteOffer(ctx, StubOfferSDP(callID)); err != nil {
		c.failSetup("Failed to write offer", err)
		return
	}
	slog.Info("Offer created", "call_id", callID)

	if err := c.channel.SubscribeStatus(ctx, func(s signaling.CallStatus) {
		c.enqueueRemote(statusChangedEvent{status: s})
	}); err != nil {
		c.failSetup("Failed to subscribe to call status", err)
		return
	}
	if err := c.channel.SubscribeAnswer(ctx, func(string) {
		c.enqueueRemote(answerSetEvent{})
	}); err != nil {
		c.failSetup("Failed to subscribe to call answer", err)
		return
	}
}

// acceptCall drives the callee flow: load the offer, write the stub answer
// (which implies connecting on the wire), then force status=connected
// without waiting for the caller's acknowledgment, and go live locally.
func (c *Controller) acceptCall(ctx context.Context) {
	if c.isCaller {
		slog.Warn("AcceptCallEvent on a caller controller, ignoring")
		return
	}
	if c.State() != StateRinging {
		return
	}
	c.transition(TriggerAccept)

	callID := c.channel.CallID()
	offer, err := c.channel.LoadOffer(ctx, callID)
	if err != nil {
		c.failSetup("Failed to load offer", err)
		return
	}
	slog.Debug("Offer loaded", "call_id", callID, "offer_bytes", len(offer))

	if err := c.channel.WriteAnswer(ctx, StubAnswerSDP(callID)); err != nil {
		c.failSetup("Failed to write answer", err)
		return
	}
	if err := c.channel.MarkConnected(ctx); err != nil {
		c.failSetup("Failed to mark call connected", err)
		return
	}
	if err := c.channel.SubscribeStatus(ctx, func(s signaling.CallStatus) {
		c.enqueueRemote(statusChangedEvent{status: s})
	}); err != nil {
		c.failSetup("Failed to subscribe to call status", err)
		return
	}

	c.transition(TriggerConnected)
}

// declineCall ends a ringing incoming call. The remote ended write happens
// in teardown and its outcome does not gate the local transition.
func (c *Controller) declineCall() {
	if c.isCaller {
		slog.Warn("DeclineCallEvent on a caller controller, ignoring")
		return
	}
	c.transition(TriggerEnd)
}

func (c *Controller) failSetup(msg string, err error) {
	// Setup failures are not retried and are not surfaced to the remote
	// peer; toward the UI they read as an ended call plus an error line.
	slog.Error(msg, "error", err)
	c.publish(appevents.Error{Err: fmt.Errorf("%s: %w", msg, err)})
	c.transition(TriggerEnd)
}

// transition applies a trigger to the state machine and performs the entry
// actions of the new state. Re-applying the current state is a no-op, so
// redundant or unordered notifications cannot restart the clock.
func (c *Controller) transition(t Trigger) {
	prev := c.State()
	next := apply(prev, t)
	if next == prev {
		return
	}
	c.setState(next)

	switch next {
	case StateRinging:
		c.publish(callevents.RingingMsg{})
	case StateConnecting:
		c.publish(callevents.ConnectingMsg{})
	case StateConnected:
		c.clock.Start()
		c.setSeconds(0)
		slog.Info("Call connected", "call_id", c.channel.CallID())
		c.publish(callevents.ConnectedMsg{})
		c.publish(callevents.DurationMsg{Seconds: 0, Formatted: util.FormatDuration(0)})
	case StateEnded:
		slog.Info("Call ended", "call_id", c.channel.CallID())
	}
}

// teardown stops the clock, releases every subscription, and makes the
// single best-effort attempt to write status=ended. Idempotent and safe
// regardless of how far setup got.
func (c *Controller) teardown() {
	c.teardownOnce.Do(func() {
		c.clock.Stop()
		c.channel.UnsubscribeAll()

		ctx, cancel := context.WithTimeout(context.Background(), endWriteTimeout)
		defer cancel()
		if err := c.channel.EndCall(ctx); err != nil {
			// An unbound channel just means the call never reached the
			// store; anything else is logged and dropped on purpose, the
			// local state machine stays authoritative.
			if !errors.Is(err, signaling.ErrNotBound) {
				slog.Warn("Best-effort end-call write failed", "call_id", c.channel.CallID(), "error", err)
			}
		}

		c.setState(StateEnded)
		c.publish(callevents.EndedMsg{})
		close(c.done)
	})
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) setSeconds(n int) {
	c.mu.Lock()
	c.seconds = n
	c.mu.Unlock()
}

// publish sends a message toward the UI without ever blocking the event
// loop. Messages are droppable snapshots; the next one supersedes them.
func (c *Controller) publish(msg tea.Msg) {
	select {
	case c.uiMessages <- msg:
	default:
		slog.Debug("Dropping UI message", "type", fmt.Sprintf("%T", msg))
	}
}

// StubOfferSDP is the placeholder negotiation payload written by the
// caller. A real media layer would substitute an SDP here without touching
// the record schema.
func StubOfferSDP(callID string) string {
	return "stub-offer-sdp-" + callID
}

// StubAnswerSDP is the placeholder negotiation payload written by the
// callee.
func StubAnswerSDP(callID string) string {
	return "stub-answer-sdp-" + callID
}
