package call

import (
	"context"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	appevents "github.com/llinks/callSignaler/internal/app_events"
	callevents "github.com/llinks/callSignaler/internal/app_events/call"
	"github.com/llinks/callSignaler/pkg/concurrency"
	"github.com/llinks/callSignaler/pkg/signaling"
)

// CalleeApp is the logic controller for the answer mode: it watches for
// incoming calls, prompts the UI, and spins up one Controller per accepted
// (or declined) call. The guard keeps it at one call at a time; further
// incoming calls are ignored until the active one ends.
type CalleeApp struct {
	store  signaling.Store
	chatID string
	myUID  string
	guard  *concurrency.ConcurrencyGuard

	uiMessages chan tea.Msg
	appEvents  chan appevents.AppEvent
	done       chan struct{}

	mu         sync.Mutex
	pending    signaling.IncomingCall
	hasPending bool
	active     *Controller
}

// NewCalleeApp creates the answer-mode application instance.
func NewCalleeApp(store signaling.Store, chatID, myUID string) *CalleeApp {
	return &CalleeApp{
		store:      store,
		chatID:     chatID,
		myUID:      myUID,
		guard:      concurrency.NewConcurrencyGuard(),
		uiMessages: make(chan tea.Msg, 32),
		appEvents:  make(chan appevents.AppEvent),
		done:       make(chan struct{}),
	}
}

// UIMessages returns the channel the TUI listens on.
func (a *CalleeApp) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events.
func (a *CalleeApp) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Done is closed once Run has returned and app events go unconsumed.
func (a *CalleeApp) Done() <-chan struct{} {
	return a.done
}

// Run starts the incoming-call watcher and the event loop, blocking until
// ctx is cancelled.
func (a *CalleeApp) Run(ctx context.Context, cancel context.CancelFunc) {
	defer close(a.done)
	if cancel != nil {
		defer cancel()
	}
	g, ctx := errgroup.WithContext(ctx)

	watcher := NewWatcher(a.store, a.chatID, a.myUID, a.guard, func(inc signaling.IncomingCall) {
		a.mu.Lock()
		if a.hasPending {
			a.mu.Unlock()
			slog.Info("Ignoring incoming call, another prompt is pending", "call_id", inc.CallID)
			return
		}
		a.pending = inc
		a.hasPending = true
		a.mu.Unlock()
		a.publish(callevents.IncomingCallMsg{CallID: inc.CallID, FromUID: inc.FromUID})
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev := <-a.appEvents:
				a.handleAppEvent(ctx, ev)
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("Callee app stopped", "error", err)
	}
}

func (a *CalleeApp) handleAppEvent(ctx context.Context, ev appevents.AppEvent) {
	switch ev.(type) {
	case callevents.AcceptCallEvent:
		a.answerPending(ctx, true)
	case callevents.DeclineCallEvent:
		a.answerPending(ctx, false)
	case callevents.HangUpEvent:
		if ctrl := a.activeController(); ctrl != nil {
			ctrl.HangUp()
		}
	case callevents.ToggleMuteEvent:
		if ctrl := a.activeController(); ctrl != nil {
			ctrl.ToggleMute()
		}
	case callevents.ToggleSpeakerEvent:
		if ctrl := a.activeController(); ctrl != nil {
			ctrl.ToggleSpeaker()
		}
	default:
		slog.Warn("Received unhandled app event", "event", ev)
	}
}

// answerPending resolves the pending prompt by constructing a Controller
// bound to the ringing record and either accepting or declining on it.
// hasPending stays held until the call completes: the guard only turns busy
// once the spawned goroutine acquires it, and a ring landing in that gap
// must not surface a second prompt.
func (a *CalleeApp) answerPending(ctx context.Context, accept bool) {
	a.mu.Lock()
	if !a.hasPending || a.active != nil {
		a.mu.Unlock()
		return
	}
	inc := a.pending

	ctrl := NewCallee(a.store, a.chatID, a.myUID, inc.FromUID, inc.CallID)
	a.active = ctrl
	a.mu.Unlock()

	go func() {
		err := a.guard.Execute(func() error {
			callCtx, callCancel := context.WithCancel(ctx)
			defer callCancel()

			go a.pipeUIMessages(ctrl)
			go func() {
				if accept {
					ctrl.Accept()
				} else {
					ctrl.Decline()
				}
			}()
			ctrl.Run(callCtx, nil)
			return nil
		})
		if err != nil {
			slog.Warn("Could not take the call", "call_id", inc.CallID, "error", err)
			a.publish(callevents.EndedMsg{})
		}
		a.mu.Lock()
		if a.active == ctrl {
			a.active = nil
		}
		a.hasPending = false
		a.mu.Unlock()
	}()
}

// pipeUIMessages forwards one controller's session updates to the app's
// UI channel until the controller is done.
func (a *CalleeApp) pipeUIMessages(ctrl *Controller) {
	for {
		select {
		case msg := <-ctrl.UIMessages():
			a.publish(msg)
		case <-ctrl.Done():
			// Drain what the controller published on its way out.
			for {
				select {
				case msg := <-ctrl.UIMessages():
					a.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (a *CalleeApp) activeController() *Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *CalleeApp) publish(msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	default:
		slog.Debug("Dropping UI message, queue is full")
	}
}
