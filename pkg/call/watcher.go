package call

import (
	"context"
	"log/slog"

	"github.com/llinks/callSignaler/pkg/concurrency"
	"github.com/llinks/callSignaler/pkg/signaling"
)

// Watcher surfaces ringing calls addressed to the local user. Notifications
// that arrive while the guard is busy (a call is already in progress) are
// dropped, not queued: at most one active call per client.
type Watcher struct {
	channel *signaling.Channel
	myUID   string
	guard   *concurrency.ConcurrencyGuard
	notify  func(signaling.IncomingCall)
}

func NewWatcher(store signaling.Store, chatID, myUID string, guard *concurrency.ConcurrencyGuard, notify func(signaling.IncomingCall)) *Watcher {
	return &Watcher{
		channel: signaling.NewChannel(store, chatID),
		myUID:   myUID,
		guard:   guard,
		notify:  notify,
	}
}

// Run subscribes for incoming calls and blocks until ctx is cancelled,
// then releases the subscription.
func (w *Watcher) Run(ctx context.Context) error {
	err := w.channel.SubscribeIncomingCalls(ctx, w.myUID, func(inc signaling.IncomingCall) {
		if w.guard.Busy() {
			slog.Info("Ignoring incoming call while another call is active", "call_id", inc.CallID, "from", inc.FromUID)
			return
		}
		w.notify(inc)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	w.channel.UnsubscribeAll()
	return ctx.Err()
}
