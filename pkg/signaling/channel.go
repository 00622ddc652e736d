package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotBound is returned by call-scoped operations before the channel has
// been bound to a call record. Hitting it indicates a controller bug, not a
// transient condition.
var ErrNotBound = errors.New("signaling channel is not bound to a call")

// ErrAlreadyBound is returned by CreateCall on a channel that already owns
// a call record; a channel is single-call-scoped.
var ErrAlreadyBound = errors.New("signaling channel is already bound to a call")

// Channel translates call-domain operations into store operations scoped to
// one chat and, once bound, one call record. It tracks every subscription it
// registers so teardown is a single bulk operation and nothing from one call
// can leak into the next.
type Channel struct {
	store  Store
	chatID string

	mu     sync.Mutex
	callID string
	subs   []Subscription
}

// NewChannel creates a channel for one call attempt within chatID.
func NewChannel(store Store, chatID string) *Channel {
	return &Channel{store: store, chatID: chatID}
}

// Bind attaches the channel to an existing call record. Used on the callee
// side, where the record id arrives with the incoming-call notification.
func (c *Channel) Bind(callID string) {
	c.mu.Lock()
	c.callID = callID
	c.mu.Unlock()
}

// CallID returns the bound call id, or "" if unbound.
func (c *Channel) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

func (c *Channel) boundCallID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callID == "" {
		return "", ErrNotBound
	}
	return c.callID, nil
}

// CreateCall creates a fresh ringing record with empty offer and answer and
// binds the channel to it.
func (c *Channel) CreateCall(ctx context.Context, fromUID, toUID string) (string, error) {
	c.mu.Lock()
	if c.callID != "" {
		c.mu.Unlock()
		return "", ErrAlreadyBound
	}
	c.mu.Unlock()

	id, err := c.store.CreateCall(ctx, c.chatID, &CallRecord{
		FromUID: fromUID,
		ToUID:   toUID,
		Status:  StatusRinging,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create call record: %w", err)
	}
	c.Bind(id)
	return id, nil
}

// WriteOffer sets the offer payload and re-asserts ringing.
func (c *Channel) WriteOffer(ctx context.Context, sdp string) error {
	id, err := c.boundCallID()
	if err != nil {
		return err
	}
	return c.store.UpdateCall(ctx, c.chatID, id, CallUpdate{
		Offer:  strPtr(sdp),
		Status: statusPtr(StatusRinging),
	})
}

// WriteAnswer sets the answer payload and moves the record to connecting.
func (c *Channel) WriteAnswer(ctx context.Context, sdp string) error {
	id, err := c.boundCallID()
	if err != nil {
		return err
	}
	return c.store.UpdateCall(ctx, c.chatID, id, CallUpdate{
		Answer: strPtr(sdp),
		Status: statusPtr(StatusConnecting),
	})
}

// MarkConnected force-writes status=connected. The accept flow issues this
// right after WriteAnswer without waiting for the caller's acknowledgment.
func (c *Channel) MarkConnected(ctx context.Context) error {
	id, err := c.boundCallID()
	if err != nil {
		return err
	}
	return c.store.UpdateCall(ctx, c.chatID, id, CallUpdate{
		Status: statusPtr(StatusConnected),
	})
}

// WriteCandidate appends an ICE candidate to the given side's collection.
// Protocol slot only; nothing reads these while media is stubbed.
func (c *Channel) WriteCandidate(ctx context.Context, side CandidateSide, cand Candidate) error {
	id, err := c.boundCallID()
	if err != nil {
		return err
	}
	return c.store.AddCandidate(ctx, c.chatID, id, side, cand)
}

// EndCall writes status=ended. Single attempt; callers treat a failure as
// best-effort and proceed with local teardown regardless.
func (c *Channel) EndCall(ctx context.Context) error {
	id, err := c.boundCallID()
	if err != nil {
		return err
	}
	return c.store.UpdateCall(ctx, c.chatID, id, CallUpdate{
		Status: statusPtr(StatusEnded),
	})
}

// LoadOffer binds the channel to an existing record and returns its offer.
func (c *Channel) LoadOffer(ctx context.Context, callID string) (string, error) {
	c.Bind(callID)
	rec, err := c.store.GetCall(ctx, c.chatID, callID)
	if err != nil {
		return "", fmt.Errorf("failed to load offer: %w", err)
	}
	return rec.Offer, nil
}

// SubscribeStatus fires onChange with the record's status on every remote
// write to the record. Delivery may be redundant and is unordered relative
// to other subscriptions on the same record.
func (c *Channel) SubscribeStatus(ctx context.Context, onChange func(CallStatus)) error {
	id, err := c.boundCallID()
	if err != nil {
		return err
	}
	sub, err := c.store.WatchCall(ctx, c.chatID, id, func(rec *CallRecord) {
		onChange(rec.Status)
	})
	if err != nil {
		return err
	}
	c.track(sub)
	return nil
}

// SubscribeAnswer fires onChange with the answer payload whenever the record
// changes and its answer is non-empty.
func (c *Channel) SubscribeAnswer(ctx context.Context, onChange func(string)) error {
	id, err := c.boundCallID()
	if err != nil {
		return err
	}
	sub, err := c.store.WatchCall(ctx, c.chatID, id, func(rec *CallRecord) {
		if rec.Answer != "" {
			onChange(rec.Answer)
		}
	})
	if err != nil {
		return err
	}
	c.track(sub)
	return nil
}

// SubscribeIncomingCalls fires onIncoming once per record that newly matches
// toUid == toUID && status == ringing. It is not call-scoped and works on an
// unbound channel.
func (c *Channel) SubscribeIncomingCalls(ctx context.Context, toUID string, onIncoming func(IncomingCall)) error {
	sub, err := c.store.WatchIncoming(ctx, c.chatID, toUID, onIncoming)
	if err != nil {
		return err
	}
	c.track(sub)
	return nil
}

func (c *Channel) track(sub Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// ActiveSubscriptions reports how many subscriptions the channel currently
// holds.
func (c *Channel) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// UnsubscribeAll releases every subscription this channel registered.
// Idempotent; calling it with no active subscriptions is a no-op.
func (c *Channel) UnsubscribeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
