package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llinks/callSignaler/pkg/signaling"
	"github.com/llinks/callSignaler/pkg/signaling/memory"
)

const (
	waitFor  = 2 * time.Second
	pollTick = 10 * time.Millisecond
)

func TestCallerStartCreatesRingingRecord(t *testing.T) {
	store := memory.NewStore()
	ctrl := NewCaller(store, "chat-1", "alice", "bob")
	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx, nil)

	ctrl.Start()

	require.Eventually(t, func() bool {
		return ctrl.State() == StateRinging && ctrl.CallID() != ""
	}, waitFor, pollTick)

	rec, err := store.GetCall(context.Background(), "chat-1", ctrl.CallID())
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.FromUID)
	assert.Equal(t, "bob", rec.ToUID)
	assert.Equal(t, signaling.StatusRinging, rec.Status)
	assert.Equal(t, StubOfferSDP(rec.ID), rec.Offer)
	assert.Empty(t, rec.Answer)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, 2, ctrl.ActiveSubscriptions())

	cancel()
	<-ctrl.Done()

	rec, err = store.GetCall(context.Background(), "chat-1", ctrl.CallID())
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusEnded, rec.Status)
	assert.Equal(t, 0, ctrl.ActiveSubscriptions())
}

// The answer field and the status field are independent connected signals;
// either alone must bring the caller live, and the late arrival of the other
// must change nothing.
func TestCallerConnectsOnAnswerAlone(t *testing.T) {
	store := memory.NewStore()
	ctrl := NewCaller(store, "chat-1", "alice", "bob")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx, nil)

	ctrl.Start()
	require.Eventually(t, func() bool { return ctrl.CallID() != "" }, waitFor, pollTick)
	callID := ctrl.CallID()

	answer := StubAnswerSDP(callID)
	require.NoError(t, store.UpdateCall(ctx, "chat-1", callID, signaling.CallUpdate{Answer: &answer}))

	require.Eventually(t, func() bool {
		return ctrl.State() == StateConnected
	}, waitFor, pollTick)

	// The redundant status write lands afterwards; the session stays live.
	connected := signaling.StatusConnected
	require.NoError(t, store.UpdateCall(ctx, "chat-1", callID, signaling.CallUpdate{Status: &connected}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateConnected, ctrl.State())

	ctrl.HangUp()
	<-ctrl.Done()
	rec, err := store.GetCall(context.Background(), "chat-1", callID)
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusEnded, rec.Status)
}

// A duplicate connected trigger must not pass through the entry actions, so
// an in-progress duration counter keeps its value.
func TestDuplicateConnectedKeepsClock(t *testing.T) {
	ctrl := NewCaller(memory.NewStore(), "chat-1", "alice", "bob")
	ctrl.setState(StateConnected)
	ctrl.clock.Start()
	defer ctrl.clock.Stop()
	ctrl.clock.Tick()
	ctrl.clock.Tick()

	ctrl.transition(TriggerConnected)

	assert.Equal(t, StateConnected, ctrl.State())
	assert.True(t, ctrl.clock.Running())
	assert.Equal(t, 2, ctrl.clock.Seconds())
}

func TestTeardownIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	id, err := store.CreateCall(context.Background(), "chat-1", &signaling.CallRecord{
		FromUID: "alice", ToUID: "bob", Status: signaling.StatusRinging,
	})
	require.NoError(t, err)

	ctrl := NewCallee(store, "chat-1", "bob", "alice", id)
	ctrl.teardown()
	ctrl.teardown()

	assert.Equal(t, StateEnded, ctrl.State())
	assert.Equal(t, 0, ctrl.ActiveSubscriptions())
	select {
	case <-ctrl.Done():
	default:
		t.Fatal("Done channel is not closed after teardown")
	}

	rec, err := store.GetCall(context.Background(), "chat-1", id)
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusEnded, rec.Status)
}

// A caller that never reached the store has nothing to end remotely;
// teardown must still complete cleanly.
func TestTeardownBeforeCallRecordExists(t *testing.T) {
	ctrl := NewCaller(memory.NewStore(), "chat-1", "alice", "bob")
	ctrl.teardown()
	assert.Equal(t, StateEnded, ctrl.State())
}

func TestFullCallBetweenTwoControllers(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caller := NewCaller(store, "chat-1", "alice", "bob")
	go caller.Run(ctx, nil)
	caller.Start()
	require.Eventually(t, func() bool { return caller.CallID() != "" }, waitFor, pollTick)
	callID := caller.CallID()

	callee := NewCallee(store, "chat-1", "bob", "alice", callID)
	assert.Equal(t, StateRinging, callee.State())
	go callee.Run(ctx, nil)
	callee.Accept()

	require.Eventually(t, func() bool {
		return caller.State() == StateConnected && callee.State() == StateConnected
	}, waitFor, pollTick)

	rec, err := store.GetCall(context.Background(), "chat-1", callID)
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusConnected, rec.Status)
	assert.Equal(t, StubAnswerSDP(callID), rec.Answer)

	callee.HangUp()
	<-callee.Done()
	<-caller.Done()

	rec, err = store.GetCall(context.Background(), "chat-1", callID)
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusEnded, rec.Status)
	assert.Equal(t, 0, caller.ActiveSubscriptions())
	assert.Equal(t, 0, callee.ActiveSubscriptions())
}

func TestToggleControlsAreLocalOnly(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := NewCaller(store, "chat-1", "alice", "bob")
	go ctrl.Run(ctx, nil)
	ctrl.Start()
	require.Eventually(t, func() bool { return ctrl.CallID() != "" }, waitFor, pollTick)

	ctrl.ToggleMute()
	ctrl.ToggleSpeaker()
	require.Eventually(t, func() bool {
		return ctrl.Muted() && ctrl.Speaker()
	}, waitFor, pollTick)

	ctrl.ToggleMute()
	require.Eventually(t, func() bool {
		return !ctrl.Muted() && ctrl.Speaker()
	}, waitFor, pollTick)

	// Nothing about the toggles reaches the record.
	rec, err := store.GetCall(context.Background(), "chat-1", ctrl.CallID())
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusRinging, rec.Status)
}

// fastAnswerStore lands the callee's answer and connected writes as soon as
// the caller's offer write completes, before the caller's subscriptions
// attach.
type fastAnswerStore struct {
	*memory.Store
	once sync.Once
}

func (f *fastAnswerStore) UpdateCall(ctx context.Context, chatID, callID string, update signaling.CallUpdate) error {
	if err := f.Store.UpdateCall(ctx, chatID, callID, update); err != nil {
		return err
	}
	f.once.Do(func() {
		answer := "answer-sdp"
		connected := signaling.StatusConnected
		_ = f.Store.UpdateCall(ctx, chatID, callID, signaling.CallUpdate{Answer: &answer, Status: &connected})
	})
	return nil
}

// A callee can answer in the gap between the caller's offer write and its
// watch registrations. The initial snapshot the subscriptions deliver on
// attach closes that gap; without it the caller would ring forever.
func TestCallerConnectsWhenAnswerLandsBeforeSubscribe(t *testing.T) {
	store := &fastAnswerStore{Store: memory.NewStore()}
	ctrl := NewCaller(store, "chat-1", "alice", "bob")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx, nil)

	ctrl.Start()

	require.Eventually(t, func() bool {
		return ctrl.State() == StateConnected
	}, waitFor, pollTick)
}

// failingStore rejects every write that goes through UpdateCall.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) UpdateCall(ctx context.Context, chatID, callID string, update signaling.CallUpdate) error {
	return errors.New("write rejected")
}

// The ended write is best effort: a store that rejects it must not keep the
// local call alive.
func TestDeclineEndsLocallyWhenWritesFail(t *testing.T) {
	inner := memory.NewStore()
	id, err := inner.CreateCall(context.Background(), "chat-1", &signaling.CallRecord{
		FromUID: "alice", ToUID: "bob", Status: signaling.StatusRinging,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	callee := NewCallee(&failingStore{inner}, "chat-1", "bob", "alice", id)
	go callee.Run(ctx, nil)
	callee.Decline()

	select {
	case <-callee.Done():
	case <-time.After(waitFor):
		t.Fatal("callee did not tear down with a failing store")
	}
	assert.Equal(t, StateEnded, callee.State())

	// The record keeps whatever state the failed write left behind.
	rec, err := inner.GetCall(context.Background(), "chat-1", id)
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusRinging, rec.Status)
}

func TestDurationFormatting(t *testing.T) {
	ctrl := NewCaller(memory.NewStore(), "chat-1", "alice", "bob")
	assert.Equal(t, "00:00", ctrl.FormattedDuration())
	ctrl.setSeconds(65)
	assert.Equal(t, "01:05", ctrl.FormattedDuration())
}
