package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llinks/callSignaler/pkg/signaling"
)

func newRinging(t *testing.T, s *Store, chatID, from, to string) string {
	t.Helper()
	id, err := s.CreateCall(context.Background(), chatID, &signaling.CallRecord{
		FromUID: from, ToUID: to, Status: signaling.StatusRinging,
	})
	require.NoError(t, err)
	return id
}

func TestGetCallReturnsSnapshot(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := newRinging(t, s, "chat-1", "alice", "bob")

	rec, err := s.GetCall(ctx, "chat-1", id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	// Mutating the snapshot must not touch the stored record.
	rec.Status = signaling.StatusEnded
	again, err := s.GetCall(ctx, "chat-1", id)
	require.NoError(t, err)
	assert.Equal(t, signaling.StatusRinging, again.Status)
}

func TestGetCallUnknownID(t *testing.T) {
	s := NewStore()
	_, err := s.GetCall(context.Background(), "chat-1", "nope")
	assert.Error(t, err)
}

func TestUpdateCallAppliesPartialUpdates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := newRinging(t, s, "chat-1", "alice", "bob")

	offer := "offer-sdp"
	require.NoError(t, s.UpdateCall(ctx, "chat-1", id, signaling.CallUpdate{Offer: &offer}))

	rec, err := s.GetCall(ctx, "chat-1", id)
	require.NoError(t, err)
	assert.Equal(t, "offer-sdp", rec.Offer)
	assert.Equal(t, signaling.StatusRinging, rec.Status)

	connected := signaling.StatusConnected
	require.NoError(t, s.UpdateCall(ctx, "chat-1", id, signaling.CallUpdate{Status: &connected}))
	rec, err = s.GetCall(ctx, "chat-1", id)
	require.NoError(t, err)
	assert.Equal(t, "offer-sdp", rec.Offer)
	assert.Equal(t, signaling.StatusConnected, rec.Status)
}

func TestWatchCallDeliversEveryChange(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := newRinging(t, s, "chat-1", "alice", "bob")

	changes := make(chan *signaling.CallRecord, 8)
	sub, err := s.WatchCall(ctx, "chat-1", id, func(rec *signaling.CallRecord) { changes <- rec })
	require.NoError(t, err)

	// Registration delivers the current state first.
	select {
	case rec := <-changes:
		assert.Equal(t, signaling.StatusRinging, rec.Status)
	case <-time.After(time.Second):
		t.Fatal("initial snapshot never arrived")
	}

	connected := signaling.StatusConnected
	require.NoError(t, s.UpdateCall(ctx, "chat-1", id, signaling.CallUpdate{Status: &connected}))

	select {
	case rec := <-changes:
		assert.Equal(t, signaling.StatusConnected, rec.Status)
	case <-time.After(time.Second):
		t.Fatal("watch notification never arrived")
	}

	sub.Unsubscribe()
	ended := signaling.StatusEnded
	require.NoError(t, s.UpdateCall(ctx, "chat-1", id, signaling.CallUpdate{Status: &ended}))
	select {
	case rec := <-changes:
		t.Fatalf("unexpected notification %v after unsubscribe", rec.Status)
	case <-time.After(50 * time.Millisecond):
	}
}

// A watcher that attaches after writes have landed must still observe the
// record's current state; without the initial snapshot it would wait on a
// change that already happened.
func TestWatchCallReportsStateOnRegistration(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := newRinging(t, s, "chat-1", "alice", "bob")

	answer := "answer-sdp"
	connected := signaling.StatusConnected
	require.NoError(t, s.UpdateCall(ctx, "chat-1", id, signaling.CallUpdate{Answer: &answer, Status: &connected}))

	changes := make(chan *signaling.CallRecord, 4)
	sub, err := s.WatchCall(ctx, "chat-1", id, func(rec *signaling.CallRecord) { changes <- rec })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case rec := <-changes:
		assert.Equal(t, signaling.StatusConnected, rec.Status)
		assert.Equal(t, "answer-sdp", rec.Answer)
	case <-time.After(time.Second):
		t.Fatal("current state was not delivered on registration")
	}
}

func TestWatchCallUnknownRecordDeliversNothing(t *testing.T) {
	s := NewStore()
	changes := make(chan *signaling.CallRecord, 4)
	sub, err := s.WatchCall(context.Background(), "chat-1", "nope", func(rec *signaling.CallRecord) { changes <- rec })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case rec := <-changes:
		t.Fatalf("unexpected snapshot %v for a record that does not exist", rec)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchIncomingFiresOncePerRecord(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	incoming := make(chan signaling.IncomingCall, 8)
	sub, err := s.WatchIncoming(ctx, "chat-1", "bob", func(inc signaling.IncomingCall) { incoming <- inc })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	id := newRinging(t, s, "chat-1", "alice", "bob")
	select {
	case inc := <-incoming:
		assert.Equal(t, id, inc.CallID)
		assert.Equal(t, "alice", inc.FromUID)
	case <-time.After(time.Second):
		t.Fatal("incoming notification never arrived")
	}

	// Re-asserting ringing on the same record must not fire again.
	ringing := signaling.StatusRinging
	require.NoError(t, s.UpdateCall(ctx, "chat-1", id, signaling.CallUpdate{Status: &ringing}))
	select {
	case inc := <-incoming:
		t.Fatalf("duplicate incoming notification for %s", inc.CallID)
	case <-time.After(50 * time.Millisecond):
	}

	second := newRinging(t, s, "chat-1", "carol", "bob")
	select {
	case inc := <-incoming:
		assert.Equal(t, second, inc.CallID)
	case <-time.After(time.Second):
		t.Fatal("second incoming notification never arrived")
	}
}

func TestWatchIncomingReportsExistingRingingCalls(t *testing.T) {
	s := NewStore()
	id := newRinging(t, s, "chat-1", "alice", "bob")

	incoming := make(chan signaling.IncomingCall, 4)
	sub, err := s.WatchIncoming(context.Background(), "chat-1", "bob", func(inc signaling.IncomingCall) { incoming <- inc })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case inc := <-incoming:
		assert.Equal(t, id, inc.CallID)
	case <-time.After(time.Second):
		t.Fatal("pre-existing ringing call was not reported")
	}
}

func TestWatchIncomingFiltersUIDAndStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	incoming := make(chan signaling.IncomingCall, 4)
	sub, err := s.WatchIncoming(ctx, "chat-1", "bob", func(inc signaling.IncomingCall) { incoming <- inc })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	newRinging(t, s, "chat-1", "alice", "carol")
	_, err = s.CreateCall(ctx, "chat-1", &signaling.CallRecord{
		FromUID: "alice", ToUID: "bob", Status: signaling.StatusConnected,
	})
	require.NoError(t, err)

	select {
	case inc := <-incoming:
		t.Fatalf("unexpected incoming notification for %s", inc.CallID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCandidatesAccumulatePerSide(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := newRinging(t, s, "chat-1", "alice", "bob")

	require.NoError(t, s.AddCandidate(ctx, "chat-1", id, signaling.OfferCandidates, signaling.Candidate{"candidate": "a"}))
	require.NoError(t, s.AddCandidate(ctx, "chat-1", id, signaling.OfferCandidates, signaling.Candidate{"candidate": "b"}))
	require.NoError(t, s.AddCandidate(ctx, "chat-1", id, signaling.AnswerCandidates, signaling.Candidate{"candidate": "c"}))

	assert.Len(t, s.Candidates("chat-1", id, signaling.OfferCandidates), 2)
	assert.Len(t, s.Candidates("chat-1", id, signaling.AnswerCandidates), 1)

	assert.Error(t, s.AddCandidate(ctx, "chat-1", "nope", signaling.OfferCandidates, signaling.Candidate{}))
}
