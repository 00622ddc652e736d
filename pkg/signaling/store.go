package signaling

import "context"

// Store is the shared, push-notifying document store the signaling protocol
// runs over. Implementations must deliver watch notifications at least once,
// with no ordering guarantee between independent subscriptions; redundant
// notifications for the same logical value are allowed.
//
// The store is injected wherever it is needed so tests can substitute the
// in-memory implementation.
type Store interface {
	// CreateCall stores a new call record under chatID, assigning its ID and
	// CreatedAt, and returns the new id.
	CreateCall(ctx context.Context, chatID string, rec *CallRecord) (string, error)

	// GetCall reads one call record by id.
	GetCall(ctx context.Context, chatID, callID string) (*CallRecord, error)

	// UpdateCall applies a partial update to one call record.
	UpdateCall(ctx context.Context, chatID, callID string, update CallUpdate) error

	// AddCandidate appends a candidate document to one of the record's two
	// candidate collections.
	AddCandidate(ctx context.Context, chatID, callID string, side CandidateSide, cand Candidate) error

	// WatchCall fires onChange with a snapshot of the record immediately on
	// registration (when the record exists) and then on every change to it.
	// The initial delivery means a late subscriber still observes state it
	// would otherwise have missed.
	WatchCall(ctx context.Context, chatID, callID string, onChange func(*CallRecord)) (Subscription, error)

	// WatchIncoming fires onIncoming once per record that newly matches
	// toUid == toUID && status == ringing. Updates to an already-matched
	// record do not fire again.
	WatchIncoming(ctx context.Context, chatID, toUID string, onIncoming func(IncomingCall)) (Subscription, error)
}

// Subscription is a handle to an active watch. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}
