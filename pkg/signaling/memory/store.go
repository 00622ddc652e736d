package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llinks/callSignaler/pkg/signaling"
)

// Store is an in-memory implementation of signaling.Store. It backs the
// serve command and the package tests. Watch notifications are delivered on
// their own goroutines, so ordering between independent subscriptions is
// deliberately not guaranteed, matching what a hosted document store gives
// the clients.
type Store struct {
	mu    sync.Mutex
	chats map[string]*chatDocs
}

type chatDocs struct {
	records    map[string]*signaling.CallRecord
	candidates map[string]map[signaling.CandidateSide][]signaling.Candidate

	callWatchers     map[string][]*callWatcher
	incomingWatchers []*incomingWatcher
}

func NewStore() *Store {
	return &Store{chats: make(map[string]*chatDocs)}
}

func (s *Store) chat(chatID string) *chatDocs {
	c, ok := s.chats[chatID]
	if !ok {
		c = &chatDocs{
			records:      make(map[string]*signaling.CallRecord),
			candidates:   make(map[string]map[signaling.CandidateSide][]signaling.Candidate),
			callWatchers: make(map[string][]*callWatcher),
		}
		s.chats[chatID] = c
	}
	return c
}

// CreateCall assigns an id and server timestamp to rec and stores it.
func (s *Store) CreateCall(ctx context.Context, chatID string, rec *signaling.CallRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chat(chatID)
	stored := rec.Clone()
	stored.ID = uuid.New().String()
	stored.CreatedAt = time.Now()
	c.records[stored.ID] = stored

	s.notifyLocked(c, stored)
	return stored.ID, nil
}

// GetCall returns a snapshot of one record.
func (s *Store) GetCall(ctx context.Context, chatID, callID string) (*signaling.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.chat(chatID).records[callID]
	if !ok {
		return nil, fmt.Errorf("call %q not found in chat %q", callID, chatID)
	}
	return rec.Clone(), nil
}

// UpdateCall applies a partial update and notifies watchers.
func (s *Store) UpdateCall(ctx context.Context, chatID, callID string, update signaling.CallUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chat(chatID)
	rec, ok := c.records[callID]
	if !ok {
		return fmt.Errorf("call %q not found in chat %q", callID, chatID)
	}
	if update.Offer != nil {
		rec.Offer = *update.Offer
	}
	if update.Answer != nil {
		rec.Answer = *update.Answer
	}
	if update.Status != nil {
		rec.Status = *update.Status
	}

	s.notifyLocked(c, rec)
	return nil
}

// AddCandidate appends to one of the record's candidate collections.
func (s *Store) AddCandidate(ctx context.Context, chatID, callID string, side signaling.CandidateSide, cand signaling.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chat(chatID)
	if _, ok := c.records[callID]; !ok {
		return fmt.Errorf("call %q not found in chat %q", callID, chatID)
	}
	if c.candidates[callID] == nil {
		c.candidates[callID] = make(map[signaling.CandidateSide][]signaling.Candidate)
	}
	c.candidates[callID][side] = append(c.candidates[callID][side], cand)
	return nil
}

// Candidates returns the stored candidate documents for one side of a call.
func (s *Store) Candidates(chatID, callID string, side signaling.CandidateSide) []signaling.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.Candidate(nil), s.chat(chatID).candidates[callID][side]...)
}

// notifyLocked fans a record change out to every watcher. Each notification
// runs on its own goroutine; a slow or redundant delivery must never block
// a writer.
func (s *Store) notifyLocked(c *chatDocs, rec *signaling.CallRecord) {
	snapshot := rec.Clone()
	for _, w := range c.callWatchers[rec.ID] {
		w.deliver(snapshot)
	}
	for _, w := range c.incomingWatchers {
		w.deliverIfNewlyMatching(snapshot)
	}
}

// WatchCall registers a watcher on one record. The record's current state
// is delivered right away, so a watcher attaching after a write still
// learns what it missed; every subsequent change follows.
func (s *Store) WatchCall(ctx context.Context, chatID, callID string, onChange func(*signaling.CallRecord)) (signaling.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chat(chatID)
	w := &callWatcher{onChange: onChange}
	c.callWatchers[callID] = append(c.callWatchers[callID], w)
	if rec, ok := c.records[callID]; ok {
		w.deliver(rec.Clone())
	}
	return w, nil
}

// WatchIncoming registers a watcher over the chat's call collection,
// filtered to toUid == toUID && status == ringing. It fires once per
// newly-matching record. Records that already match when the watcher is
// registered are reported too, so a callee that subscribes late still sees
// a ringing call.
func (s *Store) WatchIncoming(ctx context.Context, chatID, toUID string, onIncoming func(signaling.IncomingCall)) (signaling.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chat(chatID)
	w := &incomingWatcher{
		toUID:      toUID,
		onIncoming: onIncoming,
		notified:   make(map[string]bool),
	}
	c.incomingWatchers = append(c.incomingWatchers, w)

	for _, rec := range c.records {
		w.deliverIfNewlyMatching(rec.Clone())
	}
	return w, nil
}

type callWatcher struct {
	mu       sync.Mutex
	removed  bool
	onChange func(*signaling.CallRecord)
}

func (w *callWatcher) deliver(rec *signaling.CallRecord) {
	w.mu.Lock()
	removed := w.removed
	w.mu.Unlock()
	if removed {
		return
	}
	go w.onChange(rec)
}

func (w *callWatcher) Unsubscribe() {
	w.mu.Lock()
	w.removed = true
	w.mu.Unlock()
}

type incomingWatcher struct {
	mu         sync.Mutex
	removed    bool
	toUID      string
	onIncoming func(signaling.IncomingCall)
	notified   map[string]bool
}

func (w *incomingWatcher) deliverIfNewlyMatching(rec *signaling.CallRecord) {
	if rec.ToUID != w.toUID || rec.Status != signaling.StatusRinging {
		return
	}
	w.mu.Lock()
	if w.removed || w.notified[rec.ID] {
		w.mu.Unlock()
		return
	}
	w.notified[rec.ID] = true
	w.mu.Unlock()

	go w.onIncoming(signaling.IncomingCall{CallID: rec.ID, FromUID: rec.FromUID})
}

func (w *incomingWatcher) Unsubscribe() {
	w.mu.Lock()
	w.removed = true
	w.mu.Unlock()
}
