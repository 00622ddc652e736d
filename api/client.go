package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/llinks/callSignaler/pkg/signaling"
)

// uidInjector is a custom http.RoundTripper that stamps the local user id
// onto each request.
type uidInjector struct {
	uid  string
	next http.RoundTripper
}

func (t *uidInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(ClientUIDHeader, t.uid)
	return t.next.RoundTrip(req)
}

// RemoteStore implements signaling.Store against a Server, with plain HTTP
// for point operations and WebSockets for the watch queries. Every store
// operation is a single attempt; transient failures are not retried here,
// the controller's error taxonomy decides what a failure means.
type RemoteStore struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	header     http.Header
}

// NewRemoteStore points a store client at baseURL (e.g. http://host:port),
// identifying as uid.
func NewRemoteStore(baseURL, uid string) *RemoteStore {
	header := http.Header{}
	header.Set(ClientUIDHeader, uid)
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &uidInjector{
				uid:  uid,
				next: http.DefaultTransport,
			},
		},
		dialer: websocket.DefaultDialer,
		header: header,
	}
}

func (s *RemoteStore) callsURL(chatID string, parts ...string) string {
	u := s.baseURL + "/chats/" + url.PathEscape(chatID) + "/calls"
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (s *RemoteStore) doJSON(ctx context.Context, method, u string, body, out any) error {
	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("store responded with %s", resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode store response: %w", err)
		}
	}
	return nil
}

func (s *RemoteStore) CreateCall(ctx context.Context, chatID string, rec *signaling.CallRecord) (string, error) {
	var stored signaling.CallRecord
	if err := s.doJSON(ctx, http.MethodPost, s.callsURL(chatID), rec, &stored); err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (s *RemoteStore) GetCall(ctx context.Context, chatID, callID string) (*signaling.CallRecord, error) {
	var rec signaling.CallRecord
	if err := s.doJSON(ctx, http.MethodGet, s.callsURL(chatID, callID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RemoteStore) UpdateCall(ctx context.Context, chatID, callID string, update signaling.CallUpdate) error {
	return s.doJSON(ctx, http.MethodPatch, s.callsURL(chatID, callID), update, nil)
}

func (s *RemoteStore) AddCandidate(ctx context.Context, chatID, callID string, side signaling.CandidateSide, cand signaling.Candidate) error {
	return s.doJSON(ctx, http.MethodPost, s.callsURL(chatID, callID, "candidates", string(side)), cand, nil)
}

func (s *RemoteStore) WatchCall(ctx context.Context, chatID, callID string, onChange func(*signaling.CallRecord)) (signaling.Subscription, error) {
	return s.watch(ctx, s.callsURL(chatID, callID, "watch"), func(data []byte) {
		var rec signaling.CallRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.Warn("Discarding malformed call snapshot", "error", err)
			return
		}
		onChange(&rec)
	})
}

func (s *RemoteStore) WatchIncoming(ctx context.Context, chatID, toUID string, onIncoming func(signaling.IncomingCall)) (signaling.Subscription, error) {
	u := s.callsURL(chatID, "watch") + "?toUid=" + url.QueryEscape(toUID)
	return s.watch(ctx, u, func(data []byte) {
		var inc signaling.IncomingCall
		if err := json.Unmarshal(data, &inc); err != nil {
			slog.Warn("Discarding malformed incoming-call notification", "error", err)
			return
		}
		onIncoming(inc)
	})
}

// watch dials the WebSocket behind httpURL and feeds every message to
// handle on a dedicated reader goroutine. A store-level read error inside
// the stream is treated as "no further updates": the subscription goes
// quiet and no resubscription is attempted.
func (s *RemoteStore) watch(ctx context.Context, httpURL string, handle func([]byte)) (signaling.Subscription, error) {
	conn, resp, err := s.dialer.DialContext(ctx, toWebSocketURL(httpURL), s.header)
	if err != nil {
		return nil, fmt.Errorf("failed to open watch stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	sub := &wsSubscription{conn: conn}
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !sub.closedByUs() {
					slog.Debug("Watch stream closed", "error", err)
				}
				return
			}
			handle(data)
		}
	}()
	return sub, nil
}

func toWebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

type wsSubscription struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done bool
}

func (s *wsSubscription) Unsubscribe() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.conn.Close()
}

func (s *wsSubscription) closedByUs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
