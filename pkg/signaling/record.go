package signaling

import "time"

// CallStatus is the lifecycle state stored on a call record.
// It progresses forward monotonically, except that any state may jump
// straight to StatusEnded. Once ended, further writes are meaningless.
type CallStatus string

const (
	StatusRinging    CallStatus = "ringing"
	StatusConnecting CallStatus = "connecting"
	StatusConnected  CallStatus = "connected"
	StatusEnded      CallStatus = "ended"
)

// CallRecord is the shared document representing one call attempt,
// scoped under a chat id. FromUID is always the caller. Offer is written
// only by the caller, Answer only by the callee; both sides may write
// Status (last write wins, every transition is monotonic-or-terminal).
type CallRecord struct {
	ID        string     `json:"id"`
	FromUID   string     `json:"fromUid"`
	ToUID     string     `json:"toUid"`
	Status    CallStatus `json:"status"`
	Offer     string     `json:"offer"`
	Answer    string     `json:"answer"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Clone returns a copy of the record so watchers can't mutate store state.
func (r *CallRecord) Clone() *CallRecord {
	c := *r
	return &c
}

// CandidateSide selects one of the two append-only candidate collections
// scoped to a call record.
type CandidateSide string

const (
	OfferCandidates  CandidateSide = "offerCandidates"
	AnswerCandidates CandidateSide = "answerCandidates"
)

// Candidate is a free-form ICE candidate document. The current media layer
// is stubbed and never reads these; the slot exists so a real negotiation
// payload can be carried without a schema change.
type Candidate map[string]any

// CallUpdate is a partial point update of a call record. Nil fields are
// left unchanged.
type CallUpdate struct {
	Offer  *string     `json:"offer,omitempty"`
	Answer *string     `json:"answer,omitempty"`
	Status *CallStatus `json:"status,omitempty"`
}

// IncomingCall is the notification payload for a newly-ringing call
// addressed to the local user.
type IncomingCall struct {
	CallID  string `json:"callId"`
	FromUID string `json:"fromUid"`
}

func strPtr(s string) *string { return &s }

func statusPtr(s CallStatus) *CallStatus { return &s }
