package call

import "encoding/json"

// Wire message types. One canonical schema for both directions; the channel
// layer decodes inbound envelopes into InboundMessage and refuses to guess at
// anything it does not recognize.
const (
	// inbound
	MsgConnected     = "connected"
	MsgTranscript    = "transcript"
	MsgSuggestion    = "suggestion"
	MsgConsentUpdate = "consent_update"
	MsgCallEnded     = "call_ended"
	MsgError         = "error"
	MsgPong          = "pong"

	// outbound
	MsgStart              = "start"
	MsgConsentGranted     = "consent_granted"
	MsgConsentDenied      = "consent_denied"
	MsgConsentRevoked     = "consent_revoked"
	MsgEnd                = "end"
	MsgSuggestionFeedback = "suggestion_feedback"
	MsgRequestHelp        = "request_help"
	MsgPing               = "ping"
)

// Envelope is the JSON frame shape on the session channel.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StartData carries call context in the session-start message.
type StartData struct {
	ProspectName    string `json:"prospect_name,omitempty"`
	ProspectCompany string `json:"prospect_company,omitempty"`
	Objective       string `json:"objective,omitempty"`
	Context         string `json:"context,omitempty"`
}

// ConsentUpdate acknowledges a consent transition from the server side.
type ConsentUpdate struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// FeedbackData reports the user's verdict on one suggestion.
type FeedbackData struct {
	SuggestionID string `json:"suggestion_id"`
	WasUsed      bool   `json:"was_used"`
	WasHelpful   bool   `json:"was_helpful"`
}

// HelpRequestData asks the server for an on-demand suggestion.
type HelpRequestData struct {
	Kind       HelpKind `json:"kind"`
	Needs      string   `json:"needs,omitempty"`
	PainPoints []string `json:"pain_points,omitempty"`
	Objection  string   `json:"objection,omitempty"`
}

// CallEnded is the server's terminal summary event.
type CallEnded struct {
	CallID          string          `json:"call_id"`
	DurationSeconds int             `json:"duration_seconds"`
	Summary         json.RawMessage `json:"summary,omitempty"`
	Analytics       json.RawMessage `json:"analytics,omitempty"`
}

// InboundKind distinguishes decoded inbound messages. Unrecognized wire types
// map to InboundUnknown rather than failing the session.
type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundConnected
	InboundTranscript
	InboundSuggestion
	InboundConsentUpdate
	InboundCallEnded
	InboundError
	InboundPong
)

// InboundMessage is the tagged-union decode of one inbound envelope. Exactly
// the field matching Kind is populated.
type InboundMessage struct {
	Kind       InboundKind
	Segment    *TranscriptSegment
	Suggestion *Suggestion
	Consent    *ConsentUpdate
	Ended      *CallEnded
	ErrMessage string
	// RawType preserves the wire type for unknown messages (logging only).
	RawType string
}

// ChannelEventKind classifies connection-level events from the channel.
type ChannelEventKind int

const (
	EventConnected ChannelEventKind = iota
	EventMessage
	EventDisconnected
	EventError
)

// ChannelEvent is one item delivered on DuplexChannel.Events. Message is set
// only for EventMessage; Err only for EventError.
type ChannelEvent struct {
	Kind    ChannelEventKind
	Message *InboundMessage
	Err     error
}
