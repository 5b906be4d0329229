package call

import (
	"context"
	"errors"
	"time"
)

// Speaker identifies who an utterance is attributed to. Attribution comes
// from the transcription service's diarization; the client never re-labels.
type Speaker string

const (
	SpeakerSalesperson Speaker = "salesperson"
	SpeakerProspect    Speaker = "prospect"
	SpeakerUnknown     Speaker = "unknown"
)

// TranscriptSegment is one utterance fragment. Times are seconds relative to
// session start. A non-final segment is provisional and will be superseded.
type TranscriptSegment struct {
	Text       string  `json:"text"`
	Speaker    Speaker `json:"speaker"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

// SuggestionType categorizes a coaching suggestion.
type SuggestionType string

const (
	SuggestionResponse         SuggestionType = "response"
	SuggestionQuestion         SuggestionType = "question"
	SuggestionObjectionHandler SuggestionType = "objection_handler"
	SuggestionProductPitch     SuggestionType = "product_pitch"
	SuggestionClosing          SuggestionType = "closing"
	SuggestionRapport          SuggestionType = "rapport"
	SuggestionNextStep         SuggestionType = "next_step"
)

// Suggestion is one coaching recommendation pushed by the server or returned
// by the stateless fallback endpoint.
type Suggestion struct {
	ID          string         `json:"id,omitempty"`
	Type        SuggestionType `json:"type"`
	Content     string         `json:"content"`
	Context     string         `json:"context,omitempty"`
	Confidence  float64        `json:"confidence"`
	Priority    int            `json:"priority,omitempty"`
	Alternative string         `json:"alternative,omitempty"`
}

// LifecycleState is the session state machine position.
type LifecycleState string

const (
	StateIdle            LifecycleState = "idle"
	StateAwaitingConsent LifecycleState = "awaiting_consent"
	StateActive          LifecycleState = "active"
	StateEnded           LifecycleState = "ended"
)

// ConsentState gates audio transmission. It never persists across sessions.
type ConsentState string

const (
	ConsentUnset   ConsentState = "unset"
	ConsentGranted ConsentState = "granted"
	ConsentDenied  ConsentState = "denied"
)

// HelpKind selects the flavor of an on-demand coaching request.
type HelpKind string

const (
	HelpDiscovery HelpKind = "discovery"
	HelpProduct   HelpKind = "product"
	HelpObjection HelpKind = "objection"
	HelpClosing   HelpKind = "closing"
)

// Error taxonomy for the session core. Callers match with errors.Is so the UI
// can prompt differently for a mic refusal than for a network failure.
var (
	ErrPermissionDenied    = errors.New("microphone permission denied")
	ErrAuthRequired        = errors.New("channel auth required")
	ErrConnect             = errors.New("channel connect failed")
	ErrTransport           = errors.New("channel transport failure")
	ErrFallbackUnavailable = errors.New("fallback suggestion unavailable")
)

// AudioSource is the platform capture shim. Start acquires the microphone and
// produces converted PCM16LE 16kHz mono frames until Stop or ctx cancel.
// A permission refusal must surface as ErrPermissionDenied.
type AudioSource interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop()
}

// DuplexChannel is the session transport: JSON control messages both ways and
// raw binary audio frames outbound, multiplexed on one connection.
type DuplexChannel interface {
	Send(msgType string, data any) error
	SendAudio(frame []byte) error
	Events() <-chan ChannelEvent
	Close() error
}

// FallbackRequester issues the stateless HTTP suggestion request used when
// the channel is unavailable. It returns at most one suggestion.
type FallbackRequester interface {
	Suggest(ctx context.Context, req FallbackRequest) (Suggestion, error)
}

// FallbackRequest mirrors the POST /api/suggest payload.
type FallbackRequest struct {
	Transcript     string `json:"transcript"`
	ProspectName   string `json:"prospect_name,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	SuggestionType string `json:"suggestion_type,omitempty"`
	Context        string `json:"context,omitempty"`
}

// Clock abstracts the one-second duration timer so tests can drive ticks.
type Clock interface {
	Ticker(d time.Duration) (ticks <-chan time.Time, stop func())
}

type wallClock struct{}

func (wallClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// WallClock returns the real-time Clock.
func WallClock() Clock { return wallClock{} }
