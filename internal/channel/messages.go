package channel

import (
	"encoding/json"
	"fmt"

	"github.com/Braham27/salesgpt/internal/call"
)

// encodeEnvelope marshals one outbound control frame.
func encodeEnvelope(msgType string, data any) ([]byte, error) {
	env := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: msgType, Data: data}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msgType, err)
	}
	return payload, nil
}

// decodeInbound maps a raw text frame onto the closed set of known inbound
// message shapes. An unrecognized type decodes to an Unknown message, not an
// error; only unparseable JSON is an error.
func decodeInbound(data []byte) (*call.InboundMessage, error) {
	var env call.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad envelope: %w", err)
	}
	switch env.Type {
	case call.MsgConnected:
		return &call.InboundMessage{Kind: call.InboundConnected}, nil

	case call.MsgTranscript:
		var seg call.TranscriptSegment
		if err := json.Unmarshal(env.Data, &seg); err != nil {
			return nil, fmt.Errorf("bad transcript payload: %w", err)
		}
		return &call.InboundMessage{Kind: call.InboundTranscript, Segment: &seg}, nil

	case call.MsgSuggestion:
		var s call.Suggestion
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("bad suggestion payload: %w", err)
		}
		return &call.InboundMessage{Kind: call.InboundSuggestion, Suggestion: &s}, nil

	case call.MsgConsentUpdate:
		var cu call.ConsentUpdate
		if err := json.Unmarshal(env.Data, &cu); err != nil {
			return nil, fmt.Errorf("bad consent payload: %w", err)
		}
		return &call.InboundMessage{Kind: call.InboundConsentUpdate, Consent: &cu}, nil

	case call.MsgCallEnded, "call_end":
		var ce call.CallEnded
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &ce); err != nil {
				return nil, fmt.Errorf("bad call_ended payload: %w", err)
			}
		}
		return &call.InboundMessage{Kind: call.InboundCallEnded, Ended: &ce}, nil

	case call.MsgError:
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Data, &e)
		return &call.InboundMessage{Kind: call.InboundError, ErrMessage: e.Message}, nil

	case call.MsgPong:
		return &call.InboundMessage{Kind: call.InboundPong}, nil

	default:
		return &call.InboundMessage{Kind: call.InboundUnknown, RawType: env.Type}, nil
	}
}
