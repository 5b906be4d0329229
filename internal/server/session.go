package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Braham27/salesgpt/internal/analyze"
	"github.com/Braham27/salesgpt/internal/call"
	"github.com/Braham27/salesgpt/internal/coach"
	"github.com/Braham27/salesgpt/internal/store"
	"github.com/Braham27/salesgpt/internal/stt"
)

// callSession owns one websocket connection for the lifetime of a call.
// The read loop runs on the handler goroutine; transcript segments arrive
// from the transcriber goroutine, so every write goes through writeMu.
type callSession struct {
	callID      string
	conn        *websocket.Conn
	engine      *coach.Engine
	transcriber stt.Transcriber
	db          store.Store

	writeMu sync.Mutex

	mu         sync.Mutex
	active     bool
	consent    call.ConsentState
	startedAt  time.Time
	endedOnce  sync.Once
	suggestion int
	transcript *call.TranscriptLog
}

func newCallSession(callID string, conn *websocket.Conn, engine *coach.Engine, transcriber stt.Transcriber, db store.Store) *callSession {
	return &callSession{
		callID:      callID,
		conn:        conn,
		engine:      engine,
		transcriber: transcriber,
		db:          db,
		consent:     call.ConsentUnset,
		transcript:  call.NewTranscriptLog(),
	}
}

// run reads messages until the peer disconnects, then ends the call.
func (cs *callSession) run(ctx context.Context) {
	defer cs.endCall(ctx)

	cs.sendJSON(call.MsgConnected, map[string]string{"call_id": cs.callID})

	for {
		msgType, payload, err := cs.conn.ReadMessage()
		if err != nil {
			log.Printf("[%s] websocket closed: %v", cs.callID, err)
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			cs.processAudio(payload)
		case websocket.TextMessage:
			if done := cs.handleMessage(ctx, payload); done {
				return
			}
		}
	}
}

// handleMessage dispatches one JSON envelope. Returns true when the client
// asked to end the call.
func (cs *callSession) handleMessage(ctx context.Context, payload []byte) bool {
	var env call.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("[%s] malformed message dropped: %v", cs.callID, err)
		return false
	}

	switch env.Type {
	case call.MsgStart:
		var data call.StartData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				cs.sendError("invalid start payload")
				return false
			}
		}
		cs.start(ctx, data)

	case call.MsgConsentGranted:
		cs.grantConsent(ctx)

	case call.MsgConsentDenied:
		cs.denyConsent(ctx)

	case call.MsgConsentRevoked:
		cs.revokeConsent(ctx)
		return true

	case call.MsgRequestHelp:
		var data call.HelpRequestData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				cs.sendError("invalid request_help payload")
				return false
			}
		}
		cs.handleHelp(ctx, data)

	case call.MsgSuggestionFeedback:
		var data call.FeedbackData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			cs.sendError("invalid suggestion_feedback payload")
			return false
		}
		cs.recordFeedback(ctx, data)

	case call.MsgEnd:
		return true

	case call.MsgPing:
		cs.sendJSON(call.MsgPong, nil)

	default:
		log.Printf("[%s] unknown message type %q dropped", cs.callID, env.Type)
	}
	return false
}

func (cs *callSession) start(ctx context.Context, data call.StartData) {
	cs.mu.Lock()
	if cs.active {
		cs.mu.Unlock()
		return
	}
	cs.active = true
	cs.startedAt = time.Now()
	cs.mu.Unlock()

	if cs.db != nil {
		rec := &store.CallRecord{
			CallID:          cs.callID,
			ProspectName:    data.ProspectName,
			ProspectCompany: data.ProspectCompany,
			Objective:       data.Objective,
			ConsentStatus:   string(call.ConsentUnset),
			Status:          "active",
			StartedAt:       time.Now(),
		}
		if err := cs.db.CreateCall(ctx, rec); err != nil {
			log.Printf("[%s] create call record failed: %v", cs.callID, err)
		}
	}

	opening := cs.engine.InitializeCall(ctx, data)
	cs.sendSuggestion(ctx, opening)

	if cs.transcriber != nil {
		if err := cs.transcriber.Connect(); err != nil {
			log.Printf("[%s] transcriber connect failed: %v", cs.callID, err)
			cs.sendError("transcription unavailable")
		} else {
			go cs.pumpTranscripts(ctx)
		}
	}

	log.Printf("[%s] call session started", cs.callID)
}

// pumpTranscripts forwards segments from the transcriber until its channel
// closes.
func (cs *callSession) pumpTranscripts(ctx context.Context) {
	for seg := range cs.transcriber.Segments() {
		cs.onTranscript(ctx, seg)
	}
}

func (cs *callSession) onTranscript(ctx context.Context, seg call.TranscriptSegment) {
	cs.transcript.Add(seg)
	cs.sendJSON(call.MsgTranscript, seg)

	if seg.Speaker == call.SpeakerProspect && seg.IsFinal {
		if sg := cs.engine.ProcessTranscript(ctx, seg, cs.transcript.FullText()); sg != nil {
			cs.sendSuggestion(ctx, *sg)
		}
	}
}

func (cs *callSession) processAudio(audio []byte) {
	cs.mu.Lock()
	ok := cs.active && cs.consent == call.ConsentGranted
	cs.mu.Unlock()
	if !ok || cs.transcriber == nil {
		return
	}
	if err := cs.transcriber.SendPCM16KLE(audio); err != nil {
		log.Printf("[%s] send audio failed: %v", cs.callID, err)
	}
}

func (cs *callSession) grantConsent(ctx context.Context) {
	cs.setConsent(ctx, call.ConsentGranted, "")
}

func (cs *callSession) denyConsent(ctx context.Context) {
	cs.setConsent(ctx, call.ConsentDenied, "Recording disabled. AI assistance will be limited.")
}

func (cs *callSession) revokeConsent(ctx context.Context) {
	cs.setConsent(ctx, call.ConsentDenied, "Consent revoked. Recording stopped.")
}

func (cs *callSession) setConsent(ctx context.Context, state call.ConsentState, message string) {
	cs.mu.Lock()
	cs.consent = state
	cs.mu.Unlock()

	if cs.db != nil {
		if err := cs.db.UpdateConsent(ctx, cs.callID, string(state)); err != nil {
			log.Printf("[%s] update consent failed: %v", cs.callID, err)
		}
	}
	cs.sendJSON(call.MsgConsentUpdate, call.ConsentUpdate{Status: string(state), Message: message})
}

func (cs *callSession) handleHelp(ctx context.Context, data call.HelpRequestData) {
	transcript := cs.transcript.FullText()
	switch data.Kind {
	case call.HelpDiscovery:
		for _, sg := range cs.engine.DiscoveryQuestions(ctx, transcript) {
			cs.sendSuggestion(ctx, sg)
		}
	case call.HelpProduct:
		cs.sendSuggestion(ctx, cs.engine.ProductRecommendation(ctx, data.Needs, data.PainPoints))
	case call.HelpObjection:
		cs.sendSuggestion(ctx, cs.engine.HandleObjection(ctx, data.Objection))
	case call.HelpClosing:
		cs.sendSuggestion(ctx, cs.engine.ClosingSuggestion(ctx, transcript))
	default:
		cs.sendError("unknown help kind: " + string(data.Kind))
	}
}

func (cs *callSession) recordFeedback(ctx context.Context, data call.FeedbackData) {
	if cs.db == nil {
		return
	}
	if err := cs.db.RecordFeedback(ctx, data.SuggestionID, data.WasUsed, data.WasHelpful); err != nil {
		log.Printf("[%s] record feedback failed: %v", cs.callID, err)
	}
}

func (cs *callSession) sendSuggestion(ctx context.Context, sg call.Suggestion) {
	cs.mu.Lock()
	cs.suggestion++
	cs.mu.Unlock()

	cs.sendJSON(call.MsgSuggestion, sg)
	if cs.db != nil {
		if err := cs.db.SaveSuggestion(ctx, cs.callID, sg); err != nil {
			log.Printf("[%s] save suggestion failed: %v", cs.callID, err)
		}
	}
}

// endCall stops transcription, generates the summary and analytics, persists
// everything and sends the final call_ended event. Safe to call more than
// once; only the first call does the work.
func (cs *callSession) endCall(ctx context.Context) {
	cs.endedOnce.Do(func() {
		cs.mu.Lock()
		wasActive := cs.active
		cs.active = false
		startedAt := cs.startedAt
		suggestions := cs.suggestion
		cs.mu.Unlock()

		if cs.transcriber != nil {
			if err := cs.transcriber.Close(); err != nil {
				log.Printf("[%s] transcriber close: %v", cs.callID, err)
			}
		}
		if !wasActive {
			return
		}

		duration := int(time.Since(startedAt).Seconds())
		fullText := cs.transcript.FullText()
		segments := cs.transcript.Segments()

		summary := cs.engine.Summary(ctx, fullText, duration)
		summaryJSON, _ := json.Marshal(summary)
		report := analyze.BuildReport(segments, suggestions)
		reportJSON, _ := json.Marshal(report)

		if cs.db != nil {
			if err := cs.db.SaveTranscript(ctx, cs.callID, fullText, segments); err != nil {
				log.Printf("[%s] save transcript failed: %v", cs.callID, err)
			}
			if err := cs.db.FinishCall(ctx, cs.callID, duration, summaryJSON, reportJSON); err != nil {
				log.Printf("[%s] finish call failed: %v", cs.callID, err)
			}
		}

		cs.sendJSON(call.MsgCallEnded, call.CallEnded{
			CallID:          cs.callID,
			DurationSeconds: duration,
			Summary:         summaryJSON,
			Analytics:       reportJSON,
		})
		log.Printf("[%s] call ended after %ds, %d suggestions", cs.callID, duration, suggestions)
	})
}

func (cs *callSession) sendError(message string) {
	cs.sendJSON(call.MsgError, map[string]string{"message": message})
}

func (cs *callSession) sendJSON(msgType string, data any) {
	env := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: msgType, Data: data}

	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := cs.conn.WriteJSON(env); err != nil {
		log.Printf("[%s] write %s failed: %v", cs.callID, msgType, err)
	}
}
