// Package stt streams call audio to Deepgram live transcription and emits
// speaker-attributed transcript segments.
package stt

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Braham27/salesgpt/internal/call"
)

const keepAliveInterval = 5 * time.Second

// Transcriber is the minimal interface the call server needs from a live
// transcription backend. It accepts PCM 16kHz little-endian mono buffers and
// emits interim and final segments in arrival order.
type Transcriber interface {
	Connect() error
	SendPCM16KLE(pcm []byte) error
	Segments() <-chan call.TranscriptSegment
	Close() error
}

// DeepgramService is a streaming transcription client over Deepgram's live
// WebSocket API with diarization enabled.
type DeepgramService struct {
	apiKey  string
	model   string
	baseURL string

	conn      *websocket.Conn
	segments  chan call.TranscriptSegment
	audioData chan []byte
	stopCh    chan struct{}
	mu        sync.RWMutex
	connected bool
	// writeMu serializes all writers on the connection (audio, keepalive,
	// close): gorilla/websocket permits only one concurrent writer.
	writeMu sync.Mutex

	// diarization speaker ids are assigned in order of first appearance:
	// the first voice on the line is the salesperson placing the call.
	speakerMu  sync.Mutex
	speakerMap map[int]call.Speaker
}

// Deepgram live message shapes (the subset we consume).
type resultsMessage struct {
	Type        string  `json:"type"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word    string  `json:"word"`
				Start   float64 `json:"start"`
				End     float64 `json:"end"`
				Speaker *int    `json:"speaker,omitempty"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type typeOnlyMessage struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// NewDeepgramService creates a live transcription client.
func NewDeepgramService(apiKey, model string) *DeepgramService {
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramService{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "wss://api.deepgram.com/v1/listen",
		segments:   make(chan call.TranscriptSegment, 100),
		audioData:  make(chan []byte, 1000),
		stopCh:     make(chan struct{}),
		speakerMap: make(map[int]call.Speaker),
	}
}

// Segments returns the channel of decoded transcript segments.
func (s *DeepgramService) Segments() <-chan call.TranscriptSegment { return s.segments }

// Connect establishes the WebSocket connection to Deepgram live.
func (s *DeepgramService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("deepgram API key is empty")
	}

	params := url.Values{}
	params.Set("model", s.model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("channels", "1")
	params.Set("interim_results", "true")
	params.Set("diarize", "true")
	params.Set("punctuate", "true")

	wsURL := fmt.Sprintf("%s?%s", s.baseURL, params.Encode())
	headers := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("Deepgram connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s.conn = conn
	s.connected = true

	go s.handleMessages()
	go s.sendAudioData()
	go s.keepAlive()

	log.Println("Connected to Deepgram live transcription")
	return nil
}

// SendPCM16KLE queues one audio buffer for transmission. A full queue drops
// the buffer rather than blocking the caller.
func (s *DeepgramService) SendPCM16KLE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	select {
	case s.audioData <- pcm:
	default:
		log.Println("Deepgram audio buffer full, dropping packet")
	}
	return nil
}

// Close terminates the stream and releases the connection.
func (s *DeepgramService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.conn != nil {
		s.writeMu.Lock()
		_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
		s.writeMu.Unlock()
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	log.Println("Deepgram connection closed")
	return nil
}

func (s *DeepgramService) handleMessages() {
	// The read pump is the only sender on segments, so it alone may close
	// the channel, and only after its loop has exited.
	defer close(s.segments)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in Deepgram handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-s.stopCh:
				default:
					log.Printf("Deepgram read error: %v", err)
				}
				return
			}
			s.processMessage(message)
		}
	}
}

func (s *DeepgramService) processMessage(message []byte) {
	var head typeOnlyMessage
	if err := json.Unmarshal(message, &head); err != nil {
		log.Printf("Deepgram: dropping unparseable message: %v", err)
		return
	}
	switch head.Type {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Deepgram: bad Results message: %v", err)
			return
		}
		seg, ok := s.segmentFromResults(&msg)
		if !ok {
			return
		}
		select {
		case s.segments <- seg:
		default:
			log.Println("Deepgram segment buffer full, dropping segment")
		}
	case "Metadata", "UtteranceEnd", "SpeechStarted":
		// informational
	case "Error":
		var msg errorMessage
		_ = json.Unmarshal(message, &msg)
		log.Printf("Deepgram error: %s %s", msg.Description, msg.Message)
	default:
		log.Printf("Deepgram: unknown message type: %s", head.Type)
	}
}

// segmentFromResults converts one Results message into a transcript segment.
func (s *DeepgramService) segmentFromResults(msg *resultsMessage) (call.TranscriptSegment, bool) {
	if len(msg.Channel.Alternatives) == 0 {
		return call.TranscriptSegment{}, false
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return call.TranscriptSegment{}, false
	}
	speaker := call.SpeakerUnknown
	if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		speaker = s.identifySpeaker(*alt.Words[0].Speaker)
	}
	return call.TranscriptSegment{
		Text:       alt.Transcript,
		Speaker:    speaker,
		StartTime:  msg.Start,
		EndTime:    msg.Start + msg.Duration,
		Confidence: alt.Confidence,
		IsFinal:    msg.IsFinal,
	}, true
}

// identifySpeaker maps a diarization id to a role, assigning in order of
// first appearance. Ids beyond the second stay unknown.
func (s *DeepgramService) identifySpeaker(id int) call.Speaker {
	s.speakerMu.Lock()
	defer s.speakerMu.Unlock()
	if sp, ok := s.speakerMap[id]; ok {
		return sp
	}
	switch len(s.speakerMap) {
	case 0:
		s.speakerMap[id] = call.SpeakerSalesperson
	case 1:
		s.speakerMap[id] = call.SpeakerProspect
	default:
		return call.SpeakerUnknown
	}
	return s.speakerMap[id]
}

func (s *DeepgramService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in Deepgram sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case pcm, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				s.writeMu.Lock()
				err := conn.WriteMessage(websocket.BinaryMessage, pcm)
				s.writeMu.Unlock()
				if err != nil {
					log.Printf("Deepgram audio send error: %v", err)
					return
				}
			}
		}
	}
}

// keepAlive prevents Deepgram's idle timeout during silence.
func (s *DeepgramService) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				s.writeMu.Lock()
				_ = conn.WriteJSON(map[string]string{"type": "KeepAlive"})
				s.writeMu.Unlock()
			}
		}
	}
}

var _ Transcriber = (*DeepgramService)(nil)
