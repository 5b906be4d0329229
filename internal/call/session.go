package call

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// SessionConfig wires one live-call session. Audio and OpenChannel are the
// per-platform capability shims; everything else is platform-agnostic.
type SessionConfig struct {
	CallID string
	Start  StartData

	Audio       AudioSource
	OpenChannel func(ctx context.Context) (DuplexChannel, error)
	Fallback    FallbackRequester

	// Clock defaults to WallClock.
	Clock Clock
	// OnState, when set, observes lifecycle transitions. It is invoked from
	// the session's goroutines and must not block.
	OnState func(LifecycleState)
}

// Session owns the state machine for one live coaching call:
// idle -> awaiting_consent -> active -> ended. All channel events, capture
// frames and timer ticks are handled on a single event loop; public methods
// either post onto that loop or touch mutex-guarded state directly.
//
// A Session is single-use. Ending it tears down capture and channel together
// and discards all derived state; a new call needs a new Session.
type Session struct {
	cfg   SessionConfig
	clock Clock

	transcript  *TranscriptLog
	suggestions *Dispatcher

	mu       sync.Mutex
	state    LifecycleState
	consent  ConsentState
	muted    bool
	duration int
	ch       DuplexChannel
	lastErr  error

	audioStopped bool
	chClosed     bool

	cmds    chan func()
	done    chan struct{}
	endOnce sync.Once
	cancel  context.CancelFunc
}

// NewSession constructs an idle session.
func NewSession(cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = WallClock()
	}
	return &Session{
		cfg:         cfg,
		clock:       clock,
		transcript:  NewTranscriptLog(),
		suggestions: NewDispatcher(cfg.Fallback),
		state:       StateIdle,
		consent:     ConsentUnset,
		cmds:        make(chan func(), 32),
		done:        make(chan struct{}),
	}
}

// Begin starts the call: microphone acquisition and channel dialing proceed
// concurrently while the session sits in awaiting_consent. Valid only from
// idle.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session %s: begin from state %s", s.cfg.CallID, s.state)
	}
	s.setStateLocked(StateAwaitingConsent)
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// State reports the current lifecycle position.
func (s *Session) State() LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Consent reports the consent gate position.
func (s *Session) Consent() ConsentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consent
}

// Duration reports elapsed active seconds.
func (s *Session) Duration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Muted reports the client-local mute flag.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Err reports the failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Transcript exposes the aggregated transcript log.
func (s *Session) Transcript() *TranscriptLog { return s.transcript }

// Suggestions exposes the suggestion dispatcher.
func (s *Session) Suggestions() *Dispatcher { return s.suggestions }

// Done is closed once the session reaches ended and teardown has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// GrantConsent records explicit user affirmation, reports it to the remote
// party and activates the session. No-op outside awaiting_consent.
func (s *Session) GrantConsent() {
	s.post(func() {
		s.mu.Lock()
		if s.state != StateAwaitingConsent {
			s.mu.Unlock()
			return
		}
		s.consent = ConsentGranted
		ch := s.ch
		s.setStateLocked(StateActive)
		s.mu.Unlock()
		if ch != nil {
			if err := ch.Send(MsgConsentGranted, nil); err != nil {
				log.Printf("[%s] consent_granted send failed: %v", s.cfg.CallID, err)
			}
		}
		s.suggestions.Bind(s.sendOnChannel)
	})
}

// DenyConsent records explicit refusal and ends the call without ever
// transmitting audio.
func (s *Session) DenyConsent() {
	s.post(func() {
		s.mu.Lock()
		if s.state != StateAwaitingConsent {
			s.mu.Unlock()
			return
		}
		s.consent = ConsentDenied
		ch := s.ch
		s.mu.Unlock()
		if ch != nil {
			_ = ch.Send(MsgConsentDenied, nil)
		}
		s.finish(nil)
	})
}

// RevokeConsent withdraws a previously granted consent mid-call. Consent is
// terminal per session, so revoking ends the call.
func (s *Session) RevokeConsent() {
	s.post(func() {
		s.mu.Lock()
		if s.state != StateActive {
			s.mu.Unlock()
			return
		}
		ch := s.ch
		s.mu.Unlock()
		if ch != nil {
			_ = ch.Send(MsgConsentRevoked, nil)
		}
		s.finish(nil)
	})
}

// SetMuted toggles the client-local mute flag. Accepted in any state; it only
// gates transmission, never consent.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// End terminates the call on user action.
func (s *Session) End() {
	delivered := s.post(func() {
		s.mu.Lock()
		ch := s.ch
		s.mu.Unlock()
		if ch != nil {
			_ = ch.Send(MsgEnd, nil)
		}
		s.finish(nil)
	})
	if !delivered {
		s.finish(nil)
	}
}

// RequestHelp asks for an on-demand suggestion of the given kind. While the
// session is active the request rides the channel; otherwise the stateless
// fallback is used and its result, if any, is inserted into the list. If the
// session ends while a fallback request is in flight the result is discarded
// with it.
func (s *Session) RequestHelp(ctx context.Context, req HelpRequestData) error {
	fb := FallbackRequest{
		Transcript:   s.transcript.FullText(),
		ProspectName: s.cfg.Start.ProspectName,
		CompanyName:  s.cfg.Start.ProspectCompany,
		Context:      s.cfg.Start.Context,
	}
	return s.suggestions.RequestHelp(ctx, req, fb)
}

// ProvideFeedback removes the suggestion locally and reports the verdict.
func (s *Session) ProvideFeedback(suggestionID string, wasHelpful bool) {
	s.suggestions.ProvideFeedback(suggestionID, wasHelpful)
}

// post schedules fn on the event loop. Returns false if the session already
// ended.
func (s *Session) post(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// sendOnChannel is the dispatcher's channel binding; it holds no reference to
// a dead channel because teardown rebinds to nil first.
func (s *Session) sendOnChannel(msgType string, data any) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return ErrTransport
	}
	return ch.Send(msgType, data)
}

func (s *Session) setStateLocked(st LifecycleState) {
	s.state = st
	if s.cfg.OnState != nil {
		go s.cfg.OnState(st)
	}
}

// finish moves the session to ended exactly once and resets the consent gate.
// Resource teardown happens on the event loop's way out.
func (s *Session) finish(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.lastErr = err
		s.consent = ConsentUnset
		s.setStateLocked(StateEnded)
		s.mu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// teardown releases the microphone and closes the channel, each exactly once,
// then flushes all derived state.
func (s *Session) teardown() {
	s.mu.Lock()
	stopAudio := !s.audioStopped
	s.audioStopped = true
	closeCh := !s.chClosed && s.ch != nil
	s.chClosed = true
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	if stopAudio && s.cfg.Audio != nil {
		s.cfg.Audio.Stop()
	}
	if closeCh {
		_ = ch.Close()
	}
	s.suggestions.Reset()
	s.transcript.Reset()
}

type audioResult struct {
	frames <-chan []byte
	err    error
}

type channelResult struct {
	ch  DuplexChannel
	err error
}

// run is the single event loop for the session.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	// Microphone and channel come up concurrently.
	audioCh := make(chan audioResult, 1)
	go func() {
		frames, err := s.cfg.Audio.Start(ctx)
		audioCh <- audioResult{frames: frames, err: err}
	}()
	chanCh := make(chan channelResult, 1)
	go func() {
		ch, err := s.cfg.OpenChannel(ctx)
		chanCh <- channelResult{ch: ch, err: err}
	}()

	ares := <-audioCh
	cres := <-chanCh
	if cres.ch != nil {
		s.mu.Lock()
		s.ch = cres.ch
		s.mu.Unlock()
	}
	if ares.err != nil {
		log.Printf("[%s] microphone acquisition failed: %v", s.cfg.CallID, ares.err)
		s.finish(ares.err)
		return
	}
	if cres.err != nil {
		log.Printf("[%s] channel open failed: %v", s.cfg.CallID, cres.err)
		s.finish(cres.err)
		return
	}
	if ctx.Err() != nil {
		s.finish(nil)
		return
	}

	frames := ares.frames
	events := cres.ch.Events()

	// The start message goes out once the channel reports connected.
	started := false

	ticks, stopTicks := s.clock.Ticker(time.Second)
	defer stopTicks()

	for {
		select {
		case <-ctx.Done():
			s.finish(nil)
			return

		case fn := <-s.cmds:
			fn()
			if s.State() == StateEnded {
				return
			}

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if s.mayTransmit() {
				if err := cres.ch.SendAudio(frame); err != nil {
					log.Printf("[%s] audio send failed: %v", s.cfg.CallID, err)
				}
			}

		case ev, ok := <-events:
			if !ok {
				s.finish(ErrTransport)
				return
			}
			if !started && ev.Kind == EventConnected {
				started = true
				if err := cres.ch.Send(MsgStart, s.cfg.Start); err != nil {
					log.Printf("[%s] start send failed: %v", s.cfg.CallID, err)
				}
			}
			s.handleEvent(ev)
			if s.State() == StateEnded {
				return
			}

		case <-ticks:
			s.mu.Lock()
			if s.state == StateActive {
				s.duration++
			}
			s.mu.Unlock()
		}
	}
}

// mayTransmit gates the outbound audio path: active state, granted consent,
// not muted. Anything else drops the frame before it reaches the channel.
func (s *Session) mayTransmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive && s.consent == ConsentGranted && !s.muted
}

// handleEvent dispatches one inbound channel event. Malformed or unknown
// messages are dropped; transport failures end the session with no retry.
func (s *Session) handleEvent(ev ChannelEvent) {
	switch ev.Kind {
	case EventConnected:
		// handled by the start-message gate in run

	case EventMessage:
		s.handleMessage(ev.Message)

	case EventDisconnected:
		if s.State() != StateEnded {
			log.Printf("[%s] channel closed unexpectedly", s.cfg.CallID)
			s.finish(ErrTransport)
		}

	case EventError:
		log.Printf("[%s] channel error: %v", s.cfg.CallID, ev.Err)
		s.finish(fmt.Errorf("%w: %v", ErrTransport, ev.Err))
	}
}

func (s *Session) handleMessage(msg *InboundMessage) {
	if msg == nil {
		return
	}
	switch msg.Kind {
	case InboundTranscript:
		// No transcript is accepted before the session is active.
		if s.State() == StateActive && msg.Segment != nil {
			s.transcript.Add(*msg.Segment)
		}

	case InboundSuggestion:
		if s.State() == StateActive && msg.Suggestion != nil {
			s.suggestions.OnEvent(*msg.Suggestion)
		}

	case InboundConsentUpdate:
		if msg.Consent != nil {
			log.Printf("[%s] consent acknowledged: %s", s.cfg.CallID, msg.Consent.Status)
		}

	case InboundCallEnded:
		s.finish(nil)

	case InboundError:
		log.Printf("[%s] server error: %s", s.cfg.CallID, msg.ErrMessage)

	case InboundConnected, InboundPong:
		// informational

	case InboundUnknown:
		log.Printf("[%s] dropping unknown message type %q", s.cfg.CallID, msg.RawType)
	}
}
