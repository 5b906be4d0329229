package call

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// MaxVisibleSuggestions bounds the coaching list shown during a call.
// Insertion beyond the cap evicts the oldest entry.
const MaxVisibleSuggestions = 5

// sendFunc posts one control message; nil while the channel is unavailable.
type sendFunc func(msgType string, data any) error

// Dispatcher holds the bounded, most-recent-first suggestion list and routes
// feedback and on-demand help requests. Safe for concurrent use.
type Dispatcher struct {
	mu       sync.Mutex
	items    []Suggestion
	send     sendFunc
	fallback FallbackRequester
}

func NewDispatcher(fallback FallbackRequester) *Dispatcher {
	return &Dispatcher{fallback: fallback}
}

// Bind attaches the live channel sender. Pass nil when the channel closes so
// help requests fall back to the stateless HTTP path.
func (d *Dispatcher) Bind(send sendFunc) {
	d.mu.Lock()
	d.send = send
	d.mu.Unlock()
}

// OnEvent inserts a suggestion at the head and truncates to the cap.
func (d *Dispatcher) OnEvent(s Suggestion) {
	d.mu.Lock()
	d.items = append([]Suggestion{s}, d.items...)
	if len(d.items) > MaxVisibleSuggestions {
		d.items = d.items[:MaxVisibleSuggestions]
	}
	d.mu.Unlock()
}

// Items returns a copy of the list, most recent first.
func (d *Dispatcher) Items() []Suggestion {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Suggestion, len(d.items))
	copy(out, d.items)
	return out
}

// ProvideFeedback removes the identified suggestion locally and reports the
// verdict over the channel when one is bound. An unknown id is a no-op.
func (d *Dispatcher) ProvideFeedback(id string, wasHelpful bool) {
	d.mu.Lock()
	found := false
	for i, s := range d.items {
		if s.ID == id {
			d.items = append(d.items[:i], d.items[i+1:]...)
			found = true
			break
		}
	}
	send := d.send
	d.mu.Unlock()
	if !found {
		return
	}
	if send != nil {
		if err := send(MsgSuggestionFeedback, FeedbackData{
			SuggestionID: id,
			WasUsed:      wasHelpful,
			WasHelpful:   wasHelpful,
		}); err != nil {
			log.Printf("suggestion feedback send failed: %v", err)
		}
	}
}

// RequestHelp asks for an on-demand suggestion. With a live channel the typed
// request goes out and the answer arrives later as a suggestion event. Without
// one, the stateless fallback is called synchronously and its single result is
// inserted through the same capped policy. Fallback failures leave the list
// unchanged.
func (d *Dispatcher) RequestHelp(ctx context.Context, req HelpRequestData, fb FallbackRequest) error {
	d.mu.Lock()
	send := d.send
	d.mu.Unlock()
	if send != nil {
		return send(MsgRequestHelp, req)
	}
	if d.fallback == nil {
		return ErrFallbackUnavailable
	}
	if fb.SuggestionType == "" {
		fb.SuggestionType = string(req.Kind)
	}
	s, err := d.fallback.Suggest(ctx, fb)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFallbackUnavailable, err)
	}
	d.OnEvent(s)
	return nil
}

// Reset clears the list. Used on session teardown only.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.items = nil
	d.send = nil
	d.mu.Unlock()
}
