package call

import (
	"strings"
	"sync"
)

// TranscriptLog merges interim and final segments into the ordered transcript
// shown during a call. Arrival order is authoritative; at most one interim
// segment is visible at a time, always at the tail. Finalized segments are
// never edited or removed except by Reset.
type TranscriptLog struct {
	mu       sync.Mutex
	segments []TranscriptSegment
	// interim reports whether the tail segment is provisional.
	interim bool
}

func NewTranscriptLog() *TranscriptLog { return &TranscriptLog{} }

// Add applies the interim-replace / final-append policy to one segment.
func (l *TranscriptLog) Add(seg TranscriptSegment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.interim {
		// Drop the pending interim; it is superseded either way.
		l.segments = l.segments[:len(l.segments)-1]
		l.interim = false
	}
	l.segments = append(l.segments, seg)
	l.interim = !seg.IsFinal
}

// Segments returns a copy of the ordered log. If the last element has
// IsFinal=false it should be rendered as provisional.
func (l *TranscriptLog) Segments() []TranscriptSegment {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TranscriptSegment, len(l.segments))
	copy(out, l.segments)
	return out
}

// Len reports the number of segments currently in the log.
func (l *TranscriptLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.segments)
}

// FullText renders the finalized transcript as "SPEAKER: text" lines, the
// form the coaching prompts and the fallback request expect.
func (l *TranscriptLog) FullText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for _, s := range l.segments {
		if !s.IsFinal {
			continue
		}
		b.WriteString(strings.ToUpper(string(s.Speaker)))
		b.WriteString(": ")
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Reset discards all segments. Used on session teardown only.
func (l *TranscriptLog) Reset() {
	l.mu.Lock()
	l.segments = nil
	l.interim = false
	l.mu.Unlock()
}
