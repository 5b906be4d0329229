// Package analyze computes speech metrics over finalized transcript segments.
package analyze

import (
	"strings"

	"github.com/Braham27/salesgpt/internal/call"
)

// TalkRatio is the share of speaking time per side of the call.
type TalkRatio struct {
	Salesperson        float64 `json:"salesperson"`
	Prospect           float64 `json:"prospect"`
	SalespersonSeconds float64 `json:"salesperson_seconds"`
	ProspectSeconds    float64 `json:"prospect_seconds"`
}

// CalculateTalkRatio measures speaking-time share between the two speakers.
// Interim segments and unknown speakers are excluded.
func CalculateTalkRatio(segments []call.TranscriptSegment) TalkRatio {
	var sales, prospect float64
	for _, s := range segments {
		if !s.IsFinal {
			continue
		}
		d := s.EndTime - s.StartTime
		if d < 0 {
			continue
		}
		switch s.Speaker {
		case call.SpeakerSalesperson:
			sales += d
		case call.SpeakerProspect:
			prospect += d
		}
	}
	total := sales + prospect
	r := TalkRatio{SalespersonSeconds: sales, ProspectSeconds: prospect}
	if total > 0 {
		r.Salesperson = sales / total
		r.Prospect = prospect / total
	}
	return r
}

// WordsPerMinute computes the speaking rate for one speaker over their final
// segments. Returns 0 when the speaker has no timed speech.
func WordsPerMinute(segments []call.TranscriptSegment, speaker call.Speaker) float64 {
	var words int
	var seconds float64
	for _, s := range segments {
		if !s.IsFinal || s.Speaker != speaker {
			continue
		}
		words += len(strings.Fields(s.Text))
		if d := s.EndTime - s.StartTime; d > 0 {
			seconds += d
		}
	}
	if seconds == 0 {
		return 0
	}
	return float64(words) / seconds * 60
}

// Report bundles the call-level metrics attached to the end-of-call event.
type Report struct {
	TalkRatio        TalkRatio      `json:"talk_ratio"`
	WordsPerMinute   float64        `json:"words_per_minute"`
	FillerWords      map[string]int `json:"filler_words"`
	QuestionCount    int            `json:"question_count"`
	SuggestionsCount int            `json:"suggestions_count"`
}

// BuildReport computes all metrics from the final segments of a call.
// Words-per-minute, filler words and question count cover the salesperson
// side, since those are the coaching signals.
func BuildReport(segments []call.TranscriptSegment, suggestionsCount int) Report {
	var sb strings.Builder
	for _, s := range segments {
		if !s.IsFinal || s.Speaker != call.SpeakerSalesperson {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.Text)
	}
	salesText := sb.String()
	return Report{
		TalkRatio:        CalculateTalkRatio(segments),
		WordsPerMinute:   WordsPerMinute(segments, call.SpeakerSalesperson),
		FillerWords:      FillerWords(salesText),
		QuestionCount:    CountQuestions(salesText),
		SuggestionsCount: suggestionsCount,
	}
}

var fillerWords = []string{
	"um", "uh", "like", "you know", "basically",
	"actually", "literally", "right", "so", "well",
}

// FillerWords counts occurrences of common filler words in the text.
func FillerWords(text string) map[string]int {
	lower := strings.ToLower(text)
	counts := make(map[string]int)
	for _, filler := range fillerWords {
		if n := strings.Count(lower, filler); n > 0 {
			counts[filler] = n
		}
	}
	return counts
}

// CountQuestions counts question marks in the text.
func CountQuestions(text string) int {
	return strings.Count(text, "?")
}
