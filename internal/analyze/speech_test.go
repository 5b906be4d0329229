package analyze

import (
	"testing"

	"github.com/Braham27/salesgpt/internal/call"
)

func finalSeg(speaker call.Speaker, text string, start, end float64) call.TranscriptSegment {
	return call.TranscriptSegment{
		Text: text, Speaker: speaker, StartTime: start, EndTime: end, IsFinal: true,
	}
}

func TestCalculateTalkRatio(t *testing.T) {
	segs := []call.TranscriptSegment{
		finalSeg(call.SpeakerSalesperson, "hello there", 0, 3),
		finalSeg(call.SpeakerProspect, "hi", 3, 4),
		finalSeg(call.SpeakerSalesperson, "let me tell you", 4, 10),
	}
	r := CalculateTalkRatio(segs)
	if r.SalespersonSeconds != 9 || r.ProspectSeconds != 1 {
		t.Fatalf("seconds: %+v", r)
	}
	if r.Salesperson != 0.9 || r.Prospect != 0.1 {
		t.Fatalf("ratio: %+v", r)
	}
}

func TestCalculateTalkRatio_EmptyAndInterim(t *testing.T) {
	r := CalculateTalkRatio(nil)
	if r.Salesperson != 0 || r.Prospect != 0 {
		t.Fatalf("empty ratio must be zero: %+v", r)
	}

	interim := call.TranscriptSegment{Speaker: call.SpeakerProspect, StartTime: 0, EndTime: 5}
	r = CalculateTalkRatio([]call.TranscriptSegment{interim})
	if r.ProspectSeconds != 0 {
		t.Fatalf("interim counted: %+v", r)
	}
}

func TestWordsPerMinute(t *testing.T) {
	segs := []call.TranscriptSegment{
		finalSeg(call.SpeakerSalesperson, "one two three four five six", 0, 3),
		finalSeg(call.SpeakerProspect, "not counted here", 3, 6),
	}
	got := WordsPerMinute(segs, call.SpeakerSalesperson)
	if got != 120 {
		t.Fatalf("wpm: got %v want 120", got)
	}
	if WordsPerMinute(nil, call.SpeakerProspect) != 0 {
		t.Fatalf("no speech must be zero")
	}
}

func TestFillerWords(t *testing.T) {
	counts := FillerWords("Um, I was like, you know, basically thinking, um")
	if counts["um"] != 2 {
		t.Fatalf("um count: %d", counts["um"])
	}
	if counts["you know"] != 1 || counts["basically"] != 1 {
		t.Fatalf("counts: %+v", counts)
	}
	if _, ok := counts["literally"]; ok {
		t.Fatalf("absent filler reported")
	}
}

func TestCountQuestions(t *testing.T) {
	if n := CountQuestions("What? Why? Because."); n != 2 {
		t.Fatalf("question count: %d", n)
	}
}

func TestBuildReport(t *testing.T) {
	segs := []call.TranscriptSegment{
		finalSeg(call.SpeakerSalesperson, "So what is your budget?", 0, 4),
		finalSeg(call.SpeakerProspect, "around ten thousand", 4, 8),
	}
	r := BuildReport(segs, 3)
	if r.SuggestionsCount != 3 {
		t.Fatalf("suggestions count: %d", r.SuggestionsCount)
	}
	if r.QuestionCount != 1 {
		t.Fatalf("question count: %d", r.QuestionCount)
	}
	if r.TalkRatio.Salesperson != 0.5 {
		t.Fatalf("talk ratio: %+v", r.TalkRatio)
	}
	if r.WordsPerMinute != 75 {
		t.Fatalf("wpm: %v", r.WordsPerMinute)
	}
}
