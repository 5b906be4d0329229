package call

import "testing"

func seg(text string, speaker Speaker, final bool) TranscriptSegment {
	return TranscriptSegment{Text: text, Speaker: speaker, IsFinal: final}
}

func TestTranscriptLog_InterimReplacedByNewerInterim(t *testing.T) {
	l := NewTranscriptLog()
	l.Add(seg("hel", SpeakerProspect, false))
	l.Add(seg("hello th", SpeakerProspect, false))
	segs := l.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected one pending interim, got %d", len(segs))
	}
	if segs[0].Text != "hello th" {
		t.Fatalf("interim not replaced: %q", segs[0].Text)
	}
}

func TestTranscriptLog_FinalClearsInterim(t *testing.T) {
	l := NewTranscriptLog()
	l.Add(seg("hel", SpeakerProspect, false))
	l.Add(seg("hello there", SpeakerProspect, true))
	l.Add(seg("how ar", SpeakerSalesperson, false))
	segs := l.Segments()
	if len(segs) != 2 {
		t.Fatalf("expected final plus one interim, got %d", len(segs))
	}
	if !segs[0].IsFinal || segs[0].Text != "hello there" {
		t.Fatalf("final segment lost: %+v", segs[0])
	}
	if segs[1].IsFinal {
		t.Fatalf("tail should be interim")
	}
}

func TestTranscriptLog_FullTextFinalsOnly(t *testing.T) {
	l := NewTranscriptLog()
	l.Add(seg("hi", SpeakerSalesperson, true))
	l.Add(seg("hey", SpeakerProspect, true))
	l.Add(seg("so I was wond", SpeakerProspect, false))
	got := l.FullText()
	want := "SALESPERSON: hi\nPROSPECT: hey"
	if got != want {
		t.Fatalf("full text mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestTranscriptLog_Reset(t *testing.T) {
	l := NewTranscriptLog()
	l.Add(seg("hi", SpeakerSalesperson, true))
	l.Reset()
	if l.Len() != 0 {
		t.Fatalf("expected empty log after reset")
	}
	// interim flag must clear too
	l.Add(seg("a", SpeakerProspect, true))
	if l.Len() != 1 {
		t.Fatalf("expected one segment, got %d", l.Len())
	}
}
