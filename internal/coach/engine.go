package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Braham27/salesgpt/internal/call"
)

const systemPrompt = `You are an expert AI sales coach providing real-time guidance during a sales call.
Your role is to help the salesperson succeed by providing:
1. Smart responses to prospect questions
2. Effective objection handling techniques
3. Product recommendations based on prospect needs
4. Questions to ask to uncover needs
5. Closing techniques when appropriate

Guidelines:
- Keep suggestions concise (1-3 sentences max)
- Be natural and conversational
- Focus on building rapport and trust
- Listen for buying signals
- Never be pushy or aggressive

Current call context will be provided. Generate helpful, actionable suggestions.`

// conversationContext tracks what the engine knows about the call so far.
type conversationContext struct {
	ProspectName    string
	ProspectCompany string
	Objective       string
	Notes           string
	Stage           string // opening, discovery, pitch, objection, closing
}

// Engine turns call context and transcript into coaching suggestions. With a
// nil LLM client it runs in demo mode and serves canned suggestions, so a
// call never fails for want of an API key. Generation errors likewise degrade
// to a generic low-confidence suggestion rather than failing the session.
type Engine struct {
	llm *OpenAIClient

	mu  sync.Mutex
	ctx conversationContext
}

// NewEngine builds an engine. llm may be nil for demo mode.
func NewEngine(llm *OpenAIClient) *Engine {
	return &Engine{llm: llm, ctx: conversationContext{Stage: "opening"}}
}

// DemoMode reports whether suggestions are canned.
func (e *Engine) DemoMode() bool { return e.llm == nil }

// InitializeCall records the call context and produces the opening suggestion.
func (e *Engine) InitializeCall(ctx context.Context, start call.StartData) call.Suggestion {
	e.mu.Lock()
	e.ctx = conversationContext{
		ProspectName:    start.ProspectName,
		ProspectCompany: start.ProspectCompany,
		Objective:       start.Objective,
		Notes:           start.Context,
		Stage:           "opening",
	}
	e.mu.Unlock()

	prompt := fmt.Sprintf(`New sales call starting.

Prospect: %s
Company: %s
Additional Context: %s
Call Objective: %s

Generate a warm, professional opening statement for the salesperson to use.
The opening should be personalized if prospect info is available, briefly
state the purpose, and ask permission to continue.`,
		orUnknown(start.ProspectName), orUnknown(start.ProspectCompany),
		orNone(start.Context), orDefault(start.Objective, "Introduce products and qualify prospect"))

	return e.generate(ctx, prompt, call.SuggestionRapport)
}

// ProcessTranscript reacts to one finalized prospect segment. It returns nil
// for salesperson or interim segments.
func (e *Engine) ProcessTranscript(ctx context.Context, seg call.TranscriptSegment, fullTranscript string) *call.Suggestion {
	if seg.Speaker != call.SpeakerProspect || !seg.IsFinal {
		return nil
	}
	intent := e.analyzeStatement(ctx, seg.Text)

	var s call.Suggestion
	switch intent {
	case "objection":
		e.setStage("objection")
		s = e.HandleObjection(ctx, seg.Text)
	case "question":
		s = e.answerQuestion(ctx, seg.Text, fullTranscript)
	case "interest":
		e.setStage("closing")
		s = e.ClosingSuggestion(ctx, fullTranscript)
	default:
		s = e.continuation(ctx, seg.Text, fullTranscript)
	}
	return &s
}

// HandleObjection generates a response to a specific objection.
func (e *Engine) HandleObjection(ctx context.Context, objection string) call.Suggestion {
	prompt := fmt.Sprintf(`The prospect raised an objection. Generate an effective response.

Objection: %q

Generate a response that acknowledges their concern, reframes it positively,
provides specific value or evidence, and ends with a question or next step.
Keep it natural and conversational.`, objection)
	return e.generate(ctx, prompt, call.SuggestionObjectionHandler)
}

// DiscoveryQuestions generates up to three discovery questions.
func (e *Engine) DiscoveryQuestions(ctx context.Context, transcript string) []call.Suggestion {
	if e.llm == nil {
		return demoDiscoveryQuestions()
	}
	prompt := fmt.Sprintf(`Generate 3 discovery questions to better understand the prospect's needs.

What we know so far:
%s

Questions must be open-ended, uncover pain points, help qualify the prospect,
and build rapport.

Return as a JSON object: {"questions": [{"question": "...", "purpose": "...", "priority": 1}, ...]}`,
		orNone(tail(transcript, 2000)))

	raw, err := e.llm.GenerateJSON(ctx, systemPrompt, prompt)
	if err != nil {
		log.Printf("coach: discovery generation failed: %v", err)
		return demoDiscoveryQuestions()
	}
	var parsed struct {
		Questions []struct {
			Question string `json:"question"`
			Purpose  string `json:"purpose"`
			Priority int    `json:"priority"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || len(parsed.Questions) == 0 {
		return demoDiscoveryQuestions()
	}
	var out []call.Suggestion
	for i, q := range parsed.Questions {
		if i >= 3 {
			break
		}
		priority := q.Priority
		if priority == 0 {
			priority = i + 1
		}
		out = append(out, call.Suggestion{
			ID:         uuid.NewString(),
			Type:       call.SuggestionQuestion,
			Content:    q.Question,
			Context:    orDefault(q.Purpose, "Discovery"),
			Confidence: 0.8,
			Priority:   priority,
		})
	}
	return out
}

// ClosingSuggestion generates a closing attempt from the conversation so far.
func (e *Engine) ClosingSuggestion(ctx context.Context, transcript string) call.Suggestion {
	prompt := fmt.Sprintf(`The conversation is at a point where closing might be appropriate.

Conversation so far:
%s

Generate a natural closing attempt that summarizes key benefits discussed,
addresses lingering concerns, proposes a clear next step, and includes a soft
close option.`, orNone(tail(transcript, 2000)))
	return e.generate(ctx, prompt, call.SuggestionClosing)
}

// ProductRecommendation pitches against stated needs and pain points.
func (e *Engine) ProductRecommendation(ctx context.Context, needs string, painPoints []string) call.Suggestion {
	prompt := fmt.Sprintf(`Generate a product recommendation for the prospect.

Prospect Needs: %s
Pain Points: %s

Generate a brief, compelling pitch that acknowledges their specific needs and
highlights 2-3 key benefits that address their pain points.`,
		orNone(needs), orNone(strings.Join(painPoints, ", ")))
	return e.generate(ctx, prompt, call.SuggestionProductPitch)
}

// CallSummary is the end-of-call analysis payload.
type CallSummary struct {
	ExecutiveSummary      string   `json:"executive_summary"`
	KeyPoints             []string `json:"key_points"`
	ActionItems           []string `json:"action_items"`
	ObjectionsRaised      []string `json:"objections_raised"`
	OverallSentiment      string   `json:"overall_sentiment"`
	RecommendedFollowUp   string   `json:"recommended_follow_up"`
	DealProbability       int      `json:"deal_probability"`
	SuggestedEmailSubject string   `json:"suggested_email_subject"`
}

// Summary generates the end-of-call summary. It always returns something the
// call_ended event can carry.
func (e *Engine) Summary(ctx context.Context, fullTranscript string, durationSeconds int) CallSummary {
	fallback := CallSummary{
		ExecutiveSummary:      "Call summary unavailable",
		OverallSentiment:      "neutral",
		RecommendedFollowUp:   "Review the transcript and schedule a follow-up",
		DealProbability:       50,
		SuggestedEmailSubject: "Following up on our conversation",
	}
	if e.llm == nil || strings.TrimSpace(fullTranscript) == "" {
		return fallback
	}
	prompt := fmt.Sprintf(`Generate a comprehensive summary of this sales call.

Call Duration: %d seconds

Full Transcript:
%s

Return a JSON object with keys: executive_summary, key_points, action_items,
objections_raised, overall_sentiment, recommended_follow_up,
deal_probability (0-100), suggested_email_subject.`, durationSeconds, fullTranscript)

	raw, err := e.llm.GenerateJSON(ctx, "You are a sales call analyst. Return only valid JSON.", prompt)
	if err != nil {
		log.Printf("coach: summary generation failed: %v", err)
		return fallback
	}
	var s CallSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fallback
	}
	return s
}

// answerQuestion responds to a direct prospect question.
func (e *Engine) answerQuestion(ctx context.Context, question, fullTranscript string) call.Suggestion {
	prompt := fmt.Sprintf(`The prospect asked a question. Generate a helpful answer.

Question: %q

Conversation so far:
%s

Generate a clear, confident answer that directly addresses their question,
ties back to value, and optionally asks a follow-up question.`,
		question, orNone(tail(fullTranscript, 2000)))
	return e.generate(ctx, prompt, call.SuggestionResponse)
}

// continuation keeps the conversation moving when no stronger cue fired.
func (e *Engine) continuation(ctx context.Context, text, fullTranscript string) call.Suggestion {
	e.mu.Lock()
	stage := e.ctx.Stage
	e.mu.Unlock()

	prompt := fmt.Sprintf(`Continue the sales conversation naturally.

Prospect said: %q

Recent conversation:
%s

Current stage: %s

Generate an appropriate response or question to keep the conversation flowing
and advance toward the call objective.`, text, orNone(tail(fullTranscript, 1500)), stage)

	kind := call.SuggestionResponse
	if stage == "opening" || stage == "discovery" {
		kind = call.SuggestionQuestion
	}
	return e.generate(ctx, prompt, kind)
}

// analyzeStatement classifies a prospect statement. Demo mode uses keyword
// heuristics; live mode asks the model for a JSON verdict.
func (e *Engine) analyzeStatement(ctx context.Context, text string) string {
	if e.llm == nil {
		return heuristicIntent(text)
	}
	prompt := fmt.Sprintf(`Analyze this prospect statement from a sales call and return a JSON object:

Statement: %q

Return: {"intent": "question" | "objection" | "statement" | "interest" | "rejection"}`, text)
	raw, err := e.llm.GenerateJSON(ctx, "You are a sales conversation analyzer. Return only valid JSON.", prompt)
	if err != nil {
		return heuristicIntent(text)
	}
	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Intent == "" {
		return heuristicIntent(text)
	}
	return parsed.Intent
}

func (e *Engine) setStage(stage string) {
	e.mu.Lock()
	e.ctx.Stage = stage
	e.mu.Unlock()
}

// generate runs one suggestion prompt with graceful degradation.
func (e *Engine) generate(ctx context.Context, prompt string, kind call.SuggestionType) call.Suggestion {
	if e.llm == nil {
		return demoSuggestion(kind)
	}
	content, err := e.llm.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		log.Printf("coach: suggestion generation failed: %v", err)
		return call.Suggestion{
			ID:         uuid.NewString(),
			Type:       call.SuggestionResponse,
			Content:    "Continue listening and ask clarifying questions.",
			Context:    "generation error",
			Confidence: 0.3,
			Priority:   1,
		}
	}
	return call.Suggestion{
		ID:         uuid.NewString(),
		Type:       kind,
		Content:    content,
		Context:    firstLine(prompt),
		Confidence: 0.85,
		Priority:   1,
	}
}

// heuristicIntent is the keyword classifier used when no model is available.
func heuristicIntent(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "?"):
		return "question"
	case containsAny(t, "expensive", "too much", "cost", "budget", "not sure", "competitor", "already use", "think about it"):
		return "objection"
	case containsAny(t, "sounds good", "interested", "like that", "makes sense", "send me", "next step"):
		return "interest"
	default:
		return "statement"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func orUnknown(s string) string { return orDefault(s, "Unknown") }
func orNone(s string) string    { return orDefault(s, "None provided") }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
