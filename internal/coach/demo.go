package coach

import (
	"github.com/google/uuid"

	"github.com/Braham27/salesgpt/internal/call"
)

// Canned suggestions keep every coaching path usable without an API key.

var demoContent = map[call.SuggestionType]string{
	call.SuggestionRapport:          "Thanks for taking the time today. I'd love to learn a bit about what you're working on before we dive in - does that work for you?",
	call.SuggestionResponse:         "That's a great point. Let me share how other teams in your situation have approached this.",
	call.SuggestionQuestion:         "What does your current process look like, and where does it slow you down the most?",
	call.SuggestionObjectionHandler: "I hear you - that's a fair concern. Many of our customers felt the same way until they saw the time savings in the first month. Would a short pilot help you evaluate the risk?",
	call.SuggestionProductPitch:     "Based on what you've described, our core plan covers exactly that workflow and typically pays for itself within a quarter.",
	call.SuggestionClosing:          "It sounds like this lines up well with what you need. How about we set up a trial for your team next week?",
	call.SuggestionNextStep:         "Great momentum here. Let's lock in a follow-up with the rest of your team to walk through the details.",
}

func demoSuggestion(kind call.SuggestionType) call.Suggestion {
	content, ok := demoContent[kind]
	if !ok {
		kind = call.SuggestionResponse
		content = demoContent[call.SuggestionResponse]
	}
	return call.Suggestion{
		ID:         uuid.NewString(),
		Type:       kind,
		Content:    content,
		Context:    "demo mode",
		Confidence: 0.6,
		Priority:   1,
	}
}

func demoDiscoveryQuestions() []call.Suggestion {
	questions := []string{
		"What challenges are you currently facing in this area?",
		"How is this problem affecting your team day to day?",
		"What would an ideal solution look like for you?",
	}
	out := make([]call.Suggestion, 0, len(questions))
	for i, q := range questions {
		out = append(out, call.Suggestion{
			ID:         uuid.NewString(),
			Type:       call.SuggestionQuestion,
			Content:    q,
			Context:    "demo mode",
			Confidence: 0.6,
			Priority:   i + 1,
		})
	}
	return out
}
