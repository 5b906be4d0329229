package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Braham27/salesgpt/internal/call"
)

// FallbackClient issues the stateless POST /api/suggest request the client
// core uses when the session channel is unavailable. It returns at most one
// suggestion per request.
type FallbackClient struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
}

func NewFallbackClient(baseURL, token string) *FallbackClient {
	return &FallbackClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    baseURL,
		Token:      token,
	}
}

// SuggestResponse is the fallback endpoint's reply shape.
type SuggestResponse struct {
	Suggestion string `json:"suggestion"`
	Type       string `json:"type"`
	DemoMode   bool   `json:"demo_mode,omitempty"`
}

// Suggest implements call.FallbackRequester.
func (f *FallbackClient) Suggest(ctx context.Context, req call.FallbackRequest) (call.Suggestion, error) {
	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/api/suggest", bytes.NewReader(body))
	if err != nil {
		return call.Suggestion{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if f.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return call.Suggestion{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return call.Suggestion{}, fmt.Errorf("suggest endpoint: status=%d body=%s", resp.StatusCode, string(b))
	}
	var sr SuggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return call.Suggestion{}, err
	}
	kind := call.SuggestionType(sr.Type)
	if kind == "" {
		kind = call.SuggestionResponse
	}
	return call.Suggestion{
		ID:         uuid.NewString(),
		Type:       kind,
		Content:    sr.Suggestion,
		Context:    "fallback request",
		Confidence: 0.7,
		Priority:   1,
	}, nil
}

var _ call.FallbackRequester = (*FallbackClient)(nil)
