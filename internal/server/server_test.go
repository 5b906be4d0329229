package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Braham27/salesgpt/internal/call"
	"github.com/Braham27/salesgpt/internal/coach"
	"github.com/Braham27/salesgpt/internal/config"
	"github.com/Braham27/salesgpt/internal/store"
)

func newTestServer(t *testing.T, authToken string) *httptest.Server {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := New(config.Config{AuthToken: authToken}, db)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func dialCall(t *testing.T, ts *httptest.Server, callID, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/call/" + callID
	if token != "" {
		u += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads envelopes until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) call.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env call.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type == msgType {
			return env
		}
	}
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	env := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: msgType, Data: data}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	ts := newTestServer(t, "secret")
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/call/c1?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocket_CallFlowDemoMode(t *testing.T) {
	ts := newTestServer(t, "tok")
	conn := dialCall(t, ts, "c1", "tok")

	env := readUntil(t, conn, call.MsgConnected)
	var hello map[string]string
	if err := json.Unmarshal(env.Data, &hello); err != nil || hello["call_id"] != "c1" {
		t.Fatalf("connected payload: %s", env.Data)
	}

	sendEnvelope(t, conn, call.MsgStart, call.StartData{ProspectName: "Pat", ProspectCompany: "Acme"})

	env = readUntil(t, conn, call.MsgSuggestion)
	var sg call.Suggestion
	if err := json.Unmarshal(env.Data, &sg); err != nil {
		t.Fatalf("suggestion payload: %v", err)
	}
	if sg.Type != call.SuggestionRapport || sg.ID == "" {
		t.Fatalf("opening suggestion: %+v", sg)
	}

	sendEnvelope(t, conn, call.MsgConsentGranted, nil)
	env = readUntil(t, conn, call.MsgConsentUpdate)
	var cu call.ConsentUpdate
	if err := json.Unmarshal(env.Data, &cu); err != nil || cu.Status != "granted" {
		t.Fatalf("consent update: %s", env.Data)
	}

	sendEnvelope(t, conn, call.MsgPing, nil)
	readUntil(t, conn, call.MsgPong)

	sendEnvelope(t, conn, call.MsgRequestHelp, call.HelpRequestData{Kind: call.HelpClosing})
	readUntil(t, conn, call.MsgSuggestion)

	sendEnvelope(t, conn, call.MsgEnd, nil)
	env = readUntil(t, conn, call.MsgCallEnded)
	var ended call.CallEnded
	if err := json.Unmarshal(env.Data, &ended); err != nil {
		t.Fatalf("call_ended payload: %v", err)
	}
	if ended.CallID != "c1" {
		t.Fatalf("call id: %s", ended.CallID)
	}
	if len(ended.Summary) == 0 || len(ended.Analytics) == 0 {
		t.Fatalf("summary or analytics missing: %+v", ended)
	}
}

func TestWebSocket_DenyConsent(t *testing.T) {
	ts := newTestServer(t, "")
	conn := dialCall(t, ts, "c2", "")
	readUntil(t, conn, call.MsgConnected)

	sendEnvelope(t, conn, call.MsgStart, call.StartData{})
	readUntil(t, conn, call.MsgSuggestion)

	sendEnvelope(t, conn, call.MsgConsentDenied, nil)
	env := readUntil(t, conn, call.MsgConsentUpdate)
	var cu call.ConsentUpdate
	if err := json.Unmarshal(env.Data, &cu); err != nil || cu.Status != "denied" {
		t.Fatalf("consent update: %s", env.Data)
	}
	if cu.Message == "" {
		t.Fatalf("denied update must explain the limitation")
	}
}

func TestWebSocket_DiscoveryHelpReturnsMultiple(t *testing.T) {
	ts := newTestServer(t, "")
	conn := dialCall(t, ts, "c3", "")
	readUntil(t, conn, call.MsgConnected)
	sendEnvelope(t, conn, call.MsgStart, call.StartData{})
	readUntil(t, conn, call.MsgSuggestion)

	sendEnvelope(t, conn, call.MsgRequestHelp, call.HelpRequestData{Kind: call.HelpDiscovery})
	for i := 0; i < 3; i++ {
		env := readUntil(t, conn, call.MsgSuggestion)
		var sg call.Suggestion
		if err := json.Unmarshal(env.Data, &sg); err != nil || sg.Type != call.SuggestionQuestion {
			t.Fatalf("discovery suggestion %d: %s", i, env.Data)
		}
	}
}

func TestSuggestEndpoint(t *testing.T) {
	ts := newTestServer(t, "tok")

	body := strings.NewReader(`{"transcript":"PROSPECT: too expensive","suggestion_type":"objection_handler","context":"too expensive"}`)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/suggest", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var sr coach.SuggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sr.Suggestion == "" || sr.Type == "" {
		t.Fatalf("empty response: %+v", sr)
	}
	if !sr.DemoMode {
		t.Fatalf("expected demo mode without api key")
	}
}

func TestSuggestEndpoint_HelpKindVocabulary(t *testing.T) {
	ts := newTestServer(t, "")

	cases := []struct {
		kind string
		want call.SuggestionType
	}{
		{"objection", call.SuggestionObjectionHandler},
		{"product", call.SuggestionProductPitch},
		{"discovery", call.SuggestionQuestion},
		{"closing", call.SuggestionClosing},
	}
	for _, tc := range cases {
		body := strings.NewReader(`{"transcript":"PROSPECT: tell me more","suggestion_type":"` + tc.kind + `"}`)
		resp, err := http.Post(ts.URL+"/api/suggest", "application/json", body)
		if err != nil {
			t.Fatalf("%s: post: %v", tc.kind, err)
		}
		var sr coach.SuggestResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			t.Fatalf("%s: decode: %v", tc.kind, err)
		}
		resp.Body.Close()
		if sr.Type != string(tc.want) {
			t.Fatalf("%s: got type %q, want %q", tc.kind, sr.Type, tc.want)
		}
		if sr.Suggestion == "" {
			t.Fatalf("%s: empty suggestion", tc.kind)
		}
	}
}

func TestSuggestEndpoint_RejectsBadToken(t *testing.T) {
	ts := newTestServer(t, "tok")
	resp, err := http.Post(ts.URL+"/api/suggest", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}
