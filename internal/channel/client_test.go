package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Braham27/salesgpt/internal/call"
)

// wsTestServer accepts one websocket connection and records what arrives.
type wsTestServer struct {
	*httptest.Server

	mu       sync.Mutex
	texts    [][]byte
	binaries [][]byte
	conn     *websocket.Conn
	ready    chan struct{}
}

func newWSTestServer(t *testing.T, requireToken string) *wsTestServer {
	t.Helper()
	s := &wsTestServer{ready: make(chan struct{})}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requireToken != "" && r.URL.Query().Get("token") != requireToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		close(s.ready)
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			if mt == websocket.BinaryMessage {
				s.binaries = append(s.binaries, data)
			} else {
				s.texts = append(s.texts, data)
			}
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsTestServer) textCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

func (s *wsTestServer) binaryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.binaries)
}

func waitCond(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDial_ConnectedEventFirst(t *testing.T) {
	srv := newWSTestServer(t, "")
	c, err := Dial(context.Background(), srv.URL, "c1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	select {
	case ev := <-c.Events():
		if ev.Kind != call.EventConnected {
			t.Fatalf("first event kind: %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("no connected event")
	}
}

func TestDial_UnauthorizedMapsToAuthError(t *testing.T) {
	srv := newWSTestServer(t, "secret")
	_, err := Dial(context.Background(), srv.URL, "c1", "wrong")
	if !errors.Is(err, call.ErrAuthRequired) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestDial_UnreachableMapsToConnectError(t *testing.T) {
	_, err := Dial(context.Background(), "http://127.0.0.1:1", "c1", "")
	if !errors.Is(err, call.ErrConnect) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestClient_SendAndSendAudio(t *testing.T) {
	srv := newWSTestServer(t, "tok")
	c, err := Dial(context.Background(), srv.URL, "c1", "tok")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	<-srv.ready

	if err := c.Send(call.MsgStart, call.StartData{ProspectName: "Pat"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	waitCond(t, "control message", func() bool { return srv.textCount() == 1 })
	waitCond(t, "audio frame", func() bool { return srv.binaryCount() == 1 })

	srv.mu.Lock()
	text := string(srv.texts[0])
	srv.mu.Unlock()
	if text != `{"type":"start","data":{"prospect_name":"Pat"}}` {
		t.Fatalf("unexpected wire frame: %s", text)
	}
}

func TestClient_InboundMessagesDecoded(t *testing.T) {
	srv := newWSTestServer(t, "")
	c, err := Dial(context.Background(), srv.URL, "c1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	<-srv.ready

	err = srv.conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"suggestion","data":{"id":"s1","type":"rapport","content":"hi"}}`))
	if err != nil {
		t.Fatalf("server write: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind != call.EventMessage {
				continue
			}
			if ev.Message.Kind != call.InboundSuggestion || ev.Message.Suggestion.ID != "s1" {
				t.Fatalf("wrong message: %+v", ev.Message)
			}
			return
		case <-deadline:
			t.Fatalf("no message event")
		}
	}
}

func TestClient_ServerCloseEmitsDisconnect(t *testing.T) {
	srv := newWSTestServer(t, "")
	c, err := Dial(context.Background(), srv.URL, "c1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	<-srv.ready
	srv.conn.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events closed without disconnect event")
			}
			if ev.Kind == call.EventDisconnected {
				return
			}
		case <-deadline:
			t.Fatalf("no disconnect event")
		}
	}
}

func TestClient_SendsDuringTransportLossDoNotPanic(t *testing.T) {
	srv := newWSTestServer(t, "")
	c, err := Dial(context.Background(), srv.URL, "c1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	<-srv.ready

	// Hammer the outbound path from several goroutines while the transport
	// dies underneath, so writes keep failing after the events channel has
	// reached its terminal state.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame := []byte{0, 1, 2, 3}
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = c.SendAudio(frame)
				_ = c.Send(call.MsgPing, nil)
			}
		}()
	}

	_ = srv.conn.Close()

	sawDisconnect := false
	deadline := time.After(2 * time.Second)
drain:
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				break drain
			}
			if ev.Kind == call.EventDisconnected {
				sawDisconnect = true
			}
		case <-deadline:
			t.Fatalf("events channel never closed after transport loss")
		}
	}
	close(stop)
	wg.Wait()

	if !sawDisconnect {
		t.Fatalf("no disconnect event before events closed")
	}
	waitCond(t, "transport error on send", func() bool {
		return errors.Is(c.SendAudio([]byte{9}), call.ErrTransport)
	})
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	srv := newWSTestServer(t, "")
	c, err := Dial(context.Background(), srv.URL, "c1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := c.Send(call.MsgEnd, nil); !errors.Is(err, call.ErrTransport) {
		t.Fatalf("send after close: %v", err)
	}
}
