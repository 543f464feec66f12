package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/faketut/SnapAI/internal/protocol"
)

type slowAnalyzer struct {
	mu      sync.Mutex
	started chan struct{}
	release chan struct{}
}

func (s *slowAnalyzer) Analyze(ctx context.Context, question string, _ []byte) (string, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started != nil {
		close(started)
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "answer to " + question, nil
}

func httptestWSHandler(ep *Endpoint) http.Handler {
	return http.HandlerFunc(ep.HandleWS)
}

func TestEndpoint_PingPong(t *testing.T) {
	ep := New(newTestRouter(nil, &stubAnalyzer{answer: "ok"}), Options{Logger: quietLogger(), PingInterval: time.Minute})
	srv := httptest.NewServer(httptestWSHandler(ep))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.URL)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	resp := roundTrip(t, ctx, conn, `{"command":"ping"}`)
	if resp.Type != protocol.TypePong {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestEndpoint_MalformedJSONKeepsConnectionOpen(t *testing.T) {
	ep := New(newTestRouter(nil, &stubAnalyzer{answer: "ok"}), Options{Logger: quietLogger(), PingInterval: time.Minute})
	srv := httptest.NewServer(httptestWSHandler(ep))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.URL)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	resp := roundTrip(t, ctx, conn, `{nope`)
	if resp.Type != protocol.TypeError || resp.Message != "Invalid JSON format" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// The connection must survive the bad message.
	resp = roundTrip(t, ctx, conn, `{"command":"ping"}`)
	if resp.Type != protocol.TypePong {
		t.Fatalf("connection unusable after malformed message: %+v", resp)
	}
}

func TestEndpoint_RegistryRemovalOnClose(t *testing.T) {
	ep := New(newTestRouter(nil, nil), Options{Logger: quietLogger(), PingInterval: time.Minute})
	srv := httptest.NewServer(httptestWSHandler(ep))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.URL)

	waitFor(t, func() bool { return ep.ActiveConnections() == 1 })
	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return ep.ActiveConnections() == 0 })
}

func TestEndpoint_NoCrossTalkBetweenConnections(t *testing.T) {
	sa := &slowAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	ep := New(NewRouter(&stubCapturer{}, sa, quietLogger()), Options{Logger: quietLogger(), PingInterval: time.Minute})
	srv := httptest.NewServer(httptestWSHandler(ep))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	connA := dial(t, ctx, srv.URL)
	defer func() { _ = connA.Close(websocket.StatusNormalClosure, "") }()
	connB := dial(t, ctx, srv.URL)
	defer func() { _ = connB.Close(websocket.StatusNormalClosure, "") }()

	// B starts a slow AI query, then A's pings must still be answered while
	// B's handler is blocked.
	send(t, ctx, connB, `{"command":"ai_query_text","question":"slow one"}`)
	<-sa.started

	for i := 0; i < 3; i++ {
		resp := roundTrip(t, ctx, connA, `{"command":"ping"}`)
		if resp.Type != protocol.TypePong {
			t.Fatalf("connection A blocked by B's handler: %+v", resp)
		}
	}

	close(sa.release)
	respB := read(t, ctx, connB)
	if respB.Type != protocol.TypeAIResponse || respB.Answer != "answer to slow one" {
		t.Fatalf("connection B got wrong response: %+v", respB)
	}
}

func dial(t *testing.T, ctx context.Context, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + httpURL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) protocol.Response {
	t.Helper()
	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var resp protocol.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode failed: %v raw=%s", err, raw)
	}
	return resp
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, msg string) protocol.Response {
	t.Helper()
	send(t, ctx, conn, msg)
	return read(t, ctx, conn)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}
