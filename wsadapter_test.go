package langwire

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// wsEchoServer accepts one websocket connection and echoes bytes.
func wsEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		nc := websocket.NetConn(r.Context(), c, websocket.MessageBinary)
		io.Copy(nc, nc)
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWebSocketAdapter_RoundTrip(t *testing.T) {
	srv := wsEchoServer(t)
	defer srv.Close()

	adapter := NewWebSocketAdapter(wsURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer adapter.Stop()

	if !adapter.Running() {
		t.Error("Running() = false after Start")
	}

	// Frames written to the socket come back framed and intact.
	fw := NewFrameWriter(adapter.Input())
	fr := NewFrameReader(adapter.Output())

	msg, err := newNotification("tick", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("newNotification() error = %v", err)
	}
	if err := fw.WriteFrame(msg); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	payload, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	var echoed Message
	if err := json.Unmarshal(payload, &echoed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if echoed.Method != "tick" {
		t.Errorf("method = %q, want tick", echoed.Method)
	}
}

func TestWebSocketAdapter_StopResolvesExit(t *testing.T) {
	srv := wsEchoServer(t)
	defer srv.Close()

	adapter := NewWebSocketAdapter(wsURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := adapter.Stop(); err != nil {
		t.Logf("Stop() error = %v (close races are tolerated)", err)
	}

	select {
	case <-adapter.Exited():
	case <-time.After(time.Second):
		t.Fatal("Exited never resolved")
	}
	if adapter.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestWebSocketAdapter_DialFailure(t *testing.T) {
	adapter := NewWebSocketAdapter("ws://127.0.0.1:1/nope")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := adapter.Start(ctx); err == nil {
		t.Error("Start() succeeded against a dead endpoint")
	}
}
