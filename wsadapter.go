package langwire

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// WebSocketAdapter reaches a language server that exposes its LSP byte
// stream over a websocket. Each binary websocket message carries raw
// stream bytes; framing still happens at the Content-Length layer, so
// the same codec runs over every adapter.
//
// The adapter owns only the socket. A server reached this way has no
// observable process; Exited resolves when Stop closes the socket. A
// socket closed by the server side does not resolve Exited.
type WebSocketAdapter struct {
	mu  sync.Mutex
	url string
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	nc     net.Conn

	running  atomic.Bool
	exitCh   chan error
	exitOnce sync.Once
}

// WebSocketOption configures a WebSocketAdapter.
type WebSocketOption func(*WebSocketAdapter)

// WithWebSocketLogger sets the adapter's logger.
func WithWebSocketLogger(log zerolog.Logger) WebSocketOption {
	return func(a *WebSocketAdapter) {
		a.log = log.With().Str("component", "ws-adapter").Logger()
	}
}

// NewWebSocketAdapter creates an adapter that will dial url on Start.
func NewWebSocketAdapter(url string, opts ...WebSocketOption) *WebSocketAdapter {
	a := &WebSocketAdapter{
		url:    url,
		log:    zerolog.Nop(),
		exitCh: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start dials the server.
func (a *WebSocketAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return fmt.Errorf("websocket %s already connected", a.url)
	}

	conn, _, err := websocket.Dial(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.url, err)
	}
	conn.SetReadLimit(-1)

	// The NetConn context bounds the socket's lifetime, not the dial.
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.conn = conn
	a.nc = websocket.NetConn(a.ctx, conn, websocket.MessageBinary)
	a.running.Store(true)

	a.log.Info().Str("url", a.url).Msg("websocket connected")
	return nil
}

// Stop closes the socket and resolves Exited.
func (a *WebSocketAdapter) Stop() error {
	a.mu.Lock()
	conn := a.conn
	cancel := a.cancel
	a.mu.Unlock()

	if !a.running.Swap(false) {
		a.resolveExit(nil)
		return nil
	}
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	if cancel != nil {
		cancel()
	}
	a.resolveExit(nil)
	return err
}

func (a *WebSocketAdapter) resolveExit(err error) {
	a.exitOnce.Do(func() {
		a.exitCh <- err
		close(a.exitCh)
	})
}

// Running reports whether the socket is connected.
func (a *WebSocketAdapter) Running() bool {
	return a.running.Load()
}

// Exited returns the exit-signal channel.
func (a *WebSocketAdapter) Exited() <-chan error {
	return a.exitCh
}

// Input returns the client-to-server stream.
func (a *WebSocketAdapter) Input() io.Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nc
}

// Output returns the server-to-client stream.
func (a *WebSocketAdapter) Output() io.Reader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nc
}
