package langwire

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// ClientState is the language client's lifecycle state.
type ClientState int

const (
	// ClientUnstarted means Initialize has not been called.
	ClientUnstarted ClientState = iota
	// ClientStarting means the handshake is in progress.
	ClientStarting
	// ClientInitialized means the client is operational.
	ClientInitialized
	// ClientShuttingDown means Shutdown is in progress.
	ClientShuttingDown
	// ClientShutdown is terminal; the instance is single-use.
	ClientShutdown
)

// String returns the state name.
func (s ClientState) String() string {
	switch s {
	case ClientUnstarted:
		return "unstarted"
	case ClientStarting:
		return "starting"
	case ClientInitialized:
		return "initialized"
	case ClientShuttingDown:
		return "shutting down"
	case ClientShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// LanguageClient orchestrates the lifecycle of one language server: start
// the process, open the connection, run the initialize handshake, operate,
// then shut down in order. Instances are single-use; after Shutdown every
// operation fails with ErrDisposed.
//
// The client exclusively owns its adapter, connection, and dispatcher.
type LanguageClient struct {
	mu    sync.Mutex
	state ClientState

	adapter    ServerAdapter
	dispatcher *Dispatcher
	conn       *Connection
	log        zerolog.Logger

	capabilities   json.RawMessage
	serverInfo     *ServerInfo
	clientCaps     json.RawMessage
	initOptions    any
	ownsAdapterCtx context.CancelFunc

	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// ClientOption configures a LanguageClient.
type ClientOption func(*LanguageClient)

// WithClientLogger sets the client's logger; the connection inherits it.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *LanguageClient) {
		c.log = log
	}
}

// WithInitializationOptions sets the initializationOptions sent during
// initialize.
func WithInitializationOptions(opts any) ClientOption {
	return func(c *LanguageClient) {
		c.initOptions = opts
	}
}

// WithClientCapabilities overrides the advertised client capabilities.
func WithClientCapabilities(caps json.RawMessage) ClientOption {
	return func(c *LanguageClient) {
		c.clientCaps = caps
	}
}

// NewLanguageClient creates a client over the given adapter. Nothing is
// started.
func NewLanguageClient(adapter ServerAdapter, opts ...ClientOption) *LanguageClient {
	c := &LanguageClient{
		state:      ClientUnstarted,
		adapter:    adapter,
		dispatcher: NewDispatcher(),
		log:        zerolog.Nop(),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "language-client").Logger()
	return c
}

// NewLanguageClientForProcess is a convenience constructor that wraps the
// process spec in a ProcessAdapter.
func NewLanguageClientForProcess(config ProcessConfig, opts ...ClientOption) *LanguageClient {
	return NewLanguageClient(NewProcessAdapter(config), opts...)
}

// State returns the current lifecycle state.
func (c *LanguageClient) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsReady returns a one-shot signal that resolves when the handshake has
// completed.
func (c *LanguageClient) IsReady() <-chan struct{} {
	return c.ready
}

// HasShutdown returns a one-shot signal that resolves once the client has
// reached its terminal state.
func (c *LanguageClient) HasShutdown() <-chan struct{} {
	return c.done
}

// ServerCapabilities returns the capabilities recorded from the
// initialize response, nil before the handshake completes.
func (c *LanguageClient) ServerCapabilities() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// ServerInfo returns the server's self-description, if it sent one.
func (c *LanguageClient) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// RegisterHandler registers a handler for server-initiated traffic.
// Callable in any state before shutdown, including before Initialize so
// nothing is missed during the handshake.
func (c *LanguageClient) RegisterHandler(h Handler) (*Registration, error) {
	if c.State() >= ClientShuttingDown {
		return nil, ErrDisposed
	}
	return c.dispatcher.Register(h)
}

// Initialize starts the server if needed, opens the connection, and runs
// the initialize handshake against workspaceRoot. Any failure transitions
// the client to its terminal state.
func (c *LanguageClient) Initialize(ctx context.Context, workspaceRoot string) (*InitializeResult, error) {
	c.mu.Lock()
	if c.state != ClientUnstarted {
		state := c.state
		c.mu.Unlock()
		if state >= ClientShuttingDown {
			return nil, ErrDisposed
		}
		return nil, fmt.Errorf("initialize in state %s", state)
	}
	c.state = ClientStarting
	c.mu.Unlock()

	result, err := c.initialize(ctx, workspaceRoot)
	if err != nil {
		c.log.Error().Err(err).Msg("initialize failed")
		c.abort()
		return nil, err
	}

	c.mu.Lock()
	c.state = ClientInitialized
	c.capabilities = result.Capabilities
	c.serverInfo = result.ServerInfo
	c.mu.Unlock()
	close(c.ready)

	c.log.Info().Str("root", workspaceRoot).Msg("language client initialized")
	return result, nil
}

func (c *LanguageClient) initialize(ctx context.Context, workspaceRoot string) (*InitializeResult, error) {
	// The adapter outlives any one call's context.
	adapterCtx, cancel := context.WithCancel(context.Background())

	if !c.adapter.Running() {
		if err := c.adapter.Start(adapterCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("start server: %w", err)
		}
	}

	conn := NewConnection(c.adapter.Output(), c.adapter.Input(),
		WithConnectionLogger(c.log),
		WithDispatcher(c.dispatcher),
	)
	if err := conn.Open(); err != nil {
		cancel()
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.ownsAdapterCtx = cancel
	c.mu.Unlock()

	go c.watchServerExit()

	caps := c.clientCaps
	if caps == nil {
		caps = defaultClientCapabilities()
	}
	params := InitializeParams{
		ProcessID:             os.Getpid(),
		RootPath:              workspaceRoot,
		RootURI:               fileURI(workspaceRoot),
		Capabilities:          caps,
		InitializationOptions: c.initOptions,
	}

	pc, err := conn.SendRequest(ctx, MethodInitialize, params)
	if err != nil {
		return nil, fmt.Errorf("initialize request: %w", err)
	}
	raw, err := pc.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize request: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: initialize returned null", ErrProtocolViolation)
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: initialize result: %v", ErrProtocolViolation, err)
	}

	if err := conn.SendNotification(ctx, MethodInitialized, InitializedParams{}); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	return &result, nil
}

// watchServerExit closes the connection and retires the client when the
// server process dies underneath it.
func (c *LanguageClient) watchServerExit() {
	err, ok := <-c.adapter.Exited()
	if !ok {
		return
	}

	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()
	if state >= ClientShuttingDown {
		return
	}

	c.log.Warn().Err(err).Msg("server exited, shutting down client")
	if conn != nil {
		conn.Close(false)
	}
	c.abort()
}

// abort transitions straight to the terminal state, tearing down any
// connection and the server process.
func (c *LanguageClient) abort() {
	c.mu.Lock()
	c.state = ClientShutdown
	cancel := c.ownsAdapterCtx
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close(false)
	}
	if cancel != nil {
		cancel()
	}
	c.doneOnce.Do(func() { close(c.done) })
}

// Shutdown sends the protocol's shutdown and exit notifications, flushes
// and closes the connection, stops the server process if it is still
// running, and retires the client.
func (c *LanguageClient) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state >= ClientShuttingDown {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.state = ClientShuttingDown
	conn := c.conn
	c.mu.Unlock()

	if conn != nil && conn.State() == StateOpen {
		// shutdown then exit are the last two messages on the wire.
		if err := conn.SendEmptyNotification(ctx, MethodShutdown); err != nil {
			c.log.Warn().Err(err).Msg("shutdown notification failed")
		}
		if err := conn.SendEmptyNotification(ctx, MethodExit); err != nil {
			c.log.Warn().Err(err).Msg("exit notification failed")
		}
		conn.Close(true)
		<-conn.HasClosed()
	}

	if c.adapter.Running() {
		if err := c.adapter.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("server stop failed")
		}
	}

	c.mu.Lock()
	c.state = ClientShutdown
	cancel := c.ownsAdapterCtx
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.doneOnce.Do(func() { close(c.done) })

	c.log.Info().Msg("language client shut down")
	return nil
}

// connection returns the open connection or ErrDisposed/ErrNotConnected.
func (c *LanguageClient) connection() (*Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state >= ClientShuttingDown {
		return nil, ErrDisposed
	}
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// SendRequest forwards a generic request to the connection.
func (c *LanguageClient) SendRequest(ctx context.Context, method string, params any) (*PendingCall, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	return conn.SendRequest(ctx, method, params)
}

// Call sends a request and awaits the decoded result.
func (c *LanguageClient) Call(ctx context.Context, method string, params, result any) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	return conn.Call(ctx, method, params, result)
}

// SendNotification forwards a generic notification to the connection.
func (c *LanguageClient) SendNotification(ctx context.Context, method string, params any) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	return conn.SendNotification(ctx, method, params)
}

// SendEmptyNotification sends a notification without a params field.
func (c *LanguageClient) SendEmptyNotification(ctx context.Context, method string) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	return conn.SendEmptyNotification(ctx, method)
}

// fileURI renders a filesystem path as a file:// URI. Empty stays empty.
func fileURI(path string) DocumentURI {
	if path == "" {
		return ""
	}
	return DocumentURI("file://" + path)
}
