package langwire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConnectionState is the connection's lifecycle state.
type ConnectionState int32

const (
	// StateClosed means the connection is not running. Both the initial
	// and the terminal state.
	StateClosed ConnectionState = iota
	// StateOpen means all three loops are running.
	StateOpen
	// StateClosing means Close has been initiated and the loops are
	// winding down.
	StateClosing
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	// defaultQueueSize bounds the outbound and inbound queues.
	defaultQueueSize = 64

	// closeFlushTimeout bounds how long Close waits for the outbound
	// queue to drain when flushing.
	closeFlushTimeout = 5 * time.Second

	closeFlushPoll = 50 * time.Millisecond
)

// callOutcome is what a pending slot eventually holds: the response
// envelope or a local failure.
type callOutcome struct {
	msg *Message
	err error
}

// PendingCall is the caller-visible one-shot completion for an outbound
// request.
type PendingCall struct {
	conn *Connection
	id   ID
	ch   chan callOutcome
}

// ID returns the id assigned at send time.
func (pc *PendingCall) ID() ID { return pc.id }

// Wait blocks until the response arrives, the connection closes, or ctx
// is done. Cancelling ctx fails the call with ErrCanceled and tells the
// server with $/cancelRequest, best effort.
func (pc *PendingCall) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case out := <-pc.ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.msg.Error != nil {
			return nil, out.msg.Error
		}
		return out.msg.Result, nil
	case <-ctx.Done():
		pc.conn.cancelCall(pc.id)
		return nil, ErrCanceled
	}
}

// Connection runs three cooperative loops (send, receive, dispatch) over
// a pair of byte streams and maintains the response-correlation and
// inbound-cancellation tables. Connections are single-use: Open may be
// called once, and Close is terminal.
type Connection struct {
	log        zerolog.Logger
	dispatcher *Dispatcher

	reader *FrameReader
	writer *FrameWriter
	closer io.Closer

	state  atomic.Int32
	opened atomic.Bool
	nextID atomic.Int64

	outbound chan *Message
	inbound  chan *Message

	// acceptInbound gates the receive loop's inbound queue during a
	// flushing close.
	acceptInbound atomic.Bool

	pendingMu sync.Mutex
	pending   map[string]chan callOutcome

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	// ctx is the cancellation root; every per-request cancellation on
	// this connection is its child.
	ctx    context.Context
	cancel context.CancelFunc

	loops     sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithConnectionLogger sets the connection's logger.
func WithConnectionLogger(log zerolog.Logger) ConnectionOption {
	return func(c *Connection) {
		c.log = log
	}
}

// WithDispatcher supplies a pre-populated dispatcher instead of an empty
// one.
func WithDispatcher(d *Dispatcher) ConnectionOption {
	return func(c *Connection) {
		c.dispatcher = d
	}
}

// WithQueueSize sets the capacity of the outbound and inbound queues.
func WithQueueSize(n int) ConnectionOption {
	return func(c *Connection) {
		if n > 0 {
			c.outbound = make(chan *Message, n)
			c.inbound = make(chan *Message, n)
		}
	}
}

// NewConnection creates a connection over the given streams. If r also
// implements io.Closer it is closed during Close to unblock the receive
// loop. The connection does not own the underlying process.
func NewConnection(r io.Reader, w io.Writer, opts ...ConnectionOption) *Connection {
	c := &Connection{
		log:      zerolog.Nop(),
		reader:   NewFrameReader(r),
		writer:   NewFrameWriter(w),
		outbound: make(chan *Message, defaultQueueSize),
		inbound:  make(chan *Message, defaultQueueSize),
		pending:  make(map[string]chan callOutcome),
		inflight: make(map[string]context.CancelFunc),
		closed:   make(chan struct{}),
	}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher()
	}
	c.log = c.log.With().Str("component", "connection").Str("conn_id", uuid.NewString()).Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Open starts the three loops. Allowed exactly once per connection.
func (c *Connection) Open() error {
	if c.opened.Swap(true) {
		return ErrAlreadyOpen
	}
	c.state.Store(int32(StateOpen))
	c.acceptInbound.Store(true)

	c.loops.Add(3)
	go c.sendLoop()
	go c.receiveLoop()
	go c.dispatchLoop()

	go func() {
		c.loops.Wait()
		c.state.Store(int32(StateClosed))
		close(c.closed)
	}()

	c.log.Debug().Msg("connection open")
	return nil
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// HasClosed returns a one-shot signal that resolves once all three loops
// have terminated.
func (c *Connection) HasClosed() <-chan struct{} {
	return c.closed
}

// RegisterHandler delegates to the dispatcher.
func (c *Connection) RegisterHandler(h Handler) (*Registration, error) {
	return c.dispatcher.Register(h)
}

// SendEmptyNotification sends a notification without a params field.
func (c *Connection) SendEmptyNotification(ctx context.Context, method string) error {
	msg, err := newNotification(method, nil)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

// SendNotification sends a fire-and-forget notification.
func (c *Connection) SendNotification(ctx context.Context, method string, params any) error {
	msg, err := newNotification(method, params)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

// SendRequest assigns an id, registers a pending slot, and enqueues the
// request. The returned PendingCall resolves with the correlated
// response.
func (c *Connection) SendRequest(ctx context.Context, method string, params any) (*PendingCall, error) {
	if c.State() != StateOpen {
		return nil, ErrNotConnected
	}

	id := StringID(strconv.FormatInt(c.nextID.Add(1), 10))
	msg, err := newRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan callOutcome, 1)
	key := id.String()
	c.pendingMu.Lock()
	c.pending[key] = ch
	c.pendingMu.Unlock()

	if err := c.send(ctx, msg); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, key)
		c.pendingMu.Unlock()
		return nil, err
	}

	return &PendingCall{conn: c, id: id, ch: ch}, nil
}

// Call sends a request and awaits the response, unmarshalling a non-null
// result into result when it is non-nil.
func (c *Connection) Call(ctx context.Context, method string, params, result any) error {
	pc, err := c.SendRequest(ctx, method, params)
	if err != nil {
		return err
	}
	raw, err := pc.Wait(ctx)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &RPCError{Code: CodeParseError, Message: "unmarshal result: " + err.Error()}
	}
	return nil
}

// send enqueues an envelope for the send loop.
func (c *Connection) send(ctx context.Context, msg *Message) error {
	if c.State() != StateOpen {
		return ErrNotConnected
	}
	select {
	case c.outbound <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueueResponse pushes a response envelope, tolerating a connection
// that is already going down.
func (c *Connection) enqueueResponse(msg *Message) {
	select {
	case c.outbound <- msg:
	case <-c.ctx.Done():
		c.log.Debug().Str("id", msg.ID.String()).Msg("response dropped, connection closing")
	}
}

// cancelCall fails the pending slot locally and, while the connection is
// still open, tells the server with $/cancelRequest.
func (c *Connection) cancelCall(id ID) {
	key := id.String()
	c.pendingMu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- callOutcome{err: ErrCanceled}
	}

	if c.State() != StateOpen {
		return
	}
	msg, err := newNotification(MethodCancelRequest, CancelParams{ID: id})
	if err != nil {
		return
	}
	select {
	case c.outbound <- msg:
		c.log.Debug().Str("id", key).Msg("cancel forwarded to server")
	case <-c.ctx.Done():
	default:
		// Queue full during teardown; cancellation is best effort.
	}
}

// failPending errors every pending slot and clears the table.
func (c *Connection) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan callOutcome)
	c.pendingMu.Unlock()

	for id, ch := range pending {
		ch <- callOutcome{err: err}
		c.log.Debug().Str("id", id).Msg("pending request failed on close")
	}
}

// releaseInflight cancels and removes an inbound-cancellation entry.
func (c *Connection) releaseInflight(key string) {
	c.inflightMu.Lock()
	cancel, ok := c.inflight[key]
	if ok {
		delete(c.inflight, key)
	}
	c.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

// Close initiates shutdown and blocks until all three loops have
// terminated. With flushOutgoing, inbound intake stops first and the
// outbound queue is given a bounded time to drain.
func (c *Connection) Close(flushOutgoing bool) error {
	c.closeOnce.Do(func() {
		if !c.opened.Load() {
			c.state.Store(int32(StateClosed))
			c.cancel()
			close(c.closed)
			return
		}

		c.state.Store(int32(StateClosing))
		c.acceptInbound.Store(false)

		if flushOutgoing {
			deadline := time.Now().Add(closeFlushTimeout)
			for len(c.outbound) > 0 && time.Now().Before(deadline) {
				time.Sleep(closeFlushPoll)
			}
			if n := len(c.outbound); n > 0 {
				c.log.Warn().Int("remaining", n).Msg("closing with unsent messages")
			}
		}

		c.failPending(ErrTransportClosed)
		c.cancel()
		if c.closer != nil {
			c.closer.Close()
		}
		c.log.Debug().Msg("connection closing")
	})

	<-c.closed
	return nil
}

// --- Loops ---

// sendLoop drains the outbound queue and writes frames. Single consumer;
// wire order equals submission order.
func (c *Connection) sendLoop() {
	defer c.loops.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.outbound:
			ev := c.log.Debug().Str("method", msg.Method)
			if msg.ID != nil {
				ev = ev.Str("id", msg.ID.String())
			}
			ev.Msg("send")

			if err := c.writer.WriteFrame(msg); err != nil {
				if c.ctx.Err() == nil {
					c.log.Error().Err(err).Msg("write failed, closing connection")
					go c.Close(false)
				}
				return
			}
		}
	}
}

// receiveLoop reads frames and routes envelopes: responses resolve
// pending slots, requests and notifications go to the inbound queue.
func (c *Connection) receiveLoop() {
	defer c.loops.Done()

	for {
		payload, err := c.reader.ReadFrame()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrTransportClosed) {
				// End-of-stream between frames terminates the loop but
				// does not by itself cancel the connection; the process
				// exit observer does.
				c.log.Debug().Msg("stream closed")
				return
			}
			c.log.Error().Err(err).Msg("frame decode failed, closing connection")
			go c.Close(false)
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Warn().Err(err).Msg("invalid envelope dropped")
			continue
		}

		switch {
		case msg.IsResponse():
			c.resolvePending(&msg)
		case msg.Method != "":
			if !c.acceptInbound.Load() {
				c.log.Debug().Str("method", msg.Method).Msg("inbound dropped during close")
				continue
			}
			select {
			case c.inbound <- &msg:
			case <-c.ctx.Done():
				return
			}
		default:
			c.log.Warn().Msg("envelope with neither method nor result dropped")
		}
	}
}

// resolvePending completes the slot correlated with the response id. The
// slot is removed before delivery, so a second response with the same id
// finds nothing and is dropped.
func (c *Connection) resolvePending(msg *Message) {
	key := msg.ID.String()
	c.pendingMu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.log.Warn().Str("id", key).Msg("response with no pending request dropped")
		return
	}
	ch <- callOutcome{msg: msg}
}

// dispatchLoop drains the inbound queue and routes through the
// dispatcher. Handlers run on their own goroutines so the loop never
// blocks on one.
func (c *Connection) dispatchLoop() {
	defer c.loops.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.inbound:
			c.dispatchMessage(msg)
		}
	}
}

func (c *Connection) dispatchMessage(msg *Message) {
	if msg.Method == MethodCancelRequest {
		c.handleCancelRequest(msg)
		return
	}
	if msg.IsRequest() {
		c.dispatchRequest(msg)
		return
	}
	c.dispatchNotification(msg)
}

// handleCancelRequest triggers the inbound cancellation entry named by
// params.id. No response is sent, whatever shape the cancel arrived in.
func (c *Connection) handleCancelRequest(msg *Message) {
	var params CancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		c.log.Warn().Err(err).Msg("malformed $/cancelRequest dropped")
		return
	}
	key := params.ID.String()

	c.inflightMu.Lock()
	cancel, ok := c.inflight[key]
	if ok {
		delete(c.inflight, key)
	}
	c.inflightMu.Unlock()

	if !ok {
		c.log.Debug().Str("id", key).Msg("cancel for unknown request")
		return
	}
	c.log.Debug().Str("id", key).Msg("inbound request canceled by server")
	cancel()
}

// dispatchRequest registers a per-request cancellation linked to the
// connection root, then runs the handler off-loop. A canceled handler
// produces no response.
func (c *Connection) dispatchRequest(msg *Message) {
	id := *msg.ID
	key := id.String()

	if !c.dispatcher.Registered(msg.Method) {
		c.log.Debug().Str("method", msg.Method).Msg("no handler for request")
		c.enqueueResponse(newErrorResponse(id, &RPCError{
			Code:    CodeMethodNotFound,
			Message: "method not found: " + msg.Method,
		}))
		return
	}

	hctx, hcancel := context.WithCancel(c.ctx)
	c.inflightMu.Lock()
	c.inflight[key] = hcancel
	c.inflightMu.Unlock()

	go func() {
		defer c.releaseInflight(key)

		result, found, err := c.dispatcher.TryHandleRequest(hctx, msg.Method, msg.Params)
		switch {
		case !found:
			// No request handler: deregistered between the registry check
			// and the call, or the method has a notification-kind handler.
			c.enqueueResponse(newErrorResponse(id, &RPCError{
				Code:    CodeMethodNotFound,
				Message: "method not found: " + msg.Method,
			}))
		case hctx.Err() != nil || errors.Is(err, context.Canceled):
			c.log.Debug().Str("id", key).Msg("canceled request, no response sent")
		case err != nil:
			c.log.Warn().Err(err).Str("method", msg.Method).Msg("handler failed")
			c.enqueueResponse(newErrorResponse(id, &RPCError{
				Code:    CodeHandlerFailure,
				Message: err.Error(),
				Data:    string(debug.Stack()),
			}))
		default:
			resp, merr := newResponse(id, result)
			if merr != nil {
				c.enqueueResponse(newErrorResponse(id, &RPCError{
					Code:    CodeInternalError,
					Message: merr.Error(),
				}))
				return
			}
			c.enqueueResponse(resp)
		}
	}()
}

// dispatchNotification routes by the params tie-break rule: absent params
// goes to the empty-notification entry point, anything present, including
// an empty object, goes to the notification entry point.
func (c *Connection) dispatchNotification(msg *Message) {
	go func() {
		var handled bool
		var err error
		if msg.Params == nil {
			handled, err = c.dispatcher.TryHandleEmptyNotification(c.ctx, msg.Method)
		} else {
			handled, err = c.dispatcher.TryHandleNotification(c.ctx, msg.Method, msg.Params)
		}
		switch {
		case err != nil:
			c.log.Warn().Err(err).Str("method", msg.Method).Msg("notification handler failed")
		case !handled:
			c.log.Debug().Str("method", msg.Method).Msg("no handler for notification")
		}
	}()
}
