package langwire

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerKind identifies the shape of a registered handler.
type HandlerKind int

const (
	// KindEmptyNotification handles notifications whose params field is
	// absent entirely.
	KindEmptyNotification HandlerKind = iota
	// KindNotification handles notifications carrying params, including
	// a present-but-empty object.
	KindNotification
	// KindRequest handles requests that produce no result; the runtime
	// answers with a null result on success.
	KindRequest
	// KindRequestResult handles requests that produce a result value.
	KindRequestResult
)

// String returns the kind name.
func (k HandlerKind) String() string {
	switch k {
	case KindEmptyNotification:
		return "empty-notification"
	case KindNotification:
		return "notification"
	case KindRequest:
		return "request"
	case KindRequestResult:
		return "request-result"
	default:
		return "unknown"
	}
}

// Handler binds a method name to a callback of one of the four kinds.
// Build one with OnEmptyNotification, OnNotification, OnRequest, or
// OnRequestResult.
type Handler struct {
	method string
	kind   HandlerKind

	emptyFn   func(ctx context.Context) error
	notifyFn  func(ctx context.Context, params json.RawMessage) error
	requestFn func(ctx context.Context, params json.RawMessage) (any, error)
}

// Method returns the method name the handler is bound to.
func (h Handler) Method() string { return h.method }

// Kind returns the handler's kind.
func (h Handler) Kind() HandlerKind { return h.kind }

// OnEmptyNotification builds a handler for notifications without params.
func OnEmptyNotification(method string, fn func(ctx context.Context) error) Handler {
	return Handler{method: method, kind: KindEmptyNotification, emptyFn: fn}
}

// OnNotification builds a handler for notifications with params.
func OnNotification(method string, fn func(ctx context.Context, params json.RawMessage) error) Handler {
	return Handler{method: method, kind: KindNotification, notifyFn: fn}
}

// OnRequest builds a handler for requests that return no result.
func OnRequest(method string, fn func(ctx context.Context, params json.RawMessage) error) Handler {
	return Handler{method: method, kind: KindRequest, requestFn: func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, fn(ctx, params)
	}}
}

// OnRequestResult builds a handler for requests that return a result.
// The result is marshalled into the response envelope.
func OnRequestResult(method string, fn func(ctx context.Context, params json.RawMessage) (any, error)) Handler {
	return Handler{method: method, kind: KindRequestResult, requestFn: fn}
}

// Registration is the release handle returned by Register. Releasing
// deregisters the handler; releasing twice is harmless.
type Registration struct {
	dispatcher *Dispatcher
	method     string
	once       sync.Once
}

// Release removes the registration from the dispatcher.
func (r *Registration) Release() {
	if r == nil || r.dispatcher == nil {
		return
	}
	r.once.Do(func() {
		r.dispatcher.mu.Lock()
		delete(r.dispatcher.handlers, r.method)
		r.dispatcher.mu.Unlock()
	})
}

// Dispatcher routes inbound requests and notifications to registered
// handlers by method name. At most one handler per method. Reads happen
// on every dispatch and writes on registration, so the registry sits
// behind an RWMutex.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register inserts the handler keyed by its method. Fails with
// ErrDuplicateMethod if the method is taken.
func (d *Dispatcher) Register(h Handler) (*Registration, error) {
	if h.method == "" {
		return nil, fmt.Errorf("handler has no method")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[h.method]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateMethod, h.method)
	}
	d.handlers[h.method] = h
	return &Registration{dispatcher: d, method: h.method}, nil
}

// Registered reports whether a handler exists for method.
func (d *Dispatcher) Registered(method string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[method]
	return ok
}

// TryHandleEmptyNotification routes a notification whose params field was
// absent. A notification-kind handler registered for the method is still
// invoked, with nil params. Returns whether a handler ran.
func (d *Dispatcher) TryHandleEmptyNotification(ctx context.Context, method string) (bool, error) {
	h, ok := d.lookup(method)
	if !ok {
		return false, nil
	}
	switch h.kind {
	case KindEmptyNotification:
		return true, h.emptyFn(ctx)
	case KindNotification:
		return true, h.notifyFn(ctx, nil)
	default:
		return false, nil
	}
}

// TryHandleNotification routes a notification carrying params. An
// empty-notification handler registered for the method still runs,
// whatever the params hold, and the params are discarded. Returns whether
// a handler ran.
func (d *Dispatcher) TryHandleNotification(ctx context.Context, method string, params json.RawMessage) (bool, error) {
	h, ok := d.lookup(method)
	if !ok {
		return false, nil
	}
	switch h.kind {
	case KindNotification:
		return true, h.notifyFn(ctx, params)
	case KindEmptyNotification:
		return true, h.emptyFn(ctx)
	default:
		return false, nil
	}
}

// TryHandleRequest routes a request. Returns the handler's result, whether
// a handler was found, and the handler's error. The call is synchronous;
// the connection's dispatch loop runs it on its own goroutine.
func (d *Dispatcher) TryHandleRequest(ctx context.Context, method string, params json.RawMessage) (any, bool, error) {
	h, ok := d.lookup(method)
	if !ok || h.requestFn == nil {
		return nil, false, nil
	}
	result, err := h.requestFn(ctx, params)
	return result, true, err
}

func (d *Dispatcher) lookup(method string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[method]
	return h, ok
}
