package langwire

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDispatcher_RegisterDuplicate(t *testing.T) {
	d := NewDispatcher()

	reg, err := d.Register(OnEmptyNotification("ping", func(ctx context.Context) error { return nil }))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := d.Register(OnEmptyNotification("ping", func(ctx context.Context) error { return nil })); !errors.Is(err, ErrDuplicateMethod) {
		t.Errorf("second Register() error = %v, want ErrDuplicateMethod", err)
	}

	// Releasing frees the method for re-registration.
	reg.Release()
	if _, err := d.Register(OnEmptyNotification("ping", func(ctx context.Context) error { return nil })); err != nil {
		t.Errorf("Register() after Release error = %v", err)
	}
}

func TestDispatcher_ReleaseTwice(t *testing.T) {
	d := NewDispatcher()
	reg, err := d.Register(OnNotification("a", func(ctx context.Context, params json.RawMessage) error { return nil }))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	reg.Release()
	reg.Release() // must be harmless
	if d.Registered("a") {
		t.Error("handler still registered after Release")
	}
}

func TestDispatcher_EmptyNotificationRouting(t *testing.T) {
	d := NewDispatcher()

	called := false
	if _, err := d.Register(OnEmptyNotification("ping", func(ctx context.Context) error {
		called = true
		return nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handled, err := d.TryHandleEmptyNotification(context.Background(), "ping")
	if err != nil || !handled || !called {
		t.Errorf("TryHandleEmptyNotification() = %v, %v, called=%v", handled, err, called)
	}

	if handled, _ := d.TryHandleEmptyNotification(context.Background(), "absent"); handled {
		t.Error("handled an unregistered method")
	}
}

func TestDispatcher_EmptyParamsRoutesToNotification(t *testing.T) {
	// A present-but-empty params object is still a notification.
	d := NewDispatcher()

	var got json.RawMessage
	if _, err := d.Register(OnNotification("cfg", func(ctx context.Context, params json.RawMessage) error {
		got = params
		return nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handled, err := d.TryHandleNotification(context.Background(), "cfg", json.RawMessage(`{}`))
	if err != nil || !handled {
		t.Fatalf("TryHandleNotification() = %v, %v", handled, err)
	}
	if string(got) != "{}" {
		t.Errorf("params = %s, want {}", got)
	}
}

func TestDispatcher_KindDegradation(t *testing.T) {
	// Each entry point falls back to the other notification arm so an
	// empty-object notification still reaches an empty handler.
	d := NewDispatcher()

	emptyCalls := 0
	if _, err := d.Register(OnEmptyNotification("e", func(ctx context.Context) error {
		emptyCalls++
		return nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if handled, _ := d.TryHandleNotification(context.Background(), "e", json.RawMessage(`{}`)); !handled {
		t.Error("empty handler not reached via notification entry point")
	}

	notifyCalls := 0
	if _, err := d.Register(OnNotification("n", func(ctx context.Context, params json.RawMessage) error {
		notifyCalls++
		return nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if handled, _ := d.TryHandleEmptyNotification(context.Background(), "n"); !handled {
		t.Error("notification handler not reached via empty entry point")
	}

	if emptyCalls != 1 || notifyCalls != 1 {
		t.Errorf("calls = %d, %d", emptyCalls, notifyCalls)
	}
}

func TestDispatcher_RequestRouting(t *testing.T) {
	d := NewDispatcher()

	if _, err := d.Register(OnRequestResult("add", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct{ A, B int }
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return p.A + p.B, nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, found, err := d.TryHandleRequest(context.Background(), "add", json.RawMessage(`{"A":2,"B":3}`))
	if !found || err != nil {
		t.Fatalf("TryHandleRequest() = %v, %v, %v", result, found, err)
	}
	if result != 5 {
		t.Errorf("result = %v, want 5", result)
	}

	if _, found, _ := d.TryHandleRequest(context.Background(), "missing", nil); found {
		t.Error("found an unregistered request handler")
	}

	// A request method does not answer notification entry points.
	if handled, _ := d.TryHandleNotification(context.Background(), "add", json.RawMessage(`{}`)); handled {
		t.Error("request handler ran as notification")
	}
}

func TestDispatcher_RequestNoResult(t *testing.T) {
	d := NewDispatcher()

	ran := false
	if _, err := d.Register(OnRequest("do", func(ctx context.Context, params json.RawMessage) error {
		ran = true
		return nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, found, err := d.TryHandleRequest(context.Background(), "do", nil)
	if !found || err != nil || !ran {
		t.Fatalf("TryHandleRequest() = %v, %v, %v, ran=%v", result, found, err, ran)
	}
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}
}

func TestDispatcher_HandlerErrorPropagates(t *testing.T) {
	d := NewDispatcher()

	boom := errors.New("boom")
	if _, err := d.Register(OnRequestResult("fail", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, boom
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, found, err := d.TryHandleRequest(context.Background(), "fail", nil)
	if !found || !errors.Is(err, boom) {
		t.Errorf("TryHandleRequest() = %v, %v", found, err)
	}
}
