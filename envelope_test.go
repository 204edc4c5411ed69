package langwire

import (
	"encoding/json"
	"testing"
)

func TestID_NumberAndString(t *testing.T) {
	numJSON, err := json.Marshal(NumberID(42))
	if err != nil || string(numJSON) != "42" {
		t.Errorf("NumberID marshal = %s, %v", numJSON, err)
	}

	strJSON, err := json.Marshal(StringID("42"))
	if err != nil || string(strJSON) != `"42"` {
		t.Errorf("StringID marshal = %s, %v", strJSON, err)
	}

	var id ID
	if err := json.Unmarshal([]byte(`"abc"`), &id); err != nil {
		t.Fatalf("unmarshal string id: %v", err)
	}
	if id.String() != "abc" {
		t.Errorf("id.String() = %q", id.String())
	}

	if err := json.Unmarshal([]byte(`7`), &id); err != nil {
		t.Fatalf("unmarshal number id: %v", err)
	}
	if id.String() != "7" {
		t.Errorf("id.String() = %q", id.String())
	}

	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Error("expected error for object id")
	}
}

func TestMessage_KindDiscrimination(t *testing.T) {
	id := NumberID(1)

	request := &Message{ID: &id, Method: "m"}
	if !request.IsRequest() || request.IsNotification() || request.IsResponse() {
		t.Error("request misclassified")
	}

	notification := &Message{Method: "m"}
	if !notification.IsNotification() || notification.IsRequest() || notification.IsResponse() {
		t.Error("notification misclassified")
	}

	// A response is discriminated by id-without-method, not by params.
	response := &Message{ID: &id, Result: json.RawMessage(`null`)}
	if !response.IsResponse() || response.IsRequest() || response.IsNotification() {
		t.Error("response misclassified")
	}
}

func TestNewNotification_AbsentParams(t *testing.T) {
	msg, err := newNotification("exit", nil)
	if err != nil {
		t.Fatalf("newNotification() error = %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"jsonrpc":"2.0","method":"exit"}` {
		t.Errorf("wire form = %s", data)
	}
}

func TestNewResponse_NullResult(t *testing.T) {
	msg, err := newResponse(StringID("1"), nil)
	if err != nil {
		t.Fatalf("newResponse() error = %v", err)
	}
	data, _ := json.Marshal(msg)
	if string(data) != `{"jsonrpc":"2.0","id":"1","result":null}` {
		t.Errorf("wire form = %s", data)
	}
}
