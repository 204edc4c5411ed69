package langwire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a JSON-RPC message id: a number or a string. The zero value is
// the numeric id 0; envelopes without an id carry a nil *ID.
type ID struct {
	num      int64
	str      string
	isString bool
}

// NumberID creates a numeric id.
func NumberID(n int64) ID {
	return ID{num: n}
}

// StringID creates a string id.
func StringID(s string) ID {
	return ID{str: s, isString: true}
}

// String returns the canonical key form used by the correlation tables.
// Numeric 7 and string "7" intentionally collide: the runtime only ever
// issues string ids, and servers echo ids back verbatim.
func (id ID) String() string {
	if id.isString {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		id.isString = true
		return json.Unmarshal(data, &id.str)
	}
	id.isString = false
	if err := json.Unmarshal(data, &id.num); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	return nil
}

// jsonRPCVersion is the only protocol version spoken here.
const jsonRPCVersion = "2.0"

// Message is a JSON-RPC 2.0 envelope. Exactly one frame carries exactly
// one Message. The same struct covers requests, notifications, and both
// response shapes; omitempty keeps absent fields off the wire.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsRequest reports whether the envelope is a request. The discriminant
// is the co-presence of id and method.
func (m *Message) IsRequest() bool {
	return m.ID != nil && m.Method != ""
}

// IsNotification reports whether the envelope is a notification.
func (m *Message) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// IsResponse reports whether the envelope is a response: an id with no
// method, carrying result or error.
func (m *Message) IsResponse() bool {
	return m.ID != nil && m.Method == ""
}

// newRequest builds a request envelope. Params marshalling happens here
// so a bad payload surfaces to the caller, not the send loop.
func newRequest(id ID, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: jsonRPCVersion, ID: &id, Method: method, Params: raw}, nil
}

// newNotification builds a notification envelope. A nil params leaves the
// field absent entirely.
func newNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: jsonRPCVersion, Method: method, Params: raw}, nil
}

// newResponse builds a success response. A nil result serializes as
// "result":null, which the protocol requires on success.
func newResponse(id ID, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{JSONRPC: jsonRPCVersion, ID: &id, Result: raw}, nil
}

// newErrorResponse builds an error response.
func newErrorResponse(id ID, rpcErr *RPCError) *Message {
	return &Message{JSONRPC: jsonRPCVersion, ID: &id, Error: rpcErr}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}
