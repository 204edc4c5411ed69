package langwire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	msg := &Message{
		JSONRPC: jsonRPCVersion,
		Method:  "textDocument/hover",
		Params:  json.RawMessage(`{"line":3}`),
	}

	fw := NewFrameWriter(&buf)
	if err := fw.WriteFrame(msg); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	fr := NewFrameReader(&buf)
	payload, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}

	want, _ := json.Marshal(msg)
	if !bytes.Equal(payload, want) {
		t.Errorf("round trip mismatch: got %s want %s", payload, want)
	}
}

func TestFrame_RawRoundTrip(t *testing.T) {
	// The JSON bytes must survive byte-for-byte.
	var buf bytes.Buffer
	payload := []byte(`{"jsonrpc":"2.0","id":"7","result":{"a":[1,2,3],"b":"x"}}`)

	if err := NewFrameWriter(&buf).WriteRaw(payload); err != nil {
		t.Fatalf("WriteRaw() error = %v", err)
	}
	got, err := NewFrameReader(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload changed: got %s want %s", got, payload)
	}
}

func TestFrame_HeaderTolerance(t *testing.T) {
	// Extra headers are ignored, and Content-Length is read in any case.
	frames := []string{
		"Content-Length: 2\r\nContent-Type: application/vscode-jsonrpc\r\n\r\n{}",
		"content-length: 2\r\n\r\n{}",
		"CONTENT-LENGTH:2\r\nX-Whatever: yes\r\n\r\n{}",
		"Some-Garbage-Line\r\nContent-Length: 2\r\n\r\n{}",
	}

	for _, frame := range frames {
		fr := NewFrameReader(strings.NewReader(frame))
		payload, err := fr.ReadFrame()
		if err != nil {
			t.Errorf("ReadFrame(%q) error = %v", frame, err)
			continue
		}
		if string(payload) != "{}" {
			t.Errorf("ReadFrame(%q) = %q, want {}", frame, payload)
		}
	}
}

func TestFrame_MissingContentLength(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("Content-Type: application/json\r\n\r\n{}"))
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrBadHeader) {
		t.Errorf("ReadFrame() error = %v, want ErrBadHeader", err)
	}
}

func TestFrame_BadContentLength(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("Content-Length: nope\r\n\r\n{}"))
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrBadHeader) {
		t.Errorf("ReadFrame() error = %v, want ErrBadHeader", err)
	}
}

func TestFrame_TruncatedPayload(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("Content-Length: 999999999\r\n\r\n{}"))
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrBadFrame) {
		t.Errorf("ReadFrame() error = %v, want ErrBadFrame", err)
	}
}

func TestFrame_EOFBeforeFrame(t *testing.T) {
	fr := NewFrameReader(strings.NewReader(""))
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("ReadFrame() error = %v, want ErrTransportClosed", err)
	}
}

func TestFrame_EOFMidHeader(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("Content-Length: 2\r\n"))
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrBadFrame) {
		t.Errorf("ReadFrame() error = %v, want ErrBadFrame", err)
	}
}

func TestFrame_SequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	for i := 0; i < 3; i++ {
		msg, err := newNotification("tick", map[string]int{"n": i})
		if err != nil {
			t.Fatalf("newNotification() error = %v", err)
		}
		if err := fw.WriteFrame(msg); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}

	fr := NewFrameReader(&buf)
	for i := 0; i < 3; i++ {
		payload, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() #%d error = %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal #%d: %v", i, err)
		}
		var p struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil || p.N != i {
			t.Errorf("frame #%d params = %s", i, msg.Params)
		}
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed at end, got %v", err)
	}
}

func TestFrame_ReaderIsStreamBound(t *testing.T) {
	// A frame split across many tiny reads still decodes.
	frame := "Content-Length: 13\r\n\r\n" + `{"jsonrpc":1}`
	fr := NewFrameReader(iotest(frame))
	payload, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if string(payload) != `{"jsonrpc":1}` {
		t.Errorf("payload = %q", payload)
	}
}

// iotest returns a reader that yields one byte per Read call.
func iotest(s string) io.Reader {
	return &oneByteReader{data: []byte(s)}
}

type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
