package langwire

import "encoding/json"

// Reserved methods produced or consumed by the runtime itself. All other
// inbound traffic is routed through the dispatcher.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "initialized"
	MethodShutdown      = "shutdown"
	MethodExit          = "exit"
	MethodCancelRequest = "$/cancelRequest"
)

// CancelParams carries the id of the request being canceled.
type CancelParams struct {
	ID ID `json:"id"`
}

// DocumentURI identifies a document, typically a file:// URI.
type DocumentURI string

// Position is a zero-based line/character position in a document. The
// character offset counts UTF-16 code units, per the base protocol.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a start/end pair of positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a document range.
type Location struct {
	URI   DocumentURI `json:"uri"`
	Range Range       `json:"range"`
}

// TextDocumentIdentifier names a document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier names a document at a version.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem transfers a document's full content.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is the common request payload of
// position-based requests.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextDocumentContentChangeEvent describes a change: a range edit, or a
// full-content replacement when Range is nil.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// DidOpenTextDocumentParams is the payload of textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams is the payload of textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidCloseTextDocumentParams is the payload of textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidSaveTextDocumentParams is the payload of textDocument/didSave.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         string                 `json:"text,omitempty"`
}

// MarkupContent is human-readable content with a format tag.
type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Hover is the result of textDocument/hover.
type Hover struct {
	Contents json.RawMessage `json:"contents"`
	Range    *Range          `json:"range,omitempty"`
}

// CompletionItem is a single completion suggestion. Only the fields the
// facade surfaces; servers may send more, which survive in raw form on
// the wire but are not modeled here.
type CompletionItem struct {
	Label         string `json:"label"`
	Kind          int    `json:"kind,omitempty"`
	Detail        string `json:"detail,omitempty"`
	InsertText    string `json:"insertText,omitempty"`
	SortText      string `json:"sortText,omitempty"`
	FilterText    string `json:"filterText,omitempty"`
	Documentation any    `json:"documentation,omitempty"`
}

// CompletionList is the result of textDocument/completion.
type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// Diagnostic is a single reported problem.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity,omitempty"`
	Code     any    `json:"code,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// PublishDiagnosticsParams is the payload of
// textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProcessID             int             `json:"processId"`
	RootPath              string          `json:"rootPath,omitempty"`
	RootURI               DocumentURI     `json:"rootUri,omitempty"`
	Capabilities          json.RawMessage `json:"capabilities"`
	InitializationOptions any             `json:"initializationOptions,omitempty"`
}

// InitializeResult is the server's answer to initialize. Capabilities are
// kept raw: the runtime records them, it does not interpret them.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// ServerInfo identifies the server implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializedParams is the empty payload of the initialized notification.
type InitializedParams struct{}

// defaultClientCapabilities is what the client advertises when the caller
// supplies nothing. Dynamic registration stays off; the dispatcher is a
// static registry.
func defaultClientCapabilities() json.RawMessage {
	return json.RawMessage(`{
		"textDocument": {
			"synchronization": {"didSave": true},
			"publishDiagnostics": {"relatedInformation": true},
			"hover": {"contentFormat": ["markdown", "plaintext"]},
			"completion": {"completionItem": {"snippetSupport": false}}
		},
		"workspace": {"configuration": false}
	}`)
}
