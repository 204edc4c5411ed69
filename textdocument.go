package langwire

import (
	"context"
	"encoding/json"
	"sync"
)

// TextDocument is a typed facade over the generic send surface for the
// document-sync and position-based methods an editor uses most. It only
// composes method names and payloads; every call flows through the
// connection's SendRequest/SendNotification.
type TextDocument struct {
	client *LanguageClient

	mu       sync.Mutex
	versions map[DocumentURI]int
}

// TextDocument returns a new typed document facade. Each facade keeps its
// own document version table.
func (c *LanguageClient) TextDocument() *TextDocument {
	return &TextDocument{
		client:   c,
		versions: make(map[DocumentURI]int),
	}
}

// DidOpen announces a document and starts version tracking at 1.
func (td *TextDocument) DidOpen(ctx context.Context, uri DocumentURI, languageID, text string) error {
	td.mu.Lock()
	td.versions[uri] = 1
	td.mu.Unlock()

	return td.client.SendNotification(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	})
}

// DidChange sends content changes, bumping the tracked version.
func (td *TextDocument) DidChange(ctx context.Context, uri DocumentURI, changes []TextDocumentContentChangeEvent) error {
	td.mu.Lock()
	td.versions[uri]++
	version := td.versions[uri]
	td.mu.Unlock()

	return td.client.SendNotification(ctx, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: changes,
	})
}

// DidSave announces a save, optionally including the full text.
func (td *TextDocument) DidSave(ctx context.Context, uri DocumentURI, text string) error {
	return td.client.SendNotification(ctx, "textDocument/didSave", DidSaveTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Text:         text,
	})
}

// DidClose announces a close and stops version tracking.
func (td *TextDocument) DidClose(ctx context.Context, uri DocumentURI) error {
	td.mu.Lock()
	delete(td.versions, uri)
	td.mu.Unlock()

	return td.client.SendNotification(ctx, "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// Version returns the tracked version of an open document, 0 if unknown.
func (td *TextDocument) Version(uri DocumentURI) int {
	td.mu.Lock()
	defer td.mu.Unlock()
	return td.versions[uri]
}

// Hover requests hover information at a position.
func (td *TextDocument) Hover(ctx context.Context, uri DocumentURI, pos Position) (*Hover, error) {
	var result *Hover
	err := td.client.Call(ctx, "textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &result)
	return result, err
}

// Definition requests the definition locations of the symbol at a
// position. Servers answer with a single location or a list; both decode
// into a list.
func (td *TextDocument) Definition(ctx context.Context, uri DocumentURI, pos Position) ([]Location, error) {
	var raw json.RawMessage
	err := td.client.Call(ctx, "textDocument/definition", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// Completion requests completions at a position. Servers answer with a
// bare item list or a CompletionList; both decode into a CompletionList.
func (td *TextDocument) Completion(ctx context.Context, uri DocumentURI, pos Position) (*CompletionList, error) {
	var raw json.RawMessage
	err := td.client.Call(ctx, "textDocument/completion", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeCompletions(raw)
}

// OnDiagnostics registers a handler for textDocument/publishDiagnostics.
func (c *LanguageClient) OnDiagnostics(fn func(PublishDiagnosticsParams)) (*Registration, error) {
	return c.RegisterHandler(OnNotification("textDocument/publishDiagnostics",
		func(ctx context.Context, params json.RawMessage) error {
			var p PublishDiagnosticsParams
			if err := json.Unmarshal(params, &p); err != nil {
				return err
			}
			fn(p)
			return nil
		}))
}

// decodeLocations accepts null, a single Location, or a list.
func decodeLocations(raw json.RawMessage) ([]Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var locs []Location
		if err := json.Unmarshal(raw, &locs); err != nil {
			return nil, err
		}
		return locs, nil
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, err
	}
	return []Location{loc}, nil
}

// decodeCompletions accepts null, a bare item list, or a CompletionList.
func decodeCompletions(raw json.RawMessage) (*CompletionList, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &CompletionList{}, nil
	}
	if raw[0] == '[' {
		var items []CompletionItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return &CompletionList{Items: items}, nil
	}
	var list CompletionList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
