// Package langwire implements the client side of the Language Server
// Protocol: a long-lived, bidirectional JSON-RPC 2.0 connection framed by
// Content-Length headers, plus the dispatch and lifecycle machinery an
// editor or tool needs to drive an external language server.
//
// # Architecture
//
// The package is organized around these core components:
//
//   - LanguageClient: lifecycle orchestration (spawn, initialize, shutdown)
//   - Connection: the send/receive/dispatch loops and correlation tables
//   - Dispatcher: method-name routing for server-initiated traffic
//   - ServerAdapter: how the server process is reached (stdio, pipes, websocket)
//   - FrameReader/FrameWriter: the Content-Length wire codec
//
// # Quick Start
//
// Spawn a server and run the handshake:
//
//	adapter := langwire.NewProcessAdapter(langwire.ProcessConfig{
//	    Command: "gopls",
//	    Args:    []string{"serve"},
//	})
//	client := langwire.NewLanguageClient(adapter)
//
//	result, err := client.Initialize(ctx, "/path/to/workspace")
//	if err != nil {
//	    log.Fatal().Err(err).Msg("initialize failed")
//	}
//	defer client.Shutdown(context.Background())
//
//	// Generic requests
//	var hover Hover
//	err = client.Call(ctx, "textDocument/hover", params, &hover)
//
// # Server-Initiated Traffic
//
// Servers send their own requests and notifications. Register handlers
// before Initialize so nothing is dropped during the handshake:
//
//	reg, err := client.RegisterHandler(langwire.OnNotification(
//	    "textDocument/publishDiagnostics",
//	    func(ctx context.Context, params json.RawMessage) error {
//	        ...
//	        return nil
//	    }))
//	defer reg.Release()
//
// # Cancellation
//
// Outbound requests are cancelled through their context; the runtime fails
// the pending call and tells the server with $/cancelRequest, best effort.
// Inbound $/cancelRequest notifications cancel the matching handler's
// context. Closing the connection cancels everything.
//
// # Thread Safety
//
// LanguageClient, Connection, and Dispatcher are safe for concurrent use.
// The two byte streams are each owned by exactly one internal loop; no
// concurrent I/O takes place on them.
package langwire
