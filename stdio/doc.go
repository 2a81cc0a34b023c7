// Package stdio implements a minimal single-connection MCP transport over
// stdin/stdout. It is intended for embedding a dispatch.Server as a
// subprocess, local development, and other environments where spawning a
// child process and piping newline-delimited JSON is simpler than running
// an HTTP server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : one fixed session id for the process lifetime
//	Transport        : newline-delimited JSON-RPC over an io.Reader/io.Writer
//
// Example:
//
//	srv := dispatch.NewServer(mcp.ImplementationInfo{Name: "my-stdio-server", Version: "0.1.0"})
//	srv.RegisterTool("echo", echoHandler)
//	h := stdio.NewHandler(srv)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
package stdio
