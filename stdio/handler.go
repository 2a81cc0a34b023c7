package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ggoodman/dispatchmcp/dispatch"
	"github.com/ggoodman/dispatchmcp/jsonrpc"
)

// maxLineSize bounds a single JSON-RPC message on the wire. 4 MiB comfortably
// covers the largest tool/resource payloads this core's examples produce.
const maxLineSize = 4 << 20

// Handler is a single-connection stdio transport that reads newline-delimited
// JSON-RPC messages from an io.Reader and writes responses (and outbound
// notifications) to an io.Writer. By default it uses os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all MCP semantics to the
// wrapped *dispatch.Server and wires itself as that server's notification
// sender when it is constructed; that wiring stays in place after Serve
// returns.
type Handler struct {
	srv       *dispatch.Server
	r         io.Reader
	w         io.Writer
	l         *slog.Logger
	sessionID string

	writeMu sync.Mutex
}

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets both the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithSessionID overrides the session id this process presents to srv for
// every message. The default is a freshly generated UUID.
func WithSessionID(sessionID string) Option {
	return func(h *Handler) {
		if sessionID != "" {
			h.sessionID = sessionID
		}
	}
}

// NewHandler constructs a stdio Handler wrapping srv, applying opts over the
// defaults (os.Stdin, os.Stdout, slog.Default(), a fresh session id). It
// wires itself as srv's notification sender.
func NewHandler(srv *dispatch.Server, opts ...Option) *Handler {
	h := &Handler{
		srv:       srv,
		r:         os.Stdin,
		w:         os.Stdout,
		l:         slog.Default(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	srv.SetNotificationSender(h.sendNotification)
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. Cancellation is checked after each line is read, so a Serve
// blocked in a read returns only once that read completes. It is safe to
// call at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(h.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		h.handleLine(ctx, append([]byte(nil), line...))
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading stdio stream: %w", err)
	}
	return nil
}

func (h *Handler) handleLine(ctx context.Context, line []byte) {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		h.l.ErrorContext(ctx, "stdio.parse_error", slog.String("err", err.Error()))
		resp := jsonrpc.NewErrorResponse(nil, jsonrpc.Error{
			Code:    jsonrpc.ErrorCodeParseError,
			Message: "Parse error",
		})
		h.writeJSONRPC(resp)
		return
	}

	resp, err := h.srv.Dispatch(ctx, msg, dispatch.DispatchMeta{SessionID: h.sessionID})
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.dispatch_error", slog.String("err", err.Error()))
		return
	}
	if resp == nil {
		return
	}
	h.writeJSONRPC(resp)
}

func (h *Handler) sendNotification(ctx context.Context, sessionID string, n dispatch.Notification, opts dispatch.SendOptions) error {
	if sessionID != h.sessionID {
		return nil
	}

	params, err := json.Marshal(n.Params)
	if err != nil {
		return fmt.Errorf("marshaling notification params: %w", err)
	}

	req := jsonrpc.Request{
		JSONRPCVersion: jsonrpc.Version,
		Method:         n.Method,
		Params:         params,
	}
	return h.writeJSONRPC(req)
}

func (h *Handler) writeJSONRPC(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling JSON-RPC message: %w", err)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if _, err := h.w.Write(data); err != nil {
		return fmt.Errorf("writing JSON-RPC message: %w", err)
	}
	if _, err := h.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("writing JSON-RPC message terminator: %w", err)
	}
	return nil
}
