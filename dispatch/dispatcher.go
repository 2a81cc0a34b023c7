package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/ggoodman/dispatchmcp/jsonrpc"
)

// DispatchMeta carries transport-supplied metadata for a single Dispatch
// call that the message itself doesn't encode.
type DispatchMeta struct {
	// SessionID identifies the transport session this message arrived on.
	// Required for progress notifications to be deliverable.
	SessionID string
	// AuthInfo is whatever an upstream transport or middleware layer
	// attached about the caller's identity. The core never inspects it.
	AuthInfo any
}

// Dispatch routes one decoded JSON-RPC message through the middleware chain
// and the built-in method table, returning the response to write back to
// the transport. It returns a nil *jsonrpc.Response for notifications,
// which never produce a reply. The only non-nil error return is for a msg
// that is neither a request nor a notification (e.g. a stray response);
// everything else, including handler and middleware failures, is captured
// in the returned Response's error field.
func (s *Server) Dispatch(ctx context.Context, msg jsonrpc.AnyMessage, meta DispatchMeta) (*jsonrpc.Response, error) {
	req, ok := msg.AsRequest()
	if !ok {
		return nil, errNotARequest
	}

	rc := s.newDispatchContext(req, meta)

	log := s.log.With(slog.String("method", req.Method))
	start := time.Now()

	c := &chain{middlewares: s.snapshotMiddlewares(), tail: s.tailHandler()}
	err := c.run(ctx, rc)

	resp := s.finalize(req, rc, err)

	dur := time.Since(start)
	switch {
	case err != nil:
		log.ErrorContext(ctx, "dispatch.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", dur.Milliseconds()))
	case req.IsNotification():
		log.DebugContext(ctx, "dispatch.handle_request.notified", slog.Int64("dur_ms", dur.Milliseconds()))
	default:
		log.InfoContext(ctx, "dispatch.handle_request.ok", slog.Int64("dur_ms", dur.Milliseconds()))
	}

	return resp, nil
}

func (s *Server) newDispatchContext(req jsonrpc.Request, meta DispatchMeta) *Context {
	s.mu.RLock()
	sender := s.notificationSender
	s.mu.RUnlock()

	var progress func(ctx context.Context, update map[string]any) error
	if token, ok := extractProgressToken(req.Params); ok {
		progress = bindProgress(sender, meta.SessionID, token, req.ID)
	}

	state := make(map[string]any, 1)
	state[stateKeyParams] = req.Params

	return &Context{
		Method:    req.Method,
		RequestID: req.ID,
		SessionID: meta.SessionID,
		AuthInfo:  meta.AuthInfo,
		State:     state,
		progress:  progress,
	}
}

func (s *Server) snapshotMiddlewares() []MiddlewareFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MiddlewareFunc, len(s.middlewares))
	copy(out, s.middlewares)
	return out
}

func (s *Server) tailHandler() HandlerFunc {
	return func(ctx context.Context, rc *Context) error {
		return s.route(rc.Method)(ctx, rc)
	}
}

func (s *Server) finalize(req jsonrpc.Request, rc *Context, err error) *jsonrpc.Response {
	if req.IsNotification() {
		safeOnError(s.onError, req.Method, err)
		return nil
	}

	if err != nil {
		rpcErr := safeOnError(s.onError, req.Method, err)
		if rpcErr == nil {
			rpcErr = toRpcError(err)
		}
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.Error{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Data:    rpcErr.Data,
		})
		return &resp
	}

	if rc.Response == nil {
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.Error{
			Code:    jsonrpc.ErrorCodeInternalError,
			Message: "No response generated",
		})
		return &resp
	}

	return rc.Response
}

var errNotARequest = &notARequestError{}

type notARequestError struct{}

func (*notARequestError) Error() string {
	return "dispatch: message is not a JSON-RPC request or notification"
}
