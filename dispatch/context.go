package dispatch

import (
	"context"

	"github.com/ggoodman/dispatchmcp/jsonrpc"
	"github.com/ggoodman/dispatchmcp/schema"
)

// Context is the per-dispatch value threaded through the middleware chain
// and into the resolved handler. Its lifetime is exactly one call to
// Server.Dispatch; nothing on it is safe to retain past that call.
type Context struct {
	// Method is the JSON-RPC method being dispatched.
	Method string
	// RequestID is nil for notifications.
	RequestID *jsonrpc.RequestID
	// SessionID identifies the transport-level session this message arrived
	// on, if the transport has a notion of sessions. Empty if not.
	SessionID string
	// AuthInfo carries whatever an auth middleware attached upstream of the
	// core; the core never inspects it.
	AuthInfo any
	// State is a freely mutable per-dispatch bag middlewares and handlers
	// can use to pass data down the chain.
	State map[string]any

	// Response is filled in by the tail handler for requests; nil for
	// notifications and for requests that never reached the tail.
	Response *jsonrpc.Response

	progress func(ctx context.Context, update map[string]any) error
}

// IsNotification reports whether this dispatch has no request id.
func (rc *Context) IsNotification() bool {
	return rc.RequestID == nil || rc.RequestID.IsNil()
}

// CanProgress reports whether a progress sender is bound for this dispatch
// (requires a session id, a transport-supplied sender, and a progress token
// all to be present).
func (rc *Context) CanProgress() bool {
	return rc.progress != nil
}

// Progress emits a notifications/progress update correlated to this
// dispatch's request id, if a sender is bound. It is a safe no-op when no
// progress sender is bound, so handlers can call it unconditionally.
func (rc *Context) Progress(ctx context.Context, update map[string]any) error {
	if rc.progress == nil {
		return nil
	}
	return rc.progress(ctx, update)
}

// Validate runs validator against value, translating any validator error
// into an INVALID_PARAMS *RpcError. A nil validator passes value through
// unchanged.
func (rc *Context) Validate(validator schema.ValidatorFunc, value any) (any, error) {
	if validator == nil {
		return value, nil
	}
	validated, err := validator(value)
	if err != nil {
		return nil, InvalidParams(err.Error(), nil)
	}
	return validated, nil
}
