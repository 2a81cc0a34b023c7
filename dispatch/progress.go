package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/dispatchmcp/jsonrpc"
	"github.com/ggoodman/dispatchmcp/mcp"
)

// Notification is an outbound, server-to-client JSON-RPC notification, as
// delivered to a NotificationSender.
type Notification struct {
	Method string
	Params any
}

// SendOptions accompanies a Notification with correlation metadata.
type SendOptions struct {
	// RelatedRequestID ties the notification back to the request that
	// caused it, so a client can reassociate out-of-band notifications with
	// the call that's still in flight. Nil for notifications with no
	// originating request.
	RelatedRequestID *jsonrpc.RequestID
}

// NotificationSender delivers a notification to a specific session. It is
// wired in by the transport and held for the server's lifetime; the core
// never constructs one itself.
type NotificationSender func(ctx context.Context, sessionID string, notification Notification, opts SendOptions) error

// extractProgressToken reads params._meta.progressToken. It returns
// ok=false if params has no _meta, no progressToken, or a progressToken
// that isn't a string or a number.
func extractProgressToken(params json.RawMessage) (mcp.ProgressToken, bool) {
	if len(params) == 0 {
		return nil, false
	}

	var envelope struct {
		Meta *mcp.RequestMeta `json:"_meta"`
	}
	if err := json.Unmarshal(params, &envelope); err != nil || envelope.Meta == nil {
		return nil, false
	}

	switch envelope.Meta.ProgressToken.(type) {
	case string, float64:
		return envelope.Meta.ProgressToken, true
	default:
		return nil, false
	}
}

// bindProgress constructs the bound progress closure for one dispatch, or
// nil if sessionID, sender, or token is missing — mirroring the rule that
// ctx.progress is only present when all three are available.
func bindProgress(sender NotificationSender, sessionID string, token mcp.ProgressToken, requestID *jsonrpc.RequestID) func(ctx context.Context, update map[string]any) error {
	if sender == nil || sessionID == "" || token == nil {
		return nil
	}

	return func(ctx context.Context, update map[string]any) error {
		params := make(map[string]any, len(update)+1)
		params["progressToken"] = token
		for k, v := range update {
			params[k] = v
		}

		err := sender(ctx, sessionID, Notification{
			Method: string(mcp.ProgressNotificationMethod),
			Params: params,
		}, SendOptions{RelatedRequestID: requestID})
		if err != nil {
			return fmt.Errorf("sending progress notification: %w", err)
		}
		return nil
	}
}
