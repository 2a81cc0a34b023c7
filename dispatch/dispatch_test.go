package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/ggoodman/dispatchmcp/dispatch"
	"github.com/ggoodman/dispatchmcp/jsonrpc"
	"github.com/ggoodman/dispatchmcp/mcp"
	"github.com/ggoodman/dispatchmcp/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDecode(t *testing.T, raw string) jsonrpc.AnyMessage {
	t.Helper()
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("decoding test message: %v", err)
	}
	return msg
}

func echoInputSchema() *schema.Document {
	doc := schema.NewObjectDocument(false)
	doc.Properties.Set("m", &schema.Property{Type: "string"})
	doc.Required = []string{"m"}
	return doc
}

// (a) Echo tool.
func TestEchoTool(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	err := s.RegisterTool("echo", func(ctx context.Context, rc *dispatch.Context, args any) (*mcp.CallToolResult, error) {
		m, _ := args.(map[string]any)["m"].(string)
		return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: m}}}, nil
	}, dispatch.WithToolInputSchema(echoInputSchema()))
	if err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"m":"hi"}}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response, got nil")
	}
	if resp.Error != nil {
		t.Fatalf("expected success, got error: %+v", resp.Error)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

// (b) Unknown tool.
func TestUnknownTool(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND, got %d", resp.Error.Code)
	}
}

// (c) Template resource.
func TestTemplateResource(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	err := s.RegisterResource("github://repos/{owner}/{repo}", func(ctx context.Context, rc *dispatch.Context, href string, vars map[string]any) ([]mcp.ResourceContents, error) {
		owner, _ := vars["owner"].(string)
		repo, _ := vars["repo"].(string)
		return []mcp.ResourceContents{{URI: href, Text: owner + "/" + repo}}, nil
	})
	if err != nil {
		t.Fatalf("RegisterResource: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"github://repos/a/b"}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("expected success, got error: %+v", resp.Error)
	}

	var result mcp.ReadResourceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].Text != "a/b" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

// (d) Protocol mismatch.
func TestProtocolMismatch(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":4,"method":"initialize","params":{"protocolVersion":"1999-01-01","capabilities":{},"clientInfo":{"name":"x","version":"0"}}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != jsonrpc.ErrorCodeProtocolVersionMismatch {
		t.Fatalf("expected -32000, got %d", resp.Error.Code)
	}
	data, ok := resp.Error.Data.(map[string]string)
	if !ok {
		t.Fatalf("expected map error data, got %T", resp.Error.Data)
	}
	if data["requestedVersion"] != "1999-01-01" {
		t.Fatalf("unexpected requestedVersion: %+v", data)
	}
}

// (e) Notification swallowed.
func TestNotificationSwallowed(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response for a notification, got %+v", resp)
	}
}

// Unknown method on a notification is swallowed the same way, even though
// nothing handles it.
func TestUnknownNotificationSwallowed(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","method":"notifications/bogus"}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
}

// Unknown method on a request is METHOD_NOT_FOUND.
func TestUnknownMethodRequest(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":9,"method":"bogus/method"}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND, got %+v", resp.Error)
	}
}

// A request with an id but no method at all is METHOD_NOT_FOUND with no
// data payload, and preserves the original id.
func TestMissingMethodRequest(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":9}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND, got %+v", resp.Error)
	}
	if resp.Error.Data != nil {
		t.Fatalf("expected no data payload for a missing method, got %+v", resp.Error.Data)
	}
	if resp.ID == nil || resp.ID.IsNil() {
		t.Fatal("expected the original id to be preserved")
	}
}

// tools/call with non-object params (here a JSON array) fails to decode into
// CallToolRequestReceived and surfaces as INVALID_PARAMS.
func TestToolsCallNonObjectParams(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":[1,2,3]}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %+v", resp.Error)
	}
}

// (f) Progress wiring.
func TestProgressWiring(t *testing.T) {
	type sent struct {
		sessionID    string
		notification dispatch.Notification
		opts         dispatch.SendOptions
	}
	var captured []sent

	sender := dispatch.NotificationSender(func(ctx context.Context, sessionID string, notification dispatch.Notification, opts dispatch.SendOptions) error {
		captured = append(captured, sent{sessionID: sessionID, notification: notification, opts: opts})
		return nil
	})

	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"},
		dispatch.WithLogger(testLogger()),
		dispatch.WithNotificationSender(sender),
	)

	err := s.RegisterTool("longrunning", func(ctx context.Context, rc *dispatch.Context, args any) (*mcp.CallToolResult, error) {
		if err := rc.Progress(ctx, map[string]any{"progress": float64(50), "total": float64(100)}); err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{}, nil
	})
	if err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":"req-1","method":"tools/call","params":{"name":"longrunning","arguments":{},"_meta":{"progressToken":"tok"}}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("expected success, got error: %+v", resp.Error)
	}

	if len(captured) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(captured))
	}
	got := captured[0]
	if got.sessionID != "sess-1" {
		t.Fatalf("unexpected session id: %q", got.sessionID)
	}
	if got.notification.Method != string(mcp.ProgressNotificationMethod) {
		t.Fatalf("unexpected method: %q", got.notification.Method)
	}
	params, ok := got.notification.Params.(map[string]any)
	if !ok {
		t.Fatalf("expected map params, got %T", got.notification.Params)
	}
	if params["progressToken"] != "tok" || params["progress"] != float64(50) || params["total"] != float64(100) {
		t.Fatalf("unexpected params: %+v", params)
	}
	if got.opts.RelatedRequestID == nil || got.opts.RelatedRequestID.String() != "req-1" {
		t.Fatalf("unexpected related request id: %+v", got.opts.RelatedRequestID)
	}
}

// Middleware order: for middlewares [A,B], trace is A-pre, B-pre, tail, B-post, A-post.
func TestMiddlewareOrder(t *testing.T) {
	var trace []string

	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))
	s.Use(func(ctx context.Context, rc *dispatch.Context, next dispatch.Next) error {
		trace = append(trace, "A-pre")
		err := next(ctx, rc)
		trace = append(trace, "A-post")
		return err
	})
	s.Use(func(ctx context.Context, rc *dispatch.Context, next dispatch.Next) error {
		trace = append(trace, "B-pre")
		err := next(ctx, rc)
		trace = append(trace, "B-post")
		return err
	})

	err := s.RegisterTool("noop", func(ctx context.Context, rc *dispatch.Context, args any) (*mcp.CallToolResult, error) {
		trace = append(trace, "tail")
		return &mcp.CallToolResult{}, nil
	})
	if err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"noop","arguments":{}}}`)
	if _, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	want := []string{"A-pre", "B-pre", "tail", "B-post", "A-post"}
	if len(trace) != len(want) {
		t.Fatalf("unexpected trace: %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("unexpected trace: %v", trace)
		}
	}
}

// Capability advertisement: after registering >=1 tool, initialize's
// capabilities.tools.listChanged is true.
func TestCapabilityAdvertisement(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	if err := s.RegisterTool("noop", func(ctx context.Context, rc *dispatch.Context, args any) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"x","version":"0"}}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("expected success, got error: %+v", resp.Error)
	}

	var result mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Capabilities.Tools == nil || !result.Capabilities.Tools.ListChanged {
		t.Fatalf("expected tools.listChanged=true, got %+v", result.Capabilities.Tools)
	}
}

// Repeated initialize with the same protocol version succeeds repeatedly.
func TestRepeatedInitialize(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	raw := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"x","version":"0"}}}`
	for i := 0; i < 3; i++ {
		msg := mustDecode(t, raw)
		resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
		if err != nil {
			t.Fatalf("Dispatch iteration %d: %v", i, err)
		}
		if resp.Error != nil {
			t.Fatalf("iteration %d: expected success, got error: %+v", i, resp.Error)
		}
	}
}

// A middleware that returns an error before the tail still produces a
// well-formed error response for a request.
func TestMiddlewareErrorBecomesResponse(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))
	s.Use(func(ctx context.Context, rc *dispatch.Context, next dispatch.Next) error {
		return dispatch.InvalidParams("rejected upstream", nil)
	})

	if err := s.RegisterTool("noop", func(ctx context.Context, rc *dispatch.Context, args any) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"noop","arguments":{}}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %+v", resp.Error)
	}
}

// A middleware that never calls next leaves ctx.Response unset; the
// dispatcher synthesizes INTERNAL_ERROR "No response generated" for a
// request.
func TestMiddlewareThatNeverCallsNext(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))
	s.Use(func(ctx context.Context, rc *dispatch.Context, next dispatch.Next) error {
		return nil
	})

	if err := s.RegisterTool("noop", func(ctx context.Context, rc *dispatch.Context, args any) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"noop","arguments":{}}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR, got %+v", resp.Error)
	}
}

// Unknown prompt is INVALID_PARAMS, not METHOD_NOT_FOUND (unlike unknown
// tool / resource).
func TestUnknownPromptIsInvalidParams(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"nope"}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %+v", resp.Error)
	}
}

// Static resources are matched before templates even when a template would
// also match the same URI.
func TestStaticResourceTakesPriorityOverTemplate(t *testing.T) {
	s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))

	if err := s.RegisterResource("file:///{path}", func(ctx context.Context, rc *dispatch.Context, href string, vars map[string]any) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{{URI: href, Text: "template"}}, nil
	}); err != nil {
		t.Fatalf("RegisterResource template: %v", err)
	}
	if err := s.RegisterResource("file:///fixed", func(ctx context.Context, rc *dispatch.Context, href string, vars map[string]any) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{{URI: href, Text: "static"}}, nil
	}); err != nil {
		t.Fatalf("RegisterResource static: %v", err)
	}

	msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"file:///fixed"}}`)
	resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("expected success, got error: %+v", resp.Error)
	}

	var result mcp.ReadResourceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].Text != "static" {
		t.Fatalf("expected the static resource to win, got %+v", result)
	}
}

// resources/subscribe, resources/unsubscribe and completion/complete are
// always rejected with INTERNAL_ERROR "Not implemented".
func TestStubbedMethodsAreNotImplemented(t *testing.T) {
	methods := []string{"resources/subscribe", "resources/unsubscribe", "completion/complete"}
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			s := dispatch.NewServer(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}, dispatch.WithLogger(testLogger()))
			msg := mustDecode(t, `{"jsonrpc":"2.0","id":1,"method":"`+method+`","params":{}}`)
			resp, err := s.Dispatch(context.Background(), msg, dispatch.DispatchMeta{})
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInternalError {
				t.Fatalf("expected INTERNAL_ERROR, got %+v", resp.Error)
			}
		})
	}
}
