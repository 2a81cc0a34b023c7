package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ggoodman/dispatchmcp/jsonrpc"
	"github.com/ggoodman/dispatchmcp/mcp"
)

// route resolves the built-in handler for method. Every notifications/*
// method not otherwise recognized falls through to a silent no-op, matching
// the rule that unknown notifications are swallowed rather than reported.
func (s *Server) route(method string) HandlerFunc {
	switch method {
	case string(mcp.InitializeMethod):
		return s.handleInitialize
	case string(mcp.PingMethod):
		return s.handlePing
	case string(mcp.ToolsListMethod):
		return s.handleToolsList
	case string(mcp.ToolsCallMethod):
		return s.handleToolsCall
	case string(mcp.PromptsListMethod):
		return s.handlePromptsList
	case string(mcp.PromptsGetMethod):
		return s.handlePromptsGet
	case string(mcp.ResourcesListMethod):
		return s.handleResourcesList
	case string(mcp.ResourcesTemplatesListMethod):
		return s.handleResourceTemplatesList
	case string(mcp.ResourcesReadMethod):
		return s.handleResourcesRead
	case string(mcp.ResourcesSubscribeMethod), string(mcp.ResourcesUnsubscribeMethod), string(mcp.CompletionCompleteMethod):
		return s.handleNotImplemented
	case string(mcp.LoggingSetLevelMethod):
		return s.handleLoggingSetLevel
	default:
		if strings.HasPrefix(method, "notifications/") {
			return handleNotification
		}
		return handleUnknownMethod
	}
}

func handleNotification(ctx context.Context, rc *Context) error {
	return nil
}

func handleUnknownMethod(ctx context.Context, rc *Context) error {
	if rc.IsNotification() {
		return nil
	}
	if rc.Method == "" {
		return NewRpcError(jsonrpc.ErrorCodeMethodNotFound, "Method not found", nil)
	}
	return MethodNotFound("method", rc.Method)
}

func (s *Server) handleNotImplemented(ctx context.Context, rc *Context) error {
	if rc.IsNotification() {
		return nil
	}
	return NotImplemented(rc.Method)
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return InvalidParams(fmt.Sprintf("decoding params: %s", err.Error()), nil)
	}
	return nil
}

func (s *Server) respond(rc *Context, result any) error {
	if rc.IsNotification() {
		return nil
	}
	resp, err := jsonrpc.NewResultResponse(rc.RequestID, result)
	if err != nil {
		return fmt.Errorf("marshaling result for %s: %w", rc.Method, err)
	}
	rc.Response = &resp
	return nil
}

func (s *Server) handleInitialize(ctx context.Context, rc *Context) error {
	var req mcp.InitializeRequest
	// initialize params are looked up from the raw params newDispatchContext
	// stashes on rc.State.
	raw, _ := rc.State[stateKeyParams].(json.RawMessage)
	if err := decodeParams(raw, &req); err != nil {
		return err
	}

	if req.ProtocolVersion != s.protocolVersion {
		return NewRpcError(jsonrpc.ErrorCodeProtocolVersionMismatch, "Unsupported protocol version", map[string]string{
			"supportedVersion": s.protocolVersion,
			"requestedVersion": req.ProtocolVersion,
		})
	}

	result := mcp.InitializeResult{
		ProtocolVersion: s.protocolVersion,
		Capabilities:    s.Capabilities(),
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}
	return s.respond(rc, result)
}

func (s *Server) handlePing(ctx context.Context, rc *Context) error {
	return s.respond(rc, mcp.EmptyResult{})
}

func (s *Server) handleToolsList(ctx context.Context, rc *Context) error {
	s.mu.RLock()
	tools := make([]mcp.Tool, 0, s.tools.Len())
	for pair := s.tools.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		tools = append(tools, mcp.Tool{
			Name:        e.name,
			Description: e.description,
			InputSchema: e.document,
		})
	}
	s.mu.RUnlock()

	return s.respond(rc, mcp.ListToolsResult{Tools: tools})
}

func (s *Server) handleToolsCall(ctx context.Context, rc *Context) error {
	raw, _ := rc.State[stateKeyParams].(json.RawMessage)
	var req mcp.CallToolRequestReceived
	if err := decodeParams(raw, &req); err != nil {
		return err
	}

	s.mu.RLock()
	entry, ok := s.tools.Get(req.Name)
	s.mu.RUnlock()
	if !ok {
		return MethodNotFound("name", req.Name)
	}

	var args any
	if len(req.Arguments) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(req.Arguments, &decoded); err != nil {
			return InvalidParams(fmt.Sprintf("decoding arguments: %s", err.Error()), nil)
		}
		args = decoded
	}

	validated, err := rc.Validate(entry.validator, args)
	if err != nil {
		return err
	}

	result, err := entry.handler(ctx, rc, validated)
	if err != nil {
		return err
	}
	return s.respond(rc, result)
}

func (s *Server) handlePromptsList(ctx context.Context, rc *Context) error {
	s.mu.RLock()
	prompts := make([]mcp.Prompt, 0, s.prompts.Len())
	for pair := s.prompts.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		args := make([]mcp.PromptArgument, 0, len(e.arguments))
		for _, a := range e.arguments {
			args = append(args, mcp.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		prompts = append(prompts, mcp.Prompt{
			Name:        e.name,
			Description: e.description,
			Arguments:   args,
		})
	}
	s.mu.RUnlock()

	return s.respond(rc, mcp.ListPromptsResult{Prompts: prompts})
}

func (s *Server) handlePromptsGet(ctx context.Context, rc *Context) error {
	raw, _ := rc.State[stateKeyParams].(json.RawMessage)
	var req mcp.GetPromptRequest
	if err := decodeParams(raw, &req); err != nil {
		return err
	}

	s.mu.RLock()
	entry, ok := s.prompts.Get(req.Name)
	s.mu.RUnlock()
	if !ok {
		return InvalidParams(fmt.Sprintf("unknown prompt: %s", req.Name), map[string]string{"name": req.Name})
	}

	args := make(map[string]any, len(req.Arguments))
	for k, v := range req.Arguments {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			args[k] = str
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			args[k] = decoded
		}
	}

	validated, err := rc.Validate(entry.validator, args)
	if err != nil {
		return err
	}

	result, err := entry.handler(ctx, rc, validated)
	if err != nil {
		return err
	}
	return s.respond(rc, result)
}

func (s *Server) handleResourcesList(ctx context.Context, rc *Context) error {
	s.mu.RLock()
	resources := make([]mcp.Resource, 0, s.resources.Len())
	for pair := s.resources.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		if e.isTemplate {
			continue
		}
		resources = append(resources, mcp.Resource{
			URI:         e.uri,
			Name:        e.name,
			Description: e.description,
			MimeType:    e.mimeType,
		})
	}
	s.mu.RUnlock()

	return s.respond(rc, mcp.ListResourcesResult{Resources: resources})
}

func (s *Server) handleResourceTemplatesList(ctx context.Context, rc *Context) error {
	s.mu.RLock()
	templates := make([]mcp.ResourceTemplate, 0, s.resources.Len())
	for pair := s.resources.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		if !e.isTemplate {
			continue
		}
		templates = append(templates, mcp.ResourceTemplate{
			URITemplate: e.template.String(),
			Name:        e.name,
			Description: e.description,
			MimeType:    e.mimeType,
		})
	}
	s.mu.RUnlock()

	return s.respond(rc, mcp.ListResourceTemplatesResult{ResourceTemplates: templates})
}

func (s *Server) handleResourcesRead(ctx context.Context, rc *Context) error {
	raw, _ := rc.State[stateKeyParams].(json.RawMessage)
	var req mcp.ReadResourceRequest
	if err := decodeParams(raw, &req); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Static resources take precedence over templates, and templates are
	// tried in registration order, so the first ambiguous match always wins
	// deterministically.
	for pair := s.resources.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		if !e.isTemplate && e.uri == req.URI {
			contents, err := e.handler(ctx, rc, req.URI, map[string]any{})
			if err != nil {
				return err
			}
			return s.respond(rc, mcp.ReadResourceResult{Contents: contents})
		}
	}

	for pair := s.resources.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		if !e.isTemplate {
			continue
		}
		matched, ok := e.template.Match(req.URI)
		if !ok {
			continue
		}

		vars := make(map[string]any, len(matched))
		for name, value := range matched {
			if validator, ok := e.validators[name]; ok {
				validated, err := validator(value)
				if err != nil {
					return InvalidParams(fmt.Sprintf("Validation failed for parameter '%s': %s", name, err.Error()), nil)
				}
				vars[name] = validated
			} else {
				vars[name] = value
			}
		}

		contents, err := e.handler(ctx, rc, req.URI, vars)
		if err != nil {
			return err
		}
		return s.respond(rc, mcp.ReadResourceResult{Contents: contents})
	}

	return MethodNotFound("uri", req.URI)
}

func (s *Server) handleLoggingSetLevel(ctx context.Context, rc *Context) error {
	raw, _ := rc.State[stateKeyParams].(json.RawMessage)
	var req mcp.SetLevelRequest
	if err := decodeParams(raw, &req); err != nil {
		return err
	}
	return s.respond(rc, mcp.EmptyResult{})
}

// stateKeyParams is the Context.State key newDispatchContext uses to stash
// the request's raw params for the tail handler to decode. It's unexported
// and never touched by middleware; handlers get their arguments through
// their typed parameters, not through State.
const stateKeyParams = "dispatch.rawParams"
