package dispatch

import (
	"log/slog"
	"sync"

	"github.com/ggoodman/dispatchmcp/mcp"
	"github.com/ggoodman/dispatchmcp/schema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Server is a transport-agnostic MCP core: a registry of tools, prompts,
// and resources plus the JSON-RPC dispatch machinery that routes messages
// to them through a middleware chain. A *Server has no notion of network
// transport; embed it behind stdio, HTTP, or any other framing by calling
// Dispatch for every inbound message.
type Server struct {
	info                mcp.ImplementationInfo
	instructions        string
	protocolVersion     string
	log                 *slog.Logger
	schemaAdapter       schema.SchemaAdapter
	notificationSender  NotificationSender
	onError             OnErrorFunc

	mu        sync.RWMutex
	tools     *orderedmap.OrderedMap[string, *toolEntry]
	prompts   *orderedmap.OrderedMap[string, *promptEntry]
	resources *orderedmap.OrderedMap[string, *resourceEntry]

	middlewares []MiddlewareFunc
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithLogger overrides the server's structured logger. The default is
// slog.Default().
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithInstructions sets the free-text instructions advertised in the
// initialize response.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) { s.instructions = instructions }
}

// WithProtocolVersion overrides the protocol version this server negotiates.
// The default is mcp.LatestProtocolVersion.
func WithProtocolVersion(version string) ServerOption {
	return func(s *Server) { s.protocolVersion = version }
}

// WithSchemaAdapter supplies the adapter used to turn a registered
// schema.StandardSchemaV1 into an advertised schema.Document. Tools and
// prompts registered with a raw *schema.Document never need it.
func WithSchemaAdapter(adapter schema.SchemaAdapter) ServerOption {
	return func(s *Server) { s.schemaAdapter = adapter }
}

// WithNotificationSender wires the transport's outbound notification
// delivery function, enabling progress notifications. Equivalent to calling
// SetNotificationSender after construction.
func WithNotificationSender(sender NotificationSender) ServerOption {
	return func(s *Server) { s.notificationSender = sender }
}

// WithOnError registers a hook invoked for every error a handler or
// middleware produces, before it's coerced into a JSON-RPC error response.
// A non-nil *RpcError return overrides the response the dispatcher would
// otherwise synthesize.
func WithOnError(fn OnErrorFunc) ServerOption {
	return func(s *Server) { s.onError = fn }
}

// NewServer constructs a Server advertising info in its initialize
// response. It starts with no tools, prompts, or resources registered and
// no middleware installed.
func NewServer(info mcp.ImplementationInfo, opts ...ServerOption) *Server {
	tools, prompts, resources := newRegistry()

	s := &Server{
		info:            info,
		protocolVersion: mcp.LatestProtocolVersion,
		log:             slog.Default(),
		tools:           tools,
		prompts:         prompts,
		resources:       resources,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Use appends mw to the middleware chain. Middlewares run in registration
// order on the way in and unwind in reverse order on the way out, onion
// style.
func (s *Server) Use(mw MiddlewareFunc) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw)
	return s
}

// OnError replaces the error-observation hook. See OnErrorFunc for the
// override semantics of its return value.
func (s *Server) OnError(fn OnErrorFunc) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
	return s
}

// SetNotificationSender wires or replaces the transport's outbound
// notification delivery function.
func (s *Server) SetNotificationSender(sender NotificationSender) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationSender = sender
	return s
}

// Capabilities snapshots the server's currently advertised capability set.
// It reflects whatever has been registered so far, so it's only stable to
// call once registration is complete (typically just before handling the
// first initialize request).
func (s *Server) Capabilities() mcp.ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilitiesLocked()
}

func (s *Server) capabilitiesLocked() mcp.ServerCapabilities {
	caps := mcp.ServerCapabilities{
		Logging: &struct{}{},
	}
	if s.tools.Len() > 0 {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{ListChanged: true}
	}
	if s.prompts.Len() > 0 {
		caps.Prompts = &struct {
			ListChanged bool `json:"listChanged"`
		}{ListChanged: true}
	}
	if s.resources.Len() > 0 {
		caps.Resources = &struct{}{}
	}
	return caps
}
