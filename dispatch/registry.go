package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ggoodman/dispatchmcp/mcp"
	"github.com/ggoodman/dispatchmcp/schema"
	"github.com/ggoodman/dispatchmcp/uritemplate"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ToolHandler implements a tool call. args is the validated arguments value
// when the tool declared a Standard-Schema validator, or the raw decoded
// JSON arguments (map[string]any, possibly nil) otherwise.
type ToolHandler func(ctx context.Context, rc *Context, args any) (*mcp.CallToolResult, error)

// PromptHandler renders a prompt's messages. args follows the same
// validated-or-raw rule as ToolHandler.
type PromptHandler func(ctx context.Context, rc *Context, args any) (*mcp.GetPromptResult, error)

// ResourceHandler reads a resource. href is the requested URI; vars holds
// the URI template variables (validated per-variable when a validator was
// registered for that variable name, otherwise the raw decoded string).
// vars is always empty for a static resource.
type ResourceHandler func(ctx context.Context, rc *Context, href string, vars map[string]any) ([]mcp.ResourceContents, error)

type toolEntry struct {
	name        string
	description string
	document    *schema.Document
	validator   schema.ValidatorFunc
	handler     ToolHandler
}

type promptEntry struct {
	name        string
	title       string
	description string
	arguments   []schema.Argument
	validator   schema.ValidatorFunc
	handler     PromptHandler
}

type resourceEntry struct {
	isTemplate  bool
	uri         string // set when !isTemplate
	template    *uritemplate.Template
	name        string
	description string
	mimeType    string
	validators  map[string]schema.ValidatorFunc
	handler     ResourceHandler
}

// --- Tool registration ---

type toolConfig struct {
	description   string
	inputSchema   any
	validateInput bool
}

// ToolOption configures RegisterTool.
type ToolOption func(*toolConfig)

// WithToolDescription sets the tool's advertised description.
func WithToolDescription(description string) ToolOption {
	return func(c *toolConfig) { c.description = description }
}

// WithToolInputSchema supplies the tool's input schema, either a
// *schema.Document (advertised verbatim, no validator synthesized) or a
// schema.StandardSchemaV1 (advertised via the server's schema adapter, with
// a synthesized validator). Omit it to advertise a bare object schema with
// no validation.
func WithToolInputSchema(input any) ToolOption {
	return func(c *toolConfig) { c.inputSchema = input }
}

// WithToolValidatedInputSchema supplies a raw *schema.Document, advertised
// verbatim like WithToolInputSchema, but additionally compiles it with
// schema.CompileValidator so calls are validated against it at dispatch
// time rather than only advertised.
func WithToolValidatedInputSchema(doc *schema.Document) ToolOption {
	return func(c *toolConfig) {
		c.inputSchema = doc
		c.validateInput = true
	}
}

// RegisterTool adds or replaces the tool named name. Registering any tool
// enables the tools capability and its listChanged flag.
func (s *Server) RegisterTool(name string, handler ToolHandler, opts ...ToolOption) error {
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("tool %q: handler must not be nil", name)
	}

	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	resolved, err := schema.Resolve(cfg.inputSchema, s.schemaAdapter)
	if err != nil {
		return fmt.Errorf("resolving input schema for tool %q: %w", name, err)
	}
	if cfg.validateInput && resolved.Validator == nil {
		validator, err := schema.CompileValidator(resolved.Document)
		if err != nil {
			return fmt.Errorf("compiling input validator for tool %q: %w", name, err)
		}
		resolved.Validator = validator
	}

	entry := &toolEntry{
		name:        name,
		description: cfg.description,
		document:    resolved.Document,
		validator:   resolved.Validator,
		handler:     handler,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools.Set(name, entry)
	return nil
}

// --- Prompt registration ---

type promptConfig struct {
	title         string
	description   string
	arguments     []schema.Argument
	inputSchema   any
	validateInput bool
}

// PromptOption configures RegisterPrompt.
type PromptOption func(*promptConfig)

// WithPromptTitle sets a human-friendly prompt title.
func WithPromptTitle(title string) PromptOption {
	return func(c *promptConfig) { c.title = title }
}

// WithPromptDescription sets the prompt's advertised description.
func WithPromptDescription(description string) PromptOption {
	return func(c *promptConfig) { c.description = description }
}

// WithPromptArguments supplies a pre-built argument list verbatim, bypassing
// schema-based derivation entirely.
func WithPromptArguments(args []schema.Argument) PromptOption {
	return func(c *promptConfig) { c.arguments = args }
}

// WithPromptInputSchema supplies a schema to resolve like a tool's, deriving
// the advertised arguments from the resolved document's top-level
// properties. Ignored if WithPromptArguments was also given.
func WithPromptInputSchema(input any) PromptOption {
	return func(c *promptConfig) { c.inputSchema = input }
}

// WithPromptValidatedInputSchema supplies a raw *schema.Document like
// WithPromptInputSchema, but additionally compiles it with
// schema.CompileValidator so `prompts/get` calls are validated against it.
// Ignored if WithPromptArguments was also given.
func WithPromptValidatedInputSchema(doc *schema.Document) PromptOption {
	return func(c *promptConfig) {
		c.inputSchema = doc
		c.validateInput = true
	}
}

// RegisterPrompt adds or replaces the prompt named name. Registering any
// prompt enables the prompts capability and its listChanged flag.
func (s *Server) RegisterPrompt(name string, handler PromptHandler, opts ...PromptOption) error {
	if name == "" {
		return fmt.Errorf("prompt name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("prompt %q: handler must not be nil", name)
	}

	cfg := promptConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	entry := &promptEntry{
		name:        name,
		title:       cfg.title,
		description: cfg.description,
		handler:     handler,
	}

	if cfg.arguments != nil {
		entry.arguments = cfg.arguments
	} else if cfg.inputSchema != nil {
		resolved, err := schema.Resolve(cfg.inputSchema, s.schemaAdapter)
		if err != nil {
			return fmt.Errorf("resolving input schema for prompt %q: %w", name, err)
		}
		if cfg.validateInput && resolved.Validator == nil {
			validator, err := schema.CompileValidator(resolved.Document)
			if err != nil {
				return fmt.Errorf("compiling input validator for prompt %q: %w", name, err)
			}
			resolved.Validator = validator
		}
		entry.arguments = schema.Arguments(resolved.Document)
		entry.validator = resolved.Validator
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts.Set(name, entry)
	return nil
}

// --- Resource registration ---

type resourceConfig struct {
	name        string
	description string
	mimeType    string
	validators  map[string]schema.ValidatorFunc
}

// ResourceOption configures RegisterResource.
type ResourceOption func(*resourceConfig)

// WithResourceName sets the resource's advertised name.
func WithResourceName(name string) ResourceOption {
	return func(c *resourceConfig) { c.name = name }
}

// WithResourceDescription sets the resource's advertised description.
func WithResourceDescription(description string) ResourceOption {
	return func(c *resourceConfig) { c.description = description }
}

// WithResourceMimeType sets the resource's advertised MIME type.
func WithResourceMimeType(mimeType string) ResourceOption {
	return func(c *resourceConfig) { c.mimeType = mimeType }
}

// WithResourceVariableValidators attaches per-variable validators for a
// template resource, keyed by variable name. Ignored for static resources.
func WithResourceVariableValidators(validators map[string]schema.ValidatorFunc) ResourceOption {
	return func(c *resourceConfig) { c.validators = validators }
}

// RegisterResource adds or replaces the resource keyed by uriOrTemplate.
// Presence of '{' classifies it as a URI template; otherwise it is a static
// resource. Registering any resource enables the bare resources capability.
func (s *Server) RegisterResource(uriOrTemplate string, handler ResourceHandler, opts ...ResourceOption) error {
	if uriOrTemplate == "" {
		return fmt.Errorf("resource URI must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("resource %q: handler must not be nil", uriOrTemplate)
	}

	cfg := resourceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	entry := &resourceEntry{
		name:        cfg.name,
		description: cfg.description,
		mimeType:    cfg.mimeType,
		validators:  cfg.validators,
		handler:     handler,
	}

	if strings.Contains(uriOrTemplate, "{") {
		tpl, err := uritemplate.Compile(uriOrTemplate)
		if err != nil {
			return fmt.Errorf("registering resource template %q: %w", uriOrTemplate, err)
		}
		entry.isTemplate = true
		entry.template = tpl
	} else {
		entry.uri = uriOrTemplate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources.Set(uriOrTemplate, entry)
	return nil
}

func newRegistry() (*orderedmap.OrderedMap[string, *toolEntry], *orderedmap.OrderedMap[string, *promptEntry], *orderedmap.OrderedMap[string, *resourceEntry]) {
	return orderedmap.New[string, *toolEntry](),
		orderedmap.New[string, *promptEntry](),
		orderedmap.New[string, *resourceEntry]()
}
