// Package schema resolves the two shapes a tool, prompt argument set, or
// resource template may advertise its inputs as — a raw JSON Schema document
// or a Standard-Schema-compatible validator — into one advertised document
// plus an optional validator function, and derives ordered argument lists
// from object schemas the way prompt arguments are surfaced to clients.
//
// Schema documents are reflected from Go structs with
// github.com/invopop/jsonschema, exactly how the tool descriptors in this
// codebase's ancestry build their input schemas, and property order is
// preserved with github.com/wk8/go-ordered-map/v2 so that argument
// derivation is deterministic.
package schema

import (
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Document is a simplified, advertisable JSON Schema: an object schema made
// of named properties plus metadata describing each. It intentionally
// covers the subset of JSON Schema that tool input/output schemas and
// resource/prompt argument schemas need, not the full JSON Schema grammar.
type Document struct {
	Type                 string                             `json:"type"`
	Properties           *orderedmap.OrderedMap[string, *Property] `json:"properties,omitempty"`
	Required             []string                           `json:"required,omitempty"`
	AdditionalProperties bool                               `json:"additionalProperties,omitzero"`
}

// Property describes a single schema property, recursively for arrays and
// nested objects.
type Property struct {
	Type        string                                     `json:"type,omitempty"`
	Description string                                     `json:"description,omitempty"`
	Enum        []any                                      `json:"enum,omitempty"`
	Items       *Property                                  `json:"items,omitempty"`
	Properties  *orderedmap.OrderedMap[string, *Property] `json:"properties,omitempty"`
}

// NewObjectDocument builds an empty object Document, used as the fallback
// schema for tools and prompts with no declared arguments.
func NewObjectDocument(allowAdditionalProperties bool) *Document {
	return &Document{
		Type:                 "object",
		Properties:           orderedmap.New[string, *Property](),
		AdditionalProperties: allowAdditionalProperties,
	}
}

// FromStruct reflects the Go type A into a Document using
// github.com/invopop/jsonschema, mirroring the reflection options used
// elsewhere in this codebase's lineage: definitions inlined rather than
// referenced, the struct expanded at the document root, and
// additionalProperties controlled explicitly rather than left to the
// reflector's default.
func FromStruct[A any](allowAdditionalProperties bool) *Document {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditionalProperties,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return NewObjectDocument(allowAdditionalProperties)
	}

	doc := &Document{
		Type:                 "object",
		Properties:           orderedmap.New[string, *Property](),
		AdditionalProperties: allowAdditionalProperties,
	}
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			doc.Properties.Set(el.Key, fromJSONSchemaProperty(el.Value))
		}
	}
	if len(s.Required) > 0 {
		doc.Required = append(doc.Required, s.Required...)
	}
	return doc
}

func fromJSONSchemaProperty(s *jsonschema.Schema) *Property {
	if s == nil {
		return &Property{}
	}
	p := &Property{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		p.Items = fromJSONSchemaProperty(s.Items)
	}
	if s.Type == "object" && s.Properties != nil {
		p.Properties = orderedmap.New[string, *Property]()
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			p.Properties.Set(el.Key, fromJSONSchemaProperty(el.Value))
		}
	}
	return p
}

// IsRequired reports whether name is listed in the document's required set.
func (d *Document) IsRequired(name string) bool {
	for _, r := range d.Required {
		if r == name {
			return true
		}
	}
	return false
}
