package schema

import (
	"encoding/json"
	"fmt"

	jsonschemago "github.com/google/jsonschema-go/jsonschema"
)

// Resolved is the unified result of resolving a tool/prompt/resource
// registration's schema input: a document suitable for advertising to
// clients, plus an optional validator to run against incoming arguments.
type Resolved struct {
	Document  *Document
	Validator ValidatorFunc
}

// ValidatorFunc validates a raw decoded value, returning the (possibly
// normalized) value on success or a *ValidationError on failure.
type ValidatorFunc func(value any) (any, error)

// ValidationError reports one or more validator issues. Dispatch code
// converts it into an INVALID_PARAMS response.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	return e.Issues[0].Error()
}

// Resolve unifies a registration's schema input into a (document, validator)
// pair:
//
//   - input is nil: an empty object document, no validator.
//   - input is *Document: used verbatim as the advertised document; no
//     validator is synthesized, matching the rule that a raw JSON-Schema
//     registration advertises exactly what was supplied.
//   - input is StandardSchemaV1: the document is produced by calling adapter
//     (nil adapter yields a bare {"type":"object"} document), and the
//     validator runs the underlying Validate method, translating issues into
//     a *ValidationError.
func Resolve(input any, adapter SchemaAdapter) (*Resolved, error) {
	switch v := input.(type) {
	case nil:
		return &Resolved{Document: NewObjectDocument(false)}, nil

	case *Document:
		return &Resolved{Document: v}, nil

	case StandardSchemaV1:
		doc := NewObjectDocument(false)
		if adapter != nil {
			adapted, err := adapter(v)
			if err != nil {
				return nil, fmt.Errorf("adapting standard-schema validator: %w", err)
			}
			doc = adapted
		}
		return &Resolved{
			Document:  doc,
			Validator: standardSchemaValidator(v),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported schema input type %T: expected nil, *schema.Document, or schema.StandardSchemaV1", input)
	}
}

func standardSchemaValidator(v StandardSchemaV1) ValidatorFunc {
	return func(value any) (any, error) {
		result, issues, err := v.Validate(value)
		if err != nil {
			return nil, fmt.Errorf("running standard-schema validator: %w", err)
		}
		if len(issues) > 0 {
			return nil, &ValidationError{Issues: issues}
		}
		return result, nil
	}
}

// CompileValidator is an opt-in helper that compiles a Document into a
// ValidatorFunc backed by github.com/google/jsonschema-go, for callers that
// registered a raw JSON-Schema document but still want argument enforcement
// rather than advertisement-only behavior. It is never invoked implicitly by
// Resolve: a plain JSON-Schema-object registration advertises its schema
// without a validator unless the caller opts in by wrapping the result with
// this function explicitly.
func CompileValidator(doc *Document) (ValidatorFunc, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema document: %w", err)
	}

	var s jsonschemago.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing schema document as JSON Schema: %w", err)
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving JSON Schema document: %w", err)
	}

	return func(value any) (any, error) {
		if err := resolved.Validate(value); err != nil {
			return nil, &ValidationError{Issues: []ValidationIssue{{Message: err.Error()}}}
		}
		return value, nil
	}, nil
}
