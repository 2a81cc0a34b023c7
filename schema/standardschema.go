package schema

import "fmt"

// StandardSchemaV1 is the ecosystem-neutral validator contract this package
// adapts: any type that can validate a raw value and report issues without
// the resolver needing to know which validation library produced it.
// Implementations wrap a concrete validator (a generated struct validator, a
// hand-written func, a third-party library's schema type).
type StandardSchemaV1 interface {
	// Validate checks value and returns either a validated replacement value
	// or a non-empty slice of issues. It never returns both.
	Validate(value any) (result any, issues []ValidationIssue, err error)
}

// ValidationIssue describes a single validation failure, in the vocabulary
// of the Standard Schema proposal: a message plus the property path it
// applies to.
type ValidationIssue struct {
	Message string
	Path    []string
}

// Error renders the issue for inclusion in an INVALID_PARAMS error message.
func (i ValidationIssue) Error() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", joinPath(i.Path), i.Message)
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}

// SchemaAdapter converts a Standard-Schema validator into an advertisable
// Document. It is supplied by the caller registering a validator-backed
// tool, prompt, or resource; this package has no way to inspect an arbitrary
// validator's internal shape on its own.
type SchemaAdapter func(v StandardSchemaV1) (*Document, error)

// FuncValidator adapts a plain Go function into a StandardSchemaV1, for
// callers that already have an ad hoc `func(any) (any, error)` validator and
// do not want to implement the interface by hand.
type FuncValidator func(value any) (any, error)

// Validate implements StandardSchemaV1.
func (f FuncValidator) Validate(value any) (any, []ValidationIssue, error) {
	v, err := f(value)
	if err != nil {
		return nil, []ValidationIssue{{Message: err.Error()}}, nil
	}
	return v, nil, nil
}
