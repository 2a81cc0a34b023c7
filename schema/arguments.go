package schema

// Argument describes one prompt argument, derived from a resolved object
// schema's top-level properties. It mirrors mcp.PromptArgument's shape
// without importing the mcp package, keeping schema a leaf package with no
// dependency on the wire types built on top of it.
type Argument struct {
	Name        string
	Description string
	Required    bool
}

// Arguments derives a PromptArgumentDef-shaped list from doc's top-level
// properties, in declaration order, exactly as spec'd: "arguments is derived
// from the declared schema's top-level properties (name, description,
// required)". A nil or non-object document yields nil.
func Arguments(doc *Document) []Argument {
	if doc == nil || doc.Type != "object" || doc.Properties == nil {
		return nil
	}

	out := make([]Argument, 0, doc.Properties.Len())
	for el := doc.Properties.Oldest(); el != nil; el = el.Next() {
		out = append(out, Argument{
			Name:        el.Key,
			Description: el.Value.Description,
			Required:    doc.IsRequired(el.Key),
		})
	}
	return out
}
