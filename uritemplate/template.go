// Package uritemplate compiles the single-segment {var} resource URI
// templates used for MCP resource template matching. It leans on
// github.com/yosida95/uritemplate/v3 for template syntax validation,
// variable-name extraction, and expansion, and layers a small
// percent-decoding matcher on top that implements the narrower matching
// semantics resource templates need: each {var} captures exactly one path
// segment, bounded by '/', '?', '#', or end-of-string, with no RFC 6570
// operators (+, #, ., /, ;, ?, &) and no repeated variable names.
package uritemplate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	yosida "github.com/yosida95/uritemplate/v3"
)

// Template is a compiled resource URI template.
type Template struct {
	raw        string
	tpl        *yosida.Template
	varNames   []string
	matcher    *regexp.Regexp
	groupNames map[string]string // sanitized regexp group name -> original variable name
	static     bool
}

// Compile parses raw as a URI template and builds its matcher. It returns an
// error if raw is not syntactically valid, uses an unsupported RFC 6570
// operator, or declares the same variable name twice.
func Compile(raw string) (*Template, error) {
	tpl, err := yosida.New(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing URI template %q: %w", raw, err)
	}

	names := tpl.Varnames()
	seen := make(map[string]struct{}, len(names))
	for _, m := range varPattern.FindAllStringSubmatch(raw, -1) {
		for _, n := range strings.Split(m[1], ",") {
			if _, dup := seen[n]; dup {
				return nil, fmt.Errorf("uri template %q declares variable %q more than once", raw, n)
			}
			seen[n] = struct{}{}
		}
	}

	if err := rejectOperators(raw); err != nil {
		return nil, fmt.Errorf("uri template %q: %w", raw, err)
	}

	matcher, groupNames, err := buildMatcher(raw)
	if err != nil {
		return nil, fmt.Errorf("building matcher for uri template %q: %w", raw, err)
	}

	return &Template{
		raw:        raw,
		tpl:        tpl,
		varNames:   names,
		matcher:    matcher,
		groupNames: groupNames,
		static:     len(names) == 0,
	}, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level
// template declarations.
func MustCompile(raw string) *Template {
	t, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the original template text.
func (t *Template) String() string {
	return t.raw
}

// IsStatic reports whether the template has no variables, meaning it can be
// compared and looked up as a literal URI.
func (t *Template) IsStatic() bool {
	return t.static
}

// Names returns the template's variable names in declaration order.
func (t *Template) Names() []string {
	out := make([]string, len(t.varNames))
	copy(out, t.varNames)
	return out
}

// Match attempts to match uri against the template. On success it returns
// the extracted, percent-decoded variable values and ok=true.
func (t *Template) Match(uri string) (map[string]string, bool) {
	m := t.matcher.FindStringSubmatch(uri)
	if m == nil {
		return nil, false
	}

	values := make(map[string]string, len(t.varNames))
	for i, group := range t.matcher.SubexpNames() {
		if i == 0 || group == "" {
			continue
		}
		name, ok := t.groupNames[group]
		if !ok {
			name = group
		}
		decoded, err := percentDecode(m[i])
		if err != nil {
			return nil, false
		}
		values[name] = decoded
	}
	return values, true
}

// Expand renders the template with the given variable values, percent
// encoding each value, and round-trips through the yosida95/uritemplate
// expander so the result is guaranteed well-formed RFC 6570 expansion.
func (t *Template) Expand(values map[string]string) (string, error) {
	vs := yosida.Values{}
	for _, name := range t.varNames {
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("uri template %q: missing value for variable %q", t.raw, name)
		}
		vs = vs.Set(name, yosida.String(v))
	}
	out, err := t.tpl.Expand(vs)
	if err != nil {
		return "", fmt.Errorf("expanding uri template %q: %w", t.raw, err)
	}
	return out, nil
}

var operatorPattern = regexp.MustCompile(`\{[+#./;?&]`)

// rejectOperators rejects RFC 6570 operator forms the spec's matcher does
// not support; only the bare {var} form is accepted.
func rejectOperators(raw string) error {
	if operatorPattern.MatchString(raw) {
		return fmt.Errorf("operator expressions are not supported, only bare {var}")
	}
	return nil
}

var varPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// buildMatcher turns the template's literal segments and {var} expressions
// into an anchored regexp. Variables capture one or more characters that are
// not '/', '?', or '#' so a variable never spans a path segment boundary. It
// returns the compiled matcher along with a table mapping each regexp group
// name back to its original template variable name, since RFC 6570 allows
// variable-name characters ('.') that are not legal in a Go regexp group
// name.
func buildMatcher(raw string) (*regexp.Regexp, map[string]string, error) {
	var b strings.Builder
	b.WriteString("^")

	groupNames := make(map[string]string)
	last := 0
	for i, loc := range varPattern.FindAllStringSubmatchIndex(raw, -1) {
		start, end := loc[0], loc[1]
		name := raw[loc[2]:loc[3]]
		group := fmt.Sprintf("v%d", i)
		groupNames[group] = name

		b.WriteString(regexp.QuoteMeta(raw[last:start]))
		b.WriteString(fmt.Sprintf("(?P<%s>[^/?#]+)", group))
		last = end
	}
	b.WriteString(regexp.QuoteMeta(raw[last:]))
	b.WriteString("$")

	compiled, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	return compiled, groupNames, nil
}

func percentDecode(s string) (string, error) {
	return url.PathUnescape(s)
}
