package contexts

import (
	"errors"
	"strings"
)

// Reference addresses a context attribute, either by plain name ("email")
// or by slash-delimited path into nested object values ("/address/street").
//
// In the path form, "~1" escapes a literal "/" and "~0" escapes a literal
// "~", following JSON Pointer conventions.
type Reference struct {
	raw        string
	components []string
	err        error
}

// NewReference parses an attribute reference.
// Invalid references carry an error and match nothing.
func NewReference(s string) Reference {
	ref := Reference{raw: s}
	switch {
	case s == "" || s == "/":
		ref.err = errors.New("attribute reference must not be empty")
	case !strings.HasPrefix(s, "/"):
		ref.components = []string{s}
	default:
		parts := strings.Split(s[1:], "/")
		ref.components = make([]string, len(parts))
		for i, part := range parts {
			if part == "" {
				ref.err = errors.New("attribute reference contains an empty path component")
				ref.components = nil
				break
			}
			ref.components[i] = unescapePath(part)
		}
	}
	return ref
}

// NewNameReference creates a reference to a top-level attribute, treating
// the name literally even if it contains slashes.
func NewNameReference(name string) Reference {
	if name == "" {
		return Reference{raw: name, err: errors.New("attribute reference must not be empty")}
	}
	return Reference{raw: name, components: []string{name}}
}

func unescapePath(s string) string {
	if !strings.Contains(s, "~") {
		return s
	}
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}

// Err returns the parse error, if any.
func (r Reference) Err() error {
	return r.err
}

// Valid reports whether the reference parsed successfully.
func (r Reference) Valid() bool {
	return r.err == nil && len(r.components) > 0
}

// Depth returns the number of path components.
func (r Reference) Depth() int {
	return len(r.components)
}

// Component returns the path component at index i, or "".
func (r Reference) Component(i int) string {
	if i < 0 || i >= len(r.components) {
		return ""
	}
	return r.components[i]
}

// String returns the reference as originally written.
func (r Reference) String() string {
	return r.raw
}
