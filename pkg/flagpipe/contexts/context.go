// Package contexts provides the evaluation context type used throughout
// flagpipe.
//
// A Context identifies who or what a flag is being evaluated for: a kind
// (defaulting to "user"), a key that is unique within that kind, and an
// arbitrary set of attributes. Contexts are immutable once created - any
// modification creates a new context.
//
// Multi-kind contexts combine several single-kind contexts into one value,
// letting a single evaluation carry, for example, both a user and an
// organization.
package contexts

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a context ("user", "organization", "device", ...).
type Kind string

// DefaultKind is used when no kind is specified.
const DefaultKind Kind = "user"

// MultiKind is the reserved kind for multi-kind contexts.
const MultiKind Kind = "multi"

// Context is an immutable evaluation context.
//
// The zero value is invalid; use New or NewMulti.
type Context struct {
	kind         Kind
	key          string
	name         string
	anonymous    bool
	attributes   map[string]any
	privateAttrs []Reference
	multi        []Context
	err          error
}

// Option configures context creation.
type Option func(*Context)

// WithKind sets the context kind. Default: "user".
func WithKind(kind Kind) Option {
	return func(c *Context) {
		c.kind = kind
	}
}

// WithName sets the context's name attribute.
func WithName(name string) Option {
	return func(c *Context) {
		c.name = name
	}
}

// WithAnonymous marks the context as anonymous.
func WithAnonymous(anonymous bool) Option {
	return func(c *Context) {
		c.anonymous = anonymous
	}
}

// WithAttribute sets a custom attribute.
//
// The reserved names "kind", "key", "name", "anonymous" and "_meta" cannot
// be set this way and are silently ignored.
func WithAttribute(name string, value any) Option {
	return func(c *Context) {
		switch name {
		case "kind", "key", "name", "anonymous", "_meta":
			return
		}
		if c.attributes == nil {
			c.attributes = make(map[string]any)
		}
		c.attributes[name] = value
	}
}

// WithPrivate marks attributes as private for this context. Private
// attributes are redacted from analytics events but still participate in
// evaluation.
func WithPrivate(refs ...Reference) Option {
	return func(c *Context) {
		c.privateAttrs = append(c.privateAttrs, refs...)
	}
}

// New creates a single-kind context with the given key.
func New(key string, opts ...Option) Context {
	c := Context{kind: DefaultKind, key: key}
	for _, opt := range opts {
		opt(&c)
	}
	if key == "" {
		c.err = errors.New("context key must not be empty")
	}
	if err := validateKind(c.kind); err != nil {
		c.err = err
	}
	return c
}

// NewMulti combines single-kind contexts into a multi-kind context.
// Each constituent must be valid, single-kind, and of a distinct kind.
func NewMulti(ctxs ...Context) Context {
	if len(ctxs) == 0 {
		return Context{kind: MultiKind, err: errors.New("multi-kind context needs at least one context")}
	}
	if len(ctxs) == 1 {
		return ctxs[0]
	}
	seen := make(map[Kind]bool, len(ctxs))
	sorted := append([]Context(nil), ctxs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].kind < sorted[j].kind })
	for _, c := range sorted {
		if c.err != nil {
			return Context{kind: MultiKind, err: fmt.Errorf("invalid constituent context: %w", c.err)}
		}
		if c.IsMulti() {
			return Context{kind: MultiKind, err: errors.New("cannot nest multi-kind contexts")}
		}
		if seen[c.kind] {
			return Context{kind: MultiKind, err: fmt.Errorf("duplicate context kind %q", c.kind)}
		}
		seen[c.kind] = true
	}
	return Context{kind: MultiKind, multi: sorted}
}

// validateKind checks that a kind contains only allowed characters.
func validateKind(kind Kind) error {
	if kind == "" {
		return errors.New("context kind must not be empty")
	}
	if kind == "kind" || kind == MultiKind {
		return fmt.Errorf("%q is not a valid context kind", kind)
	}
	for _, ch := range kind {
		ok := ch == '.' || ch == '-' || ch == '_' ||
			(ch >= '0' && ch <= '9') || (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
		if !ok {
			return fmt.Errorf("context kind %q contains invalid character %q", kind, ch)
		}
	}
	return nil
}

// Err returns the validation error, if any. All other accessors are safe to
// call on an invalid context but produce zero values.
func (c Context) Err() error {
	return c.err
}

// Kind returns the context kind ("multi" for multi-kind contexts).
func (c Context) Kind() Kind {
	return c.kind
}

// Key returns the context key. Empty for multi-kind contexts.
func (c Context) Key() string {
	return c.key
}

// Name returns the context's name attribute, or "".
func (c Context) Name() string {
	return c.name
}

// Anonymous reports whether the context is anonymous.
// A multi-kind context is anonymous only if every constituent is.
func (c Context) Anonymous() bool {
	if c.IsMulti() {
		for _, ind := range c.multi {
			if !ind.anonymous {
				return false
			}
		}
		return true
	}
	return c.anonymous
}

// IsMulti reports whether this is a multi-kind context.
func (c Context) IsMulti() bool {
	return c.kind == MultiKind
}

// Individual returns the constituent contexts. For a single-kind context it
// returns a one-element slice containing the context itself.
func (c Context) Individual() []Context {
	if c.IsMulti() {
		return append([]Context(nil), c.multi...)
	}
	return []Context{c}
}

// FullyQualifiedKey returns a stable key unique across kinds.
//
// For the default "user" kind this is the key itself; other single kinds use
// "kind:key"; multi-kind contexts join constituent keys sorted by kind.
// Colons and percent signs in keys are escaped so the result is unambiguous.
func (c Context) FullyQualifiedKey() string {
	if c.IsMulti() {
		parts := make([]string, 0, len(c.multi))
		for _, ind := range c.multi {
			parts = append(parts, string(ind.kind)+":"+escapeKey(ind.key))
		}
		return strings.Join(parts, ":")
	}
	if c.kind == DefaultKind {
		return c.key
	}
	return string(c.kind) + ":" + escapeKey(c.key)
}

func escapeKey(key string) string {
	key = strings.ReplaceAll(key, "%", "%25")
	return strings.ReplaceAll(key, ":", "%3A")
}

// Attribute looks up an attribute by name. The built-in attributes "kind",
// "key", "name" and "anonymous" are addressable alongside custom ones.
func (c Context) Attribute(name string) (any, bool) {
	switch name {
	case "kind":
		return string(c.kind), true
	case "key":
		return c.key, true
	case "name":
		if c.name == "" {
			return nil, false
		}
		return c.name, true
	case "anonymous":
		return c.anonymous, true
	}
	v, ok := c.attributes[name]
	return v, ok
}

// AttributeNames returns the custom attribute names in sorted order.
func (c Context) AttributeNames() []string {
	if len(c.attributes) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.attributes))
	for name := range c.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrivateAttributes returns the attribute references marked private on this
// context.
func (c Context) PrivateAttributes() []Reference {
	return append([]Reference(nil), c.privateAttrs...)
}

// MarshalJSON serializes the context in its canonical wire form.
func (c Context) MarshalJSON() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.IsMulti() {
		out := map[string]any{"kind": string(MultiKind)}
		for _, ind := range c.multi {
			out[string(ind.kind)] = ind.singleJSON(false)
		}
		return json.Marshal(out)
	}
	return json.Marshal(c.singleJSON(true))
}

// singleJSON builds the JSON object for a single-kind context.
// includeKind is false when the object is nested inside a multi-kind wrapper.
func (c Context) singleJSON(includeKind bool) map[string]any {
	out := make(map[string]any, len(c.attributes)+4)
	if includeKind {
		out["kind"] = string(c.kind)
	}
	out["key"] = c.key
	if c.name != "" {
		out["name"] = c.name
	}
	if c.anonymous {
		out["anonymous"] = true
	}
	for name, value := range c.attributes {
		out[name] = value
	}
	if len(c.privateAttrs) > 0 {
		refs := make([]string, 0, len(c.privateAttrs))
		for _, ref := range c.privateAttrs {
			refs = append(refs, ref.String())
		}
		out["_meta"] = map[string]any{"privateAttributes": refs}
	}
	return out
}
