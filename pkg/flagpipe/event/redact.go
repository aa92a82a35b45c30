package event

import (
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
)

// redactionConfig is the processor's private-attribute policy.
type redactionConfig struct {
	allAttributesPrivate  bool
	privateAttributes     []contexts.Reference
	omitAnonymousContexts bool
}

// redactContext builds the serializable form of a context with private
// attributes removed. The caller's context is never mutated; nested values
// are copied along any redacted path.
//
// Returns ok=false when the whole context is omitted (anonymous contexts
// under omitAnonymousContexts).
func redactContext(c contexts.Context, cfg redactionConfig) (any, bool) {
	individual := c.Individual()
	if cfg.omitAnonymousContexts {
		kept := individual[:0]
		for _, ind := range individual {
			if !ind.Anonymous() {
				kept = append(kept, ind)
			}
		}
		individual = kept
	}

	switch len(individual) {
	case 0:
		return nil, false
	case 1:
		return redactSingle(individual[0], cfg, true), true
	default:
		out := map[string]any{"kind": string(contexts.MultiKind)}
		for _, ind := range individual {
			out[string(ind.Kind())] = redactSingle(ind, cfg, false)
		}
		return out, true
	}
}

// redactSingle serializes one single-kind context applying the policy.
// includeKind is false inside a multi-kind wrapper.
func redactSingle(c contexts.Context, cfg redactionConfig, includeKind bool) map[string]any {
	out := make(map[string]any)
	if includeKind {
		out["kind"] = string(c.Kind())
	}
	out["key"] = c.Key()
	if c.Anonymous() {
		out["anonymous"] = true
	}

	refs := append(append([]contexts.Reference(nil), cfg.privateAttributes...), c.PrivateAttributes()...)
	var redacted []string

	if name := c.Name(); name != "" {
		if cfg.allAttributesPrivate || topLevelMatch(refs, "name") {
			redacted = append(redacted, "name")
		} else {
			out["name"] = name
		}
	}

	for _, attrName := range c.AttributeNames() {
		value, _ := c.Attribute(attrName)
		if cfg.allAttributesPrivate {
			redacted = append(redacted, attrName)
			continue
		}
		value, removed := applyRefs(attrName, value, refs)
		redacted = append(redacted, removed...)
		if value != redactedWhole {
			out[attrName] = value
		}
	}

	if len(redacted) > 0 {
		out["_meta"] = map[string]any{"redactedAttributes": redacted}
	}
	return out
}

// redactedWhole marks an attribute removed in its entirety.
var redactedWhole = struct{ sentinel string }{"redacted"}

// topLevelMatch reports whether any reference names attr as a whole.
func topLevelMatch(refs []contexts.Reference, attr string) bool {
	for _, ref := range refs {
		if ref.Valid() && ref.Depth() == 1 && ref.Component(0) == attr {
			return true
		}
	}
	return false
}

// applyRefs applies every matching reference to one attribute value.
// Returns the (possibly copied and trimmed) value, or redactedWhole when the
// attribute disappears entirely, plus the references that actually removed
// something.
func applyRefs(attrName string, value any, refs []contexts.Reference) (any, []string) {
	var removed []string
	for _, ref := range refs {
		if !ref.Valid() || ref.Component(0) != attrName {
			continue
		}
		if ref.Depth() == 1 {
			return redactedWhole, append(removed, ref.String())
		}
		trimmed, ok := redactPath(value, ref, 1)
		if ok {
			value = trimmed
			removed = append(removed, ref.String())
		}
	}
	return value, removed
}

// redactPath removes the value addressed by ref[depth:] from a nested
// object, copying maps along the way so the original is untouched.
func redactPath(value any, ref contexts.Reference, depth int) (any, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return value, false
	}
	component := ref.Component(depth)
	inner, ok := m[component]
	if !ok {
		return value, false
	}

	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}

	if depth == ref.Depth()-1 {
		delete(copied, component)
		return copied, true
	}

	trimmed, ok := redactPath(inner, ref, depth+1)
	if !ok {
		return value, false
	}
	copied[component] = trimmed
	return copied, true
}
