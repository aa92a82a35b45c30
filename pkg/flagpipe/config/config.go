package config

import (
	"time"
)

// eventsSection is the settings block consumed by the event pipeline.
const eventsSection = "events"

// Config is a read-only view over the decoded settings map of an SDK
// configuration file. Accessors never fail: a missing key or a value of the
// wrong type yields the caller's default, so every pipeline setting has a
// usable fallback.
type Config struct {
	data map[string]any
}

// New wraps an already-decoded settings map. A nil map is a valid empty
// configuration.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

func (c Config) lookup(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// String returns the string under key ("credential", "endpoint"), or
// defaultVal when missing or not a string.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.lookup(key); ok {
		if v, ok := s.(string); ok {
			return v
		}
	}
	return defaultVal
}

// Bool returns the boolean under key ("all_attributes_private",
// "omit_anonymous_contexts"), or defaultVal when missing or not a bool.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := c.lookup(key); ok {
		if v, ok := b.(bool); ok {
			return v
		}
	}
	return defaultVal
}

// Int returns the integer under key ("capacity", "context_keys_capacity").
// YAML and JSON decoders may surface numbers as int64 or float64; whole
// floats are accepted, fractional ones fall back to defaultVal.
func (c Config) Int(key string, defaultVal int) int {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	}
	return defaultVal
}

// Duration returns the duration under key ("flush_interval",
// "shutdown_timeout"). Strings are parsed with time.ParseDuration ("5s",
// "1m30s"); bare numbers are taken as seconds, which is how the settings
// files of older SDK releases wrote intervals.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	switch d := v.(type) {
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
	case int:
		return time.Duration(d) * time.Second
	case int64:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	case time.Duration:
		return d
	}
	return defaultVal
}

// StringSlice returns the string list under key ("private_attributes").
// YAML sequences decode as []any; a sequence holding any non-string element
// falls back to defaultVal rather than a partial list, so a typo in one
// attribute reference cannot silently shrink the redaction set.
func (c Config) StringSlice(key string, defaultVal []string) []string {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Section returns the nested mapping under key as its own Config, empty when
// the key is missing or holds a scalar.
func (c Config) Section(key string) Config {
	if v, ok := c.lookup(key); ok {
		if m, ok := v.(map[string]any); ok {
			return New(m)
		}
	}
	return New(nil)
}

// Events returns the "events" section of an SDK configuration file, the
// block event.EventsConfigFromConfig reads.
func (c Config) Events() Config {
	return c.Section(eventsSection)
}

// Len reports the number of top-level keys.
// Useful for testing.
func (c Config) Len() int {
	return len(c.data)
}
