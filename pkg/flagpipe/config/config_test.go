package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"nil map", nil},
		{"empty map", map[string]any{}},
		{"with values", map[string]any{"key": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.Equal(t, len(tt.data), cfg.Len())
		})
	}
}

// TestString verifies string extraction with defaults.
func TestString(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal string
		want       string
	}{
		{"key exists", map[string]any{"endpoint": "https://events.example.com"}, "endpoint", "default", "https://events.example.com"},
		{"key missing", map[string]any{"other": "value"}, "endpoint", "default", "default"},
		{"empty string", map[string]any{"endpoint": ""}, "endpoint", "default", ""},
		{"wrong type int", map[string]any{"endpoint": 123}, "endpoint", "default", "default"},
		{"wrong type bool", map[string]any{"endpoint": true}, "endpoint", "default", "default"},
		{"nil map", nil, "endpoint", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			got := cfg.String(tt.key, tt.defaultVal)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestDuration verifies duration extraction with various input types.
func TestDuration(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"string duration", map[string]any{"flush_interval": "5s"}, "flush_interval", 30 * time.Second, 5 * time.Second},
		{"string complex duration", map[string]any{"flush_interval": "1m30s"}, "flush_interval", 30 * time.Second, 90 * time.Second},
		{"int seconds", map[string]any{"flush_interval": 10}, "flush_interval", 30 * time.Second, 10 * time.Second},
		{"float seconds", map[string]any{"flush_interval": 0.5}, "flush_interval", 30 * time.Second, 500 * time.Millisecond},
		{"duration value", map[string]any{"flush_interval": 2 * time.Second}, "flush_interval", 30 * time.Second, 2 * time.Second},
		{"invalid string", map[string]any{"flush_interval": "soon"}, "flush_interval", 30 * time.Second, 30 * time.Second},
		{"missing key", nil, "flush_interval", 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			got := cfg.Duration(tt.key, tt.defaultVal)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestInt verifies integer extraction including float truncation rules.
func TestInt(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		want       int
	}{
		{"int value", map[string]any{"capacity": 500}, 500},
		{"int64 value", map[string]any{"capacity": int64(500)}, 500},
		{"whole float", map[string]any{"capacity": float64(500)}, 500},
		{"fractional float", map[string]any{"capacity": 500.5}, 10000},
		{"wrong type", map[string]any{"capacity": "500"}, 10000},
		{"missing", nil, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.Equal(t, tt.want, cfg.Int("capacity", 10000))
		})
	}
}

// TestBool verifies boolean extraction.
func TestBool(t *testing.T) {
	cfg := config.New(map[string]any{
		"all_attributes_private": true,
		"compress":               "yes",
	})

	assert.True(t, cfg.Bool("all_attributes_private", false))
	assert.False(t, cfg.Bool("compress", false), "non-bool should fall back to default")
	assert.True(t, cfg.Bool("missing", true))
}

// TestStringSlice verifies string slice extraction, including YAML's []any form.
func TestStringSlice(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want []string
	}{
		{"string slice", map[string]any{"private_attributes": []string{"email", "name"}}, []string{"email", "name"}},
		{"any slice", map[string]any{"private_attributes": []any{"email", "name"}}, []string{"email", "name"}},
		{"mixed any slice", map[string]any{"private_attributes": []any{"email", 42}}, nil},
		{"missing", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.Equal(t, tt.want, cfg.StringSlice("private_attributes", nil))
		})
	}
}

// TestSection verifies nested block extraction.
func TestSection(t *testing.T) {
	cfg := config.New(map[string]any{
		"events": map[string]any{
			"capacity":       100,
			"flush_interval": "5s",
		},
		"not_a_section": "scalar",
	})

	events := cfg.Section("events")
	assert.Equal(t, 100, events.Int("capacity", 0))
	assert.Equal(t, 5*time.Second, events.Duration("flush_interval", 0))

	assert.Zero(t, cfg.Section("not_a_section").Len())
	assert.Zero(t, cfg.Section("missing").Len())
}

// TestEvents verifies the shortcut for the pipeline's settings block.
func TestEvents(t *testing.T) {
	cfg := config.New(map[string]any{
		"credential": "sdk-key",
		"events": map[string]any{
			"capacity": 250,
		},
	})

	assert.Equal(t, 250, cfg.Events().Int("capacity", 0))
	assert.Zero(t, config.New(nil).Events().Len())
}

// TestFromFile verifies loading from YAML and JSON files.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "flagpipe.yaml")
	yamlData := []byte("credential: sdk-key\nevents:\n  capacity: 42\n  private_attributes:\n    - email\n")
	require.NoError(t, os.WriteFile(yamlPath, yamlData, 0o600))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "sdk-key", cfg.String("credential", ""))
	events := cfg.Section("events")
	assert.Equal(t, 42, events.Int("capacity", 0))
	assert.Equal(t, []string{"email"}, events.StringSlice("private_attributes", nil))

	jsonPath := filepath.Join(dir, "flagpipe.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"credential":"sdk-key-2"}`), 0o600))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "sdk-key-2", cfg.String("credential", ""))

	_, err = config.FromFile(filepath.Join(dir, "flagpipe.toml"))
	assert.Error(t, err, "unsupported extension should fail")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

// TestFromYAMLInvalid verifies malformed input is rejected.
func TestFromYAMLInvalid(t *testing.T) {
	_, err := config.FromYAML([]byte("{not yaml"))
	assert.Error(t, err)

	_, err = config.FromJSON([]byte("{not json"))
	assert.Error(t, err)
}
