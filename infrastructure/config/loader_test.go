package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/parley/domain/config"
)

func TestLoader_LoadFile_YAML(t *testing.T) {
	content := `
name: Order Support
version: "1.0"
description: Handles order inquiries
agent:
  mode: composited
  deflection: Let me connect you with a specialist.
terms:
  - name: DRP
    description: Delivery reschedule process
    synonyms: [reschedule, redelivery]
guidelines:
  - id: greet
    condition: the customer opens the conversation
    action: greet the customer by name
    criticality: low
variables:
  - name: balance
    max_age: 30m
    refresher: get_balance
`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "Order Support" {
		t.Errorf("Name = %s, want Order Support", cfg.Name)
	}
	if cfg.Agent.Mode != "composited" {
		t.Errorf("Mode = %s, want composited", cfg.Agent.Mode)
	}
	if len(cfg.Terms) != 1 || len(cfg.Terms[0].Synonyms) != 2 {
		t.Errorf("Terms = %+v, want one term with two synonyms", cfg.Terms)
	}
	if len(cfg.Guidelines) != 1 || cfg.Guidelines[0].Criticality != "low" {
		t.Errorf("Guidelines = %+v, want one low-criticality guideline", cfg.Guidelines)
	}
	if got := time.Duration(cfg.Variables[0].MaxAge); got != 30*time.Minute {
		t.Errorf("MaxAge = %v, want 30m", got)
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	content := `{
  "name": "Order Support",
  "version": "1.0",
  "agent": {
    "mode": "strict"
  },
  "canned": [
    {"id": "hours", "text": "We are open 9-5.", "signals": ["opening hours"], "safe": true}
  ]
}`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Agent.Mode != "strict" {
		t.Errorf("Mode = %s, want strict", cfg.Agent.Mode)
	}
	if len(cfg.Canned) != 1 || !cfg.Canned[0].Safe {
		t.Errorf("Canned = %+v, want one safe response", cfg.Canned)
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, config.ErrConfigNotFound) {
		t.Errorf("LoadFile() error = %v, want ErrConfigNotFound", err)
	}
}

func TestLoader_LoadFile_UnsupportedExtension(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("name = 'x'"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	loader := NewLoader()
	_, err := loader.LoadFile(path)
	if !errors.Is(err, config.ErrUnsupportedFormat) {
		t.Errorf("LoadFile() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoader_LoadString_InvalidYAML(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadString("name: [unclosed", FormatYAML)
	if !errors.Is(err, config.ErrInvalidFormat) {
		t.Errorf("LoadString() error = %v, want ErrInvalidFormat", err)
	}
}

func TestLoader_LoadString_InvalidJSON(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadString(`{"name": broken}`, FormatJSON)
	if !errors.Is(err, config.ErrInvalidFormat) {
		t.Errorf("LoadString() error = %v, want ErrInvalidFormat", err)
	}
}

func TestLoader_Validation(t *testing.T) {
	t.Run("invalid mode fails validation", func(t *testing.T) {
		content := `
name: Broken
version: "1.0"
agent:
  mode: improvised
`
		loader := NewLoader()
		_, err := loader.LoadString(content, FormatYAML)
		if !errors.Is(err, config.ErrValidationFailed) {
			t.Errorf("LoadString() error = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("dangling scope fails validation", func(t *testing.T) {
		content := `
name: Broken
version: "1.0"
guidelines:
  - condition: always
    action: do the thing
    scope:
      journey: no-such-journey
`
		loader := NewLoader()
		_, err := loader.LoadString(content, FormatYAML)
		if !errors.Is(err, config.ErrValidationFailed) {
			t.Errorf("LoadString() error = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("disabled validation accepts broken references", func(t *testing.T) {
		content := `
name: Broken
version: "1.0"
guidelines:
  - condition: always
    scope:
      journey: no-such-journey
`
		loader := NewLoaderWithOptions(WithValidation(false))
		if _, err := loader.LoadString(content, FormatYAML); err != nil {
			t.Errorf("LoadString() error = %v, want nil", err)
		}
	})

	t.Run("declared tools gate guideline refs", func(t *testing.T) {
		content := `
name: Broken
version: "1.0"
guidelines:
  - condition: the customer asks about an order
    action: look the order up
    tools: [get_order]
tools:
  - name: get_weather
    handler:
      type: http
      url: http://localhost:9000/weather
`
		loader := NewLoader()
		_, err := loader.LoadString(content, FormatYAML)
		if !errors.Is(err, config.ErrValidationFailed) {
			t.Errorf("LoadString() error = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("undeclared tools skip ref checks", func(t *testing.T) {
		content := `
name: Runtime Tools
version: "1.0"
guidelines:
  - condition: the customer asks about an order
    action: look the order up
    tools: [get_order]
`
		loader := NewLoader()
		if _, err := loader.LoadString(content, FormatYAML); err != nil {
			t.Errorf("LoadString() error = %v, want nil", err)
		}
	})
}

func TestLoader_EnvExpansion(t *testing.T) {
	os.Setenv("PARLEY_DEFLECTION", "One moment please.")
	defer os.Unsetenv("PARLEY_DEFLECTION")

	content := `
name: Order Support
version: "1.0"
agent:
  deflection: ${PARLEY_DEFLECTION}
`
	loader := NewLoader()
	cfg, err := loader.LoadString(content, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Agent.Deflection != "One moment please." {
		t.Errorf("Deflection = %q, want expanded env value", cfg.Agent.Deflection)
	}

	t.Run("expansion disabled keeps the literal", func(t *testing.T) {
		loader := NewLoaderWithOptions(WithEnvExpansion(false))
		cfg, err := loader.LoadString(content, FormatYAML)
		if err != nil {
			t.Fatalf("LoadString() error = %v", err)
		}
		if !strings.Contains(cfg.Agent.Deflection, "${PARLEY_DEFLECTION}") {
			t.Errorf("Deflection = %q, want unexpanded literal", cfg.Agent.Deflection)
		}
	})

	t.Run("strict mode rejects missing vars", func(t *testing.T) {
		loader := NewLoaderWithOptions(WithStrictEnv(true))
		_, err := loader.LoadString("name: ${PARLEY_NO_SUCH_VAR}\nversion: \"1.0\"\n", FormatYAML)
		if !errors.Is(err, config.ErrMissingEnvVar) {
			t.Errorf("LoadString() error = %v, want ErrMissingEnvVar", err)
		}
	})
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "agent.yaml", want: FormatYAML},
		{path: "agent.yml", want: FormatYAML},
		{path: "AGENT.JSON", want: FormatJSON},
		{path: "agent.toml", wantErr: true},
		{path: "agent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatForPath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, config.ErrUnsupportedFormat) {
					t.Errorf("FormatForPath(%q) error = %v, want ErrUnsupportedFormat", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatForPath(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("FormatForPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
