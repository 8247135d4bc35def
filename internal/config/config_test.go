package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorString string
	}{
		{
			name: "valid config passes",
			modifyFunc: func(c *Config) {
				c.Temperature = 0.7
				c.RequestTimeoutSeconds = 90
				c.CommandTimeoutSeconds = 60
			},
			expectError: false,
		},
		{
			name: "bad default mode fails",
			modifyFunc: func(c *Config) {
				c.DefaultMode = "yolo"
			},
			expectError: true,
			errorString: "default_mode",
		},
		{
			name: "negative temperature fails",
			modifyFunc: func(c *Config) {
				c.Temperature = -0.5
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "temperature > 2.0 fails",
			modifyFunc: func(c *Config) {
				c.Temperature = 3.0
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "request timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.RequestTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "request_timeout_seconds cannot exceed",
		},
		{
			name: "command timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.CommandTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "command_timeout_seconds cannot exceed",
		},
		{
			name: "plan timeout below command timeout fails",
			modifyFunc: func(c *Config) {
				c.CommandTimeoutSeconds = 120
				c.PlanTimeoutSeconds = 60
			},
			expectError: true,
			errorString: "plan_timeout_seconds",
		},
		{
			name: "too many plan steps fails",
			modifyFunc: func(c *Config) {
				c.MaxPlanSteps = 50
			},
			expectError: true,
			errorString: "max_plan_steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			cfg.applyDefaults()
			tt.modifyFunc(&cfg)

			err := cfg.validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("error %q does not mention %q", err, tt.errorString)
				}
			} else if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.DefaultMode != "command" {
		t.Errorf("default mode = %q", cfg.DefaultMode)
	}
	if cfg.CommandTimeoutSeconds != 60 {
		t.Errorf("command timeout = %d", cfg.CommandTimeoutSeconds)
	}
	if cfg.MaxPlanSteps != 5 {
		t.Errorf("max plan steps = %d", cfg.MaxPlanSteps)
	}
	if cfg.OutputLimitBytes != 64*1024 {
		t.Errorf("output limit = %d", cfg.OutputLimitBytes)
	}
	if cfg.Provider != "gemini" {
		t.Errorf("provider = %q", cfg.Provider)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listen_addr: "0.0.0.0:9000"
sandbox_root: /srv/sandbox
default_mode: chat
max_plan_steps: 8
allowed_conversations:
  - conv-a
  - conv-b
provider: openrouter
provider_models:
  openrouter: some/model
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.DefaultMode != "chat" || cfg.MaxPlanSteps != 8 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedConversations) != 2 || cfg.AllowedConversations[0] != "conv-a" {
		t.Errorf("allowed = %v", cfg.AllowedConversations)
	}
	if cfg.ModelFor("openrouter") != "some/model" {
		t.Errorf("model = %q", cfg.ModelFor("openrouter"))
	}
	// defaults still fill gaps
	if cfg.CommandTimeoutSeconds != 60 {
		t.Errorf("command timeout = %d", cfg.CommandTimeoutSeconds)
	}
}

func TestModelForFallsBackToProviderDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if got := cfg.ModelFor("gemini"); got != DefaultGeminiModel {
		t.Errorf("gemini model = %q", got)
	}
	if got := cfg.ModelFor("openrouter"); got != DefaultOpenRouterModel {
		t.Errorf("openrouter model = %q", got)
	}
	if got := cfg.ModelFor("mock"); got != DefaultMockModel {
		t.Errorf("mock model = %q", got)
	}
}
