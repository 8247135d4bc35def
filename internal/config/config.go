package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider-specific default model constants
const (
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultOpenRouterModel = "deepseek/deepseek-chat-v3-0324"
	DefaultMockModel       = "mock-model"
)

// Config captures the tunable runtime settings for the relay.
type Config struct {
	ListenAddr            string            `yaml:"listen_addr"`
	SandboxRoot           string            `yaml:"sandbox_root"`
	DefaultMode           string            `yaml:"default_mode"`
	CommandTimeoutSeconds int               `yaml:"command_timeout_seconds"`
	PlanTimeoutSeconds    int               `yaml:"plan_timeout_seconds"`
	MaxPlanSteps          int               `yaml:"max_plan_steps"`
	OutputLimitBytes      int               `yaml:"output_limit_bytes"`
	InlineReportLimit     int               `yaml:"inline_report_limit"`
	AllowedConversations  []string          `yaml:"allowed_conversations"`
	Provider              string            `yaml:"provider"`
	Model                 string            `yaml:"model"`
	ProviderModels        map[string]string `yaml:"provider_models"`
	Temperature           float64           `yaml:"temperature"`
	GeminiBaseURL         string            `yaml:"gemini_base_url"`
	OpenRouterBaseURL     string            `yaml:"openrouter_base_url"`
	RequestTimeoutSeconds int               `yaml:"request_timeout_seconds"`
	StateDBPath           string            `yaml:"state_db_path"`
	AttachmentDir         string            `yaml:"attachment_dir"`
	LogPath               string            `yaml:"log_path"`
}

// Load reads the YAML configuration from disk and injects sane defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadUserConfig loads configuration from ~/.shellrelay/config.yaml.
// Checks SHELLRELAY_CONFIG_PATH environment variable first.
// If the file doesn't exist, returns defaults.
func LoadUserConfig() (Config, error) {
	configPath := os.Getenv("SHELLRELAY_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg, nil
	}

	return Load(configPath)
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8716"
	}
	if c.SandboxRoot == "" {
		c.SandboxRoot = filepath.Join(GetConfigDir(), "sandbox")
	}
	if c.DefaultMode == "" {
		c.DefaultMode = "command"
	}
	if c.CommandTimeoutSeconds <= 0 {
		c.CommandTimeoutSeconds = 60
	}
	if c.PlanTimeoutSeconds <= 0 {
		c.PlanTimeoutSeconds = 300
	}
	if c.MaxPlanSteps <= 0 {
		c.MaxPlanSteps = 5
	}
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = 64 * 1024
	}
	if c.InlineReportLimit <= 0 {
		c.InlineReportLimit = 4000
	}
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.GeminiBaseURL == "" {
		c.GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.OpenRouterBaseURL == "" {
		c.OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 90
	}
	if c.StateDBPath == "" {
		c.StateDBPath = filepath.Join(GetConfigDir(), "conversations.db")
	}
	if c.AttachmentDir == "" {
		c.AttachmentDir = filepath.Join(GetConfigDir(), "attachments")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(GetConfigDir(), "shellrelay.log")
	}
}

func (c Config) validate() error {
	if c.DefaultMode != "command" && c.DefaultMode != "chat" {
		return fmt.Errorf("default_mode must be command or chat (got %q)", c.DefaultMode)
	}
	if c.CommandTimeoutSeconds > 600 {
		return fmt.Errorf("command_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.PlanTimeoutSeconds < c.CommandTimeoutSeconds {
		return fmt.Errorf("plan_timeout_seconds (%d) cannot be below command_timeout_seconds (%d)",
			c.PlanTimeoutSeconds, c.CommandTimeoutSeconds)
	}
	if c.MaxPlanSteps > 20 {
		return fmt.Errorf("max_plan_steps cannot exceed 20")
	}
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %f)", c.Temperature)
	}
	if strings.TrimSpace(c.StateDBPath) == "" {
		return fmt.Errorf("state_db_path must be set")
	}
	return nil
}

// RequestTimeout turns the integer value into a duration for HTTP clients.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CommandTimeout exposes the configured per-step duration.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// PlanTimeout bounds a whole plan's wall-clock execution.
func (c Config) PlanTimeout() time.Duration {
	return time.Duration(c.PlanTimeoutSeconds) * time.Second
}

// ModelFor returns the configured model for the given provider key, falling
// back to provider-appropriate defaults.
func (c Config) ModelFor(provider string) string {
	provider = strings.ToLower(provider)

	if len(c.ProviderModels) > 0 {
		if model := strings.TrimSpace(c.ProviderModels[provider]); model != "" {
			return model
		}
	}

	switch provider {
	case "gemini":
		return DefaultGeminiModel
	case "openrouter":
		return DefaultOpenRouterModel
	case "mock":
		return DefaultMockModel
	default:
		return c.Model
	}
}

// APIKeyFor reads the provider's key from the environment.
func APIKeyFor(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return ""
	}
}

func GetConfigDir() string {
	if configDir := os.Getenv("SHELLRELAY_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shellrelay"
	}
	return filepath.Join(home, ".shellrelay")
}
