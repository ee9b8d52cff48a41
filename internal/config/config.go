// Package config loads runtime configuration from environment variables,
// with an optional YAML file overlay for local development, using
// caarlos0/env.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full set of recognized environment variables.
type Config struct {
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"anthropic" yaml:"llm_provider"`
	LLMModel    string `env:"LLM_MODEL" envDefault:"claude-sonnet-4-5" yaml:"llm_model"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY" yaml:"openai_api_key"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY" yaml:"anthropic_api_key"`

	DataDir     string `env:"DATA_DIR" envDefault:"./data" yaml:"data_dir"`
	DatabaseURL string `env:"DATABASE_URL" yaml:"database_url"`

	Port int `env:"PORT" envDefault:"8080" yaml:"port"`

	AgentOrgID     string `env:"AGENT_ORG_ID" envDefault:"default" yaml:"agent_org_id"`
	AgentUserID    string `env:"AGENT_USER_ID" envDefault:"default" yaml:"agent_user_id"`
	AgentProjectID string `env:"AGENT_PROJECT_ID" yaml:"agent_project_id"`

	RedisAddr string `env:"REDIS_ADDR" yaml:"redis_addr"`

	MaxSteps         int           `env:"AGENT_MAX_STEPS" envDefault:"50" yaml:"max_steps"`
	StepTimeout      time.Duration `env:"AGENT_STEP_TIMEOUT" envDefault:"5m" yaml:"step_timeout"`
	MaxContextTokens int           `env:"AGENT_MAX_CONTEXT_TOKENS" envDefault:"128000" yaml:"max_context_tokens"`

	LLMTokensPerMinute      int `env:"LLM_TOKENS_PER_MINUTE" envDefault:"60000" yaml:"llm_tokens_per_minute"`
	LLMTokensPerMinuteBurst int `env:"LLM_TOKENS_PER_MINUTE_BURST" yaml:"llm_tokens_per_minute_burst"`
}

// Load reads environment variables, then — if path is non-empty and exists
// — overlays a YAML file on top (file values win, so env vars act as
// defaults and the file as an override for local dev).
func Load(path string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the minimal set of values the runtime cannot start
// without: an API key for whichever provider is selected.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}
