package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all parlor configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	LLM     LLMConfig     `yaml:"llm"`
	Chat    ChatConfig    `yaml:"chat"`
	Wiki    WikiConfig    `yaml:"wiki"`
	Archive ArchiveConfig `yaml:"archive"`
	Speech  SpeechConfig  `yaml:"speech"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr          string  `yaml:"addr"`
	BodyLimit     string  `yaml:"body_limit"`
	RateLimit     float64 `yaml:"rate_limit"` // requests per second per client IP
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini, none
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// ChatConfig configures the conversation engine.
type ChatConfig struct {
	HistoryCapacity int `yaml:"history_capacity"`

	// Prompts overrides the built-in system prompts, keyed by mode label.
	Prompts map[string]string `yaml:"prompts"`
}

// WikiConfig configures knowledge-mode enrichment.
type WikiConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	Sentences int    `yaml:"sentences"`
	Timeout   string `yaml:"timeout"`
}

// ArchiveConfig configures durable transcript storage.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// SpeechConfig configures spoken replies.
type SpeechConfig struct {
	Enabled      bool   `yaml:"enabled"`
	LanguageCode string `yaml:"language_code"`
	Voice        string `yaml:"voice"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			BodyLimit:     "1M",
			RateLimit:     20,
			MaxConcurrent: 10,
		},
		Auth: AuthConfig{
			APIKey:    "demo",
			APISecret: "demo-secret",
			JWTSecret: "change-me-in-production",
			TokenTTL:  "24h",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   600,
			Timeout:     "30s",
		},
		Chat: ChatConfig{
			HistoryCapacity: 40,
		},
		Wiki: WikiConfig{
			Enabled:   true,
			BaseURL:   "https://en.wikipedia.org",
			Sentences: 4,
			Timeout:   "10s",
		},
		Archive: ArchiveConfig{
			Enabled:      true,
			DatabasePath: "data/parlor.db",
		},
		Speech: SpeechConfig{
			Enabled:      false,
			LanguageCode: "en-US",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("PARLOR_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if provider := os.Getenv("PARLOR_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if model := os.Getenv("PARLOR_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	switch c.LLM.Provider {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}

	if key := os.Getenv("PARLOR_API_KEY"); key != "" {
		c.Auth.APIKey = key
	}
	if secret := os.Getenv("PARLOR_API_SECRET"); secret != "" {
		c.Auth.APISecret = secret
	}
	if secret := os.Getenv("PARLOR_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}

	if path := os.Getenv("PARLOR_DB"); path != "" {
		c.Archive.DatabasePath = path
	}
	if capacity := os.Getenv("PARLOR_HISTORY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			c.Chat.HistoryCapacity = n
		}
	}
	if wiki := os.Getenv("PARLOR_WIKI"); wiki != "" {
		if enabled, err := strconv.ParseBool(wiki); err == nil {
			c.Wiki.Enabled = enabled
		}
	}
}

// ValidProviders lists all supported completion providers. "none" runs the
// engine on the local fallback alone.
var ValidProviders = []string{"openai", "gemini", "none"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid llm provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Wiki.Sentences < 0 {
		return fmt.Errorf("wiki.sentences must not be negative")
	}
	return nil
}

// LLMTimeout returns the completion timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// WikiTimeout returns the enrichment lookup timeout as a duration.
func (c *Config) WikiTimeout() time.Duration {
	d, err := time.ParseDuration(c.Wiki.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// TokenTTL returns the JWT lifetime as a duration.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
