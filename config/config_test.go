package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so tests see the file/defaults alone.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PARLOR_ADDR", "PARLOR_PROVIDER", "PARLOR_MODEL", "PARLOR_API_KEY",
		"PARLOR_API_SECRET", "PARLOR_JWT_SECRET", "PARLOR_DB", "PARLOR_HISTORY",
		"PARLOR_WIKI", "OPENAI_MODEL", "OPENAI_BASE_URL", "OPENAI_API_KEY",
		"GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "1M", cfg.Server.BodyLimit)
	assert.Equal(t, 10, cfg.Server.MaxConcurrent)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	assert.Equal(t, 600, cfg.LLM.MaxTokens)
	assert.Equal(t, 40, cfg.Chat.HistoryCapacity)
	assert.True(t, cfg.Wiki.Enabled)
	assert.Equal(t, 4, cfg.Wiki.Sentences)
	assert.True(t, cfg.Archive.Enabled)
	assert.False(t, cfg.Speech.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "parlor.yaml")
	data := `
server:
  addr: ":9090"
llm:
  provider: gemini
  model: gemini-2.0-flash
chat:
  history_capacity: 6
  prompts:
    programming: "You review pull requests."
wiki:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 6, cfg.Chat.HistoryCapacity)
	assert.Equal(t, "You review pull requests.", cfg.Chat.Prompts["programming"])
	assert.False(t, cfg.Wiki.Enabled)

	// Unset sections keep their defaults.
	assert.Equal(t, "demo", cfg.Auth.APIKey)
	assert.Equal(t, 4, cfg.Wiki.Sentences)
}

func TestLoadMalformedYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "parlor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLOR_ADDR", ":7070")
	t.Setenv("PARLOR_PROVIDER", "openai")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PARLOR_JWT_SECRET", "s3cret")
	t.Setenv("PARLOR_HISTORY", "12")
	t.Setenv("PARLOR_WIKI", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 12, cfg.Chat.HistoryCapacity)
	assert.False(t, cfg.Wiki.Enabled)
}

func TestEnvOverridesGeminiKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLOR_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-test")
	t.Setenv("OPENAI_API_KEY", "sk-ignored")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "g-test", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	t.Run("invalid provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.Provider = "clippy"
		assert.ErrorContains(t, cfg.Validate(), "invalid llm provider")
	})

	t.Run("empty jwt secret", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Auth.JWTSecret = ""
		assert.ErrorContains(t, cfg.Validate(), "jwt_secret")
	})

	t.Run("empty addr", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Addr = ""
		assert.ErrorContains(t, cfg.Validate(), "server.addr")
	})

	t.Run("negative wiki sentences", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Wiki.Sentences = -1
		assert.ErrorContains(t, cfg.Validate(), "wiki.sentences")
	})
}

func TestDurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 10*time.Second, cfg.WikiTimeout())
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())

	cfg.LLM.Timeout = "5s"
	cfg.Wiki.Timeout = "2s"
	cfg.Auth.TokenTTL = "1h"
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 2*time.Second, cfg.WikiTimeout())
	assert.Equal(t, time.Hour, cfg.TokenTTL())

	// Garbage falls back to the defaults.
	cfg.LLM.Timeout = "soon"
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
}
