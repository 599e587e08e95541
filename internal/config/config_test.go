package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 0.8, cfg.Memory.GeneralFloor)
	assert.Equal(t, 0.1, cfg.Memory.RecallFloor)
	assert.Equal(t, 2, cfg.Memory.InjectLimit)
	assert.Equal(t, 1000, cfg.Memory.MaxFacts)
	assert.Equal(t, 7*24*time.Hour, cfg.Memory.Retention())
	assert.Equal(t, time.Hour, cfg.Memory.SweepInterval())
	assert.Equal(t, "", cfg.Embedding.Provider)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"unknown summarizer provider", func(c *Config) { c.Summarizer.Provider = "openai" }},
		{"floor above one", func(c *Config) { c.Memory.GeneralFloor = 1.5 }},
		{"negative floor", func(c *Config) { c.Memory.RecallFloor = -0.1 }},
		{"negative max facts", func(c *Config) { c.Memory.MaxFacts = -1 }},
		{"negative retention", func(c *Config) { c.Memory.RetentionDays = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateRequiresAPIKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "openai"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.api_key")

	cfg.Embedding.APIKey = "sk-test"
	require.NoError(t, Validate(cfg))

	cfg.Summarizer.Provider = "anthropic"
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarizer.api_key")

	cfg.Summarizer.APIKey = "sk-ant-test"
	require.NoError(t, Validate(cfg))
}

func TestValidateOllamaNeedsNoKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = "http://localhost:11434"
	assert.NoError(t, Validate(cfg))
}

func TestLoaderMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.json")
	loader := NewLoader(path)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Memory, cfg.Memory)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Memory.MaxFacts = 42
	cfg.Memory.RetentionDays = 3
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = "http://localhost:11434"
	cfg.Embedding.Dimension = 768
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Memory.MaxFacts)
	assert.Equal(t, 3, loaded.Memory.RetentionDays)
	assert.Equal(t, "ollama", loaded.Embedding.Provider)
	assert.Equal(t, 768, loaded.Embedding.Dimension)
	assert.Equal(t, dir, loaded.DataDir)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"memory":{"general_floor":2.0}}`), 0600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoaderEnvKeyFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"embedding":{"provider":"openai"}}`), 0600))

	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Embedding.APIKey)
}

func TestLoaderFileKeyWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"embedding":{"provider":"openai","api_key":"sk-from-file"}}`), 0600))

	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.Embedding.APIKey)
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "/tmp/custom.json", NewLoader("/tmp/custom.json").GetConfigPath())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".engram", "engram.json"), NewLoader("").GetConfigPath())
}
