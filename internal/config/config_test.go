package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[provider]
name = "ollama"
model = "llama3"
timeout = "30s"

[store]
driver = "memory"

[engine]
ai_debounce = "1s"
max_iterations = 8
min_confidence = 0.4

[log]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "llama3", cfg.Provider.Model)
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, time.Second, cfg.Engine.AIDebounce)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.LocalDebounce)
	assert.Equal(t, 8, cfg.Engine.MaxIterations)
	assert.Equal(t, 0.4, cfg.Engine.MinConfidence)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TALLY_PROVIDER", "gemini")
	t.Setenv("TALLY_PG_DSN", "postgres://localhost/tally")
	t.Setenv("TALLY_PROVIDER_TIMEOUT", "5s")

	cfg, err := Load(writeFile(t, `[provider]
name = "ollama"`))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/tally", cfg.Store.DSN)
	assert.Equal(t, 5*time.Second, cfg.Provider.Timeout)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeFile(t, `[store]
driver = "mongo"`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, `[store]
driver = "postgres"`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, `[engine]
min_confidence = 2.0`))
	assert.Error(t, err)
}

func TestBadFile(t *testing.T) {
	_, err := Load(writeFile(t, `this is not toml`))
	assert.Error(t, err)
}
