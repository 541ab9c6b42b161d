// Package config loads tally settings from a TOML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Store    StoreConfig    `toml:"store"`
	Engine   EngineConfig   `toml:"engine"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

type ProviderConfig struct {
	Name       string        `toml:"name"` // ollama, openrouter, anthropic, gemini, mock, none
	Model      string        `toml:"model"`
	URL        string        `toml:"url"`
	Timeout    time.Duration `toml:"timeout"`
	PromptFile string        `toml:"prompt_file"`
}

type StoreConfig struct {
	Driver string `toml:"driver"` // sqlite, postgres, memory
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type EngineConfig struct {
	LocalDebounce time.Duration `toml:"local_debounce"`
	AIDebounce    time.Duration `toml:"ai_debounce"`
	MaxIterations int           `toml:"max_iterations"`
	MinConfidence float64       `toml:"min_confidence"`
	CacheSize     int           `toml:"cache_size"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Name: "none", Timeout: time.Minute},
		Store:    StoreConfig{Driver: "sqlite", Path: expandHome("~/.local/share/tally/tally.db")},
		Engine: EngineConfig{
			LocalDebounce: 100 * time.Millisecond,
			AIDebounce:    800 * time.Millisecond,
			MaxIterations: 5,
			CacheSize:     256,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8088"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path, or the first existing default candidate when path is
// empty, then applies .env and TALLY_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Try default paths if not specified
	if path == "" {
		candidates := []string{
			expandHome("~/.config/tally/config.toml"),
			"./tally.toml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Provider.PromptFile = expandHome(cfg.Provider.PromptFile)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Provider.Name, "TALLY_PROVIDER")
	set(&c.Provider.Model, "TALLY_MODEL")
	set(&c.Provider.URL, "TALLY_PROVIDER_URL")
	set(&c.Store.Path, "TALLY_DB")
	set(&c.Server.Addr, "TALLY_ADDR")
	set(&c.Log.Level, "TALLY_LOG_LEVEL")
	if dsn := strings.TrimSpace(os.Getenv("TALLY_PG_DSN")); dsn != "" {
		c.Store.DSN = dsn
		c.Store.Driver = "postgres"
	}
	if v := strings.TrimSpace(os.Getenv("TALLY_PROVIDER_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TALLY_PROVIDER_TIMEOUT: %w", err)
		}
		c.Provider.Timeout = d
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver postgres needs a dsn")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("engine.max_iterations must be at least 1")
	}
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return fmt.Errorf("engine.min_confidence must be within [0, 1]")
	}
	return nil
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
