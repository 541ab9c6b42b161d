package tally

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"nickandperla.net/tally/internal/config"
	"nickandperla.net/tally/internal/provider"
	"nickandperla.net/tally/internal/store"
)

// Option configures an Engine.
type Option func(*Engine)

// WithSQLiteStore configures SQLite persistence at the given path.
func WithSQLiteStore(path string) Option {
	return func(e *Engine) {
		s, err := store.NewSQLite(path)
		if err != nil {
			e.errs = append(e.errs, err)
			return
		}
		e.store = s
	}
}

// WithPostgresStore configures Postgres persistence.
func WithPostgresStore(dsn string) Option {
	return func(e *Engine) {
		s, err := store.NewPostgres(dsn)
		if err != nil {
			e.errs = append(e.errs, err)
			return
		}
		e.store = s
	}
}

// WithMemoryStore configures an in-memory store (for testing).
func WithMemoryStore() Option {
	return func(e *Engine) {
		e.store = store.NewMemory()
	}
}

// WithStore uses a custom store.
func WithStore(s Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithProvider uses a custom provider.
func WithProvider(p Provider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

// WithMockProvider configures a mock LLM provider (for testing).
func WithMockProvider(response string) Option {
	return func(e *Engine) {
		e.provider = provider.NewMock(response)
	}
}

// WithMockProviderFunc configures a mock LLM provider with a custom handler (for testing).
// The handler receives the system prompt and the JSON request and returns the response.
func WithMockProviderFunc(handler func(system, user string) string) Option {
	return func(e *Engine) {
		e.provider = provider.NewMockHandler(func(_ context.Context, system, user string) (string, error) {
			return handler(system, user), nil
		})
	}
}

// WithOllama configures the Ollama LLM provider.
func WithOllama(url, model string) Option {
	return func(e *Engine) {
		opts := []provider.OllamaOption{}
		if url != "" {
			opts = append(opts, provider.WithOllamaURL(url))
		}
		if model != "" {
			opts = append(opts, provider.WithOllamaModel(model))
		}
		e.provider = provider.NewOllama(opts...)
	}
}

// WithOpenRouter configures the OpenRouter LLM provider.
func WithOpenRouter(model string) Option {
	return func(e *Engine) {
		opts := []provider.OpenRouterOption{}
		if model != "" {
			opts = append(opts, provider.WithOpenRouterModel(model))
		}
		e.provider = provider.NewOpenRouter(opts...)
	}
}

// WithAnthropic configures the Anthropic Claude LLM provider.
func WithAnthropic(model string) Option {
	return func(e *Engine) {
		opts := []provider.AnthropicOption{}
		if model != "" {
			opts = append(opts, provider.WithAnthropicModel(model))
		}
		e.provider = provider.NewAnthropic(opts...)
	}
}

// WithGemini configures the Google Gemini LLM provider.
func WithGemini(model string) Option {
	return func(e *Engine) {
		opts := []provider.GeminiOption{}
		if model != "" {
			opts = append(opts, provider.WithGeminiModel(model))
		}
		e.provider = provider.NewGemini(opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimeout sets the timeout for LLM requests.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithCacheSize sets the number of cached AI responses. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithMinConfidence drops AI rewrites whose confidence is below c.
func WithMinConfidence(c float64) Option {
	return func(e *Engine) {
		e.minConfidence = c
	}
}

// WithMaxIterations caps the reconciliation fixed-point loops.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		e.maxIterations = n
	}
}

// WithDebounce sets the session debounce delays for local and AI evaluation.
func WithDebounce(local, ai time.Duration) Option {
	return func(e *Engine) {
		e.localDebounce = local
		e.aiDebounce = ai
	}
}

// WithSystemPrompt replaces the system prompt sent with every AI request.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// FromConfig translates a loaded configuration into engine options.
func FromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithTimeout(cfg.Provider.Timeout),
		WithCacheSize(cfg.Engine.CacheSize),
		WithMinConfidence(cfg.Engine.MinConfidence),
		WithMaxIterations(cfg.Engine.MaxIterations),
		WithDebounce(cfg.Engine.LocalDebounce, cfg.Engine.AIDebounce),
	}
	switch cfg.Store.Driver {
	case "sqlite":
		opts = append(opts, WithSQLiteStore(cfg.Store.Path))
	case "postgres":
		opts = append(opts, WithPostgresStore(cfg.Store.DSN))
	case "memory":
		opts = append(opts, WithMemoryStore())
	}
	if cfg.Provider.PromptFile != "" {
		opts = append(opts, func(e *Engine) {
			data, err := os.ReadFile(cfg.Provider.PromptFile)
			if err != nil {
				e.errs = append(e.errs, fmt.Errorf("prompt file: %w", err))
				return
			}
			WithSystemPrompt(string(data))(e)
		})
	}
	if cfg.Provider.Name != "" && cfg.Provider.Name != "none" {
		opts = append(opts, func(e *Engine) {
			p, err := provider.New(cfg.Provider.Name, cfg.Provider.Model, cfg.Provider.URL)
			if err != nil {
				e.errs = append(e.errs, err)
				return
			}
			e.provider = p
		})
	}
	return opts
}
