package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// OpenRouter is a provider for OpenRouter API.
type OpenRouter struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	Retries int
	params  map[string]string
}

// OpenRouterOption configures the OpenRouter provider.
type OpenRouterOption func(*OpenRouter)

// WithOpenRouterAPIKey sets the API key.
func WithOpenRouterAPIKey(key string) OpenRouterOption {
	return func(o *OpenRouter) { o.APIKey = key }
}

// WithOpenRouterModel sets the model name.
func WithOpenRouterModel(model string) OpenRouterOption {
	return func(o *OpenRouter) { o.Model = model }
}

// WithOpenRouterURL sets the API base URL.
func WithOpenRouterURL(url string) OpenRouterOption {
	return func(o *OpenRouter) { o.URL = url }
}

// WithOpenRouterTimeout sets the request timeout.
func WithOpenRouterTimeout(timeout time.Duration) OpenRouterOption {
	return func(o *OpenRouter) { o.Timeout = timeout }
}

// WithOpenRouterRetries sets how many attempts Prompt makes.
func WithOpenRouterRetries(n int) OpenRouterOption {
	return func(o *OpenRouter) {
		if n > 0 {
			o.Retries = n
		}
	}
}

// NewOpenRouter creates a new OpenRouter provider.
func NewOpenRouter(opts ...OpenRouterOption) *OpenRouter {
	o := &OpenRouter{
		URL:     "https://openrouter.ai/api",
		APIKey:  os.Getenv("OPEN_ROUTER_API_KEY"),
		Model:   "z-ai/glm-4.5-air:free",
		Timeout: 2 * time.Minute,
		Retries: 3,
		params:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetParam returns an inference parameter value.
func (o *OpenRouter) GetParam(key string) string { return o.params[key] }

// SetParam sets an inference parameter value (TEMPERATURE, TOP_P, MAX_TOKENS).
func (o *OpenRouter) SetParam(key, value string) { o.params[key] = value }

type openRouterRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openRouterResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Prompt sends a prompt to OpenRouter and returns the response. Empty
// answers and transport errors are retried with a growing pause.
func (o *OpenRouter) Prompt(ctx context.Context, system, user string) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("openrouter: OPEN_ROUTER_API_KEY: %w", ErrNoAPIKey)
	}

	// Retry on empty responses (free tier rate limiting)
	var lastErr error
	for attempt := 0; attempt < o.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		result, err := o.promptOnce(ctx, system, user)
		if err != nil {
			lastErr = err
			continue
		}
		if result != "" {
			return result, nil
		}
		lastErr = fmt.Errorf("empty response")
	}
	return "", fmt.Errorf("openrouter: failed after %d attempts: %w", o.Retries, lastErr)
}

func (o *OpenRouter) promptOnce(ctx context.Context, system, user string) (string, error) {
	// Many free models don't support system prompts
	combinedUser := user
	if system != "" {
		combinedUser = system + "\n\n" + user
	}

	reqBody := openRouterRequest{
		Model:          o.Model,
		Messages:       []chatMessage{{Role: "user", Content: combinedUser}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if v, ok := o.params["TEMPERATURE"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			reqBody.Temperature = &f
		}
	}
	if v, ok := o.params["TOP_P"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			reqBody.TopP = &f
		}
	}
	if v, ok := o.params["MAX_TOKENS"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			reqBody.MaxTokens = &n
		}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.APIKey)

	var result openRouterResponse
	hc := &http.Client{Timeout: o.Timeout}
	if err := postJSON(ctx, hc, "openrouter", o.URL+"/v1/chat/completions", header, reqBody, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openrouter: no response choices returned (possible rate limit or content filter)")
	}
	return result.Choices[0].Message.Content, nil
}
