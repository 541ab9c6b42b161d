package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// Anthropic calls the Messages API. The assistant turn is prefilled with
// "{" so the reply starts inside a JSON object.
type Anthropic struct {
	URL       string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicOption configures the Anthropic provider.
type AnthropicOption func(*Anthropic)

// WithAnthropicAPIKey sets the API key.
func WithAnthropicAPIKey(key string) AnthropicOption {
	return func(a *Anthropic) { a.APIKey = key }
}

// WithAnthropicModel sets the model name.
func WithAnthropicModel(model string) AnthropicOption {
	return func(a *Anthropic) { a.Model = model }
}

// WithAnthropicURL sets the API base URL.
func WithAnthropicURL(url string) AnthropicOption {
	return func(a *Anthropic) { a.URL = url }
}

// WithAnthropicTimeout bounds a single request.
func WithAnthropicTimeout(timeout time.Duration) AnthropicOption {
	return func(a *Anthropic) { a.Timeout = timeout }
}

// NewAnthropic creates an Anthropic provider keyed from ANTHROPIC_API_KEY.
func NewAnthropic(opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		URL:       "https://api.anthropic.com",
		APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 4096,
		Timeout:   2 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Prompt sends system and user as one exchange and returns the JSON text.
func (a *Anthropic) Prompt(ctx context.Context, system, user string) (string, error) {
	if a.APIKey == "" {
		return "", fmt.Errorf("anthropic: ANTHROPIC_API_KEY: %w", ErrNoAPIKey)
	}

	req := anthropicRequest{
		Model:     a.Model,
		MaxTokens: a.MaxTokens,
		System:    system,
		Messages: []chatMessage{
			{Role: "user", Content: user},
			{Role: "assistant", Content: "{"},
		},
	}
	header := http.Header{}
	header.Set("x-api-key", a.APIKey)
	header.Set("anthropic-version", anthropicVersion)

	var resp anthropicResponse
	hc := &http.Client{Timeout: a.Timeout}
	if err := postJSON(ctx, hc, "anthropic", a.URL+"/v1/messages", header, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("anthropic: %s: %s", resp.Error.Type, resp.Error.Message)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("anthropic: empty response (stop reason %q)", resp.StopReason)
	}
	if !strings.HasPrefix(out, "{") {
		out = "{" + out
	}
	return out, nil
}
