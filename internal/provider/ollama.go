package provider

import (
	"context"
	"net/http"
	"time"
)

// Ollama talks to a local Ollama server's chat endpoint in JSON mode.
type Ollama struct {
	URL       string
	Model     string
	Timeout   time.Duration
	KeepAlive string
}

// OllamaOption configures the Ollama provider.
type OllamaOption func(*Ollama)

// WithOllamaURL sets the server URL.
func WithOllamaURL(url string) OllamaOption {
	return func(o *Ollama) { o.URL = url }
}

// WithOllamaModel sets the model tag.
func WithOllamaModel(model string) OllamaOption {
	return func(o *Ollama) { o.Model = model }
}

// WithOllamaTimeout bounds a single request.
func WithOllamaTimeout(timeout time.Duration) OllamaOption {
	return func(o *Ollama) { o.Timeout = timeout }
}

// WithOllamaKeepAlive sets how long the server keeps the model loaded
// between requests, e.g. "10m".
func WithOllamaKeepAlive(d string) OllamaOption {
	return func(o *Ollama) { o.KeepAlive = d }
}

// NewOllama creates an Ollama provider with local defaults.
func NewOllama(opts ...OllamaOption) *Ollama {
	o := &Ollama{
		URL:       "http://localhost:11434",
		Model:     "qwen3:30b-a3b-instruct-2507-q4_K_M",
		Timeout:   2 * time.Minute,
		KeepAlive: "10m",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ollamaRequest struct {
	Model     string             `json:"model"`
	Messages  []chatMessage      `json:"messages"`
	Stream    bool               `json:"stream"`
	Format    string             `json:"format,omitempty"`
	KeepAlive string             `json:"keep_alive,omitempty"`
	Options   map[string]float64 `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Prompt asks for a single non-streamed JSON answer at temperature 0, so
// the same document tends to get the same rewrites.
func (o *Ollama) Prompt(ctx context.Context, system, user string) (string, error) {
	req := ollamaRequest{
		Model:     o.Model,
		Format:    "json",
		KeepAlive: o.KeepAlive,
		Options:   map[string]float64{"temperature": 0},
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: user})

	var resp ollamaResponse
	hc := &http.Client{Timeout: o.Timeout}
	if err := postJSON(ctx, hc, "ollama", o.URL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
