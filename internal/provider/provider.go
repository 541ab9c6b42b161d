// Package provider defines LLM provider interfaces and implementations.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoAPIKey is returned by hosted providers called without credentials.
var ErrNoAPIKey = errors.New("api key not set")

// Provider is the interface for LLM providers.
type Provider interface {
	// Prompt sends a prompt to the LLM and returns the response text.
	// Cancelling ctx abandons the request.
	Prompt(ctx context.Context, system, user string) (string, error)
}

// StatusError reports a non-2xx answer from a provider endpoint.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.Code, e.Body)
}

// New creates a provider by name. Empty model keeps the provider default.
func New(name, model, url string) (Provider, error) {
	switch name {
	case "ollama", "":
		opts := []OllamaOption{}
		if model != "" {
			opts = append(opts, WithOllamaModel(model))
		}
		if url != "" {
			opts = append(opts, WithOllamaURL(url))
		}
		return NewOllama(opts...), nil
	case "openrouter":
		opts := []OpenRouterOption{}
		if model != "" {
			opts = append(opts, WithOpenRouterModel(model))
		}
		if url != "" {
			opts = append(opts, WithOpenRouterURL(url))
		}
		return NewOpenRouter(opts...), nil
	case "anthropic":
		opts := []AnthropicOption{}
		if model != "" {
			opts = append(opts, WithAnthropicModel(model))
		}
		if url != "" {
			opts = append(opts, WithAnthropicURL(url))
		}
		return NewAnthropic(opts...), nil
	case "gemini":
		opts := []GeminiOption{}
		if model != "" {
			opts = append(opts, WithGeminiModel(model))
		}
		return NewGemini(opts...), nil
	case "mock":
		return NewMock(""), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// chatMessage is the role/content pair shared by the chat-style APIs.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// postJSON sends in as JSON to url and decodes a 200 answer into out.
// Other status codes become a *StatusError carrying the start of the body.
func postJSON(ctx context.Context, hc *http.Client, name, url string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: name, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", name, err)
	}
	return nil
}
