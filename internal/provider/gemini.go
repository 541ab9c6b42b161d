package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"google.golang.org/genai"
)

// Gemini is a provider for Google's Gemini API, called in JSON mode.
type Gemini struct {
	APIKey string
	Model  string

	once   sync.Once
	client *genai.Client
	err    error
}

// GeminiOption configures the Gemini provider.
type GeminiOption func(*Gemini)

// WithGeminiAPIKey sets the API key.
func WithGeminiAPIKey(key string) GeminiOption {
	return func(g *Gemini) { g.APIKey = key }
}

// WithGeminiModel sets the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) { g.Model = model }
}

// NewGemini creates a new Gemini provider. The client is created lazily on
// the first Prompt.
func NewGemini(opts ...GeminiOption) *Gemini {
	g := &Gemini{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  "gemini-2.5-flash",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gemini) connect(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		if g.APIKey == "" {
			g.err = fmt.Errorf("gemini: GEMINI_API_KEY: %w", ErrNoAPIKey)
			return
		}
		g.client, g.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.client, g.err
}

// Prompt sends a prompt to Gemini and returns the first candidate's text.
func (g *Gemini) Prompt(ctx context.Context, system, user string) (string, error) {
	cli, err := g.connect(ctx)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	resp, err := cli.Models.GenerateContent(ctx, g.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user}}}},
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: no content in response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
