package provider

import (
	"context"
	"sync"
)

// Mock is a mock provider for testing.
type Mock struct {
	Response string
	Err      error
	Handler  func(ctx context.Context, system, user string) (string, error)

	mu    sync.Mutex
	calls int
}

// NewMock creates a new mock provider with a fixed response.
func NewMock(response string) *Mock {
	return &Mock{Response: response}
}

// NewMockHandler creates a mock provider with a custom handler.
func NewMockHandler(handler func(ctx context.Context, system, user string) (string, error)) *Mock {
	return &Mock{Handler: handler}
}

// Prompt returns the mock response or calls the handler.
func (m *Mock) Prompt(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Handler != nil {
		return m.Handler(ctx, system, user)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Calls returns how many times Prompt was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
