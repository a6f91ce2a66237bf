package llmclient

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a deterministic in-memory Provider for tests and for the
// cmd/swarm demo entry point, so the swarm can run end to end without a real
// API key.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responder func(Request) (string, error)
	calls     int
}

// NewMockProvider builds a MockProvider that always answers with responder.
// A nil responder returns a canned "// generated by <name>" stub.
func NewMockProvider(name string, responder func(Request) (string, error)) *MockProvider {
	return &MockProvider{name: name, responder: responder}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Complete(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.responder != nil {
		return m.responder(req)
	}
	return fmt.Sprintf("// generated by %s\n// prompt: %s\n", m.name, req.Prompt), nil
}

// Calls reports how many times Complete has been invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
