package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
)

// MockTransport is an in-memory Transport for tests. Responses are
// registered per path; unregistered paths return an error.
type MockTransport struct {
	mu        sync.Mutex
	responses map[string]any
	errs      map[string]error
	calls     []MockCall
}

// MockCall records one request made through the mock.
type MockCall struct {
	Method string
	Path   string
	Query  url.Values
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[string]any),
		errs:      make(map[string]error),
	}
}

// SetResponse registers the value returned for a path.
func (m *MockTransport) SetResponse(path string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = value
}

// SetError makes requests to path fail with err.
func (m *MockTransport) SetError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[path] = err
}

// Calls returns a copy of the recorded calls.
func (m *MockTransport) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// GetJSON implements Transport.
func (m *MockTransport) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return m.serve(ctx, "GET", path, query, out)
}

// PostJSON implements Transport.
func (m *MockTransport) PostJSON(ctx context.Context, path string, payload any, out any) error {
	return m.serve(ctx, "POST", path, nil, out)
}

func (m *MockTransport) serve(ctx context.Context, method, path string, query url.Values, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Path: path, Query: query})
	err, hasErr := m.errs[path]
	value, hasValue := m.responses[path]
	m.mu.Unlock()

	if hasErr {
		return err
	}
	if !hasValue {
		return fmt.Errorf("mock transport: no response for %s", path)
	}
	if out == nil {
		return nil
	}

	// Round-trip through JSON so the mock exercises the same decoding
	// path as the real client.
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal mock response: %w", err)
	}
	return json.Unmarshal(data, out)
}
