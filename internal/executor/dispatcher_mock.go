package executor

import (
	"context"
	"net/http"
	"sync"

	"github.com/hanpama/odatabatch/internal/batch"
)

// MockHandler answers a single request; MockDispatcher routes requests to
// handlers in tests.
type MockHandler func(ctx context.Context, req batch.Request) (batch.Result, error)

// NewMockStatusHandler returns a MockHandler answering with status and body.
func NewMockStatusHandler(status int, body string) MockHandler {
	return func(ctx context.Context, req batch.Request) (batch.Result, error) {
		return batch.Result{StatusCode: status, Header: http.Header{}, Body: []byte(body)}, nil
	}
}

// NewMockCreatedHandler returns a MockHandler answering 201 Created with the
// given Location.
func NewMockCreatedHandler(location string) MockHandler {
	return func(ctx context.Context, req batch.Request) (batch.Result, error) {
		h := http.Header{}
		h.Set("Location", location)
		return batch.Result{StatusCode: http.StatusCreated, Header: h}, nil
	}
}

// NewMockErrorHandler returns a MockHandler that always fails with err.
func NewMockErrorHandler(err error) MockHandler {
	return func(ctx context.Context, req batch.Request) (batch.Result, error) {
		return batch.Result{}, err
	}
}

// Call records one Dispatch invocation.
type Call struct {
	Method    string
	Path      string
	ContentID string
}

// MockDispatcher implements Dispatcher with a handler registry keyed by
// "METHOD path" and a single call log. Unknown requests answer 404.
type MockDispatcher struct {
	mu       sync.Mutex
	handlers map[string]MockHandler
	calls    []Call
}

// NewMockDispatcher creates a MockDispatcher with the provided handlers.
// The handlers map keys are of the form "POST Employees".
func NewMockDispatcher(handlers map[string]MockHandler) *MockDispatcher {
	m := &MockDispatcher{handlers: make(map[string]MockHandler, len(handlers))}
	for k, v := range handlers {
		m.handlers[k] = v
	}
	return m
}

// SetHandler registers or replaces the handler for method and path.
func (m *MockDispatcher) SetHandler(method, path string, h MockHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = h
}

// Dispatch implements Dispatcher.
func (m *MockDispatcher) Dispatch(ctx context.Context, req batch.Request) (batch.Result, error) {
	m.mu.Lock()
	h := m.handlers[req.Method+" "+req.Path]
	m.calls = append(m.calls, Call{Method: req.Method, Path: req.Path, ContentID: req.ContentID})
	m.mu.Unlock()

	if h == nil {
		return batch.Result{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
	}
	return h(ctx, req)
}

// GetCalls returns a copy of the recorded calls in order.
func (m *MockDispatcher) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls (handlers remain).
func (m *MockDispatcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
