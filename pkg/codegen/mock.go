package codegen

import (
	"context"
	"sync"
)

// MockGenerator is a configurable Generator for tests. Results are returned
// in order; when exhausted, the last result repeats. Calls are recorded.
type MockGenerator struct {
	mu      sync.Mutex
	results []*GenerationResult
	errs    []error
	calls   []*GenerationRequest
}

var _ Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock that returns the given results in sequence.
func NewMockGenerator(results ...*GenerationResult) *MockGenerator {
	return &MockGenerator{results: results}
}

// FailWith queues an error for the next call (after any queued results).
func (m *MockGenerator) FailWith(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

// Generate returns the next queued result or error.
func (m *MockGenerator) Generate(_ context.Context, req *GenerationRequest) (*GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	call := len(m.calls) - 1

	if call < len(m.results) {
		return m.results[call], nil
	}
	errIdx := call - len(m.results)
	if errIdx < len(m.errs) {
		return nil, m.errs[errIdx]
	}
	if len(m.results) > 0 {
		return m.results[len(m.results)-1], nil
	}
	return nil, NewError(ErrorTypeUnknown, "mock has no results", false, nil)
}

// Calls returns the recorded generation requests.
func (m *MockGenerator) Calls() []*GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*GenerationRequest(nil), m.calls...)
}
