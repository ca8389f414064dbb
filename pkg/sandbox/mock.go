package sandbox

import (
	"context"
	"sync"
)

// MockExecutor is a configurable Executor for tests. Results are returned in
// order; when exhausted, the last result repeats. Calls are recorded.
type MockExecutor struct {
	mu         sync.Mutex
	results    []*RunResult
	errs       []error
	snapshotID string
	snapErr    error
	calls      []*RunRequest
}

var _ Executor = (*MockExecutor)(nil)

// NewMockExecutor creates a mock that returns the given results in sequence.
func NewMockExecutor(results ...*RunResult) *MockExecutor {
	return &MockExecutor{results: results, snapshotID: "snap-1"}
}

// FailWith queues an error for the next Run call (after any queued results).
func (m *MockExecutor) FailWith(err error) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

// WithSnapshot configures the snapshot reference and error returned by Snapshot.
func (m *MockExecutor) WithSnapshot(id string, err error) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotID = id
	m.snapErr = err
	return m
}

// Run returns the next queued result or error.
func (m *MockExecutor) Run(_ context.Context, req *RunRequest) (*RunResult, error) {
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
	return &RunResult{}, nil
}

// Snapshot returns the configured snapshot reference.
func (m *MockExecutor) Snapshot(_ context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotID, m.snapErr
}

// Close implements Executor.
func (m *MockExecutor) Close(_ context.Context) error { return nil }

// Calls returns the recorded run requests.
func (m *MockExecutor) Calls() []*RunRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*RunRequest(nil), m.calls...)
}
