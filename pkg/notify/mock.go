package notify

import (
	"context"
	"sync"
)

// MockNotifier records sent notifications for assertions in tests.
type MockNotifier struct {
	mu     sync.Mutex
	events []SentEvent
	err    error
}

// SentEvent is one recorded Send call.
type SentEvent struct {
	Event string
	Data  map[string]any
}

var _ Notifier = (*MockNotifier)(nil)

// NewMockNotifier creates an empty recording notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// FailWith makes every subsequent Send return err.
func (m *MockNotifier) FailWith(err error) *MockNotifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Send records the event.
func (m *MockNotifier) Send(_ context.Context, event string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, SentEvent{Event: event, Data: data})
	return m.err
}

// Events returns the recorded sends.
func (m *MockNotifier) Events() []SentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEvent(nil), m.events...)
}
