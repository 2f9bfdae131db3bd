package opsalert

import (
	"context"
	"sync"
)

// MockAdapter records alerts for tests.
type MockAdapter struct {
	mu      sync.Mutex
	alerts  []Alert
	closed  bool
	SendErr error // returned by Send when non-nil
}

// NewMockAdapter creates an empty MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// Send records the alert, or fails with SendErr.
func (m *MockAdapter) Send(ctx context.Context, alert Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

// Close marks the adapter closed.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Alerts returns a copy of all recorded alerts.
func (m *MockAdapter) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Closed reports whether Close was called.
func (m *MockAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
