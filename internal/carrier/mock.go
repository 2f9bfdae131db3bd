package carrier

import (
	"context"
	"sync"
)

// SentMessage records one Send call on a Mock.
type SentMessage struct {
	To   string
	Body string
}

// Mock is an in-memory Client for tests. List serves canned legs filtered
// the same way the real delivery log would filter them.
type Mock struct {
	mu      sync.Mutex
	legs    []Leg
	sent    []SentMessage
	SendErr error // returned by Send when non-nil
	ListErr error // returned by List when non-nil
}

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{}
}

// AddLeg appends a leg to the mock delivery log.
func (m *Mock) AddLeg(leg Leg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legs = append(m.legs, leg)
}

// Sent returns a copy of all recorded sends.
func (m *Mock) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Send records the message, or fails with SendErr.
func (m *Mock) Send(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// List returns canned legs matching the filter, most recent first.
func (m *Mock) List(ctx context.Context, filter ListFilter) ([]Leg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var out []Leg
	for _, leg := range m.legs {
		if filter.To != "" && leg.To != filter.To {
			continue
		}
		if filter.From != "" && leg.From != filter.From {
			continue
		}
		out = append(out, leg)
	}
	// Most recent first, stable for equal timestamps.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
