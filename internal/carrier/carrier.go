// Package carrier talks to the SMS carrier: sending individual messages
// through the shared gateway number and reading the carrier's delivery log.
package carrier

import (
	"context"
	"time"
)

// Leg directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Leg is one physical SMS transmission as recorded by the carrier's
// delivery log. Legs are immutable; the relay never stores them.
type Leg struct {
	Direction string
	From      string
	To        string
	Body      string
	CreatedAt time.Time
}

// ListFilter narrows a delivery-log query. Zero fields are omitted from the
// carrier request.
type ListFilter struct {
	To    string
	From  string
	Limit int
}

// Client is the carrier surface the relay depends on. Implemented by the
// Twilio REST client in production and by Mock in tests.
type Client interface {
	// Send transmits one SMS from the gateway number. At-most-once: the
	// client never retries a failed create.
	Send(ctx context.Context, to, body string) error

	// List returns delivery-log legs matching the filter, most recent
	// first.
	List(ctx context.Context, filter ListFilter) ([]Leg, error)
}
