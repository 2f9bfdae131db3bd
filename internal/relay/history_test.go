package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tutorbookapp/relay/internal/carrier"
)

const (
	gatewayPhone   = "+15550001111"
	responderPhone = "+15550002222"
)

// seedLegs adds n alternating legs ending with the inbound trigger message
// (newest). Legs are spaced one minute apart ending at end.
func seedLegs(mock *carrier.Mock, n int, end time.Time) {
	for i := n - 1; i >= 0; i-- {
		at := end.Add(-time.Duration(i) * time.Minute)
		if i%2 == 0 {
			mock.AddLeg(carrier.Leg{
				Direction: carrier.DirectionInbound,
				From:      responderPhone, To: gatewayPhone,
				Body: "inbound", CreatedAt: at,
			})
		} else {
			mock.AddLeg(carrier.Leg{
				Direction: carrier.DirectionOutbound,
				From:      gatewayPhone, To: responderPhone,
				Body: "outbound", CreatedAt: at,
			})
		}
	}
}

func TestFetchDropsTriggeringInbound(t *testing.T) {
	mock := carrier.NewMock()
	end := time.Now()
	seedLegs(mock, 6, end)

	f, err := NewFetcher(FetcherOpts{Client: mock, Gateway: gatewayPhone})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	legs, err := f.fetch(context.Background(), responderPhone, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, leg := range legs {
		if leg.CreatedAt.Equal(end) && leg.Direction == carrier.DirectionInbound {
			t.Error("triggering inbound leg should have been dropped")
		}
	}
	// Remaining legs are time-descending.
	for i := 1; i < len(legs); i++ {
		if legs[i].CreatedAt.After(legs[i-1].CreatedAt) {
			t.Errorf("legs not time-descending at %d", i)
		}
	}
}

func TestLegStreamWalksNewestFirst(t *testing.T) {
	mock := carrier.NewMock()
	end := time.Now()
	seedLegs(mock, 4, end)

	f, _ := NewFetcher(FetcherOpts{Client: mock, Gateway: gatewayPhone})
	s, err := newLegStream(context.Background(), f, responderPhone)
	if err != nil {
		t.Fatalf("newLegStream: %v", err)
	}

	prev := end.Add(time.Hour)
	for i := 0; i < 3; i++ {
		leg, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if leg.CreatedAt.After(prev) {
			t.Errorf("leg #%d out of order", i)
		}
		prev = leg.CreatedAt
	}
}

func TestLegStreamExhaustsWithBoundedExpansions(t *testing.T) {
	mock := carrier.NewMock()
	// Only the trigger message exists: the stream has nothing to yield.
	mock.AddLeg(carrier.Leg{
		Direction: carrier.DirectionInbound,
		From:      responderPhone, To: gatewayPhone,
		Body: "hello?", CreatedAt: time.Now(),
	})

	f, _ := NewFetcher(FetcherOpts{Client: mock, Gateway: gatewayPhone})
	s, err := newLegStream(context.Background(), f, responderPhone)
	if err != nil {
		t.Fatalf("newLegStream: %v", err)
	}

	_, err = s.Next(context.Background())
	if !errors.Is(err, errExhausted) {
		t.Fatalf("Next = %v, want errExhausted", err)
	}
	if s.expansions != maxExpansions {
		t.Errorf("expansions = %d, want %d", s.expansions, maxExpansions)
	}
}

func TestLegStreamExpandsToReachOlderLegs(t *testing.T) {
	mock := carrier.NewMock()
	end := time.Now()
	// 9 legs total; initial window of 5 per direction covers them, but a
	// denser outbound-only log forces the point: seed 8 outbound + trigger.
	mock.AddLeg(carrier.Leg{
		Direction: carrier.DirectionInbound,
		From:      responderPhone, To: gatewayPhone,
		Body: "trigger", CreatedAt: end,
	})
	for i := 1; i <= 8; i++ {
		mock.AddLeg(carrier.Leg{
			Direction: carrier.DirectionOutbound,
			From:      gatewayPhone, To: responderPhone,
			Body: "out", CreatedAt: end.Add(-time.Duration(i) * time.Minute),
		})
	}

	f, _ := NewFetcher(FetcherOpts{Client: mock, Gateway: gatewayPhone})
	s, err := newLegStream(context.Background(), f, responderPhone)
	if err != nil {
		t.Fatalf("newLegStream: %v", err)
	}

	// Drain past the initial window of 5 outbound legs.
	var n int
	for {
		_, err := s.Next(context.Background())
		if errors.Is(err, errExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		n++
	}
	if n != 8 {
		t.Errorf("stream yielded %d legs, want 8", n)
	}
	if s.expansions == 0 {
		t.Error("expected at least one window expansion")
	}
}

func TestLegStreamPropagatesCarrierError(t *testing.T) {
	mock := carrier.NewMock()
	mock.ListErr = errors.New("api down")

	f, _ := NewFetcher(FetcherOpts{Client: mock, Gateway: gatewayPhone})
	if _, err := newLegStream(context.Background(), f, responderPhone); err == nil {
		t.Fatal("expected carrier error to propagate")
	}
}
