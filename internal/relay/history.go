package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tutorbookapp/relay/internal/carrier"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultWindow is the initial per-direction history depth.
	defaultWindow = 5
	// maxExpansions bounds how many times the window may grow before the
	// correspondent is declared unknown. The delivery log is effectively
	// unbounded; without a cap a noisy history would be re-queried forever.
	maxExpansions = 5
)

// errExhausted signals that the history stream ran out of legs within the
// expansion budget. Callers treat it as "correspondent unknown", not as an
// infrastructure failure.
var errExhausted = errors.New("relay: history exhausted")

// Fetcher reads merged inbound/outbound history between a responder and
// the gateway number from the carrier delivery log.
type Fetcher struct {
	client  carrier.Client
	gateway string
}

// FetcherOpts holds parameters for creating a Fetcher.
type FetcherOpts struct {
	Client  carrier.Client
	Gateway string // shared gateway number, E.164
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOpts) (*Fetcher, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("relay: fetcher: carrier client is required")
	}
	if opts.Gateway == "" {
		return nil, fmt.Errorf("relay: fetcher: gateway phone is required")
	}
	return &Fetcher{client: opts.Client, gateway: opts.Gateway}, nil
}

// fetch returns the merged, time-descending history between responderPhone
// and the gateway, window legs deep per direction. The two delivery-log
// queries are independent reads and run concurrently. The newest inbound
// leg is dropped: it is the message that triggered the current webhook
// call, already present in the carrier log.
func (f *Fetcher) fetch(ctx context.Context, responderPhone string, window int) ([]carrier.Leg, error) {
	var inbound, outbound []carrier.Leg

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		legs, err := f.client.List(gctx, carrier.ListFilter{
			To:    f.gateway,
			From:  responderPhone,
			Limit: window + 1, // +1 for the triggering message
		})
		if err != nil {
			return fmt.Errorf("relay: fetch inbound history: %w", err)
		}
		inbound = legs
		return nil
	})
	g.Go(func() error {
		legs, err := f.client.List(gctx, carrier.ListFilter{
			To:    responderPhone,
			From:  f.gateway,
			Limit: window,
		})
		if err != nil {
			return fmt.Errorf("relay: fetch outbound history: %w", err)
		}
		outbound = legs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(inbound) > 0 {
		inbound = inbound[1:]
	}
	return mergeLegs(inbound, outbound), nil
}

// mergeLegs combines two time-descending lists into one, newest first.
func mergeLegs(a, b []carrier.Leg) []carrier.Leg {
	merged := make([]carrier.Leg, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

// legStream walks history legs newest-to-oldest, growing the fetch window
// lazily when the caller needs older legs than the current snapshot holds.
// Expansion is bounded by maxExpansions.
type legStream struct {
	fetcher        *Fetcher
	responderPhone string

	legs       []carrier.Leg
	pos        int
	window     int
	expansions int
}

// newLegStream fetches the initial window and returns a stream over it.
func newLegStream(ctx context.Context, f *Fetcher, responderPhone string) (*legStream, error) {
	s := &legStream{
		fetcher:        f,
		responderPhone: responderPhone,
		window:         defaultWindow,
	}
	legs, err := f.fetch(ctx, responderPhone, s.window)
	if err != nil {
		return nil, err
	}
	s.legs = legs
	return s, nil
}

// Next returns the next-older leg, refetching with a grown window when the
// current snapshot is spent. Returns errExhausted once the expansion
// budget is used up.
func (s *legStream) Next(ctx context.Context) (carrier.Leg, error) {
	for s.pos >= len(s.legs) {
		if s.expansions >= maxExpansions {
			return carrier.Leg{}, errExhausted
		}
		s.expansions++
		s.window++
		legs, err := s.fetcher.fetch(ctx, s.responderPhone, s.window)
		if err != nil {
			return carrier.Leg{}, err
		}
		// The deeper fetch re-reads the same log ordering, so already
		// examined positions keep their indices; a refetch that grows
		// nothing loops back here and spends another expansion.
		s.legs = legs
	}
	leg := s.legs[s.pos]
	s.pos++
	return leg, nil
}
