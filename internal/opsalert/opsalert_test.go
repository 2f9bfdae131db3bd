package opsalert

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestNotifierFansOut(t *testing.T) {
	a, b := NewMockAdapter(), NewMockAdapter()
	n := NewNotifier(NotifierOpts{Adapters: []Adapter{a, b}, Out: io.Discard})

	n.Error(context.Background(), "SMS send failed", "to Sam Smith: boom")

	for i, m := range []*MockAdapter{a, b} {
		alerts := m.Alerts()
		if len(alerts) != 1 {
			t.Fatalf("adapter %d got %d alerts, want 1", i, len(alerts))
		}
		if alerts[0].Severity != SeverityError || alerts[0].Title != "SMS send failed" {
			t.Errorf("adapter %d alert = %+v", i, alerts[0])
		}
		if alerts[0].Timestamp.IsZero() {
			t.Errorf("adapter %d alert has no timestamp", i)
		}
	}
}

func TestNotifierSurvivesAdapterFailure(t *testing.T) {
	bad, good := NewMockAdapter(), NewMockAdapter()
	bad.SendErr = errors.New("rate limited")
	n := NewNotifier(NotifierOpts{Adapters: []Adapter{bad, good}, Out: io.Discard})

	// Must not panic or stop short of the healthy adapter.
	n.Info(context.Background(), "Digest", "all quiet")

	if got := good.Alerts(); len(got) != 1 {
		t.Errorf("healthy adapter got %d alerts, want 1", len(got))
	}
}

func TestNotifierNoAdapters(t *testing.T) {
	n := NewNotifier(NotifierOpts{Out: io.Discard})
	n.Error(context.Background(), "orphaned", "no adapters configured")
	if err := n.Close(); err != nil {
		t.Errorf("Close = %v, want nil", err)
	}
}

func TestNotifierCloseClosesAll(t *testing.T) {
	a, b := NewMockAdapter(), NewMockAdapter()
	n := NewNotifier(NotifierOpts{Adapters: []Adapter{a, b}, Out: io.Discard})
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.Closed() || !b.Closed() {
		t.Error("Close should close every adapter")
	}
}

func TestSeverityColor(t *testing.T) {
	cases := map[string]string{
		SeverityInfo:    ColorInfo,
		SeverityWarning: ColorWarning,
		SeverityError:   ColorError,
		"bogus":         ColorInfo,
	}
	for sev, want := range cases {
		if got := SeverityColor(sev); got != want {
			t.Errorf("SeverityColor(%q) = %q, want %q", sev, got, want)
		}
	}
}
