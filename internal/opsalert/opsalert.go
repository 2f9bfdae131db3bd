// Package opsalert pushes operator alerts (failed sends, routing errors,
// daily digests) to chat platforms.
package opsalert

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Color constants for alert severity.
const (
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Severity levels for alerts.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// SeverityColor maps a severity string to a sidebar color.
func SeverityColor(severity string) string {
	switch severity {
	case SeverityWarning:
		return ColorWarning
	case SeverityError:
		return ColorError
	}
	return ColorInfo
}

// Alert is one operator notification.
type Alert struct {
	Severity  string
	Title     string
	Body      string
	Fields    []Field
	Timestamp time.Time
}

// Field is a key-value pair displayed alongside an alert.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Adapter is the interface platform-specific implementations must satisfy.
// Alerts flow one way, service to operator; adapters never listen.
type Adapter interface {
	// Send delivers an alert to the platform.
	Send(ctx context.Context, alert Alert) error

	// Close releases the adapter's connection.
	Close() error
}

// Notifier fans one alert out to every configured adapter. A platform that
// rejects an alert is logged and skipped; alerting must never take the
// relay down with it.
type Notifier struct {
	adapters []Adapter
	out      io.Writer
}

// NotifierOpts holds parameters for creating a Notifier.
type NotifierOpts struct {
	Adapters []Adapter
	Out      io.Writer // defaults to os.Stdout
}

// NewNotifier creates a Notifier. Zero adapters is valid: alerts are then
// logged locally only.
func NewNotifier(opts NotifierOpts) *Notifier {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Notifier{adapters: opts.Adapters, out: out}
}

// Notify delivers one alert to all adapters.
func (n *Notifier) Notify(ctx context.Context, alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	fmt.Fprintf(n.out, "opsalert: [%s] %s\n", alert.Severity, alert.Title)
	for _, a := range n.adapters {
		if err := a.Send(ctx, alert); err != nil {
			log.Printf("opsalert: deliver %q: %v", alert.Title, err)
		}
	}
}

// Error sends an error-severity alert. Satisfies the dispatcher's Alerter.
func (n *Notifier) Error(ctx context.Context, title, body string) {
	n.Notify(ctx, Alert{Severity: SeverityError, Title: title, Body: body})
}

// Info sends an info-severity alert.
func (n *Notifier) Info(ctx context.Context, title, body string) {
	n.Notify(ctx, Alert{Severity: SeverityInfo, Title: title, Body: body})
}

// Close closes all adapters, returning the first error encountered.
func (n *Notifier) Close() error {
	var first error
	for _, a := range n.adapters {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
