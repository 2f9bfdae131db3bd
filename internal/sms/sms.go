// Package sms sends individual outbound SMS messages with opt-out rules, a
// global kill switch, and fallback to in-app notification when a send
// cannot happen or fails.
package sms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tutorbookapp/relay/internal/carrier"
	"github.com/tutorbookapp/relay/internal/chat"
	"github.com/tutorbookapp/relay/internal/directory"
	"github.com/tutorbookapp/relay/internal/models"
)

// ValidationError reports a precondition failure: the message was never
// attempted against the carrier.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "sms: validation: " + e.Reason
}

// IsValidation reports whether err is a precondition failure rather than a
// carrier or infrastructure error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Alerter receives operator alerts for failed sends. Optional.
type Alerter interface {
	Error(ctx context.Context, title, body string)
}

// Message describes one outbound SMS.
type Message struct {
	Recipient *models.User
	// Sender is who the message is attributed to in fallback
	// notifications. Defaults to the supervisor of the recipient's
	// location.
	Sender *models.User
	Body   string
	// NotifyOnSuccess posts an in-app "sent" note after a successful
	// carrier send.
	NotifyOnSuccess bool
	// NoFailureNotice suppresses the default in-app notification posted
	// when the send is rejected or fails.
	NoFailureNotice bool
}

// Dispatcher validates and sends outbound SMS. At-most-once per Send call:
// the carrier is never retried; the in-app notification is the durable
// record of a failure.
type Dispatcher struct {
	client   carrier.Client
	dir      *directory.Directory
	poster   *chat.Poster
	alerter  Alerter
	skipAll  bool
	testMode bool
	out      io.Writer
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Client    carrier.Client
	Directory *directory.Directory
	Poster    *chat.Poster
	Alerter   Alerter // optional
	SkipAll   bool    // global kill switch (SKIP_SMS)
	TestMode  bool    // disables real sends in test deployments
	Out       io.Writer // defaults to os.Stdout
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("sms: dispatcher: carrier client is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("sms: dispatcher: directory is required")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("sms: dispatcher: poster is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Dispatcher{
		client:   opts.Client,
		dir:      opts.Directory,
		poster:   opts.Poster,
		alerter:  opts.Alerter,
		skipAll:  opts.SkipAll,
		testMode: opts.TestMode,
		out:      out,
	}, nil
}

// Send validates and transmits one SMS. Precondition failures return a
// *ValidationError; carrier failures return the carrier error. Both paths
// post the in-app fallback notification unless suppressed.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if msg.Sender == nil && msg.Recipient != nil {
		sender, err := d.dir.SupervisorFor(ctx, msg.Recipient.Location)
		if err != nil {
			return fmt.Errorf("sms: resolve default sender: %w", err)
		}
		msg.Sender = sender
	}

	if verr := d.validate(ctx, msg); verr != nil {
		log.Printf("sms: not sending to %s: %s", describe(msg.Recipient), verr.Reason)
		if !msg.NoFailureNotice {
			d.postNotice(ctx, msg, "Could not send")
		}
		return verr
	}

	fmt.Fprintf(d.out, "sms: sending to %s\n", describe(msg.Recipient))
	if err := d.client.Send(ctx, msg.Recipient.Phone, msg.Body); err != nil {
		log.Printf("sms: send to %s failed: %v", describe(msg.Recipient), err)
		if d.alerter != nil {
			d.alerter.Error(ctx, "SMS send failed",
				fmt.Sprintf("to %s: %v", describe(msg.Recipient), err))
		}
		if !msg.NoFailureNotice {
			d.postNotice(ctx, msg, "Could not send")
		}
		return fmt.Errorf("sms: send to %s: %w", describe(msg.Recipient), err)
	}

	if msg.NotifyOnSuccess {
		d.postNotice(ctx, msg, "Sent")
	}
	return nil
}

// validate checks every send precondition. Order matters only for the
// error text; any single violation blocks the send.
func (d *Dispatcher) validate(ctx context.Context, msg Message) *ValidationError {
	if msg.Recipient == nil {
		return &ValidationError{Reason: "no recipient"}
	}
	excluded, err := d.dir.LocationExcluded(ctx, msg.Recipient.Location)
	if err != nil {
		// A policy we cannot check is a policy we must assume blocks.
		return &ValidationError{Reason: "location policy check failed: " + err.Error()}
	}
	if excluded {
		return &ValidationError{Reason: "recipient location excluded from SMS"}
	}
	if msg.Recipient.Phone == "" {
		return &ValidationError{Reason: "recipient has no phone number"}
	}
	if msg.Body == "" {
		return &ValidationError{Reason: "empty message body"}
	}
	if d.testMode {
		return &ValidationError{Reason: "test mode is enabled"}
	}
	if d.skipAll {
		return &ValidationError{Reason: "SKIP_SMS is set"}
	}
	return nil
}

// postNotice writes one fallback in-app notification into the chat shared
// by recipient and sender. Best-effort: a notice that cannot be written is
// logged, never escalated, so a failed send cannot also fail the inbound
// call.
func (d *Dispatcher) postNotice(ctx context.Context, msg Message, verb string) {
	var to []*models.User
	for _, u := range []*models.User{msg.Recipient, msg.Sender} {
		if u != nil {
			to = append(to, u)
		}
	}
	if len(to) == 0 {
		return
	}
	text := fmt.Sprintf("%s SMS message to %s:\n%s", verb, describe(msg.Recipient), msg.Body)
	if _, err := d.poster.Post(ctx, chat.PostOpts{To: to, Text: text}); err != nil {
		log.Printf("sms: post fallback notice: %v", err)
	}
}

// describe renders a recipient for logs and notices.
func describe(u *models.User) string {
	if u == nil {
		return "<nobody>"
	}
	if u.Phone == "" {
		return u.Name
	}
	return u.Name + " (" + u.Phone + ")"
}
