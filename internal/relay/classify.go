// Package relay implements the SMS relay router: it reconstructs which
// conversation an inbound reply belongs to from the carrier delivery log,
// the chat store, and timing heuristics, then decides whom to forward it to.
package relay

import (
	"fmt"
	"regexp"
	"strings"
)

// Class labels the shape of a delivery-log message body.
type Class string

const (
	// ClassErrorNotice is the canned failure text sent when a previous
	// relay attempt failed.
	ClassErrorNotice Class = "error_notice"
	// ClassWhoToRelay is a previously sent "(A) or (B)?" disambiguation
	// prompt.
	ClassWhoToRelay Class = "who_to_relay"
	// ClassForwarded is a forwarding confirmation.
	ClassForwarded Class = "forwarded"
	// ClassOperatorRelay is an "Operator says: ..." system relay.
	ClassOperatorRelay Class = "operator_relay"
	// ClassRelayedEnvelope is a "<Name> says: ..." message produced by a
	// prior relay. Terminal: it seeds correlation.
	ClassRelayedEnvelope Class = "relayed_envelope"
	// ClassUnknown is anything else: likely an automatic notification
	// from the gateway number, or raw user text. Terminal.
	ClassUnknown Class = "unknown"
)

// Noise reports whether a message of this class is transport noise to be
// skipped in favor of the next-older leg.
func (c Class) Noise() bool {
	switch c {
	case ClassErrorNotice, ClassWhoToRelay, ClassForwarded, ClassOperatorRelay:
		return true
	}
	return false
}

var (
	whoToRelayRe = regexp.MustCompile(`^Do you want to forward your message to [\w\s]* \(A\) or [\w\s]* \(B\)\?$`)
	forwardedRe  = regexp.MustCompile(`^Your message has been forwarded to [\w\s]*\. (He|She|They)'ll get back to you as soon as possible\.$`)
	operatorRe   = regexp.MustCompile(`^Operator says: .*$`)
	envelopeRe   = regexp.MustCompile(`^[\w\s]* says: .*$`)
)

// Classifier pattern-matches message bodies against the canned templates
// this service itself produces.
type Classifier struct {
	errNotice string
}

// NewClassifier creates a Classifier. operatorPhone appears in the canned
// error notice and must match what the fallback webhook sends.
func NewClassifier(operatorPhone string) *Classifier {
	return &Classifier{errNotice: ErrorNotice(operatorPhone)}
}

// Classify labels a single message body. Exactly one class is returned;
// the operator pattern is checked before the generic envelope pattern it
// would otherwise also match.
func (c *Classifier) Classify(body string) Class {
	switch {
	case body == c.errNotice:
		return ClassErrorNotice
	case whoToRelayRe.MatchString(body):
		return ClassWhoToRelay
	case forwardedRe.MatchString(body):
		return ClassForwarded
	case operatorRe.MatchString(body):
		return ClassOperatorRelay
	case envelopeRe.MatchString(body):
		return ClassRelayedEnvelope
	}
	return ClassUnknown
}

// ErrorNotice renders the canned routing-failure text.
func ErrorNotice(operatorPhone string) string {
	return "Sorry, Tutorbook encountered an error and couldn't forward " +
		"your message. Contact " + operatorPhone + " to get this resolved."
}

// AskPrompt renders the "(A) or (B)?" disambiguation prompt.
func AskPrompt(supervisorName, correspondentName string) string {
	return fmt.Sprintf("Do you want to forward your message to %s (A) or %s (B)?",
		supervisorName, correspondentName)
}

// ForwardedConfirmation renders the forwarding confirmation for a target.
func ForwardedConfirmation(name, pronoun string) string {
	return fmt.Sprintf("Your message has been forwarded to %s. %s'll get back to you as soon as possible.",
		name, pronoun)
}

// Envelope renders the relayed-message form mirrored into chat SMS echoes.
func Envelope(firstName, body string) string {
	return firstName + " says: " + body
}

// EnvelopeName extracts the sender name embedded in a relayed envelope.
// Returns "" when the body is not an envelope.
func EnvelopeName(body string) string {
	i := strings.Index(body, " says: ")
	if i < 0 || !envelopeRe.MatchString(body) {
		return ""
	}
	return body[:i]
}
