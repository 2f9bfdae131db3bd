package slack

import (
	"context"
	"errors"
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/tutorbookapp/relay/internal/opsalert"
)

// mockClient records PostMessageContext calls.
type mockClient struct {
	calls   int
	channel string
	err     error
	errOnce bool // when set, fail only the first call
}

func (m *mockClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	if m.err != nil {
		err := m.err
		if m.errOnce {
			m.err = nil
		}
		return "", "", err
	}
	return channelID, "123.456", nil
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(AdapterOpts{ChannelID: "C123"}); err == nil {
		t.Error("New should require a bot token")
	}
	if _, err := New(AdapterOpts{BotToken: "xoxb-x"}); err == nil {
		t.Error("New should require a channel id")
	}
}

func TestSendPostsToChannel(t *testing.T) {
	mock := &mockClient{}
	a, err := New(AdapterOpts{ChannelID: "C123", Client: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Send(context.Background(), opsalert.Alert{
		Severity: opsalert.SeverityError,
		Title:    "SMS send failed",
		Body:     "to Sam Smith (+15550006666): boom",
		Fields:   []opsalert.Field{{Name: "To", Value: "Sam Smith", Short: true}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if mock.calls != 1 || mock.channel != "C123" {
		t.Errorf("calls = %d channel = %q, want 1 call to C123", mock.calls, mock.channel)
	}
}

func TestSendRetriesRateLimit(t *testing.T) {
	mock := &mockClient{
		err:     &slackapi.RateLimitedError{RetryAfter: 0},
		errOnce: true,
	}
	a, err := New(AdapterOpts{ChannelID: "C123", Client: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = a.Send(context.Background(), opsalert.Alert{Title: "retry me"})
	if err != nil {
		t.Fatalf("Send after rate limit: %v", err)
	}
	if mock.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", mock.calls)
	}
}

func TestSendDoesNotRetryOtherErrors(t *testing.T) {
	mock := &mockClient{err: errors.New("channel_not_found")}
	a, err := New(AdapterOpts{ChannelID: "C123", Client: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Send(context.Background(), opsalert.Alert{Title: "x"}); err == nil {
		t.Fatal("Send should propagate non-rate-limit errors")
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", mock.calls)
	}
}
