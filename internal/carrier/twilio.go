package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// twilioDateFormat is the timestamp layout used in Twilio message resources.
const twilioDateFormat = time.RFC1123Z

// Twilio is a Client backed by the Twilio Messages REST API.
type Twilio struct {
	accountSID string
	authToken  string
	phone      string // the shared gateway number
	baseURL    string
	httpClient *http.Client
}

// TwilioOpts holds parameters for creating a Twilio client.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	Phone      string        // gateway number, E.164
	BaseURL    string        // defaults to the public API; override in tests
	Timeout    time.Duration // defaults to 30s
}

// NewTwilio creates a Twilio carrier client.
func NewTwilio(opts TwilioOpts) (*Twilio, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, fmt.Errorf("carrier: twilio credentials are required")
	}
	if opts.Phone == "" {
		return nil, fmt.Errorf("carrier: gateway phone is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Twilio{
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		phone:      opts.Phone,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Phone returns the gateway number this client sends from.
func (t *Twilio) Phone() string { return t.phone }

// Send creates one outbound message resource. No retries.
func (t *Twilio) Send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.phone)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("carrier: build send request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("carrier: send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("carrier: send to %s: status %d: %s", to, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}

// twilioMessage is the subset of the message resource the relay reads.
type twilioMessage struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Body        string `json:"body"`
	Direction   string `json:"direction"`
	DateCreated string `json:"date_created"`
}

type twilioMessagePage struct {
	Messages []twilioMessage `json:"messages"`
}

// List queries the delivery log, most recent first.
func (t *Twilio) List(ctx context.Context, filter ListFilter) ([]Leg, error) {
	query := url.Values{}
	if filter.To != "" {
		query.Set("To", filter.To)
	}
	if filter.From != "" {
		query.Set("From", filter.From)
	}
	if filter.Limit > 0 {
		query.Set("PageSize", strconv.Itoa(filter.Limit))
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json?%s",
		t.baseURL, t.accountSID, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("carrier: build list request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier: list messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("carrier: list messages: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var page twilioMessagePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("carrier: decode message page: %w", err)
	}

	legs := make([]Leg, 0, len(page.Messages))
	for _, m := range page.Messages {
		leg, err := legFromResource(m)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// legFromResource validates a raw message resource into a Leg. Required
// fields are checked here, at the store boundary, so downstream code never
// sees a half-formed leg.
func legFromResource(m twilioMessage) (Leg, error) {
	if m.From == "" || m.To == "" {
		return Leg{}, fmt.Errorf("carrier: message resource missing from/to")
	}
	created, err := time.Parse(twilioDateFormat, m.DateCreated)
	if err != nil {
		return Leg{}, fmt.Errorf("carrier: parse date_created %q: %w", m.DateCreated, err)
	}
	direction := DirectionOutbound
	if strings.HasPrefix(m.Direction, "inbound") {
		direction = DirectionInbound
	}
	return Leg{
		Direction: direction,
		From:      m.From,
		To:        m.To,
		Body:      m.Body,
		CreatedAt: created,
	}, nil
}
