// Package config provides YAML-based configuration loading for the relay
// service.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration, loaded from relay.yaml.
// Secrets and operational kill switches may be overridden by environment
// variables so deployments never have to write them to disk.
type Config struct {
	Twilio  TwilioConfig  `yaml:"twilio"`
	DB      DBConfig      `yaml:"db"`
	Redis   RedisConfig   `yaml:"redis"`
	Webhook WebhookConfig `yaml:"webhook"`
	Routing RoutingConfig `yaml:"routing"`
	Alerts  AlertsConfig  `yaml:"alerts"`

	// SkipSMS is the global kill switch: when set, no SMS leaves the
	// service and every send falls back to the in-app notification path.
	SkipSMS bool `yaml:"skip_sms"`
	// TestMode disables real carrier sends for test deployments.
	TestMode bool `yaml:"test_mode"`
}

// TwilioConfig holds carrier credentials and the shared gateway number.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	// Phone is the single shared gateway number all relayed SMS flow
	// through, E.164.
	Phone string `yaml:"phone"`
	// Operator is the human-reachable number quoted in the canned error
	// message.
	Operator string `yaml:"operator"`
}

// DBConfig holds MySQL connection settings for the application store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RedisConfig holds settings for the session prompt-gate store. Optional:
// when Addr is empty the webhook server uses an in-process gate instead.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WebhookConfig holds HTTP server settings.
type WebhookConfig struct {
	Port          int    `yaml:"port"`
	SessionTTLMin int    `yaml:"session_ttl_min"` // prompt-gate session lifetime
	CookieName    string `yaml:"cookie_name"`
}

// RoutingConfig holds routing policy knobs.
type RoutingConfig struct {
	// DefaultLocation is used to find a supervisor when the originating
	// party's location is unknown.
	DefaultLocation string `yaml:"default_location"`
	// ExcludedLocations lists locations whose users must never receive SMS.
	ExcludedLocations []string `yaml:"excluded_locations"`
}

// AlertsConfig configures operator alert delivery and the daily digest.
type AlertsConfig struct {
	SlackToken     string `yaml:"slack_token"`
	SlackChannel   string `yaml:"slack_channel"`
	DiscordToken   string `yaml:"discord_token"`
	DiscordChannel string `yaml:"discord_channel"`
	// DigestCron is a 5-field cron expression; empty disables the digest.
	DigestCron string `yaml:"digest_cron"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the parsed config.
func (c *Config) applyEnv() {
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.Twilio.AuthToken = v
	}
	if v := os.Getenv("SKIP_SMS"); v != "" {
		c.SkipSMS = isTruthy(v)
	}
	if v := os.Getenv("RELAY_TEST_MODE"); v != "" {
		c.TestMode = isTruthy(v)
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Database == "" {
		c.DB.Database = "tutorbook"
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.Webhook.Port == 0 {
		c.Webhook.Port = 8080
	}
	if c.Webhook.SessionTTLMin == 0 {
		c.Webhook.SessionTTLMin = 30
	}
	if c.Webhook.CookieName == "" {
		c.Webhook.CookieName = "relay_sid"
	}
	if c.Routing.DefaultLocation == "" {
		c.Routing.DefaultLocation = "Any"
	}
	if c.Twilio.Operator == "" {
		c.Twilio.Operator = "+16508612723"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Twilio.AccountSID == "" {
		errs = append(errs, "twilio.account_sid is required")
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, "twilio.auth_token is required")
	}
	if c.Twilio.Phone == "" {
		errs = append(errs, "twilio.phone is required")
	}
	if c.Twilio.Phone != "" && !strings.HasPrefix(c.Twilio.Phone, "+") {
		errs = append(errs, "twilio.phone must be E.164 (leading +)")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
