package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Validation errors returned by Config.Validate.
var (
	ErrMissingToken       = errors.New("directline.token is required")
	ErrMissingCredentials = errors.New("twilio.account_sid and twilio.auth_token are required")
	ErrMissingOrigin      = errors.New("twilio.from is required")
	ErrInvalidPort        = errors.New("gateway.port must be between 1 and 65535")
	ErrInvalidWebhookPath = errors.New("gateway.webhook_path must start with /")
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "+15551234567" and 15551234567.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Gateway    GatewayConfig    `json:"gateway"`
	DirectLine DirectLineConfig `json:"directline"`
	Twilio     TwilioConfig     `json:"twilio"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
}

type GatewayConfig struct {
	Host        string              `env:"DLRELAY_GATEWAY_HOST"         json:"host"`
	Port        int                 `env:"DLRELAY_GATEWAY_PORT"         json:"port"`
	WebhookPath string              `env:"DLRELAY_GATEWAY_WEBHOOK_PATH" json:"webhook_path"`
	CORSOrigins FlexibleStringSlice `env:"DLRELAY_GATEWAY_CORS_ORIGINS" json:"cors_origins,omitempty"`
}

type DirectLineConfig struct {
	Token          string `env:"DLRELAY_DIRECTLINE_TOKEN"           json:"token"`
	BaseURL        string `env:"DLRELAY_DIRECTLINE_BASE_URL"        json:"base_url"`
	TimeoutSeconds int    `env:"DLRELAY_DIRECTLINE_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

// Timeout returns the per-request timeout, or zero to use the client default.
func (d DirectLineConfig) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type TwilioConfig struct {
	AccountSID       string              `env:"DLRELAY_TWILIO_ACCOUNT_SID"        json:"account_sid"`
	AuthToken        string              `env:"DLRELAY_TWILIO_AUTH_TOKEN"         json:"auth_token"`
	From             string              `env:"DLRELAY_TWILIO_FROM"               json:"from"`
	AllowFrom        FlexibleStringSlice `env:"DLRELAY_TWILIO_ALLOW_FROM"         json:"allow_from"`
	MaxMessageLength int                 `env:"DLRELAY_TWILIO_MAX_MESSAGE_LENGTH" json:"max_message_length"`
}

type TelemetryConfig struct {
	Enabled     bool   `env:"DLRELAY_TELEMETRY_ENABLED"      json:"enabled"`
	Endpoint    string `env:"DLRELAY_TELEMETRY_ENDPOINT"     json:"endpoint"`
	ServiceName string `env:"DLRELAY_TELEMETRY_SERVICE_NAME" json:"service_name"`
}

// legacyEnv maps the variable names used by existing deployments' .env files
// onto config fields. They apply only when the field is still empty.
var legacyEnv = []struct {
	name  string
	field func(*Config) *string
}{
	{"DIRECTLINE_TOKEN", func(c *Config) *string { return &c.DirectLine.Token }},
	{"TWILIO_ACCOUNT_SID", func(c *Config) *string { return &c.Twilio.AccountSID }},
	{"TWILIO_AUTH_TOKEN", func(c *Config) *string { return &c.Twilio.AuthToken }},
	{"TWILIO_WHATSAPP_NUMBER", func(c *Config) *string { return &c.Twilio.From }},
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:        "0.0.0.0",
			Port:        3003,
			WebhookPath: "/webhook",
		},
		DirectLine: DirectLineConfig{
			BaseURL:        "https://directline.botframework.com/v3/directline",
			TimeoutSeconds: 30,
		},
		Twilio: TwilioConfig{
			AllowFrom:        FlexibleStringSlice{},
			MaxMessageLength: 1600,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "dlrelay",
		},
	}
}

// ReadConfig reads path onto the defaults without consulting the
// environment. A missing file yields the defaults. Use it when the result is
// written back to disk.
func ReadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfig reads path, then overlays environment variables. A missing file
// yields the defaults plus the environment.
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	applyLegacyEnv(cfg)

	return cfg, nil
}

func applyLegacyEnv(cfg *Config) {
	for _, le := range legacyEnv {
		field := le.field(cfg)
		if *field != "" {
			continue
		}
		if v, ok := os.LookupEnv(le.name); ok {
			*field = v
		}
	}
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the settings the gateway cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DirectLine.Token == "" {
		errs = append(errs, ErrMissingToken)
	}
	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
		errs = append(errs, ErrMissingCredentials)
	}
	if c.Twilio.From == "" {
		errs = append(errs, ErrMissingOrigin)
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if !strings.HasPrefix(c.Gateway.WebhookPath, "/") {
		errs = append(errs, ErrInvalidWebhookPath)
	}
	return errors.Join(errs...)
}

// ValidateBackend checks only the Direct Line settings, for commands that
// never reach the messaging channel.
func (c *Config) ValidateBackend() error {
	if c.DirectLine.Token == "" {
		return ErrMissingToken
	}
	return nil
}
