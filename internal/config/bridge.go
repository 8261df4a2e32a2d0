package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
)

const (
	DefaultHistoryLimit    = 50
	MinHistoryLimit        = 10
	DefaultPollInterval    = 3 * time.Second
	DefaultPollMaxAttempts = 40
	DefaultRequestTimeout  = 15 * time.Second
	DefaultBackground      = 15 * time.Second
	DefaultLivenessEvery   = 4
)

// Duration is a time.Duration stored as a string ("3s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// BridgeConfig holds the connection parameters of one bridge session,
// persisted as ~/.wpp/sessions/<name>/bridge.toml.
type BridgeConfig struct {
	SessionName        string   `toml:"session_name" validate:"required,max=64"`
	ServerURL          string   `toml:"server_url" validate:"omitempty,url"`
	SecretKey          string   `toml:"secret_key"`
	AuthToken          string   `toml:"auth_token"`
	WebhookURL         string   `toml:"webhook_url" validate:"omitempty,url"`
	HistoryLimit       int      `toml:"history_limit" validate:"gte=10"`
	PollInterval       Duration `toml:"poll_interval"`
	PollMaxAttempts    int      `toml:"poll_max_attempts" validate:"gte=1"`
	RequestTimeout     Duration `toml:"request_timeout"`
	BackgroundInterval Duration `toml:"background_interval"`
	LivenessEvery      int      `toml:"liveness_every" validate:"gte=0"`
	WebhookListen      string   `toml:"webhook_listen"`
}

// DefaultBridge returns a config with every tunable at its default.
func DefaultBridge(sessionName string) BridgeConfig {
	return BridgeConfig{
		SessionName:        sessionName,
		HistoryLimit:       DefaultHistoryLimit,
		PollInterval:       Duration{DefaultPollInterval},
		PollMaxAttempts:    DefaultPollMaxAttempts,
		RequestTimeout:     Duration{DefaultRequestTimeout},
		BackgroundInterval: Duration{DefaultBackground},
		LivenessEvery:      DefaultLivenessEvery,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints. Violations are bridge.ErrConfiguration.
func (c BridgeConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.PollInterval.Duration <= 0 {
			return bridge.ConfigError("poll_interval must be positive")
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return bridge.ConfigError("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "url":
			msgs = append(msgs, fe.Field()+" must be an absolute URL")
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return bridge.ConfigError("%s", strings.Join(msgs, "; "))
}

// RequireCredentials fails unless the server URL, the secret key and the
// auth token are all set.
func (c BridgeConfig) RequireCredentials() error {
	var missing []string
	if c.ServerURL == "" {
		missing = append(missing, "server_url")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret_key")
	}
	if c.AuthToken == "" {
		missing = append(missing, "auth_token")
	}
	if len(missing) > 0 {
		return bridge.ConfigError("%s not configured; set with `wppctl config set <key> <value>` or generate a token with `wppctl token`",
			strings.Join(missing, " and "))
	}
	return nil
}

// Endpoint converts the config into probe connection data.
func (c BridgeConfig) Endpoint() bridge.Endpoint {
	return bridge.Endpoint{
		BaseURL: c.ServerURL,
		Session: c.SessionName,
		Secret:  c.SecretKey,
		Token:   c.AuthToken,
		Timeout: c.RequestTimeout.Duration,
	}
}

// ConnectionChanged reports whether b differs from c in a parameter that
// invalidates the current pairing.
func (c BridgeConfig) ConnectionChanged(b BridgeConfig) bool {
	return c.ServerURL != b.ServerURL ||
		c.SessionName != b.SessionName ||
		c.SecretKey != b.SecretKey ||
		c.AuthToken != b.AuthToken
}

// LoadBridge reads a bridge config, filling unset tunables with defaults.
func LoadBridge(path, sessionName string) (BridgeConfig, error) {
	cfg := DefaultBridge(sessionName)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	if cfg.SessionName == "" {
		cfg.SessionName = sessionName
	}
	return cfg, nil
}

// SaveBridge writes a bridge config with 0600 permissions.
func SaveBridge(path string, cfg BridgeConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
