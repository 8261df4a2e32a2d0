package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides applied on top of bridge.toml.
const (
	EnvServerURL    = "WPP_BRIDGE_URL"
	EnvSecretKey    = "WPP_BRIDGE_SECRET"
	EnvAuthToken    = "WPP_BRIDGE_TOKEN"
	EnvWebhookURL   = "WPP_BRIDGE_WEBHOOK"
	EnvHistoryLimit = "WPP_HISTORY_LIMIT"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides cfg fields from WPP_* environment variables.
func ApplyEnv(cfg *BridgeConfig) {
	if v := env(EnvServerURL); v != "" {
		cfg.ServerURL = v
	}
	if v := env(EnvSecretKey); v != "" {
		cfg.SecretKey = v
	}
	if v := env(EnvAuthToken); v != "" {
		cfg.AuthToken = v
	}
	if v := env(EnvWebhookURL); v != "" {
		cfg.WebhookURL = v
	}
	if v := env(EnvHistoryLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryLimit = n
		}
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
