package session

import (
	"os"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
)

const DefaultSessionName = "main"

// SessionEnv names the environment variable consulted after the flag.
const SessionEnv = "WPP_SESSION"

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. $WPP_SESSION
// 3. config.toml default_session
// 4. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(SessionEnv); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
