package session

import (
	"regexp"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
)

// Session names double as the {session} path segment of bridge URLs, so
// they stay URL-safe.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to session naming rules. The
// error wraps bridge.ErrConfiguration.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return bridge.ConfigError("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}
