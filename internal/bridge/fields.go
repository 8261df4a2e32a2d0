package bridge

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Lookup walks a dotted path ("contact.name") through nested JSON objects.
func Lookup(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// String returns the first non-empty string found at any of the paths.
// Numbers are formatted without exponent so numeric ids survive.
func String(obj map[string]any, paths ...string) string {
	for _, p := range paths {
		v, ok := Lookup(obj, p)
		if !ok {
			continue
		}
		if s := AsString(v); s != "" {
			return s
		}
	}
	return ""
}

// AsString converts scalar JSON values to a trimmed string.
func AsString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Int returns the first integer-like value found at any of the paths.
func Int(obj map[string]any, paths ...string) (int64, bool) {
	for _, p := range paths {
		v, ok := Lookup(obj, p)
		if !ok {
			continue
		}
		if n, ok := AsInt(v); ok {
			return n, true
		}
	}
	return 0, false
}

// AsInt converts a JSON number or numeric string to int64.
func AsInt(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Bool reports whether any of the paths holds a truthy value.
func Bool(obj map[string]any, paths ...string) bool {
	for _, p := range paths {
		v, ok := Lookup(obj, p)
		if !ok {
			continue
		}
		if AsBool(v) {
			return true
		}
	}
	return false
}

// AsBool accepts JSON booleans, "true"/"1" strings and non-zero numbers.
func AsBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "1" || s == "yes"
	case float64:
		return t != 0
	}
	return false
}

var connectedMarkers = map[string]bool{
	"connected": true,
	"inchat":    true,
	"islogged":  true,
	"open":      true,
	"working":   true,
}

var disconnectedMarkers = map[string]bool{
	"disconnected":    true,
	"closed":          true,
	"close":           true,
	"notlogged":       true,
	"browserclose":    true,
	"desconnected":    true,
	"qrreadfail":      true,
	"autoclosecalled": true,
	"unpaired":        true,
	"failed":          true,
}

func marker(s string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
}

// IsConnected interprets the many "session is connected" indicators bridges use:
// status/state equal to a connected marker, or an explicit boolean flag.
func IsConnected(obj map[string]any) bool {
	if Bool(obj, "connected", "isConnected", "loggedIn", "isLogged", "instance.connected") {
		return true
	}
	for _, p := range []string{"status", "state", "instance.state", "instance.status", "session.status"} {
		if connectedMarkers[marker(String(obj, p))] {
			return true
		}
	}
	return false
}

// IsDisconnected reports an explicit "not connected" marker. Absence of a
// connected marker alone is not a disconnection.
func IsDisconnected(obj map[string]any) bool {
	for _, p := range []string{"status", "state", "instance.state", "instance.status"} {
		if disconnectedMarkers[marker(String(obj, p))] {
			return true
		}
	}
	if v, ok := Lookup(obj, "connected"); ok {
		if b, isBool := v.(bool); isBool && !b {
			return true
		}
	}
	return false
}

// QRField returns the QR payload of a start-session or qrcode response.
func QRField(obj map[string]any) string {
	return String(obj, "qrcode", "qr", "qrCode", "base64", "urlcode", "code", "qrcode.base64", "qrcode.code")
}

// PhoneField returns the best available identifier of the paired phone.
func PhoneField(obj map[string]any) string {
	return String(obj, "phoneNumber", "phone", "number", "wid.user", "me.user", "me.id", "wid", "instance.owner", "owner")
}

// Millis converts a unix timestamp in seconds or milliseconds to milliseconds.
func Millis(ts int64) int64 {
	if ts > 0 && ts < 1e11 {
		return ts * 1000
	}
	return ts
}
