package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// listKeys are the envelope keys bridges wrap collections in, in the order
// they are tried.
var listKeys = []string{"response", "chats", "messages", "data"}

// Decode parses a JSON response body into a generic value.
func Decode(body []byte) (any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrProtocol)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrProtocol, err)
	}
	return v, nil
}

// ExtractList finds the item collection in one of the known response shapes:
// a top-level array, or an array under response/chats/messages/data, also one
// envelope deep ({response: {messages: [...]}}). Non-object items are dropped.
// ok is false when no known shape matched; an empty list with ok=true is a
// recognized "no data" answer.
func ExtractList(v any) (items []map[string]any, ok bool) {
	if arr, isArr := v.([]any); isArr {
		return objects(arr), true
	}
	obj, isObj := v.(map[string]any)
	if !isObj {
		return nil, false
	}
	for _, key := range listKeys {
		if arr, isArr := obj[key].([]any); isArr {
			return objects(arr), true
		}
	}
	for _, outer := range listKeys {
		inner, isObj := obj[outer].(map[string]any)
		if !isObj {
			continue
		}
		for _, key := range listKeys {
			if arr, isArr := inner[key].([]any); isArr {
				return objects(arr), true
			}
		}
	}
	return nil, false
}

// ExtractObject unwraps {response: {...}} and {data: {...}} envelopes and
// returns the innermost object. An envelope holding an array yields its
// first element. Top-level fields are kept when unwrapping so
// that a sibling "status" next to "response" stays visible.
func ExtractObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		if arr, isArr := v.([]any); isArr && len(arr) > 0 {
			obj, ok = arr[0].(map[string]any)
		}
		if !ok {
			return nil, false
		}
	}
	for _, key := range []string{"response", "data"} {
		inner, isObj := obj[key].(map[string]any)
		if arr, isArr := obj[key].([]any); isArr && len(arr) > 0 {
			inner, isObj = arr[0].(map[string]any)
		}
		if !isObj {
			continue
		}
		merged := make(map[string]any, len(obj)+len(inner))
		for k, val := range obj {
			if k != key {
				merged[k] = val
			}
		}
		for k, val := range inner {
			merged[k] = val
		}
		return merged, true
	}
	return obj, true
}

func objects(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, it := range arr {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
