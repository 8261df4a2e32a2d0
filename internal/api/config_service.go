package api

import (
	"context"
	"sort"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"google.golang.org/protobuf/types/known/structpb"
)

// GetConfig returns the bridge config. Secrets are masked unless "reveal" is set.
func (s *Service) GetConfig(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return reply(configValue(s.Config.Get(), flag(in, "reveal")))
}

// UpdateConfig applies {"key","value"} or a {"values": {...}} map of
// settings. Keys are applied in sorted order; the first invalid one stops
// the update and leaves the remaining keys untouched.
func (s *Service) UpdateConfig(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	updates := map[string]string{}
	if key := str(in, "key"); key != "" {
		updates[key] = str(in, "value")
	}
	if values := field(in, "values").GetStructValue(); values != nil {
		for k := range values.GetFields() {
			updates[k] = str(values, k)
		}
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := s.Config.Get()
	for _, k := range keys {
		var err error
		if cfg, err = s.Config.Set(k, updates[k]); err != nil {
			return nil, toStatus("update config", err)
		}
	}
	out := configValue(cfg, false)
	out["keys"] = keysValue(config.Keys)
	return reply(out)
}

func keysValue(keys []string) []any {
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, k)
	}
	return out
}
