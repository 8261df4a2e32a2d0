package api

import (
	"context"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultPageSize = 50

// ListChats loads the catalog from the bridge. With "cached" set it pages
// through the sqlite mirror instead, which works while disconnected.
func (s *Service) ListChats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if flag(in, "cached") {
		limit := num(in, "limit")
		if limit <= 0 {
			limit = defaultPageSize
		}
		chats, err := s.DB.ListChats(limit, num(in, "offset"))
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "list chats: %v", err)
		}
		return reply(map[string]any{
			"source":   "cache",
			"chats":    list(chats, chatRowValue),
			"has_more": len(chats) == limit,
		})
	}

	res, err := s.Chats.LoadChats(ctx, catalog.Options{})
	if err != nil {
		return nil, toStatus("list chats", err)
	}
	contacts := res.Contacts
	if limit := num(in, "limit"); limit > 0 && limit < len(contacts) {
		contacts = contacts[:limit]
	}
	return reply(map[string]any{
		"source": "bridge",
		"chats":  list(contacts, contactValue),
		"total":  len(res.Contacts),
	})
}

// SetPin pins or unpins a chat and re-sorts the current catalog.
func (s *Service) SetPin(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := catalog.NormalizeChatID(str(in, "chat_id"))
	if id == "" {
		return nil, toStatus("set pin", bridge.ConfigError("chat_id is required"))
	}
	pinned := true
	if field(in, "pinned") != nil {
		pinned = flag(in, "pinned")
	}
	if err := s.DB.SetPin(id, pinned); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "set pin: %v", err)
	}
	if err := s.Chats.Catalog().Resort(s.DB); err != nil {
		s.Logger.Warn("re-sort after pin failed", zap.String("chat_id", id), zap.Error(err))
	}
	return reply(map[string]any{"chat_id": id, "pinned": pinned})
}

func (s *Service) Watch(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := catalog.NormalizeChatID(str(in, "chat_id"))
	if id == "" {
		return nil, toStatus("watch", bridge.ConfigError("chat_id is required"))
	}
	added := s.Scheduler.Watch(id)
	return reply(map[string]any{"chat_id": id, "changed": added})
}

func (s *Service) Unwatch(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := catalog.NormalizeChatID(str(in, "chat_id"))
	removed := s.Scheduler.Unwatch(id)
	return reply(map[string]any{"chat_id": id, "changed": removed})
}
