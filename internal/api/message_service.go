package api

import (
	"context"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *Service) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	chatID := catalog.NormalizeChatID(str(in, "chat_id"))
	if chatID == "" {
		return nil, toStatus("list messages", bridge.ConfigError("chat_id is required"))
	}

	if flag(in, "cached") {
		limit := num(in, "limit")
		if limit <= 0 {
			limit = defaultPageSize
		}
		msgs, err := s.DB.ListMessages(chatID, int64(num(in, "before")), limit)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "list messages: %v", err)
		}
		return reply(map[string]any{
			"source":   "cache",
			"chat_id":  chatID,
			"messages": list(msgs, messageRowValue),
			"has_more": len(msgs) == limit,
		})
	}

	res, err := s.Messages.LoadMessages(ctx, chatID, history.Options{
		Limit:  num(in, "limit"),
		Resync: flag(in, "resync"),
	})
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	return reply(map[string]any{
		"source":   "bridge",
		"chat_id":  chatID,
		"messages": list(res.Messages, messageValue),
		"added":    res.Added,
	})
}

// SendText sends one text message. A send the bridge rejected is marked
// failed before the error is returned.
func (s *Service) SendText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msg, err := s.Outbox.Send(ctx, str(in, "chat_id"), str(in, "text"))
	if err != nil {
		if msg.ID != "" {
			s.Outbox.MarkFailed(msg, err)
		}
		s.Logger.Warn("send text failed", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return nil, toStatus("send text", err)
	}
	return reply(map[string]any{"message": messageValue(msg)})
}

func (s *Service) SearchMessages(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	query := str(in, "query")
	if query == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "search messages: query is required")
	}
	limit := num(in, "limit")
	if limit <= 0 {
		limit = defaultPageSize
	}
	chatID := ""
	if raw := str(in, "chat_id"); raw != "" {
		chatID = catalog.NormalizeChatID(raw)
	}
	results, err := s.DB.SearchMessages(query, chatID, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "search messages: %v", err)
	}
	out := make([]any, 0, len(results))
	for _, r := range results {
		m := messageRowValue(r.Message)
		m["snippet"] = r.Snippet
		out = append(out, m)
	}
	return reply(map[string]any{"results": out})
}
