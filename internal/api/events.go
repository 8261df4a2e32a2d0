package api

import (
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/outbox"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// WatchEvents streams bus events whose kind starts with "prefix" (all
// events when empty) until the client goes away.
func (s *Service) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	ch, unsub := s.Bus.Subscribe(str(in, "prefix"), 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := structpb.NewStruct(map[string]any{
				"session":        s.SessionName,
				"kind":           evt.Kind,
				"occurred_at_ms": evt.Timestamp.UnixMilli(),
				"payload":        payloadValue(evt.Payload),
			})
			if err != nil {
				s.Logger.Warn("encode event failed", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func payloadValue(p any) map[string]any {
	switch v := p.(type) {
	case status.StatusChange:
		return map[string]any{"from": string(v.From), "to": string(v.To), "phone": v.Phone, "error": v.Error}
	case catalog.Replaced:
		return map[string]any{"count": len(v.Contacts), "silent": v.Silent}
	case history.Merged:
		return map[string]any{"chat_id": v.ChatID, "count": len(v.Messages), "added": v.Added}
	case bus.NewMessages:
		return map[string]any{"chat_id": v.ChatID, "count": v.Count}
	case bus.Notice:
		return map[string]any{"source": v.Source, "message": v.Message}
	case outbox.SendAck:
		return map[string]any{"local_id": v.LocalID, "message": messageValue(v.Message)}
	case outbox.SendFailure:
		return map[string]any{"message": messageValue(v.Message), "error": v.Error}
	case string:
		return map[string]any{"reason": v}
	}
	return map[string]any{}
}
