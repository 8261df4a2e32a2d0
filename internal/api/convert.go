package api

import (
	"strconv"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func field(in *structpb.Struct, key string) *structpb.Value {
	return in.GetFields()[key]
}

func str(in *structpb.Struct, key string) string {
	v := field(in, key)
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}

func num(in *structpb.Struct, key string) int {
	v := field(in, key)
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int(k.NumberValue)
	case *structpb.Value_StringValue:
		n, _ := strconv.Atoi(k.StringValue)
		return n
	}
	return 0
}

func flag(in *structpb.Struct, key string) bool {
	v := field(in, key)
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_StringValue:
		b, _ := strconv.ParseBool(k.StringValue)
		return b
	}
	return false
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func snapshotValue(snap status.Snapshot) map[string]any {
	return map[string]any{
		"state":      string(snap.State),
		"qr_image":   snap.QRImage,
		"qr_code":    snap.QRCode,
		"phone":      snap.Phone,
		"last_error": snap.LastError,
		"since_ms":   snap.Since.UnixMilli(),
	}
}

func contactValue(c catalog.Contact) map[string]any {
	return map[string]any{
		"id":                     c.ID,
		"display_name":           c.DisplayName,
		"last_message_preview":   c.LastMessagePreview,
		"last_message_timestamp": c.LastMessageTimestamp,
		"unread_count":           c.UnreadCount,
		"is_group":               c.IsGroup,
		"pinned":                 c.Pinned,
	}
}

func chatRowValue(c store.Chat) map[string]any {
	return map[string]any{
		"id":                     c.JID,
		"display_name":           c.Name,
		"last_message_preview":   c.LastMessagePreview,
		"last_message_timestamp": c.LastMessageAt,
		"unread_count":           c.UnreadCount,
		"is_group":               c.IsGroup,
		"pinned":                 c.Pinned,
	}
}

func messageValue(m history.Message) map[string]any {
	return map[string]any{
		"id":              m.ID,
		"chat_id":         m.ChatID,
		"text":            m.Text,
		"type":            m.Type,
		"sender":          m.Sender,
		"from_me":         m.FromMe,
		"is_audio":        m.IsAudio,
		"timestamp":       m.Timestamp,
		"delivery_status": string(m.DeliveryStatus),
	}
}

func messageRowValue(m store.Message) map[string]any {
	return map[string]any{
		"id":              m.MsgID,
		"chat_id":         m.ChatJID,
		"text":            m.Body,
		"type":            m.MessageType,
		"sender":          m.SenderJID,
		"from_me":         m.FromMe,
		"is_audio":        history.IsAudioType(m.MessageType),
		"timestamp":       m.Timestamp,
		"delivery_status": m.Status,
	}
}

const masked = "********"

func configValue(c config.BridgeConfig, reveal bool) map[string]any {
	secret, token := c.SecretKey, c.AuthToken
	if !reveal {
		if secret != "" {
			secret = masked
		}
		if token != "" {
			token = masked
		}
	}
	return map[string]any{
		"session_name":        c.SessionName,
		"server_url":          c.ServerURL,
		"secret_key":          secret,
		"auth_token":          token,
		"webhook_url":         c.WebhookURL,
		"history_limit":       c.HistoryLimit,
		"poll_interval":       c.PollInterval.String(),
		"poll_max_attempts":   c.PollMaxAttempts,
		"request_timeout":     c.RequestTimeout.String(),
		"background_interval": c.BackgroundInterval.String(),
		"liveness_every":      c.LivenessEvery,
		"webhook_listen":      c.WebhookListen,
	}
}

func list[T any](items []T, conv func(T) map[string]any) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, conv(it))
	}
	return out
}
