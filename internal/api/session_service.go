package api

import (
	"context"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *Service) status() map[string]any {
	out := snapshotValue(s.Pairing.Machine().Snapshot())
	out["session"] = s.SessionName
	out["server_url"] = s.Config.Get().ServerURL
	out["uptime_ms"] = time.Since(s.startedAt).Milliseconds()
	out["catalog_size"] = s.Chats.Catalog().Len()
	if s.DB != nil {
		if n, err := s.DB.ChatCount(); err == nil {
			out["chat_count"] = n
		}
		if n, err := s.DB.MessageCount(); err == nil {
			out["message_count"] = n
		}
	}
	if s.Scheduler != nil {
		watched := []any{}
		for _, id := range s.Scheduler.Watched() {
			watched = append(watched, id)
		}
		out["watched"] = watched
	}
	return out
}

func (s *Service) GetStatus(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(s.status())
}

// Connect starts or resumes pairing. With "wait" set it blocks until the
// QR is scanned or the attempt budget runs out.
func (s *Service) Connect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.Pairing.Start(ctx); err != nil {
		return nil, toStatus("connect", err)
	}
	if flag(in, "wait") {
		if err := s.Pairing.Wait(ctx); err != nil {
			return nil, toStatus("connect", err)
		}
	}
	return reply(s.status())
}

// Disconnect always leaves the session Disconnected. A bridge that refused
// the close is reported as a warning, not an error.
func (s *Service) Disconnect(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	out := map[string]any{}
	if err := s.Pairing.Disconnect(ctx); err != nil {
		out["warning"] = err.Error()
	}
	for k, v := range s.status() {
		out[k] = v
	}
	return reply(out)
}

// GenerateToken exchanges the secret key for a session token and stores it.
func (s *Service) GenerateToken(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	cfg := s.Config.Get()
	if cfg.ServerURL == "" || cfg.SecretKey == "" {
		return nil, toStatus("generate token", bridge.ConfigError("server_url and secret_key are required"))
	}
	res, err := s.Prober.Try(ctx, bridge.GenerateToken, bridge.Request{})
	if err != nil {
		return nil, toStatus("generate token", err)
	}
	token := bridge.String(res.Object, "token")
	if token == "" {
		return nil, grpcstatus.Error(codes.Unavailable, "generate token: bridge returned no token")
	}
	if _, err := s.Config.Set("auth_token", token); err != nil {
		return nil, toStatus("save token", err)
	}
	s.Logger.Info("session token generated", zap.String("candidate", res.Candidate))
	return reply(map[string]any{"token": token})
}
