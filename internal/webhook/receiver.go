// Package webhook receives event callbacks pushed by the bridge and turns
// them into silent syncs and session checks.
package webhook

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"go.uber.org/zap"
)

// Path is the route the bridge posts events to.
const Path = "/webhook"

const handleTimeout = 15 * time.Second

type MessageLoader interface {
	LoadMessages(ctx context.Context, chatID string, opts history.Options) (history.Result, error)
}

// Session is the pairing side of the receiver. *pairing.Controller implements it.
type Session interface {
	Poll(ctx context.Context) (bool, error)
	Revalidate(ctx context.Context) (status.State, error)
}

type StateReader interface {
	Current() status.State
}

// Receiver is a fiber app accepting bridge webhooks.
type Receiver struct {
	app      *fiber.App
	messages MessageLoader
	session  Session
	state    StateReader
	logger   *zap.Logger
}

func New(messages MessageLoader, session Session, state StateReader, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Receiver{
		messages: messages,
		session:  session,
		state:    state,
		logger:   logger,
	}
	r.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "wppd webhook",
		BodyLimit:             4 * 1024 * 1024,
	})
	r.app.Post(Path, r.handle)
	r.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "session": string(r.state.Current())})
	})
	return r
}

// App exposes the fiber app, mainly for app.Test.
func (r *Receiver) App() *fiber.App {
	return r.app
}

// Listen serves until Shutdown is called.
func (r *Receiver) Listen(addr string) error {
	r.logger.Info("webhook receiver listening", zap.String("addr", addr))
	return r.app.Listen(addr)
}

func (r *Receiver) Shutdown(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

func (r *Receiver) handle(c *fiber.Ctx) error {
	var payload map[string]any
	if err := c.App().Config().JSONDecoder(c.Body(), &payload); err != nil || payload == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid json body"})
	}

	event := strings.ToLower(bridge.String(payload, "event", "type"))
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	handled := false
	switch event {
	case "onmessage", "onanymessage", "message", "messages.upsert":
		handled = r.onMessage(ctx, payload)
	case "status-find", "onstatechange", "qrcode", "connection.update":
		handled = r.onStatus(ctx, event)
	default:
		r.logger.Debug("webhook event ignored", zap.String("event", event))
	}

	if !handled {
		return c.JSON(fiber.Map{"status": "ignored", "event": event})
	}
	return c.JSON(fiber.Map{"status": "ok", "event": event})
}

func (r *Receiver) onMessage(ctx context.Context, payload map[string]any) bool {
	chatID := ChatID(payload)
	if chatID == "" || r.state.Current() != status.Connected {
		return false
	}
	res, err := r.messages.LoadMessages(ctx, chatID, history.Options{Silent: true})
	if err != nil {
		r.logger.Warn("webhook history sync failed", zap.String("chat_id", chatID), zap.Error(err))
		return true
	}
	r.logger.Debug("webhook history sync", zap.String("chat_id", chatID), zap.Int("added", res.Added))
	return true
}

func (r *Receiver) onStatus(ctx context.Context, event string) bool {
	switch r.state.Current() {
	case status.AwaitingScan:
		if _, err := r.session.Poll(ctx); err != nil {
			r.logger.Warn("webhook status poll failed", zap.String("event", event), zap.Error(err))
		}
		return true
	case status.Connected:
		if _, err := r.session.Revalidate(ctx); err != nil {
			r.logger.Warn("webhook revalidate failed", zap.String("event", event), zap.Error(err))
		}
		return true
	}
	return false
}

// ChatID extracts the conversation a message event belongs to. For messages
// sent by the account itself the counterpart is the recipient.
func ChatID(payload map[string]any) string {
	if id := bridge.String(payload,
		"chatId._serialized", "chatId", "data.chatId",
		"key.remoteJid", "data.key.remoteJid"); id != "" {
		return catalog.NormalizeChatID(id)
	}
	if bridge.Bool(payload, "fromMe", "id.fromMe", "data.fromMe") {
		return catalog.NormalizeChatID(bridge.String(payload, "to", "data.to"))
	}
	return catalog.NormalizeChatID(bridge.String(payload, "from", "data.from"))
}
