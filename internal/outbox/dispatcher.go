// Package outbox sends text messages through the bridge with an optimistic
// local copy in the chat history.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrEmptyText is returned for blank messages.
var ErrEmptyText = errors.New("message text is empty")

// Prober runs one bridge capability. *bridge.Prober implements it.
type Prober interface {
	Try(ctx context.Context, c bridge.Capability, req bridge.Request) (*bridge.Result, error)
}

// StateReader reports the current session state. *status.Machine implements it.
type StateReader interface {
	Current() status.State
}

// Directory looks chats up by id. *catalog.Catalog implements it.
type Directory interface {
	Get(id string) (catalog.Contact, bool)
}

// SendAck is the payload of message.send_ack events.
type SendAck struct {
	LocalID string
	Message history.Message
}

// SendFailure is the payload of message.send_failed events.
type SendFailure struct {
	Message history.Message
	Error   string
}

// Dispatcher sends messages and tracks them in the history store.
type Dispatcher struct {
	prober   Prober
	state    StateReader
	contacts Directory
	store    *history.Store
	limiter  *rate.Limiter
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. limiter and b may be nil.
func NewDispatcher(p Prober, state StateReader, contacts Directory, store *history.Store, limiter *rate.Limiter, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{prober: p, state: state, contacts: contacts, store: store, limiter: limiter, bus: b, logger: logger}
}

// Send delivers text to chatID. Before the request goes out an optimistic
// message with status sending is appended to the history; on success it is
// marked sent and renamed to the id the bridge assigned, if any. On failure
// the message stays as sending and is returned with the error, so the caller
// can mark it failed with MarkFailed.
func (d *Dispatcher) Send(ctx context.Context, chatID, text string) (history.Message, error) {
	id := catalog.NormalizeChatID(chatID)
	if id == "" {
		return history.Message{}, bridge.ConfigError("chat id is required")
	}
	if strings.TrimSpace(text) == "" {
		return history.Message{}, ErrEmptyText
	}
	if d.state.Current() != status.Connected {
		return history.Message{}, fmt.Errorf("send message: %w", bridge.ErrNotConnected)
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return history.Message{}, fmt.Errorf("send message: %w", err)
		}
	}

	req := Address(id, d.isGroup(id))
	req.Text = text

	msg := history.Message{
		ID:             uuid.NewString(),
		ChatID:         id,
		Text:           text,
		Type:           "chat",
		FromMe:         true,
		Timestamp:      time.Now().UnixMilli(),
		DeliveryStatus: history.StatusSending,
	}
	d.store.Append(msg)

	res, err := d.prober.Try(ctx, bridge.SendMessage, req)
	if err != nil {
		d.logger.Error("send message failed", zap.String("chat_id", id), zap.String("local_id", msg.ID), zap.Error(err))
		return msg, fmt.Errorf("send message: %w", err)
	}

	localID := msg.ID
	if sent, ok := d.store.SetStatus(id, localID, history.StatusSent); ok {
		msg = sent
	} else {
		msg.DeliveryStatus = history.StatusSent
	}
	if serverID := bridge.String(res.Object, "id._serialized", "id", "key.id", "messageId"); serverID != "" {
		if d.store.Rekey(id, localID, serverID) {
			msg.ID = serverID
		}
	}
	d.logger.Info("message sent",
		zap.String("chat_id", id),
		zap.String("local_id", localID),
		zap.String("server_msg_id", msg.ID),
		zap.String("candidate", res.Candidate))
	d.bus.Emit(bus.KindSendAck, SendAck{LocalID: localID, Message: msg})
	return msg, nil
}

// MarkFailed flags a message returned by a failed Send.
func (d *Dispatcher) MarkFailed(msg history.Message, cause error) history.Message {
	if failed, ok := d.store.SetStatus(msg.ChatID, msg.ID, history.StatusFailed); ok {
		msg = failed
	} else {
		msg.DeliveryStatus = history.StatusFailed
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	d.bus.Emit(bus.KindSendFailed, SendFailure{Message: msg, Error: reason})
	return msg
}

func (d *Dispatcher) isGroup(id string) bool {
	if c, ok := d.contacts.Get(id); ok {
		return c.IsGroup
	}
	return strings.HasSuffix(id, "@"+types.GroupServer)
}

// Address builds the send request for a chat: groups are addressed by chat
// id, individuals by the phone number without server suffix.
func Address(chatID string, group bool) bridge.Request {
	phone, _, _ := strings.Cut(chatID, "@")
	return bridge.Request{ChatID: chatID, Phone: phone, Group: group}
}
