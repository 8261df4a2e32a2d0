// Package sync mirrors catalog and history events from the bus into the
// SQLite store.
package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/outbox"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/pairing"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion of bus events into the store.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to every event namespace and ingests in the background.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if err := e.Handle(evt); err != nil {
					e.logger.Error("mirror event failed", zap.String("kind", evt.Kind), zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the ingest loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// Handle ingests one event. Kinds the mirror does not track are ignored.
func (e *Engine) Handle(evt bus.Event) error {
	switch evt.Kind {
	case bus.KindCatalogReplaced:
		if p, ok := evt.Payload.(catalog.Replaced); ok {
			return e.IngestCatalog(p.Contacts)
		}
	case bus.KindHistoryMerged:
		if p, ok := evt.Payload.(history.Merged); ok {
			return e.IngestHistory(p.Messages)
		}
	case bus.KindSendAck:
		if p, ok := evt.Payload.(outbox.SendAck); ok {
			return e.IngestSend(p.LocalID, p.Message)
		}
	case bus.KindSendFailed:
		if p, ok := evt.Payload.(outbox.SendFailure); ok {
			return e.IngestSend(p.Message.ID, p.Message)
		}
	case bus.KindStatusChanged:
		if p, ok := evt.Payload.(status.StatusChange); ok && p.To == status.Connected {
			return e.CheckAccount(p.Phone)
		}
	}
	return nil
}

// IngestCatalog replaces the mirrored chat list.
func (e *Engine) IngestCatalog(contacts []catalog.Contact) error {
	chats := make([]store.Chat, 0, len(contacts))
	for _, c := range contacts {
		chats = append(chats, store.Chat{
			JID:                c.ID,
			Name:               c.DisplayName,
			IsGroup:            c.IsGroup,
			UnreadCount:        c.UnreadCount,
			LastMessageAt:      c.LastMessageTimestamp,
			LastMessagePreview: c.LastMessagePreview,
		})
	}
	if err := e.db.ReplaceChats(chats); err != nil {
		return fmt.Errorf("replace chats: %w", err)
	}
	if err := e.db.SetSyncState(store.KeyLastCatalogSync, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return fmt.Errorf("checkpoint catalog: %w", err)
	}
	e.logger.Debug("catalog mirrored", zap.Int("chats", len(chats)))
	return nil
}

// IngestHistory upserts a merged history batch.
func (e *Engine) IngestHistory(msgs []history.Message) error {
	rows := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, toRow(m))
	}
	if err := e.db.UpsertMessages(rows); err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

// IngestSend records an outgoing message, moving the local row to the
// bridge-assigned id when it changed.
func (e *Engine) IngestSend(localID string, m history.Message) error {
	if localID != "" && localID != m.ID {
		if err := e.db.RenameMessage(m.ChatID, localID, m.ID); err != nil {
			return err
		}
	}
	row := toRow(m)
	return e.db.UpsertMessage(&row)
}

// CheckAccount rebuilds the cache when a different phone pairs with the
// session, so one account's history never shows under another.
func (e *Engine) CheckAccount(phone string) error {
	if phone == "" || phone == pairing.FallbackPhone {
		return nil
	}
	prev, err := e.db.SyncState(store.KeyAccountPhone)
	if err != nil {
		return fmt.Errorf("read account: %w", err)
	}
	if prev != "" && prev != phone {
		e.logger.Info("paired account changed, clearing cache",
			zap.String("previous", prev), zap.String("phone", phone))
		if _, err := e.db.Rebuild(); err != nil {
			return fmt.Errorf("rebuild cache: %w", err)
		}
	}
	return e.db.SetSyncState(store.KeyAccountPhone, phone)
}

func toRow(m history.Message) store.Message {
	return store.Message{
		ChatJID:     m.ChatID,
		MsgID:       m.ID,
		SenderJID:   m.Sender,
		Body:        m.Text,
		MessageType: m.Type,
		FromMe:      m.FromMe,
		Status:      string(m.DeliveryStatus),
		Timestamp:   m.Timestamp,
	}
}
