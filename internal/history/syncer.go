// Package history loads chat messages from the bridge and merges them into
// per-chat lists.
package history

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Prober runs one bridge capability. *bridge.Prober implements it.
type Prober interface {
	Try(ctx context.Context, c bridge.Capability, req bridge.Request) (*bridge.Result, error)
}

// Session exposes the session state and paired phone. *status.Machine implements it.
type Session interface {
	Snapshot() status.Snapshot
}

// Settings supplies the configured history limit. *config.Store implements it.
type Settings interface {
	Get() config.BridgeConfig
}

// Options controls one load.
type Options struct {
	// Limit overrides the configured history_limit when positive.
	Limit int
	// Silent marks a background refresh: failures are only logged and new
	// messages are announced with a history.new_messages event.
	Silent bool
	// Resync replaces the retained list instead of merging into it.
	Resync bool
}

// Result is the outcome of a successful load.
type Result struct {
	Messages []Message // full retained list, oldest first
	Added    int
}

// Merged is the payload of history.merged events.
type Merged struct {
	ChatID   string
	Messages []Message
	Added    int
}

// Syncer fetches chat histories and merges them into a Store.
type Syncer struct {
	prober   Prober
	session  Session
	settings Settings
	store    *Store
	bus      *bus.Bus
	logger   *zap.Logger
	silent   singleflight.Group
}

// NewSyncer creates a syncer. b may be nil.
func NewSyncer(p Prober, sess Session, settings Settings, store *Store, b *bus.Bus, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{prober: p, session: sess, settings: settings, store: store, bus: b, logger: logger}
}

// Store returns the store this syncer merges into.
func (s *Syncer) Store() *Store {
	return s.store
}

// LoadMessages fetches up to the configured number of messages of chatID and
// merges them by id. Loading twice is idempotent. Concurrent silent loads of
// the same chat share one request.
func (s *Syncer) LoadMessages(ctx context.Context, chatID string, opts Options) (Result, error) {
	id := catalog.NormalizeChatID(chatID)
	if id == "" {
		return Result{}, fmt.Errorf("list messages: %w", bridge.ConfigError("chat id is required"))
	}
	snap := s.session.Snapshot()
	if snap.State != status.Connected {
		return Result{}, fmt.Errorf("list messages: %w", bridge.ErrNotConnected)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.settings.Get().HistoryLimit
	}
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}

	if !opts.Silent {
		return s.load(ctx, id, snap.Phone, limit, opts)
	}
	key := id + "/" + strconv.Itoa(limit) + "/" + strconv.FormatBool(opts.Resync)
	v, err, _ := s.silent.Do(key, func() (any, error) {
		return s.load(ctx, id, snap.Phone, limit, opts)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *Syncer) load(ctx context.Context, chatID, owner string, limit int, opts Options) (Result, error) {
	hadPrior := s.store.Len(chatID) > 0
	res, err := s.prober.Try(ctx, bridge.ListMessages, bridge.Request{ChatID: chatID, Limit: limit})
	if err != nil {
		s.fail(chatID, opts.Silent, err)
		return Result{}, fmt.Errorf("list messages of %s: %w", chatID, err)
	}

	batch := make([]Message, 0, len(res.Items))
	for _, item := range res.Items {
		m := Normalize(item, chatID, owner)
		if other := bridge.String(item, "chatId._serialized", "chatId"); other != "" && catalog.NormalizeChatID(other) != chatID {
			continue
		}
		batch = append(batch, m)
	}
	batch = Order(batch)

	var added []Message
	if opts.Resync {
		added = s.store.Resync(chatID, batch)
	} else {
		added = s.store.Merge(chatID, batch)
	}
	s.logger.Debug("messages loaded",
		zap.String("chat_id", chatID),
		zap.String("candidate", res.Candidate),
		zap.Int("fetched", len(batch)),
		zap.Int("added", len(added)),
		zap.Bool("silent", opts.Silent))

	if len(batch) > 0 {
		// Publish the retained copies so mirrors see merged statuses.
		merged := make([]Message, 0, len(batch))
		for _, m := range batch {
			if cur, ok := s.store.Get(chatID, m.ID); ok {
				merged = append(merged, cur)
			}
		}
		s.bus.Emit(bus.KindHistoryMerged, Merged{ChatID: chatID, Messages: merged, Added: len(added)})
	}
	if opts.Silent && hadPrior && len(added) > 0 {
		s.bus.Emit(bus.KindNewMessages, bus.NewMessages{ChatID: chatID, Count: len(added)})
	}
	return Result{Messages: s.store.List(chatID), Added: len(added)}, nil
}

func (s *Syncer) fail(chatID string, silent bool, err error) {
	if silent {
		s.logger.Warn("silent message load failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	s.logger.Error("message load failed", zap.String("chat_id", chatID), zap.Error(err))
	s.bus.Emit(bus.KindNotifyError, bus.Notice{
		Source:  "messages",
		Message: "Não foi possível carregar as mensagens: " + err.Error(),
	})
}
