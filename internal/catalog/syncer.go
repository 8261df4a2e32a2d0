// Package catalog loads the chat list from the bridge and keeps it in memory.
package catalog

import (
	"context"
	"fmt"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Prober runs one bridge capability. *bridge.Prober implements it.
type Prober interface {
	Try(ctx context.Context, c bridge.Capability, req bridge.Request) (*bridge.Result, error)
}

// StateReader reports the current session state. *status.Machine implements it.
type StateReader interface {
	Current() status.State
}

// Options controls one load.
type Options struct {
	// Silent marks a background refresh: failures are logged but no user
	// notification is published, and the result never overrides a newer
	// explicit one.
	Silent bool
}

// Result is the outcome of a successful load.
type Result struct {
	Contacts []Contact
	// Applied is false when a newer load superseded this one.
	Applied bool
}

// Empty reports a successful load that found no chats.
func (r Result) Empty() bool {
	return len(r.Contacts) == 0
}

// Replaced is the payload of catalog.replaced events.
type Replaced struct {
	Contacts []Contact
	Silent   bool
}

// Syncer fetches the chat list and replaces the catalog with it.
type Syncer struct {
	prober  Prober
	state   StateReader
	catalog *Catalog
	pins    PinSource
	bus     *bus.Bus
	logger  *zap.Logger
	silent  singleflight.Group
}

// NewSyncer creates a syncer. pins and b may be nil.
func NewSyncer(p Prober, state StateReader, c *Catalog, pins PinSource, b *bus.Bus, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{prober: p, state: state, catalog: c, pins: pins, bus: b, logger: logger}
}

// Catalog returns the catalog this syncer writes to.
func (s *Syncer) Catalog() *Catalog {
	return s.catalog
}

// LoadChats fetches, normalizes and sorts the chat list, then replaces the
// catalog. It fails without a request when the session is not connected.
// Concurrent silent loads share one request.
func (s *Syncer) LoadChats(ctx context.Context, opts Options) (Result, error) {
	if s.state.Current() != status.Connected {
		return Result{}, fmt.Errorf("list chats: %w", bridge.ErrNotConnected)
	}
	if !opts.Silent {
		return s.load(ctx, false)
	}
	v, err, shared := s.silent.Do("chats", func() (any, error) {
		return s.load(ctx, true)
	})
	if shared {
		s.logger.Debug("silent chat load coalesced")
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *Syncer) load(ctx context.Context, silent bool) (Result, error) {
	tok := s.catalog.begin(silent)
	res, err := s.prober.Try(ctx, bridge.ListChats, bridge.Request{})
	if err != nil {
		s.catalog.commit(tok, silent, nil, false)
		s.fail(silent, err)
		return Result{}, fmt.Errorf("list chats: %w", err)
	}

	contacts := make([]Contact, 0, len(res.Items))
	seen := make(map[string]bool, len(res.Items))
	for _, item := range res.Items {
		c, ok := Normalize(item)
		if !ok || seen[c.ID] || c.ID == types.StatusBroadcastJID.String() {
			continue
		}
		seen[c.ID] = true
		contacts = append(contacts, c)
	}
	if err := Sort(contacts, s.pins); err != nil {
		s.logger.Warn("load pins failed", zap.Error(err))
	}

	applied := s.catalog.commit(tok, silent, contacts, true)
	s.logger.Debug("chats loaded",
		zap.String("candidate", res.Candidate),
		zap.Int("count", len(contacts)),
		zap.Bool("silent", silent),
		zap.Bool("applied", applied))
	if applied {
		s.bus.Emit(bus.KindCatalogReplaced, Replaced{Contacts: contacts, Silent: silent})
	}
	return Result{Contacts: contacts, Applied: applied}, nil
}

func (s *Syncer) fail(silent bool, err error) {
	if silent {
		s.logger.Warn("silent chat load failed", zap.Error(err))
		return
	}
	s.logger.Error("chat load failed", zap.Error(err))
	s.bus.Emit(bus.KindNotifyError, bus.Notice{
		Source:  "chats",
		Message: "Não foi possível carregar as conversas: " + err.Error(),
	})
}
