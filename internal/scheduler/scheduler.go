// Package scheduler runs the periodic background refresh of a connected
// session: a silent catalog reload, a silent history reload of every watched
// chat, and a liveness check every few ticks.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxParallel bounds concurrent history reloads within one tick.
const maxParallel = 4

type ChatLoader interface {
	LoadChats(ctx context.Context, opts catalog.Options) (catalog.Result, error)
}

type MessageLoader interface {
	LoadMessages(ctx context.Context, chatID string, opts history.Options) (history.Result, error)
}

// Liveness confirms the session is still alive. *pairing.Controller implements it.
type Liveness interface {
	Revalidate(ctx context.Context) (status.State, error)
}

type StateReader interface {
	Current() status.State
}

type Settings interface {
	Get() config.BridgeConfig
}

// Scheduler owns the cron runner and the set of watched chats.
type Scheduler struct {
	chats    ChatLoader
	messages MessageLoader
	liveness Liveness
	state    StateReader
	settings Settings
	logger   *zap.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	watched map[string]struct{}
	ticks   int
}

func New(chats ChatLoader, messages MessageLoader, liveness Liveness, state StateReader, settings Settings, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		chats:    chats,
		messages: messages,
		liveness: liveness,
		state:    state,
		settings: settings,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		watched:  make(map[string]struct{}),
	}
}

// Start registers the background job and starts the cron runner. A zero
// background_interval disables background polling.
func (s *Scheduler) Start() error {
	interval := s.settings.Get().BackgroundInterval.Duration
	if interval <= 0 {
		s.logger.Info("background polling disabled")
		return nil
	}
	if _, err := s.cron.AddFunc("@every "+interval.String(), s.job); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("background polling started", zap.Duration("interval", interval))
	return nil
}

// Stop halts the runner and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Watch adds a chat to the background history refresh. It reports whether
// the chat was newly added.
func (s *Scheduler) Watch(chatID string) bool {
	id := catalog.NormalizeChatID(chatID)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watched[id]; ok {
		return false
	}
	s.watched[id] = struct{}{}
	return true
}

// Unwatch removes a chat from the background refresh.
func (s *Scheduler) Unwatch(chatID string) bool {
	id := catalog.NormalizeChatID(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watched[id]; !ok {
		return false
	}
	delete(s.watched, id)
	return true
}

// Watched returns the watched chat ids in sorted order.
func (s *Scheduler) Watched() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) job() {
	timeout := s.settings.Get().BackgroundInterval.Duration
	if rt := s.settings.Get().RequestTimeout.Duration; rt > timeout {
		timeout = rt
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Tick(ctx); err != nil {
		s.logger.Warn("background tick failed", zap.Error(err))
	}
}

// Tick runs one background pass. It does nothing unless the session is
// Connected. Every liveness_every connected ticks the session is revalidated
// first; a drop ends the pass.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.state.Current() != status.Connected {
		return nil
	}

	s.mu.Lock()
	s.ticks++
	tick := s.ticks
	s.mu.Unlock()

	if every := s.settings.Get().LivenessEvery; every > 0 && tick%every == 0 {
		st, err := s.liveness.Revalidate(ctx)
		if err != nil {
			s.logger.Debug("liveness check inconclusive", zap.Error(err))
		}
		if st != status.Connected {
			return nil
		}
	}

	var errs error
	if _, err := s.chats.LoadChats(ctx, catalog.Options{Silent: true}); err != nil {
		errs = multierr.Append(errs, err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for _, id := range s.Watched() {
		g.Go(func() error {
			if _, err := s.messages.LoadMessages(ctx, id, history.Options{Silent: true}); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// LastTick reports how many connected ticks have run.
func (s *Scheduler) LastTick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}
