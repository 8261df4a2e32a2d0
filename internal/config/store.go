package config

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"go.uber.org/zap"
)

// Persister writes accepted config updates to durable storage.
type Persister interface {
	Persist(BridgeConfig) error
}

// FilePersister saves the config as TOML at Path.
type FilePersister struct {
	Path string
}

func (f FilePersister) Persist(cfg BridgeConfig) error {
	return SaveBridge(f.Path, cfg)
}

// ChangeFunc is called after an update that altered connection parameters.
type ChangeFunc func(old, updated BridgeConfig)

// Store owns the current bridge config. Readers get copies; writers go
// through Update so every change is validated and persisted before it is
// visible.
type Store struct {
	mu      sync.RWMutex
	cfg     BridgeConfig
	persist Persister
	subs    []ChangeFunc
	logger  *zap.Logger
}

// NewStore creates a store seeded with cfg. persist may be nil for in-memory use.
func NewStore(cfg BridgeConfig, persist Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cfg: cfg, persist: persist, logger: logger}
}

// Get returns a copy of the current config.
func (s *Store) Get() BridgeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Endpoint implements bridge.EndpointSource.
func (s *Store) Endpoint() bridge.Endpoint {
	return s.Get().Endpoint()
}

// OnChange registers fn for connection-parameter changes.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Update applies fn to a copy of the config, validates and persists it, then
// swaps it in. Subscribers run after the lock is released.
func (s *Store) Update(fn func(*BridgeConfig)) (BridgeConfig, error) {
	s.mu.Lock()
	old := s.cfg
	next := old
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return old, err
	}
	if s.persist != nil {
		if err := s.persist.Persist(next); err != nil {
			s.mu.Unlock()
			return old, fmt.Errorf("persist config: %w", err)
		}
	}
	s.cfg = next
	subs := append([]ChangeFunc(nil), s.subs...)
	s.mu.Unlock()

	if old.ConnectionChanged(next) {
		s.logger.Info("bridge connection parameters changed",
			zap.String("server_url", next.ServerURL),
			zap.String("bridge_session", next.SessionName))
		for _, sub := range subs {
			sub(old, next)
		}
	}
	return next, nil
}

// Keys lists the names accepted by Set.
var Keys = []string{
	"session_name", "server_url", "secret_key", "auth_token", "webhook_url",
	"history_limit", "poll_interval", "poll_max_attempts", "request_timeout",
	"background_interval", "liveness_every", "webhook_listen",
}

// Set updates a single field by its TOML name.
func (s *Store) Set(key, value string) (BridgeConfig, error) {
	apply, err := setter(key, value)
	if err != nil {
		return s.Get(), err
	}
	return s.Update(apply)
}

func setter(key, value string) (func(*BridgeConfig), error) {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, bridge.ConfigError("%s must be an integer", key)
		}
		return n, nil
	}
	dur := func() (Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return Duration{}, bridge.ConfigError("%s must be a duration like 3s", key)
		}
		return Duration{d}, nil
	}

	switch key {
	case "session_name":
		return func(c *BridgeConfig) { c.SessionName = value }, nil
	case "server_url":
		return func(c *BridgeConfig) { c.ServerURL = value }, nil
	case "secret_key":
		return func(c *BridgeConfig) { c.SecretKey = value }, nil
	case "auth_token":
		return func(c *BridgeConfig) { c.AuthToken = value }, nil
	case "webhook_url":
		return func(c *BridgeConfig) { c.WebhookURL = value }, nil
	case "webhook_listen":
		return func(c *BridgeConfig) { c.WebhookListen = value }, nil
	case "history_limit", "poll_max_attempts", "liveness_every":
		n, err := atoi()
		if err != nil {
			return nil, err
		}
		return func(c *BridgeConfig) {
			switch key {
			case "history_limit":
				c.HistoryLimit = n
			case "poll_max_attempts":
				c.PollMaxAttempts = n
			default:
				c.LivenessEvery = n
			}
		}, nil
	case "poll_interval", "request_timeout", "background_interval":
		d, err := dur()
		if err != nil {
			return nil, err
		}
		return func(c *BridgeConfig) {
			switch key {
			case "poll_interval":
				c.PollInterval = d
			case "request_timeout":
				c.RequestTimeout = d
			default:
				c.BackgroundInterval = d
			}
		}, nil
	}
	return nil, bridge.ConfigError("unknown config key %q", key)
}
