package daemon

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/api"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/lock"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/logging"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/outbox"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/pairing"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/scheduler"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/session"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/store"
	intsync "github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/sync"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Outbound sends are throttled to a burst of sendBurst, refilled once per second.
const sendBurst = 5

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideConfig,
			provideLock,
			provideStore,
			provideProber,
			provideController,
			provideCatalog,
			provideHistory,
			provideDispatcher,
			provideSyncEngine,
			provideScheduler,
			provideWebhook,
			provideService,
			NewServer,
		),
		fx.Invoke(registerConfigHooks, registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus(logger *zap.Logger) *bus.Bus {
	return bus.New(bus.WithLogger(logger.Named("bus")))
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

// provideConfig loads bridge.toml, seeding a missing file from the global
// config, then applies .env and process environment overrides.
func provideConfig(p Params, logger *zap.Logger) (*config.Store, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(session.EnvPath(p.SessionName)); err != nil {
		logger.Warn("ignoring unreadable .env", zap.Error(err))
	}

	path := session.BridgeConfigPath(p.SessionName)
	cfg, err := config.LoadBridge(path, p.SessionName)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if global, gerr := config.Load(session.ConfigPath()); gerr == nil && global.DefaultServerURL != "" {
			cfg.ServerURL = global.DefaultServerURL
		}
		logger.Info("no bridge config yet, using defaults", zap.String("path", path))
	case err != nil:
		return nil, err
	}
	config.ApplyEnv(&cfg)
	// An incomplete config still starts the daemon so it can be fixed over the API.
	if err := cfg.Validate(); err != nil {
		logger.Warn("bridge config incomplete", zap.Error(err))
	}

	logger.Info("bridge config loaded",
		zap.String("server_url", cfg.ServerURL),
		zap.Bool("credentials", cfg.RequireCredentials() == nil),
	)
	return config.NewStore(cfg, config.FilePersister{Path: path}, logger), nil
}

func provideLock(p Params, cfg *config.Store, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), cfg.Get().ServerURL)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideProber(cfg *config.Store, logger *zap.Logger) *bridge.Prober {
	return bridge.NewProber(cfg, logger, bridge.WithHTTPClient(&http.Client{}))
}

func provideController(p *bridge.Prober, cfg *config.Store, m *status.Machine, b *bus.Bus, logger *zap.Logger) *pairing.Controller {
	return pairing.NewController(p, cfg, m, b, logger.Named("pairing"))
}

func provideCatalog(p *bridge.Prober, m *status.Machine, db *store.DB, b *bus.Bus, logger *zap.Logger) *catalog.Syncer {
	return catalog.NewSyncer(p, m, catalog.New(), db, b, logger.Named("catalog"))
}

func provideHistory(p *bridge.Prober, m *status.Machine, cfg *config.Store, b *bus.Bus, logger *zap.Logger) *history.Syncer {
	return history.NewSyncer(p, m, cfg, history.NewStore(), b, logger.Named("history"))
}

func provideDispatcher(p *bridge.Prober, m *status.Machine, chats *catalog.Syncer, msgs *history.Syncer, b *bus.Bus, logger *zap.Logger) *outbox.Dispatcher {
	limiter := rate.NewLimiter(rate.Every(time.Second), sendBurst)
	return outbox.NewDispatcher(p, m, chats.Catalog(), msgs.Store(), limiter, b, logger.Named("outbox"))
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger.Named("sync"))
}

func provideScheduler(chats *catalog.Syncer, msgs *history.Syncer, ctrl *pairing.Controller, m *status.Machine, cfg *config.Store, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(chats, msgs, ctrl, m, cfg, logger.Named("scheduler"))
}

func provideWebhook(msgs *history.Syncer, ctrl *pairing.Controller, m *status.Machine, logger *zap.Logger) *webhook.Receiver {
	return webhook.New(msgs, ctrl, m, logger.Named("webhook"))
}

func provideService(
	p Params,
	cfg *config.Store,
	prober *bridge.Prober,
	ctrl *pairing.Controller,
	chats *catalog.Syncer,
	msgs *history.Syncer,
	disp *outbox.Dispatcher,
	db *store.DB,
	sched *scheduler.Scheduler,
	b *bus.Bus,
	logger *zap.Logger,
) *api.Service {
	return api.NewService(api.Deps{
		SessionName: p.SessionName,
		Config:      cfg,
		Prober:      prober,
		Pairing:     ctrl,
		Chats:       chats,
		Messages:    msgs,
		Outbox:      disp,
		DB:          db,
		Scheduler:   sched,
		Bus:         b,
		Logger:      logger.Named("api"),
	})
}

// registerConfigHooks drops the pairing and every cached chat and message
// when the connection parameters change.
func registerConfigHooks(cfg *config.Store, ctrl *pairing.Controller, chats *catalog.Syncer, msgs *history.Syncer) {
	cfg.OnChange(ctrl.OnConfigChange)
	cfg.OnChange(func(_, _ config.BridgeConfig) {
		chats.Catalog().Reset()
		msgs.Store().Reset()
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	cfg *config.Store,
	ctrl *pairing.Controller,
	engine *intsync.Engine,
	sched *scheduler.Scheduler,
	hook *webhook.Receiver,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Mirror bus events into sqlite.
			engine.Start(context.Background())

			if err := sched.Start(); err != nil {
				return err
			}

			if addr := cfg.Get().WebhookListen; addr != "" {
				go func() {
					logger.Info("webhook receiver starting", zap.String("addr", addr), zap.String("path", webhook.Path))
					if err := hook.Listen(addr); err != nil {
						logger.Error("webhook receiver error", zap.Error(err))
					}
				}()
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if cfg.Get().RequireCredentials() == nil {
				go func() {
					if err := ctrl.Start(context.Background()); err != nil {
						logger.Warn("auto-connect failed", zap.Error(err))
					}
				}()
			} else {
				logger.Info("bridge credentials missing, waiting for configuration")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			ctrl.Reset("daemon stopping")
			engine.Stop()
			if cfg.Get().WebhookListen != "" {
				if err := hook.Shutdown(ctx); err != nil {
					logger.Warn("webhook shutdown", zap.Error(err))
				}
			}
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
