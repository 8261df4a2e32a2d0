package api

import (
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/outbox"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/pairing"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/scheduler"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/store"
	"go.uber.org/zap"
)

// Deps are the components the service fronts.
type Deps struct {
	SessionName string
	Config      *config.Store
	Prober      pairing.Prober
	Pairing     *pairing.Controller
	Chats       *catalog.Syncer
	Messages    *history.Syncer
	Outbox      *outbox.Dispatcher
	DB          *store.DB
	Scheduler   *scheduler.Scheduler
	Bus         *bus.Bus
	Logger      *zap.Logger
}

// Service implements BridgeServer.
type Service struct {
	Deps
	startedAt time.Time
}

var _ BridgeServer = (*Service)(nil)

// NewService creates the daemon API service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{Deps: d, startedAt: time.Now()}
}
