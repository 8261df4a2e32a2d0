// Package pairing drives the bridge session through QR pairing: it starts the
// session, polls the bridge until the phone scans the code, and tears the
// session down again.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"go.uber.org/zap"
)

// FallbackPhone labels a connected session whose bridge did not report a number.
const FallbackPhone = "Conectado"

// Prober runs one bridge capability. *bridge.Prober implements it.
type Prober interface {
	Try(ctx context.Context, c bridge.Capability, req bridge.Request) (*bridge.Result, error)
}

// Settings supplies the current bridge config. *config.Store implements it.
type Settings interface {
	Get() config.BridgeConfig
}

// Controller owns the pairing lifecycle of one bridge session.
type Controller struct {
	prober   Prober
	settings Settings
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	// mu guards gen and loop. Start only applies a bridge answer when gen
	// has not moved since it was issued.
	mu   sync.Mutex
	gen  uint64
	loop *pollLoop
}

type pollLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error // written before done is closed
}

// NewController creates a controller. b may be nil.
func NewController(p Prober, s Settings, m *status.Machine, b *bus.Bus, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{prober: p, settings: s, machine: m, bus: b, logger: logger}
}

// Machine returns the state machine driven by this controller.
func (c *Controller) Machine() *status.Machine {
	return c.machine
}

// Start opens the bridge session. If the bridge answers with a QR code the
// machine enters AwaitingScan and a polling loop is started in the background;
// if it reports the session as already paired the machine goes straight to
// Connected. Missing credentials fail before any request is made.
func (c *Controller) Start(ctx context.Context) error {
	cfg := c.settings.Get()
	if err := cfg.RequireCredentials(); err != nil {
		c.machine.Disconnect(err.Error())
		return err
	}
	if c.machine.Current() == status.Connected {
		return nil
	}
	gen := c.stopLoop()

	res, err := c.prober.Try(ctx, bridge.StartSession, bridge.Request{Webhook: cfg.WebhookURL})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.logger.Debug("start session superseded", zap.Uint64("gen", gen), zap.Uint64("current", c.gen))
		return nil
	}
	if err != nil {
		c.machine.Disconnect(err.Error())
		return fmt.Errorf("start session: %w", err)
	}

	qr := bridge.QRField(res.Object)
	if qr == "" && bridge.IsConnected(res.Object) {
		phone := phoneOf(res.Object)
		c.logger.Info("bridge session already paired", zap.String("phone", phone))
		return c.machine.Connect(phone)
	}

	image, code, err := NormalizeQR(qr)
	if err != nil {
		c.machine.Disconnect(err.Error())
		return err
	}
	if err := c.machine.AwaitScan(image, code); err != nil {
		return err
	}
	c.logger.Info("qr code issued, waiting for scan",
		zap.String("candidate", res.Candidate),
		zap.Duration("poll_interval", cfg.PollInterval.Duration),
		zap.Int("max_attempts", cfg.PollMaxAttempts))
	c.startLoopLocked(cfg.PollInterval.Duration, cfg.PollMaxAttempts)
	return nil
}

// Poll checks the bridge once. It returns true when the session is connected.
// A refreshed QR code in the status response replaces the current one.
func (c *Controller) Poll(ctx context.Context) (bool, error) {
	res, err := c.prober.Try(ctx, bridge.CheckStatus, bridge.Request{})
	if err != nil {
		return false, err
	}
	if bridge.IsConnected(res.Object) {
		if c.machine.Current() == status.Connected {
			return true, nil
		}
		phone := phoneOf(res.Object)
		if err := c.machine.Connect(phone); err != nil {
			return false, err
		}
		c.logger.Info("bridge session paired", zap.String("phone", phone))
		return true, nil
	}

	if c.machine.Current() == status.AwaitingScan {
		if qr := bridge.QRField(res.Object); qr != "" {
			image, code, err := NormalizeQR(qr)
			if err == nil && image != c.machine.Snapshot().QRImage {
				_ = c.machine.AwaitScan(image, code)
			}
		}
	}
	return false, nil
}

// Revalidate checks a connected session for liveness. When the bridge
// explicitly reports the session closed, the machine returns to
// Disconnected and a session.dropped event is published. Transport failures
// leave the state untouched.
func (c *Controller) Revalidate(ctx context.Context) (status.State, error) {
	if c.machine.Current() != status.Connected {
		return c.machine.Current(), nil
	}
	res, err := c.prober.Try(ctx, bridge.CheckStatus, bridge.Request{})
	if err != nil {
		return status.Connected, err
	}
	if !bridge.IsDisconnected(res.Object) {
		return status.Connected, nil
	}
	reason := "bridge reported session closed"
	if s := bridge.String(res.Object, "status", "state"); s != "" {
		reason = "bridge reported session " + strings.ToLower(s)
	}
	c.logger.Warn("bridge session dropped", zap.String("reason", reason))
	c.machine.Disconnect(reason)
	c.bus.Emit(bus.KindSessionDrop, reason)
	return status.Disconnected, nil
}

// Disconnect closes the bridge session on a best-effort basis. The machine
// always ends in Disconnected; the returned error only reports whether the
// bridge acknowledged the close.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.stopLoop()
	c.machine.Disconnect("")
	_, err := c.prober.Try(ctx, bridge.CloseSession, bridge.Request{})
	if err != nil {
		c.logger.Warn("close session failed, local state reset anyway", zap.Error(err))
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// Reset stops polling and forces the machine to Disconnected without talking
// to the bridge.
func (c *Controller) Reset(reason string) {
	c.stopLoop()
	c.machine.Disconnect(reason)
}

// OnConfigChange resets the session when connection parameters change.
// It matches config.ChangeFunc.
func (c *Controller) OnConfigChange(_, _ config.BridgeConfig) {
	c.logger.Info("connection settings changed, re-pairing required")
	c.Reset("connection settings changed")
}

// Wait blocks until the current polling loop ends and returns its outcome:
// nil when the session connected or the loop was stopped, an ErrTimeout
// error when the attempt budget ran out.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startLoopLocked replaces any live polling loop with a new one. c.mu must
// be held.
func (c *Controller) startLoopLocked(interval time.Duration, attempts int) {
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	if attempts <= 0 {
		attempts = config.DefaultPollMaxAttempts
	}
	if c.loop != nil {
		c.loop.cancel()
		<-c.loop.done
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &pollLoop{cancel: cancel, done: make(chan struct{})}
	c.loop = l
	go c.run(ctx, interval, attempts, l)
}

// stopLoop invalidates in-flight Start calls, cancels the polling loop and
// waits for it to exit. It returns the new generation.
func (c *Controller) stopLoop() uint64 {
	c.mu.Lock()
	c.gen++
	gen, l := c.gen, c.loop
	c.mu.Unlock()
	if l != nil {
		l.cancel()
		<-l.done
	}
	return gen
}

// run never takes c.mu, so the loop can be drained while it is held.
func (c *Controller) run(ctx context.Context, interval time.Duration, attempts int, l *pollLoop) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		connected, err := c.Poll(ctx)
		if connected {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("status poll failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		if c.machine.Current() != status.AwaitingScan {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	l.err = fmt.Errorf("%w: qr code not scanned after %d attempts", bridge.ErrTimeout, attempts)
	c.logger.Warn("qr code expired", zap.Int("attempts", attempts))
	c.machine.Disconnect(l.err.Error())
	c.bus.Emit(bus.KindQRExpired, l.err.Error())
}

func phoneOf(obj map[string]any) string {
	phone := bridge.PhoneField(obj)
	if user, _, ok := strings.Cut(phone, "@"); ok {
		phone = user
	}
	if phone == "" {
		return FallbackPhone
	}
	return phone
}

// IsTimeout reports whether err is a QR expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, bridge.ErrTimeout)
}
