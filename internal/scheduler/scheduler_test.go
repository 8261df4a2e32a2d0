package scheduler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
)

type fakeSession struct {
	mu         sync.Mutex
	state      status.State
	chatLoads  int
	chatErr    error
	histLoads  map[string]int
	revalidate int
	dropOnNext bool
}

func newFake(st status.State) *fakeSession {
	return &fakeSession{state: st, histLoads: map[string]int{}}
}

func (f *fakeSession) Current() status.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) LoadChats(_ context.Context, opts catalog.Options) (catalog.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !opts.Silent {
		panic("background catalog load must be silent")
	}
	f.chatLoads++
	return catalog.Result{}, f.chatErr
}

func (f *fakeSession) LoadMessages(_ context.Context, chatID string, opts history.Options) (history.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !opts.Silent {
		panic("background history load must be silent")
	}
	f.histLoads[chatID]++
	return history.Result{}, nil
}

func (f *fakeSession) Revalidate(context.Context) (status.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revalidate++
	if f.dropOnNext {
		f.state = status.Disconnected
	}
	return f.state, nil
}

type settings config.BridgeConfig

func (s settings) Get() config.BridgeConfig { return config.BridgeConfig(s) }

func newScheduler(f *fakeSession, cfg config.BridgeConfig) *Scheduler {
	return New(f, f, f, f, settings(cfg), nil)
}

func TestTickSkipsWhenNotConnected(t *testing.T) {
	for _, st := range []status.State{status.Disconnected, status.AwaitingScan} {
		t.Run(string(st), func(t *testing.T) {
			f := newFake(st)
			s := newScheduler(f, config.DefaultBridge("main"))
			s.Watch("5511@c.us")
			if err := s.Tick(context.Background()); err != nil {
				t.Fatal(err)
			}
			if f.chatLoads != 0 || len(f.histLoads) != 0 || s.LastTick() != 0 {
				t.Errorf("loads while %s: chats=%d history=%v", st, f.chatLoads, f.histLoads)
			}
		})
	}
}

func TestTickRefreshesWatchedChats(t *testing.T) {
	f := newFake(status.Connected)
	cfg := config.DefaultBridge("main")
	cfg.LivenessEvery = 0
	s := newScheduler(f, cfg)
	s.Watch("5511@c.us")
	s.Watch("5511")
	s.Watch("g@g.us")

	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.chatLoads != 1 {
		t.Errorf("chat loads = %d, want 1", f.chatLoads)
	}
	want := map[string]int{"5511@c.us": 1, "g@g.us": 1}
	if !reflect.DeepEqual(f.histLoads, want) {
		t.Errorf("history loads = %v, want %v", f.histLoads, want)
	}
	if f.revalidate != 0 {
		t.Errorf("revalidate = %d with liveness disabled", f.revalidate)
	}
}

func TestTickLivenessEvery(t *testing.T) {
	f := newFake(status.Connected)
	cfg := config.DefaultBridge("main")
	cfg.LivenessEvery = 2
	s := newScheduler(f, cfg)

	for range 4 {
		_ = s.Tick(context.Background())
	}
	if f.revalidate != 2 {
		t.Errorf("revalidate = %d, want 2", f.revalidate)
	}
	if f.chatLoads != 4 {
		t.Errorf("chat loads = %d, want 4", f.chatLoads)
	}
}

func TestTickStopsOnDrop(t *testing.T) {
	f := newFake(status.Connected)
	f.dropOnNext = true
	cfg := config.DefaultBridge("main")
	cfg.LivenessEvery = 1
	s := newScheduler(f, cfg)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.chatLoads != 0 {
		t.Errorf("chat loads = %d after drop, want 0", f.chatLoads)
	}
}

func TestTickReportsLoadErrors(t *testing.T) {
	f := newFake(status.Connected)
	f.chatErr = errors.New("boom")
	s := newScheduler(f, config.DefaultBridge("main"))
	if err := s.Tick(context.Background()); err == nil {
		t.Error("Tick() = nil, want the catalog error")
	}
}

func TestWatchUnwatch(t *testing.T) {
	s := newScheduler(newFake(status.Connected), config.DefaultBridge("main"))
	if !s.Watch("+5511") {
		t.Error("first Watch() = false")
	}
	if s.Watch("5511@c.us") {
		t.Error("Watch() of an equivalent id = true")
	}
	if s.Watch("") {
		t.Error("Watch(\"\") = true")
	}
	if got := s.Watched(); !reflect.DeepEqual(got, []string{"5511@c.us"}) {
		t.Errorf("Watched() = %v", got)
	}
	if !s.Unwatch("5511@c.us") || s.Unwatch("5511@c.us") {
		t.Error("Unwatch() did not report removal once")
	}
}

func TestStartDisabled(t *testing.T) {
	f := newFake(status.Connected)
	cfg := config.DefaultBridge("main")
	cfg.BackgroundInterval = config.Duration{}
	s := newScheduler(f, cfg)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if f.chatLoads != 0 {
		t.Errorf("chat loads = %d with polling disabled", f.chatLoads)
	}
}

func TestStartRunsJob(t *testing.T) {
	f := newFake(status.Connected)
	cfg := config.DefaultBridge("main")
	cfg.BackgroundInterval = config.Duration{Duration: time.Second}
	s := newScheduler(f, cfg)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := f.chatLoads
		f.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("background job never ran")
}
