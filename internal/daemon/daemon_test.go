package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/api"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/lock"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func jsonReply(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func fakeBridge(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/main/start-session", jsonReply(`{"status":"CONNECTED"}`))
	mux.HandleFunc("GET /api/main/status-session", jsonReply(`{"status":"CONNECTED","phone":"5511999"}`))
	mux.HandleFunc("DELETE /api/main/close-session", jsonReply(`{"status":true}`))
	mux.HandleFunc("GET /api/main/all-chats", jsonReply(`{"response":[
		{"id":{"_serialized":"123@c.us"},"name":"Maria","t":1700000000,"lastMessage":{"body":"oi"}}
	]}`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// shortHome points WPP_HOME at a short /tmp path so socket paths stay below
// the 104-char Unix socket limit on macOS.
func shortHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "wpp-d-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(session.HomeEnv, dir)
	for _, key := range []string{config.EnvServerURL, config.EnvSecretKey, config.EnvAuthToken, config.EnvWebhookURL, config.EnvHistoryLimit} {
		t.Setenv(key, "")
	}
	return dir
}

func writeBridgeConfig(t *testing.T, name, serverURL string) {
	t.Helper()
	cfg := config.DefaultBridge(name)
	cfg.ServerURL = serverURL
	cfg.SecretKey = "secret"
	cfg.AuthToken = "tok"
	cfg.BackgroundInterval = config.Duration{}
	if err := config.SaveBridge(session.BridgeConfigPath(name), cfg); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestDaemonLifecycle boots the whole fx graph against a fake bridge and
// drives it over the session socket.
func TestDaemonLifecycle(t *testing.T) {
	shortHome(t)
	bridgeSrv := fakeBridge(t)
	writeBridgeConfig(t, "main", bridgeSrv.URL)

	app := fx.New(Module(Params{SessionName: "main"}), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}

	if info, held := lock.Probe(session.Dir("main")); !held || info.Bridge != bridgeSrv.URL {
		t.Errorf("lock.Probe() = %+v, %v", info, held)
	}

	waitFor(t, "socket", func() bool {
		_, err := os.Stat(session.SocketPath("main"))
		return err == nil
	})
	client, err := api.Dial(session.SocketPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	// Credentials are on disk, so the daemon pairs on its own.
	waitFor(t, "auto-connect", func() bool {
		resp, err := client.Call(ctx, api.MethodGetStatus, nil)
		return err == nil && resp["state"] == "CONNECTED"
	})

	resp, err := client.Call(ctx, api.MethodListChats, nil)
	if err != nil {
		t.Fatalf("ListChats error = %v", err)
	}
	if chats, _ := resp["chats"].([]any); len(chats) != 1 {
		t.Fatalf("chats = %v", resp["chats"])
	}

	// The mirror catches up asynchronously.
	waitFor(t, "mirrored chat", func() bool {
		resp, err := client.Call(ctx, api.MethodListChats, map[string]any{"cached": true})
		chats, _ := resp["chats"].([]any)
		return err == nil && len(chats) == 1
	})

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("app.Stop() error = %v", err)
	}
	if _, err := os.Stat(session.SocketPath("main")); !os.IsNotExist(err) {
		t.Error("socket left behind after stop")
	}
	if _, held := lock.Probe(session.Dir("main")); held {
		t.Error("lock still held after stop")
	}
}

// TestDaemonStartsWithoutConfig verifies a fresh session still comes up and
// reports DISCONNECTED until it is configured.
func TestDaemonStartsWithoutConfig(t *testing.T) {
	home := shortHome(t)
	if err := config.Save(filepath.Join(home, "config.toml"), &config.Config{DefaultServerURL: "http://127.0.0.1:1"}); err != nil {
		t.Fatal(err)
	}

	app := fx.New(Module(Params{SessionName: "fresh"}), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}
	defer func() { _ = app.Stop(ctx) }()

	client, err := api.Dial(session.SocketPath("fresh"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	var resp map[string]any
	waitFor(t, "status", func() bool {
		resp, err = client.Call(ctx, api.MethodGetStatus, nil)
		return err == nil
	})
	if resp["state"] != "DISCONNECTED" || resp["server_url"] != "http://127.0.0.1:1" {
		t.Errorf("status = %v", resp)
	}
}

func TestSecondDaemonFails(t *testing.T) {
	shortHome(t)
	writeBridgeConfig(t, "main", "http://127.0.0.1:1")

	lk, err := lock.Acquire(session.Dir("main"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	app := fx.New(Module(Params{SessionName: "main"}), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected fx graph to fail while the lock is held")
	}
}

// TestNewServerUsesSocketOverride verifies NewServer binds the override path
// and cleans it up on Stop.
func TestNewServerUsesSocketOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "wpp-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")
	// A stale socket file from a crashed daemon must not block the listener.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	p := Params{SessionName: "fxtest", SocketPath: socketPath}
	srv, err := NewServer(p, zap.NewNop(), api.NewService(api.Deps{SessionName: "fxtest"}))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if srv.SocketPath() != socketPath {
		t.Errorf("SocketPath() = %q", srv.SocketPath())
	}
	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("socket perm = %v, want 0600", info.Mode().Perm())
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket left behind after Stop")
	}
}
