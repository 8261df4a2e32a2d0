package session

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wpp", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestHomeOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(HomeEnv, tmp)
	if got := BridgeConfigPath("work"); got != filepath.Join(tmp, "sessions", "work", "bridge.toml") {
		t.Errorf("BridgeConfigPath(work) = %q", got)
	}
}

func TestSessionFiles(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("test"), filepath.Join("sessions", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("sessions", "test", "LOCK")},
		{"bridge config", BridgeConfigPath("test"), filepath.Join("sessions", "test", "bridge.toml")},
		{"env", EnvPath("test"), filepath.Join("sessions", "test", ".env")},
		{"app db", AppDBPath("test"), filepath.Join("sessions", "test", "wpp.db")},
		{"log", LogPath("test"), filepath.Join("sessions", "test", "logs", "wppd.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasSuffix(tt.got, tt.want) {
				t.Errorf("path = %q, want suffix %q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if names, err := List(); err != nil || len(names) != 0 {
		t.Fatalf("List() on empty home = %v, %v", names, err)
	}
	for _, name := range []string{"work", "main"} {
		if err := EnsureDir(name); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(LogDir("main"))
	if err != nil || !info.IsDir() {
		t.Fatalf("log dir not created: %v", err)
	}
	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"main", "work"}) {
		t.Errorf("List() = %v", names)
	}
}
