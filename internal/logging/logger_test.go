package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithSessionFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wppd.log")
	logger, err := New(path, "work")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(strings.Split(string(raw), "\n")[0])
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line %q: %v", line, err)
	}
	if entry["msg"] != "hello" || entry["session"] != "work" || entry["pid"] == nil {
		t.Errorf("entry = %v", entry)
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(LevelEnv, "warn")
	path := filepath.Join(t.TempDir(), "wppd.log")
	logger, err := New(path, "main")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "dropped") || !strings.Contains(string(raw), "kept") {
		t.Errorf("log = %s", raw)
	}
}
