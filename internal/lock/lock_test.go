package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "http://bridge:21465")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, FileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	info := parse(string(data))
	if info.PID != os.Getpid() || info.Bridge != "http://bridge:21465" || info.Acquired.IsZero() {
		t.Errorf("lock info = %+v", info)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, FileName)); !os.IsNotExist(err) {
		t.Error("lock file left behind after Release")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir, "")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir, "")
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var lockErr *LockHeldError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockHeldError, got %T: %v", err, err)
	}
	if lockErr.PID != os.Getpid() {
		t.Errorf("holder pid = %d, want %d", lockErr.PID, os.Getpid())
	}
}

func TestProbe(t *testing.T) {
	tmpDir := t.TempDir()
	if _, held := Probe(tmpDir); held {
		t.Fatal("Probe() on empty dir reports held")
	}

	l, err := Acquire(tmpDir, "http://b")
	if err != nil {
		t.Fatal(err)
	}
	info, held := Probe(tmpDir)
	if !held || info.Bridge != "http://b" {
		t.Errorf("Probe() = %+v, %v while held", info, held)
	}

	_ = l.Release()
	if _, held := Probe(tmpDir); held {
		t.Error("Probe() reports held after Release")
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := Acquire(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
