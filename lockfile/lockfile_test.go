package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwatch.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("unexpected error acquiring lock: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("unexpected error releasing lock: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected lock file to be removed after release")
	}
}

func TestAcquireFailsWhileHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwatch.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Release()

	if _, err := Acquire(path); err == nil {
		t.Fatal("expected second acquire to fail while this process holds the lock")
	}
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwatch.lock")
	data, _ := json.Marshal(payload{PID: 999999999, StartedAt: time.Now()})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("unexpected error writing stale lock: %v", err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed, got: %v", err)
	}
	defer l.Release()
}
