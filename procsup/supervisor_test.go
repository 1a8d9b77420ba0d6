package procsup

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSpawnOK(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	res, err := s.Spawn(context.Background(), []string{"echo", "hello"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != KindOK {
		t.Fatalf("expected KindOK, got %v", res.Kind)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
}

func TestSpawnNonZeroExit(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	res, err := s.Spawn(context.Background(), []string{"sh", "-c", "exit 3"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != KindOK {
		t.Fatalf("expected KindOK (exit code is the caller's concern), got %v", res.Kind)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestSpawnTimeout(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	start := time.Now()
	res, err := s.Spawn(context.Background(), []string{"sleep", "5"}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", res.Kind)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long to return: %s", elapsed)
	}
}

func TestSpawnEmptyArgv(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	_, err := s.Spawn(context.Background(), nil, time.Second)
	if err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestSpawnCancelledContext(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	res, err := s.Spawn(ctx, []string{"sleep", "5"}, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != KindKilled {
		t.Fatalf("expected KindKilled, got %v", res.Kind)
	}
}

func TestRegisteredDrainsAfterSpawn(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	if _, err := s.Spawn(context.Background(), []string{"echo", "hi"}, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Registered(); got != 0 {
		t.Fatalf("expected registry to be empty after spawn completes, got %d", got)
	}
}
