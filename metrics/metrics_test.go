package metrics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

func TestRunOnceAdvancesCounterDeltas(t *testing.T) {
	repo := repository.New(repository.DefaultConfig())
	e := New(repo, zap.NewNop().Sugar(), "127.0.0.1:0")

	repo.RecordPing(model.Sample{SentAt: time.Now(), OK: true, RTTMs: 10})
	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.lastSent != 1 {
		t.Fatalf("expected lastSent=1, got %d", e.lastSent)
	}

	repo.RecordPing(model.Sample{SentAt: time.Now(), OK: false})
	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.lastSent != 2 || e.lastLost != 1 {
		t.Fatalf("expected sent=2 lost=1, got sent=%d lost=%d", e.lastSent, e.lastLost)
	}
}

func TestNameAndPeriod(t *testing.T) {
	e := &Exporter{}
	if e.Name() == "" {
		t.Fatal("expected non-empty name")
	}
	if e.Period() <= 0 {
		t.Fatal("expected positive period")
	}
}
