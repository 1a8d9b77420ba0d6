package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingWorker struct {
	name      string
	period    time.Duration
	ticks     int64
	failEvery int64
	calls     int64
}

func (w *countingWorker) Name() string          { return w.name }
func (w *countingWorker) Period() time.Duration { return w.period }
func (w *countingWorker) RunOnce(ctx context.Context) error {
	atomic.AddInt64(&w.ticks, 1)
	n := atomic.AddInt64(&w.calls, 1)
	if w.failEvery > 0 && n%w.failEvery == 0 {
		return errTick
	}
	return nil
}

var errTick = errTickType{}

type errTickType struct{}

func (errTickType) Error() string { return "induced tick failure" }

func TestOrchestratorRunsRegisteredWorkers(t *testing.T) {
	o := New(zap.NewNop().Sugar())
	w := &countingWorker{name: "w1", period: 5 * time.Millisecond}
	o.Register(w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt64(&w.ticks) < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", w.ticks)
	}
}

func TestOrchestratorSurvivesWorkerError(t *testing.T) {
	o := New(zap.NewNop().Sugar())
	w := &countingWorker{name: "flaky", period: 5 * time.Millisecond, failEvery: 2}
	o.Register(w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	// A failing tick must not stop subsequent ticks from firing.
	if atomic.LoadInt64(&w.calls) < 4 {
		t.Fatalf("expected worker to keep ticking after failures, got %d calls", w.calls)
	}
}

func TestOrchestratorShutdownRespectsGrace(t *testing.T) {
	o := New(zap.NewNop().Sugar())
	blocking := &blockingWorker{release: make(chan struct{})}
	o.Register(blocking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	o.Shutdown(30 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("Shutdown did not respect grace deadline, took %s", elapsed)
	}
	close(blocking.release)
}

type blockingWorker struct {
	release chan struct{}
	ran     int32
}

func (b *blockingWorker) Name() string          { return "blocking" }
func (b *blockingWorker) Period() time.Duration { return time.Hour }
func (b *blockingWorker) RunOnce(ctx context.Context) error {
	if atomic.AddInt32(&b.ran, 1) == 1 {
		<-b.release
	}
	return nil
}
