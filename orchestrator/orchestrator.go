// Package orchestrator runs a fixed set of periodic background workers on
// their own scheduling goroutines (spec §4.2). It never owns domain state —
// workers commit their own deltas to the repository — so the orchestrator
// itself stays a thin, swappable scheduling primitive, the same role
// Ticker/RunDaemon play for the host-metrics engine this module is modeled
// on.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is the contract every periodic probe implements (spec §4.2).
// RunOnce must itself respect ctx: on cancellation it should return promptly
// (spec §5 "every suspended worker must observe the signal within ≤2s").
type Worker interface {
	Name() string
	Period() time.Duration
	RunOnce(ctx context.Context) error
}

// Orchestrator registers Workers and runs each on its own ticker goroutine,
// honoring Period() as "fire no faster than" (spec §4.2).
type Orchestrator struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	workers []Worker

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an Orchestrator logging through log.
func New(log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{log: log}
}

// Register adds w to the set run by the next call to Run. Registering after
// Run has started has no effect — workers are fixed for the process
// lifetime (spec.md names no dynamic registration).
func (o *Orchestrator) Register(w Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers = append(o.workers, w)
}

// Run starts every registered worker on its own scheduling goroutine and
// blocks until ctx is cancelled. On a worker's RunOnce error, the error is
// logged and the next tick is scheduled as usual — a single bad tick never
// aborts the worker (spec §4.2).
func (o *Orchestrator) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	workers := append([]Worker(nil), o.workers...)
	o.mu.Unlock()

	for _, w := range workers {
		o.wg.Add(1)
		go o.runWorker(runCtx, w)
	}
	<-runCtx.Done()
}

func (o *Orchestrator) runWorker(ctx context.Context, w Worker) {
	defer o.wg.Done()

	ticker := time.NewTicker(w.Period())
	defer ticker.Stop()

	o.tick(ctx, w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx, w)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context, w Worker) {
	if err := w.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return // shutting down; not a worker failure
		}
		o.log.Warnw("worker tick failed", "worker", w.Name(), "error", err)
	}
}

// Shutdown signals cancellation and waits up to grace for every in-flight
// RunOnce to return (spec §4.2 "awaits all in-flight run_once invocations up
// to a bounded deadline"). It does not itself terminate subprocesses — the
// caller is expected to ask the process supervisor to do that once Shutdown
// returns, per spec §4.2's division of responsibility.
func (o *Orchestrator) Shutdown(grace time.Duration) {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		o.log.Warn("orchestrator shutdown grace period elapsed with workers still running")
	}
}
