// Package procsup owns every external subprocess the monitor spawns —
// ping, ping6, traceroute, tracert (spec §4.3). It mirrors the collector
// package's runCmd helper (a single CommandContext call with a hard
// timeout), generalized into a registry that the caller can ask to
// terminate everything on shutdown.
package procsup

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind classifies how a spawned process finished.
type Kind int

const (
	KindOK Kind = iota
	KindTimeout
	KindKilled
	KindSpawnError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindTimeout:
		return "timeout"
	case KindKilled:
		return "killed"
	case KindSpawnError:
		return "spawn-error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Spawn call (spec §4.3).
type Result struct {
	Stdout   string
	ExitCode int
	Kind     Kind
}

type handle struct {
	cmd     *exec.Cmd
	argv    []string
	started time.Time
}

// Supervisor owns a registry of in-flight subprocesses keyed by an
// insertion-order handle ID, guarded by its own lock distinct from the
// repository's (spec §5 "the process registry uses its own lock").
type Supervisor struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	next    int64
	running map[int64]*handle
}

// New creates an empty Supervisor.
func New(log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{log: log, running: make(map[int64]*handle)}
}

// Spawn runs argv with a hard wall-clock timeout (spec §4.3). On timeout the
// process is terminated and its process group is killed so descendants are
// reaped too (see supervisor_unix.go / supervisor_windows.go).
func (s *Supervisor) Spawn(ctx context.Context, argv []string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{Kind: KindSpawnError}, errEmptyArgv
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	setDetached(cmd)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return Result{Kind: KindSpawnError}, err
	}

	id := s.register(cmd, argv)
	defer s.unregister(id)

	err := cmd.Wait()

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		killProcessGroup(cmd)
		return Result{Stdout: out.String(), Kind: KindTimeout}, nil
	case ctx.Err() == context.Canceled:
		killProcessGroup(cmd)
		return Result{Stdout: out.String(), Kind: KindKilled}, nil
	case err != nil:
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return Result{Stdout: out.String(), ExitCode: exitCode, Kind: KindOK}, nil
	default:
		return Result{Stdout: out.String(), ExitCode: 0, Kind: KindOK}, nil
	}
}

func (s *Supervisor) register(cmd *exec.Cmd, argv []string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.running[id] = &handle{cmd: cmd, argv: argv, started: time.Now()}
	return id
}

func (s *Supervisor) unregister(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// Shutdown force-kills every tracked subprocess (its process group on
// Unix) at once, then waits the full grace period and logs how many are
// still registered (spec §4.3, §5 "shutdown discipline"). There is no
// gentler termination step before the kill.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.mu.Lock()
	handles := make([]*handle, 0, len(s.running))
	for _, h := range s.running {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	if len(handles) == 0 {
		return
	}

	for _, h := range handles {
		killProcessGroup(h.cmd)
	}

	deadline := time.After(grace)
	<-deadline
	s.mu.Lock()
	remaining := len(s.running)
	s.mu.Unlock()
	if remaining > 0 {
		s.log.Warnw("subprocesses still registered after shutdown grace", "count", remaining)
	}
}

// Registered reports how many subprocesses are currently tracked, for
// health/readiness diagnostics.
func (s *Supervisor) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

var errEmptyArgv = spawnError("empty argv")

type spawnError string

func (e spawnError) Error() string { return string(e) }
