// Package health serves the liveness/readiness endpoints spec §4.10
// describes. Plain net/http: two boolean checks don't warrant pulling in
// a routed web framework the way kubePulse's internal/api does for a full
// REST surface.
package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/repository"
)

// Server serves /health and /ready.
type Server struct {
	Repo     *repository.Repository
	Log      *zap.SugaredLogger
	Addr     string
	Interval time.Duration

	AllowNonLoopback bool
	AuthToken        string

	server *http.Server
}

type statusBody struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Start binds Addr and serves until ctx is cancelled. Refuses to bind a
// non-loopback address unless AllowNonLoopback is set and an AuthToken is
// configured (spec §4.10: "refuse non-loopback bind without credentials or
// an explicit bypass flag").
func (s *Server) Start(ctx context.Context) error {
	if err := s.checkBindPolicy(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.withAuth(s.handleHealth))
	mux.HandleFunc("/ready", s.withAuth(s.handleReady))
	s.server = &http.Server{Addr: s.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) checkBindPolicy() error {
	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		host = s.Addr
	}
	if isLoopbackHost(host) {
		return nil
	}
	if s.AllowNonLoopback && s.AuthToken != "" {
		return nil
	}
	return &bindPolicyError{addr: s.Addr}
}

type bindPolicyError struct{ addr string }

func (e *bindPolicyError) Error() string {
	return "refusing to bind health server to non-loopback address " + e.addr + " without HEALTH_ALLOW_NON_LOOPBACK and HEALTH_AUTH_TOKEN set"
}

func isLoopbackHost(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AuthToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.AuthToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// handleHealth reports live if at least one sample has been recorded
// within 2*Interval (spec §4.10). CapturedAt is when Snapshot() was taken,
// not when the ping worker last actually ran, so staleness is checked
// against LastSampleAt instead — a dead ping worker goroutine otherwise
// never trips this check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.Repo.Snapshot()
	if !snap.HaveSample {
		writeStatus(w, http.StatusServiceUnavailable, "no samples recorded yet")
		return
	}
	if time.Since(snap.LastSampleAt) > 2*s.Interval {
		writeStatus(w, http.StatusServiceUnavailable, "stats repository has gone stale")
		return
	}
	writeStatus(w, http.StatusOK, "")
}

// handleReady additionally requires the ping worker to have completed its
// first tick (spec §4.10).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := s.Repo.Snapshot()
	if !snap.HaveSample {
		writeStatus(w, http.StatusServiceUnavailable, "no samples recorded yet")
		return
	}
	if !snap.PingWorkerReady {
		writeStatus(w, http.StatusServiceUnavailable, "ping worker has not completed its first tick")
		return
	}
	writeStatus(w, http.StatusOK, "")
}

func writeStatus(w http.ResponseWriter, code int, reason string) {
	status := "ok"
	if code != http.StatusOK {
		status = "unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(statusBody{Status: status, Reason: reason})
}
