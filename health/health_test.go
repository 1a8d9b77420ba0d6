package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

func newTestServer(t *testing.T) (*Server, *repository.Repository) {
	t.Helper()
	repo := repository.New(repository.DefaultConfig())
	return &Server{Repo: repo, Log: zap.NewNop().Sugar(), Interval: time.Second}, repo
}

func TestHealthUnavailableBeforeFirstSample(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first sample, got %d", w.Code)
	}
}

func TestHealthOKAfterSample(t *testing.T) {
	s, repo := newTestServer(t)
	repo.RecordPing(model.Sample{SentAt: time.Now(), OK: true, RTTMs: 5})

	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after a sample, got %d", w.Code)
	}
}

func TestHealthUnavailableWhenSamplesGoStale(t *testing.T) {
	s, repo := newTestServer(t)
	repo.RecordPing(model.Sample{SentAt: time.Now().Add(-10 * time.Second), OK: true, RTTMs: 5})

	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once last sample is older than 2*Interval, got %d", w.Code)
	}
}

func TestReadyRequiresPingWorker(t *testing.T) {
	s, repo := newTestServer(t)
	repo.RecordPing(model.Sample{SentAt: time.Now(), OK: true, RTTMs: 5})

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ping worker ready, got %d", w.Code)
	}

	repo.MarkPingWorkerReady()
	w2 := httptest.NewRecorder()
	s.handleReady(w2, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 once ping worker is ready, got %d", w2.Code)
	}
}

func TestBindPolicyRefusesNonLoopbackWithoutAuth(t *testing.T) {
	s := &Server{Addr: "0.0.0.0:9110"}
	if err := s.checkBindPolicy(); err == nil {
		t.Fatal("expected bind policy error for non-loopback addr without auth")
	}

	s2 := &Server{Addr: "0.0.0.0:9110", AllowNonLoopback: true, AuthToken: "secret"}
	if err := s2.checkBindPolicy(); err != nil {
		t.Fatalf("expected bind allowed once auth + bypass set, got: %v", err)
	}

	s3 := &Server{Addr: "127.0.0.1:9110"}
	if err := s3.checkBindPolicy(); err != nil {
		t.Fatalf("loopback bind should never require auth: %v", err)
	}
}
