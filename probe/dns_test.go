package probe

import (
	"testing"
	"time"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

func TestMaxParallelDefault(t *testing.T) {
	if got := maxParallel(0); got != 4 {
		t.Fatalf("expected default 4, got %d", got)
	}
	if got := maxParallel(10); got != 10 {
		t.Fatalf("expected passthrough 10, got %d", got)
	}
}

func TestUpdateScoreAllHealthyIsNearPerfect(t *testing.T) {
	repo := repository.New(repository.DefaultConfig())
	repo.RecordDNS("A", "1.1.1.1:53", true, 20*time.Millisecond, 1, "")
	repo.RecordDNS("AAAA", "1.1.1.1:53", true, 20*time.Millisecond, 1, "")
	repo.RecordDNSBenchmark("1.1.1.1:53", model.BenchCached, true, 20)
	repo.RecordDNSBenchmark("1.1.1.1:53", model.BenchUncached, true, 20)
	repo.RecordDNSBenchmark("1.1.1.1:53", model.BenchDotCom, true, 20)

	m := &DNSMonitor{Repo: repo, Server: "1.1.1.1:53", SlowThresholdMs: 200}
	m.updateScore()

	score := repo.Snapshot().DnsScore
	if score < 90 {
		t.Fatalf("expected a near-perfect score for a fully healthy server, got %.1f", score)
	}
}

func TestUpdateScoreDegradesOnFailuresAndSlowLatency(t *testing.T) {
	repo := repository.New(repository.DefaultConfig())
	repo.RecordDNS("A", "1.1.1.1:53", false, 200*time.Millisecond, 0, "timeout")
	repo.RecordDNSBenchmark("1.1.1.1:53", model.BenchCached, false, 0)
	repo.RecordDNSBenchmark("1.1.1.1:53", model.BenchUncached, true, 400)

	m := &DNSMonitor{Repo: repo, Server: "1.1.1.1:53", SlowThresholdMs: 200}
	m.updateScore()

	score := repo.Snapshot().DnsScore
	if score > 50 {
		t.Fatalf("expected a poor score for a failing, slow server, got %.1f", score)
	}
}

func TestUpdateScoreIsScopedPerServer(t *testing.T) {
	repo := repository.New(repository.DefaultConfig())
	repo.RecordDNS("A", "1.1.1.1:53", true, 10*time.Millisecond, 1, "")
	repo.RecordDNS("A", "8.8.8.8:53", false, 0, 0, "timeout")

	m := &DNSMonitor{Repo: repo, Server: "1.1.1.1:53", SlowThresholdMs: 200}
	m.updateScore()

	score := repo.Snapshot().DnsScore
	if score < 90 {
		t.Fatalf("expected 1.1.1.1's score unaffected by 8.8.8.8's failures, got %.1f", score)
	}
}

func TestRandomSubdomainIsUnique(t *testing.T) {
	a := randomSubdomain()
	b := randomSubdomain()
	if a == b {
		t.Fatal("expected distinct random subdomains across calls")
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars (8 bytes), got %d", len(a))
	}
}
