package alertpipe

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

func testPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	repo := repository.New(repository.DefaultConfig())
	notifier := NewNotifier(NotifyConfig{}, zap.NewNop().Sugar())
	return New(repo, notifier, zap.NewNop().Sugar(), cfg)
}

func TestRaiseStaysWithinRateLimitCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitBurst = 2
	cfg.RateLimitPerMinute = 6 // 1 per 10s, far slower than this test's wall time
	p := testPipeline(t, cfg)

	for i := 0; i < 10; i++ {
		p.Raise(model.KindHighLatency, model.SeverityWarning, "10.0.0.1", "latency high")
	}

	fps := p.Repo.ActiveAlertFingerprints()
	if len(fps) != 1 {
		t.Fatalf("expected exactly 1 alert entity, got %d", len(fps))
	}
	a, ok := p.Repo.ActiveAlert(fps[0])
	if !ok {
		t.Fatal("expected active alert")
	}
	// 1 creation + up to (burst-1) additional dedup bumps before the limiter
	// starts rejecting; never capacity-1 occurrences beyond the burst.
	if a.SuppressionCount >= 10 {
		t.Fatalf("SuppressionCount = %d, rate limiter should have capped well below 10 rapid calls", a.SuppressionCount)
	}
}

func TestClearRecoversAfterThreeFalseTicks(t *testing.T) {
	p := testPipeline(t, DefaultConfig())
	p.Raise(model.KindConnectionLost, model.SeverityCritical, "10.0.0.1", "connection lost")
	fp := p.Fingerprint(model.KindConnectionLost, "10.0.0.1")

	for i := 0; i < 2; i++ {
		p.Clear(fp)
		if _, ok := p.Repo.ActiveAlert(fp); !ok {
			t.Fatalf("tick %d: alert recovered too early", i)
		}
	}
	p.Clear(fp)
	if _, ok := p.Repo.ActiveAlert(fp); ok {
		t.Fatal("expected alert to recover after the 3rd consecutive Clear")
	}
}

func TestHoldResetsRecoveryStreak(t *testing.T) {
	p := testPipeline(t, DefaultConfig())
	p.Raise(model.KindConnectionLost, model.SeverityCritical, "10.0.0.1", "connection lost")
	fp := p.Fingerprint(model.KindConnectionLost, "10.0.0.1")

	p.Clear(fp)
	p.Clear(fp)
	p.Hold(fp)
	p.Clear(fp)
	p.Clear(fp)
	if _, ok := p.Repo.ActiveAlert(fp); !ok {
		t.Fatal("Hold should have reset the false-streak, alert should still be active after only 2 more Clears")
	}
}

func TestFingerprintOfIsStableAcrossSubjectFormatting(t *testing.T) {
	p := testPipeline(t, DefaultConfig())
	a := p.Fingerprint(model.KindHighLatency, "Host.Example.com")
	b := p.Fingerprint(model.KindHighLatency, "  host.example.com  ")
	if a != b {
		t.Fatal("fingerprint should be stable across case and whitespace differences")
	}

	c := p.Fingerprint(model.KindHighLatency, "other.example.com")
	if a == c {
		t.Fatal("different subjects should not collide")
	}

	d := p.Fingerprint(model.KindHighJitter, "Host.Example.com")
	if a == d {
		t.Fatal("different kinds with the same subject should not collide")
	}
}

func TestNearDuplicateJaccardFoldsIntoSameFingerprint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JaccardThreshold = 0.5
	p := testPipeline(t, cfg)

	p.Raise(model.KindHighLatency, model.SeverityWarning, "router hop 3 east coast", "latency high")
	p.Raise(model.KindHighLatency, model.SeverityWarning, "router hop 3 west coast", "latency high")

	fps := p.Repo.ActiveAlertFingerprints()
	if len(fps) != 1 {
		t.Fatalf("expected near-duplicate subjects to fold into 1 alert, got %d", len(fps))
	}
}

func TestEscalateAgedEscalatesPriorityOverTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EscalationAfter = time.Minute
	p := testPipeline(t, cfg)

	old := time.Now().Add(-2 * time.Hour)
	alert := p.Repo.AddAlert(p.Fingerprint(model.KindHighLatency, "10.0.0.1"), model.KindHighLatency, model.SeverityWarning, model.PriorityLow, "10.0.0.1", "msg", old)
	if alert.Priority != model.PriorityLow {
		t.Fatalf("setup: priority = %q, want %q", alert.Priority, model.PriorityLow)
	}

	p.EscalateAged(time.Now())

	escalated, ok := p.Repo.ActiveAlert(alert.Fingerprint)
	if !ok {
		t.Fatal("expected alert to still be active")
	}
	if escalated.Priority == model.PriorityLow {
		t.Fatal("expected priority to escalate past low once older than EscalationAfter")
	}
}

func TestSuppressedByGroupSuppressesRootCauseMembers(t *testing.T) {
	p := testPipeline(t, DefaultConfig())
	p.Raise(model.KindConnectionLost, model.SeverityCritical, "10.0.0.1", "connection lost")

	if !p.suppressedByGroup(model.KindHighLatency) {
		t.Fatal("expected KindHighLatency to be suppressed as a member of the connection_lost root-cause group")
	}
	if p.suppressedByGroup(model.KindConnectionLost) {
		t.Fatal("a leader kind must never suppress itself")
	}
}

func TestQuietHoursWrapsMidnight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QuietHoursEnabled = true
	cfg.QuietHoursStart = 22
	cfg.QuietHoursEnd = 6
	p := testPipeline(t, cfg)

	wrap := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	if !p.inQuietHours(wrap) {
		t.Fatal("23:00 should be within a 22-6 quiet-hours window")
	}
	notQuiet := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if p.inQuietHours(notQuiet) {
		t.Fatal("noon should not be within a 22-6 quiet-hours window")
	}
}
