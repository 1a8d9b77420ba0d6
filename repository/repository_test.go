package repository

import (
	"testing"
	"time"

	"github.com/netwatch/netwatch/model"
)

func testConfig() Config {
	return Config{
		LatencyWindowSize:        10,
		LossWindowSize:           10,
		ConsecutiveLossThreshold: 3,
		MTUIssueConsecutive:      3,
		MTUClearConsecutive:      3,
		RouteChangeConsecutive:   2,
		DNSBenchmarkHistorySize:  10,
		AlertHistorySize:         10,
		RecurringWindow:          time.Hour,
	}
}

func TestRecordPingCountersInvariant(t *testing.T) {
	r := New(testConfig())
	now := time.Now()
	for i, ok := range []bool{true, false, true, false, false} {
		r.RecordPing(model.Sample{SentAt: now.Add(time.Duration(i) * time.Second), OK: ok, RTTMs: 10})
	}
	snap := r.Snapshot()
	if snap.Counters.Sent != snap.Counters.OK+snap.Counters.Lost {
		t.Fatalf("sent %d != ok %d + lost %d", snap.Counters.Sent, snap.Counters.OK, snap.Counters.Lost)
	}
	if snap.Counters.ConsecutiveLost > snap.Counters.Lost {
		t.Fatalf("consecutive_lost %d > lost %d", snap.Counters.ConsecutiveLost, snap.Counters.Lost)
	}
}

func TestRecordPingConnectionLostTransition(t *testing.T) {
	r := New(testConfig())
	now := time.Now()

	for i := 0; i < 2; i++ {
		changed := r.RecordPing(model.Sample{SentAt: now, OK: false})
		if changed {
			t.Fatalf("tick %d: connection-lost flipped early", i)
		}
	}
	changed := r.RecordPing(model.Sample{SentAt: now, OK: false})
	if !changed {
		t.Fatal("expected connection-lost to flip true on the 3rd consecutive failure")
	}
	if !r.Snapshot().ConnectionLost {
		t.Fatal("expected ConnectionLost true")
	}

	changed = r.RecordPing(model.Sample{SentAt: now, OK: true})
	if !changed {
		t.Fatal("expected connection-lost to flip false on a single recovered sample")
	}
	if r.Snapshot().ConnectionLost {
		t.Fatal("expected ConnectionLost false after recovery")
	}
}

func TestUpdateMTUHysteresisFirstCallBypassesHysteresis(t *testing.T) {
	r := New(testConfig())
	changed, newState := r.UpdateMTUHysteresis(true, 1500, 1400)
	if !changed || !newState {
		t.Fatalf("first call: changed=%v newState=%v, want true/true", changed, newState)
	}
}

func TestUpdateMTUHysteresisRequiresConsecutive(t *testing.T) {
	r := New(testConfig())
	r.UpdateMTUHysteresis(false, 1500, 1500) // establish baseline, not in issue state

	for i := 0; i < 2; i++ {
		changed, _ := r.UpdateMTUHysteresis(true, 1500, 1400)
		if changed {
			t.Fatalf("tick %d: flipped before %d consecutive issues", i, testConfig().MTUIssueConsecutive)
		}
	}
	changed, newState := r.UpdateMTUHysteresis(true, 1500, 1400)
	if !changed || !newState {
		t.Fatalf("3rd consecutive issue: changed=%v newState=%v, want true/true", changed, newState)
	}

	for i := 0; i < 2; i++ {
		changed, _ := r.UpdateMTUHysteresis(false, 1500, 1500)
		if changed {
			t.Fatalf("clear tick %d: flipped before %d consecutive clears", i, testConfig().MTUClearConsecutive)
		}
	}
	changed, newState = r.UpdateMTUHysteresis(false, 1500, 1500)
	if !changed || newState {
		t.Fatalf("3rd consecutive clear: changed=%v newState=%v, want true/false", changed, newState)
	}
}

func TestUpdateRouteHysteresisRequiresConsecutiveConfirmation(t *testing.T) {
	r := New(testConfig())

	changed, run := r.UpdateRouteHysteresis(0)
	if changed {
		t.Fatal("initial fingerprint 0 should match the zero-value route and not count as a change")
	}
	_ = run

	changed, run = r.UpdateRouteHysteresis(42)
	if changed {
		t.Fatalf("1st detection of a new fingerprint: changed=%v, want false (needs %d consecutive)", changed, testConfig().RouteChangeConsecutive)
	}
	if run != 1 {
		t.Fatalf("pending run = %d, want 1", run)
	}

	changed, run = r.UpdateRouteHysteresis(42)
	if !changed {
		t.Fatal("2nd identical detection should commit the route change")
	}
	if run != 2 {
		t.Fatalf("committed run = %d, want 2", run)
	}

	// A later identical fingerprint is a no-op, not a new change.
	changed, _ = r.UpdateRouteHysteresis(42)
	if changed {
		t.Fatal("re-detecting the already-committed fingerprint should not report a change")
	}
}

func TestUpdateRouteHysteresisDifferentCandidatesDoNotAccumulate(t *testing.T) {
	r := New(testConfig())
	r.UpdateRouteHysteresis(1)
	changed, run := r.UpdateRouteHysteresis(2)
	if changed {
		t.Fatal("switching candidates mid-confirmation should not commit")
	}
	if run != 1 {
		t.Fatalf("new candidate's run = %d, want 1 (should reset, not accumulate with the previous candidate)", run)
	}
}

func TestAddAlertDedupBumpsSuppressionCount(t *testing.T) {
	r := New(testConfig())
	now := time.Now()

	a1 := r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityMedium, "host", "msg", now)
	if a1.SuppressionCount != 0 {
		t.Fatalf("first AddAlert: SuppressionCount = %d, want 0", a1.SuppressionCount)
	}

	a2 := r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityMedium, "host", "msg", now.Add(time.Second))
	if a2.SuppressionCount != 1 {
		t.Fatalf("second AddAlert for same fingerprint: SuppressionCount = %d, want 1", a2.SuppressionCount)
	}
	if a2.ID != a1.ID {
		t.Fatal("dedup should reuse the existing alert entity, not mint a new ID")
	}
}

func TestAddAlertSeverityIsMonotonic(t *testing.T) {
	r := New(testConfig())
	now := time.Now()

	r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityMedium, "host", "msg", now)
	a := r.AddAlert(1, model.KindHighLatency, model.SeverityInfo, model.PriorityMedium, "host", "msg", now)
	if a.Severity != model.SeverityWarning {
		t.Fatalf("severity downgraded to %q, want it to stay at the higher %q", a.Severity, model.SeverityWarning)
	}

	a = r.AddAlert(1, model.KindHighLatency, model.SeverityCritical, model.PriorityMedium, "host", "msg", now)
	if a.Severity != model.SeverityCritical {
		t.Fatalf("severity = %q, want upgrade to %q", a.Severity, model.SeverityCritical)
	}
}

func TestAddAlertPriorityIsMonotonic(t *testing.T) {
	r := New(testConfig())
	now := time.Now()

	r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityLow, "host", "msg", now)
	a := r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityMedium, "host", "msg", now)
	if a.Priority != model.PriorityMedium {
		t.Fatalf("priority = %q, want escalation to %q", a.Priority, model.PriorityMedium)
	}

	a = r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityLow, "host", "msg", now)
	if a.Priority != model.PriorityMedium {
		t.Fatalf("priority downgraded to %q, want it to stay at %q", a.Priority, model.PriorityMedium)
	}
}

func TestNoteConditionFalseRecoversAfterThreeTicks(t *testing.T) {
	r := New(testConfig())
	now := time.Now()
	r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityMedium, "host", "msg", now)

	for i := 0; i < 2; i++ {
		if recovered := r.NoteConditionFalse(1, now); recovered {
			t.Fatalf("tick %d: recovered too early", i)
		}
	}
	if recovered := r.NoteConditionFalse(1, now); !recovered {
		t.Fatal("expected recovery on the 3rd consecutive false tick")
	}
	if _, ok := r.ActiveAlert(1); ok {
		t.Fatal("recovered alert should no longer be active")
	}
}

func TestNoteConditionTrueResetsFalseStreak(t *testing.T) {
	r := New(testConfig())
	now := time.Now()
	r.AddAlert(1, model.KindHighLatency, model.SeverityWarning, model.PriorityMedium, "host", "msg", now)

	r.NoteConditionFalse(1, now)
	r.NoteConditionTrue(1)
	r.NoteConditionFalse(1, now)
	r.NoteConditionFalse(1, now)
	if _, ok := r.ActiveAlert(1); !ok {
		t.Fatal("NoteConditionTrue should have reset the streak, alert should still be active")
	}
}

func TestSnapshotIsIndependentOfSubsequentWrites(t *testing.T) {
	r := New(testConfig())
	r.RecordPing(model.Sample{SentAt: time.Now(), OK: true, RTTMs: 10})
	snap := r.Snapshot()
	before := snap.Counters.Sent

	r.RecordPing(model.Sample{SentAt: time.Now(), OK: true, RTTMs: 10})

	if snap.Counters.Sent != before {
		t.Fatal("a previously taken snapshot must not observe later writes")
	}
}
