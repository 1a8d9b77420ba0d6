// Package probe implements every periodic probe worker the monitor runs:
// ping (which also parses TTL every TTLEvery ticks), DNS monitor/benchmark,
// MTU, public IP, version poll, route detector, and hop prober (spec
// §4.4–§4.7). Every worker except the cron-driven VersionPoller satisfies
// orchestrator.Worker and commits its results to a *repository.Repository
// through typed methods — workers never share state with each other
// directly.
package probe

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/procsup"
	"github.com/netwatch/netwatch/repository"
)

var rttPattern = regexp.MustCompile(`(?i)time[=<]([0-9.]+)\s*ms`)
var ttlPattern = regexp.MustCompile(`(?i)ttl[=:]\s*(\d+)`)

// Classifier is the subset of classify.Classifier the ping worker needs, to
// avoid an import cycle between probe and classify.
type Classifier interface {
	EvaluateNow(ctx context.Context)
}

// IncidentHook is notified on every connection-state transition, so the
// caller can trigger an out-of-cycle traceroute and persist a snapshot of
// it (spec §6 "auto-traceroute on loss", "Persisted state").
type IncidentHook interface {
	NoteConnectionTransition(ctx context.Context, lost bool)
}

// PingWorker sends one ping per tick to Target (spec §4.4).
type PingWorker struct {
	Repo       *repository.Repository
	Sup        *procsup.Supervisor
	Log        *zap.SugaredLogger
	Target     string
	Interval   time.Duration
	TTLEvery   int // piggyback a TTL parse every N ticks
	Classifier Classifier // may be nil; synchronous re-evaluation on state change
	Alerts     AlertRaiser // may be nil; drives connection/latency/jitter/loss conditions
	Incident   IncidentHook // may be nil; fires on connection-state transitions

	tickCount int
}

func (w *PingWorker) Name() string          { return "ping" }
func (w *PingWorker) Period() time.Duration { return w.Interval }

// RunOnce sends one ping, parses its result, and commits the sample (spec
// §4.4 steps 1-4).
func (w *PingWorker) RunOnce(ctx context.Context) error {
	argv := pingArgv(w.Target, w.Interval)
	res, err := w.Sup.Spawn(ctx, argv, w.Interval)
	if err != nil {
		w.commit(ctx, model.Sample{SentAt: time.Now(), OK: false, ErrKind: model.ErrUnreach})
		return err
	}

	sample := parsePingResult(res, time.Now())
	w.commit(ctx, sample)
	w.evaluateAlerts(sample)

	w.tickCount++
	if w.TTLEvery > 0 && w.tickCount%w.TTLEvery == 0 {
		if m := ttlPattern.FindStringSubmatch(res.Stdout); len(m) == 2 {
			if ttl, convErr := strconv.Atoi(m[1]); convErr == nil {
				w.Repo.RecordTTL(ttl)
			}
		}
	}
	return nil
}

// evaluateAlerts feeds the smart-alert pipeline's adaptive baselines and
// raises or clears every ping-derived condition (spec §4.9 stage 1,
// connection_lost/packet_loss/high_latency/high_jitter).
func (w *PingWorker) evaluateAlerts(s model.Sample) {
	if w.Alerts == nil {
		return
	}
	snap := w.Repo.Snapshot()

	connFP := w.Alerts.Fingerprint(model.KindConnectionLost, w.Target)
	if snap.ConnectionLost {
		w.Alerts.Raise(model.KindConnectionLost, model.SeverityCritical, w.Target,
			fmt.Sprintf("connection to %s lost after %d consecutive failed pings", w.Target, snap.Counters.ConsecutiveLost))
	} else {
		w.Alerts.Clear(connFP)
	}

	if s.OK {
		w.Alerts.ObserveMetric(model.MetricAvgLatency, snap.Latency.Avg)
		w.Alerts.ObserveMetric(model.MetricJitter, snap.Latency.Jitter)
	}
	w.Alerts.ObserveMetric(model.MetricLoss, snap.LossRatio30m)

	latFP := w.Alerts.Fingerprint(model.KindHighLatency, w.Target)
	if latThresh := w.Alerts.Threshold(model.MetricAvgLatency); snap.Latency.Avg > latThresh {
		w.Alerts.Raise(model.KindHighLatency, model.SeverityWarning, w.Target,
			fmt.Sprintf("average latency %.1fms to %s exceeds %.1fms", snap.Latency.Avg, w.Target, latThresh))
	} else {
		w.Alerts.Clear(latFP)
	}

	jitFP := w.Alerts.Fingerprint(model.KindHighJitter, w.Target)
	if jitThresh := w.Alerts.Threshold(model.MetricJitter); snap.Latency.Jitter > jitThresh {
		w.Alerts.Raise(model.KindHighJitter, model.SeverityWarning, w.Target,
			fmt.Sprintf("jitter %.1fms to %s exceeds %.1fms", snap.Latency.Jitter, w.Target, jitThresh))
	} else {
		w.Alerts.Clear(jitFP)
	}

	lossFP := w.Alerts.Fingerprint(model.KindPacketLoss, w.Target)
	if lossThresh := w.Alerts.Threshold(model.MetricLoss); snap.LossRatio30m > lossThresh {
		w.Alerts.Raise(model.KindPacketLoss, model.SeverityWarning, w.Target,
			fmt.Sprintf("packet loss %.1f%% to %s over the last 30m exceeds %.1f%%", snap.LossRatio30m*100, w.Target, lossThresh*100))
	} else {
		w.Alerts.Clear(lossFP)
	}
}

func (w *PingWorker) commit(ctx context.Context, s model.Sample) {
	changed := w.Repo.RecordPing(s)
	w.Repo.MarkPingWorkerReady()
	if changed {
		if w.Classifier != nil {
			// Synchronous re-evaluation on a connection-state transition avoids
			// a stale-UI window (spec §4.4 step 4).
			w.Classifier.EvaluateNow(ctx)
		}
		if w.Incident != nil {
			w.Incident.NoteConnectionTransition(ctx, w.Repo.Snapshot().ConnectionLost)
		}
	}
}

// parsePingResult applies spec §4.4's policy: a non-zero exit code is
// always a failure, even if the output happens to contain a latency-looking
// number (some platforms print "time=0 ms" on timeout).
func parsePingResult(res procsup.Result, sentAt time.Time) model.Sample {
	switch res.Kind {
	case procsup.KindTimeout:
		return model.Sample{SentAt: sentAt, OK: false, ErrKind: model.ErrTimeout}
	case procsup.KindKilled:
		return model.Sample{SentAt: sentAt, OK: false, ErrKind: model.ErrCancelled}
	case procsup.KindSpawnError:
		return model.Sample{SentAt: sentAt, OK: false, ErrKind: model.ErrUnreach}
	}
	if res.ExitCode != 0 {
		return model.Sample{SentAt: sentAt, OK: false, ErrKind: model.ErrUnreach}
	}
	m := rttPattern.FindStringSubmatch(res.Stdout)
	if len(m) != 2 {
		return model.Sample{SentAt: sentAt, OK: false, ErrKind: model.ErrParse}
	}
	rtt, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return model.Sample{SentAt: sentAt, OK: false, ErrKind: model.ErrParse}
	}
	return model.Sample{SentAt: sentAt, OK: true, RTTMs: rtt}
}

// pingArgv builds an OS-specific single-ping command whose wait bound is
// interval in whole seconds, never less than one second (so a sub-second
// interval still gets a one-second wait), and, where possible, no DNS
// resolution on the argv itself (spec §4.4 step 1 — the caller already
// resolved Target if needed).
func pingArgv(target string, interval time.Duration) []string {
	waitSec := int(interval / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}
	switch runtime.GOOS {
	case "windows":
		return []string{"ping", "-n", "1", "-w", strconv.Itoa(waitSec * 1000), target}
	case "darwin":
		return []string{"ping", "-c", "1", "-t", strconv.Itoa(waitSec), target}
	default: // linux and other unix variants
		return []string{"ping", "-c", "1", "-W", strconv.Itoa(waitSec), target}
	}
}
