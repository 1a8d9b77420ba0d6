// Package classify implements the problem classifier: a top-down rule
// table over a snapshot of repository evidence, producing an exclusive
// ProblemKind plus a stable/risk prediction (spec §4.8). It is grounded on
// the teacher's ordered-evidence bottleneck analysis — a fixed table of
// detectors evaluated in priority order, first match wins — generalized
// from "which subsystem is the bottleneck" to "which network condition
// explains current symptoms".
package classify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

// Thresholds bounds the classifier's rule table (spec §6).
type Thresholds struct {
	ConsecutiveLostThreshold int64
	Loss30mThreshold         float64
	FirstHopLossThreshold    float64
	DNSScorePoorCutoff       float64 // DNS score <= this counts as degraded (the default 50 itself buckets as "fair")
	PingLossThreshold        float64
	RecurringWindow          time.Duration
	RecurringCount           int
}

// DefaultThresholds mirrors the repository's defaults where the two
// overlap (spec §6).
func DefaultThresholds() Thresholds {
	return Thresholds{
		ConsecutiveLostThreshold: 5,
		Loss30mThreshold:         0.05,
		FirstHopLossThreshold:    0.3,
		DNSScorePoorCutoff:       50,
		PingLossThreshold:        0.02,
		RecurringWindow:          time.Hour,
		RecurringCount:           3,
	}
}

// Classifier periodically evaluates repository evidence and writes the
// result back (spec §4.8). It also exposes EvaluateNow for the ping
// worker's synchronous re-evaluation on connection-state transitions
// (spec §4.4 step 4).
type Classifier struct {
	Repo       *repository.Repository
	Log        *zap.SugaredLogger
	Thresholds Thresholds
	Interval   time.Duration

	mu       sync.Mutex
	history  []recurringEntry // rolling log of non-none kinds, newest last
	lastKind model.ProblemKind
}

type recurringEntry struct {
	kind model.ProblemKind
	at   time.Time
}

func (c *Classifier) Name() string          { return "problem-classifier" }
func (c *Classifier) Period() time.Duration { return c.Interval }

func (c *Classifier) RunOnce(ctx context.Context) error {
	c.EvaluateNow(ctx)
	return nil
}

// EvaluateNow runs the classification table immediately, bypassing the
// ticker (spec §4.4 step 4, §4.8 "on-demand after connection-lost
// transitions").
func (c *Classifier) EvaluateNow(ctx context.Context) {
	ev := c.Repo.ClassifierEvidence()
	kind := c.classify(ev)
	now := time.Now()

	recurring := c.noteAndCheckRecurring(kind, now)
	prediction := model.PredictionStable
	if kind != model.ProblemNone || recurring {
		prediction = model.PredictionRisk
	}

	c.Repo.UpdateDiagnosis(model.ProblemDiagnosis{
		Kind:             kind,
		Prediction:       prediction,
		RecurringPattern: recurring,
		EvaluatedAt:      now,
		CauseSummary:     summaryFor(kind, ev),
	})
}

// classify applies spec §4.8's table, top-down, first match wins.
func (c *Classifier) classify(ev repository.Evidence) model.ProblemKind {
	t := c.Thresholds
	switch {
	case ev.ConnectionLost || ev.ConsecutiveLost >= t.ConsecutiveLostThreshold:
		return model.ProblemISP
	case ev.Loss30m > t.Loss30mThreshold && ev.HaveFirstHop && ev.FirstHopLossRatio > t.FirstHopLossThreshold:
		return model.ProblemLocal
	case ev.DnsScore <= t.DNSScorePoorCutoff && ev.PingLossRecentRatio <= t.PingLossThreshold:
		return model.ProblemDNS
	case ev.MTUIssue && ev.IntermittentLoss:
		return model.ProblemMTU
	case ev.Loss30m > 0:
		return model.ProblemUnknown
	default:
		return model.ProblemNone
	}
}

// noteAndCheckRecurring appends kind to the rolling recurring-problems
// history (skipping ProblemNone) and reports whether it has reappeared at
// least RecurringCount times within RecurringWindow. The window check
// happens before the append: the current observation counts together with
// the earlier occurrences still inside the window, and a new entry is
// appended only when kind differs from the previous evaluation's kind, so
// repeated evaluations of an unbroken incident count once.
func (c *Classifier) noteAndCheckRecurring(kind model.ProblemKind, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.lastKind
	c.lastKind = kind
	if kind == model.ProblemNone {
		return false
	}

	cutoff := now.Add(-c.Thresholds.RecurringWindow)
	pruned := c.history[:0]
	for _, e := range c.history {
		if e.at.After(cutoff) {
			pruned = append(pruned, e)
		}
	}
	c.history = pruned

	count := 1
	for _, e := range c.history {
		if e.kind == kind {
			count++
		}
	}
	recurring := count >= c.Thresholds.RecurringCount

	// Append only at the start of an incident; appending on every tick of a
	// still-active incident would inflate count independent of distinct
	// occurrences.
	if prev != kind {
		c.history = append(c.history, recurringEntry{kind: kind, at: now})
	}
	return recurring
}

func summaryFor(kind model.ProblemKind, ev repository.Evidence) string {
	switch kind {
	case model.ProblemISP:
		return "connection reports sustained loss consistent with an upstream/ISP issue"
	case model.ProblemLocal:
		return "loss is concentrated at the first hop, consistent with a local network issue"
	case model.ProblemDNS:
		return "DNS resolution quality is degraded while ping loss remains low"
	case model.ProblemMTU:
		return "a path MTU issue is present alongside intermittent loss"
	case model.ProblemUnknown:
		return "loss is present but does not match a known pattern"
	default:
		return ""
	}
}
