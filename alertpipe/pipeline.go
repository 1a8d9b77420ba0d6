// Package alertpipe implements the smart-alert pipeline (spec §4.9):
// adaptive thresholds, rate limiting, priority scoring, deduplication,
// root-cause grouping, recovery, fatigue suppression, and quiet hours,
// applied in that order every tick. It is grounded on the teacher's
// Notifier (ported nearly verbatim into notifier.go) generalized to this
// module's alert taxonomy, plus golang.org/x/time/rate for the stage the
// teacher didn't need (it never had a notion of per-fingerprint rate
// limiting).
package alertpipe

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

// Config bounds every stage of the pipeline (spec §6 SMART_ALERT_*).
type Config struct {
	Interval time.Duration

	BaselineMinSamples   int
	BaselineBucketHist   int
	LatencyK             float64 // k in mu + k*sigma
	JitterK              float64
	StaticLatencyMs      float64 // used until warm-up
	StaticJitterMs       float64
	StaticLossRatio      float64

	RateLimitPerMinute int
	RateLimitBurst     int

	EscalationAfter time.Duration // auto-escalate priority after this age

	JaccardThreshold float64

	QuietHoursEnabled bool
	QuietHoursStart   int // hour-of-day, 0-23
	QuietHoursEnd     int

	SoundEnabled bool
}

// DefaultConfig mirrors spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:           5 * time.Second,
		BaselineMinSamples: 30,
		BaselineBucketHist: 168, // recent observations kept per baseline ring
		LatencyK:           3,
		JitterK:            3,
		StaticLatencyMs:    150,
		StaticJitterMs:     50,
		StaticLossRatio:    0.05,
		RateLimitPerMinute: 10,
		RateLimitBurst:     5,
		EscalationAfter:    15 * time.Minute,
		JaccardThreshold:   0.85,
		SoundEnabled:       true,
	}
}

// rootCauseMap collapses related alert kinds under a leader (spec §4.9
// stage 5): a connection-lost event suppresses the symptom alerts it
// necessarily implies.
var rootCauseMap = map[model.AlertKind][]model.AlertKind{
	model.KindConnectionLost: {model.KindPacketLoss, model.KindHighLatency, model.KindHighJitter},
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Pipeline turns raw condition evaluations into repository-recorded alerts
// (spec §4.9). Condition evaluations happen in the workers that detect a
// condition, which report them through Raise/Clear; Pipeline owns every
// stage after that.
type Pipeline struct {
	Repo     *repository.Repository
	Notifier *Notifier
	Log      *zap.SugaredLogger
	Cfg      Config

	baselines map[model.MetricName]*model.AdaptiveBaseline

	mu       sync.Mutex
	limiters map[uint64]*limiterEntry
	fatigue  map[uint64]*model.FatigueState
	groups   map[uint64]*model.AlertGroup // keyed by leader fingerprint
}

// New creates a Pipeline with fresh adaptive baselines for every watched
// metric.
func New(repo *repository.Repository, notifier *Notifier, log *zap.SugaredLogger, cfg Config) *Pipeline {
	return &Pipeline{
		Repo:     repo,
		Notifier: notifier,
		Log:      log,
		Cfg:      cfg,
		baselines: map[model.MetricName]*model.AdaptiveBaseline{
			model.MetricAvgLatency: model.NewAdaptiveBaseline(model.MetricAvgLatency, cfg.BaselineMinSamples, cfg.BaselineBucketHist),
			model.MetricJitter:     model.NewAdaptiveBaseline(model.MetricJitter, cfg.BaselineMinSamples, cfg.BaselineBucketHist),
			model.MetricLoss:       model.NewAdaptiveBaseline(model.MetricLoss, cfg.BaselineMinSamples, cfg.BaselineBucketHist),
		},
		limiters: make(map[uint64]*limiterEntry),
		fatigue:  make(map[uint64]*model.FatigueState),
		groups:   make(map[uint64]*model.AlertGroup),
	}
}

func (p *Pipeline) Name() string          { return "smart-alert-pipeline" }
func (p *Pipeline) Period() time.Duration { return p.Cfg.Interval }

// ObserveMetric folds one new sample into the named metric's adaptive
// baseline (spec §4.9 stage 1). Called by the ping/DNS workers once per
// tick, independent of whether a condition actually fires.
func (p *Pipeline) ObserveMetric(metric model.MetricName, v float64) {
	if b, ok := p.baselines[metric]; ok {
		b.Observe(v)
	}
}

// Threshold returns the current adaptive threshold for metric, falling
// back to the configured static threshold until warm-up completes (spec
// §4.9 stage 1).
func (p *Pipeline) Threshold(metric model.MetricName) float64 {
	b, ok := p.baselines[metric]
	if !ok || !b.WarmedUp() {
		switch metric {
		case model.MetricAvgLatency:
			return p.Cfg.StaticLatencyMs
		case model.MetricJitter:
			return p.Cfg.StaticJitterMs
		default:
			return p.Cfg.StaticLossRatio
		}
	}
	switch metric {
	case model.MetricAvgLatency:
		return b.Threshold(p.Cfg.LatencyK)
	case model.MetricJitter:
		return b.Threshold(p.Cfg.JitterK)
	default:
		// loss uses the 95th-percentile bound, approximated here as mean +
		// ~1.645*sigma once warmed up (spec §4.9 stage 1).
		return b.Threshold(1.645)
	}
}

// Fingerprint exposes the stable (kind, subject) hash so a worker can Clear
// an alert it previously Raised without retaining the pipeline's internal
// state.
func (p *Pipeline) Fingerprint(kind model.AlertKind, subject string) uint64 {
	return fingerprintOf(kind, subject)
}

// Raise evaluates one condition occurrence through every pipeline stage in
// order (spec §4.9). subject is the human-readable, not-yet-normalized
// alert subject (e.g. a hop IP or DNS server address).
func (p *Pipeline) Raise(kind model.AlertKind, severity model.AlertSeverity, subject, message string) {
	now := time.Now()
	fingerprint := fingerprintOf(kind, subject)

	// The condition holds again, so any recovery streak starts over, even
	// when the rate limiter drops this occurrence.
	p.Repo.NoteConditionTrue(fingerprint)

	// Stage 2: rate limit.
	if !p.allow(fingerprint, now) {
		return
	}

	// Stage 3: priority scoring.
	priority := p.score(kind, severity, now)

	// Stage 4: dedup, including near-duplicate detection via Jaccard
	// similarity — AddAlert itself handles the exact-fingerprint case;
	// near-duplicates are folded in before we even get there.
	if dupFingerprint, ok := p.nearDuplicate(kind, subject, now); ok {
		fingerprint = dupFingerprint
	}

	alert := p.Repo.AddAlert(fingerprint, kind, severity, priority, subject, message, now)
	p.Repo.ActivateAlert(fingerprint)

	// Stage 5: grouping.
	p.group(kind, fingerprint, now)
	if p.suppressedByGroup(kind) {
		return
	}

	// Stage 7: fatigue suppression.
	if !p.fatigueAllows(fingerprint, now) {
		return
	}

	// Stage 8: quiet hours (visual entry already recorded above; only sound
	// is gated here).
	soundAllowed := p.Cfg.SoundEnabled && !p.inQuietHours(now)
	p.notify(alert, soundAllowed)
}

// Clear is called once per tick for every currently-active fingerprint
// whose underlying condition is no longer true (spec §4.9 stage 6). The
// caller determines condition falsity; Clear only drives the state
// machine.
func (p *Pipeline) Clear(fingerprint uint64) {
	if recovered := p.Repo.NoteConditionFalse(fingerprint, time.Now()); recovered {
		p.mu.Lock()
		delete(p.fatigue, fingerprint)
		p.mu.Unlock()
	}
}

// Hold resets an alert's condition-false streak — the condition was
// observed true again before reaching the recovery threshold.
func (p *Pipeline) Hold(fingerprint uint64) {
	p.Repo.NoteConditionTrue(fingerprint)
}

func (p *Pipeline) notify(alert *model.AlertEntity, sound bool) {
	if p.Notifier == nil {
		return
	}
	text := alert.Subject + ": " + alert.Message
	p.Notifier.Notify(string(alert.Kind), alert.Subject, text, alert)
	_ = sound // the concrete sound-playing surface is a UI concern, out of scope (spec §1)
}

// allow applies the token-bucket rate limit for fingerprint (spec §4.9
// stage 2).
func (p *Pipeline) allow(fingerprint uint64, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.limiters[fingerprint]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(p.Cfg.RateLimitPerMinute)/60), p.Cfg.RateLimitBurst)}
		p.limiters[fingerprint] = entry
	}
	entry.seen = now
	return entry.limiter.AllowN(now, 1)
}

// score computes the weighted priority (spec §4.9 stage 3). business/user/
// service-criticality inputs are derived from severity since this module
// has no separate business-impact model; time weight rewards alerts that
// have aged without resolving.
func (p *Pipeline) score(kind model.AlertKind, severity model.AlertSeverity, now time.Time) model.AlertPriority {
	business := severityWeight(severity)
	user := severityWeight(severity)
	criticality := kindCriticality(kind)
	timeWeight := 0.0 // a freshly raised alert has no age yet

	total := 0.4*business + 0.3*user + 0.2*criticality + 0.1*timeWeight
	return bucketPriority(total)
}

func severityWeight(s model.AlertSeverity) float64 {
	switch s {
	case model.SeverityCritical:
		return 1.0
	case model.SeverityWarning:
		return 0.6
	default:
		return 0.3
	}
}

func kindCriticality(k model.AlertKind) float64 {
	switch k {
	case model.KindConnectionLost:
		return 1.0
	case model.KindPacketLoss, model.KindRouteChanged:
		return 0.7
	case model.KindHighLatency, model.KindHighJitter, model.KindMTUIssue:
		return 0.5
	default:
		return 0.3
	}
}

func bucketPriority(total float64) model.AlertPriority {
	switch {
	case total >= 0.85:
		return model.PriorityCritical
	case total >= 0.6:
		return model.PriorityHigh
	case total >= 0.35:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// EscalateAged auto-escalates any active alert older than EscalationAfter
// (spec §4.9 stage 3 "auto-escalate").
func (p *Pipeline) EscalateAged(now time.Time) {
	for _, fp := range p.Repo.ActiveAlertFingerprints() {
		a, ok := p.Repo.ActiveAlert(fp)
		if !ok || now.Sub(a.CreatedAt) < p.Cfg.EscalationAfter {
			continue
		}
		if a.Priority != model.PriorityCritical {
			escalated := nextPriority(a.Priority)
			p.Repo.AddAlert(fp, a.Kind, a.Severity, escalated, a.Subject, a.Message, now)
		}
	}
}

func nextPriority(p model.AlertPriority) model.AlertPriority {
	switch p {
	case model.PriorityLow:
		return model.PriorityMedium
	case model.PriorityMedium:
		return model.PriorityHigh
	default:
		return model.PriorityCritical
	}
}

// fingerprintOf computes a stable hash of (kind, normalized subject) (spec
// §4.9 stage 4).
func fingerprintOf(kind model.AlertKind, subject string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(normalizeSubject(subject)))
	return h.Sum64()
}

// normalizeSubject case-folds and collapses whitespace so trivially
// different renderings of the same subject (e.g. differing capitalization)
// still fingerprint identically.
func normalizeSubject(subject string) string {
	return strings.ToLower(strings.Join(strings.Fields(subject), " "))
}

// tokenSet splits a normalized subject into its word tokens for Jaccard
// comparison (spec §9 Open Question 2: case-folded word tokens).
func tokenSet(subject string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(subject))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// nearDuplicate looks for an active alert of the same kind whose subject's
// token set has Jaccard similarity >= JaccardThreshold, returning its
// fingerprint so the caller folds the new occurrence into it instead of
// creating a second alert for effectively the same subject (spec §4.9
// stage 4).
func (p *Pipeline) nearDuplicate(kind model.AlertKind, subject string, now time.Time) (uint64, bool) {
	candidateTokens := tokenSet(subject)
	for _, fp := range p.Repo.ActiveAlertFingerprints() {
		a, ok := p.Repo.ActiveAlert(fp)
		if !ok || a.Kind != kind {
			continue
		}
		if jaccard(candidateTokens, tokenSet(a.Subject)) >= p.Cfg.JaccardThreshold {
			return fp, true
		}
	}
	return 0, false
}

// group creates or refreshes the AlertGroup led by fingerprint when kind is
// a leader in rootCauseMap (spec §4.9 stage 5); other kinds leave the groups
// untouched. Member alerts are not recorded in the group's Members or in
// their GroupFingerprint; suppressedByGroup matches members by kind.
func (p *Pipeline) group(kind model.AlertKind, fingerprint uint64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, isLeader := rootCauseMap[kind]; isLeader {
		g, ok := p.groups[fingerprint]
		if !ok {
			g = &model.AlertGroup{LeaderFingerprint: fingerprint, RootCauseTag: kind, FirstSeen: now}
			p.groups[fingerprint] = g
		}
		g.LastSeen = now
	}
}

// suppressedByGroup reports whether kind is a member of some root-cause
// group with a leader alert active within the temporal window — such
// members are suppressed from separate notification (spec §4.9 stage 5).
// A leader kind never suppresses itself.
func (p *Pipeline) suppressedByGroup(kind model.AlertKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		if time.Since(g.LastSeen) > 5*time.Minute {
			continue
		}
		for _, memberKind := range rootCauseMap[g.RootCauseTag] {
			if memberKind == kind {
				return true
			}
		}
	}
	return false
}

// fatigueAllows applies the re-emission escalation schedule (spec §4.9
// stage 7).
func (p *Pipeline) fatigueAllows(fingerprint uint64, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.fatigue[fingerprint]
	if !ok {
		state = &model.FatigueState{}
		p.fatigue[fingerprint] = state
	}
	if !state.NextEarliestEmit.IsZero() && now.Before(state.NextEarliestEmit) {
		return false
	}
	state.Advance(now)
	return true
}

// inQuietHours reports whether now falls within the configured quiet-hours
// window (spec §4.9 stage 8). Only sound is gated; the visual alert is
// still recorded by the time this is checked.
func (p *Pipeline) inQuietHours(now time.Time) bool {
	if !p.Cfg.QuietHoursEnabled {
		return false
	}
	hour := now.Hour()
	if p.Cfg.QuietHoursStart <= p.Cfg.QuietHoursEnd {
		return hour >= p.Cfg.QuietHoursStart && hour < p.Cfg.QuietHoursEnd
	}
	// window wraps midnight, e.g. 22-6
	return hour >= p.Cfg.QuietHoursStart || hour < p.Cfg.QuietHoursEnd
}

// RunOnce drives the periodic parts of the pipeline that aren't triggered
// by a specific Raise/Clear call: priority auto-escalation of aged alerts
// (stage 3) and pruning of group/rate-limiter state that has gone idle.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	now := time.Now()
	p.EscalateAged(now)
	p.prune(now)
	return nil
}

// prune drops rate-limiter and group bookkeeping that hasn't been touched
// in a while, so long-running processes don't accumulate unbounded state
// for fingerprints that stopped firing.
func (p *Pipeline) prune(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for fp, e := range p.limiters {
		if now.Sub(e.seen) > time.Hour {
			delete(p.limiters, fp)
		}
	}
	for fp, g := range p.groups {
		if now.Sub(g.LastSeen) > time.Hour {
			delete(p.groups, fp)
		}
	}
}
