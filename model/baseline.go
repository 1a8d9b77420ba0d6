package model

import "time"

// Metric names watched by the adaptive-baseline/smart-alert pipeline
// (spec §4.9 stage 1).
type MetricName string

const (
	MetricAvgLatency MetricName = "avg_latency"
	MetricJitter     MetricName = "jitter"
	MetricLoss       MetricName = "loss"
)

// AdaptiveBaseline is a per-metric running mean/stdev used to compute
// adaptive thresholds once warmed up (spec §3/§4.9 stage 1). Mean and Stdev
// cover every observation since creation; they are not bucketed by hour.
type AdaptiveBaseline struct {
	Metric      MetricName
	buckets     *Ring[float64] // most recent observations, one entry per Observe call
	Mean        float64
	Stdev       float64
	WarmupCount int
	minSamples  int
	n           float64 // Welford running count
}

// NewAdaptiveBaseline creates a baseline requiring minSamples observations
// before it is considered warmed up.
func NewAdaptiveBaseline(metric MetricName, minSamples, bucketHistory int) *AdaptiveBaseline {
	return &AdaptiveBaseline{Metric: metric, buckets: NewRing[float64](bucketHistory), minSamples: minSamples}
}

// Observe folds one new sample into the running mean/stdev via Welford's
// online algorithm, so sigma stays numerically stable across long runs
// without re-scanning history each tick.
func (b *AdaptiveBaseline) Observe(v float64) {
	b.buckets.Push(v)
	b.n++
	delta := v - b.Mean
	b.Mean += delta / b.n
	delta2 := v - b.Mean
	if b.n > 1 {
		// running sum of squared deviations, recovered from Stdev each call
		m2 := b.Stdev * b.Stdev * (b.n - 1)
		m2 += delta * delta2
		b.Stdev = sqrt(m2 / b.n)
	}
	if b.WarmupCount < b.minSamples {
		b.WarmupCount++
	}
}

// WarmedUp reports whether enough samples have been observed to trust
// mu/sigma over a static threshold.
func (b *AdaptiveBaseline) WarmedUp() bool {
	return b.WarmupCount >= b.minSamples
}

// Threshold returns mu + k*sigma, the adaptive bound used once warmed up.
func (b *AdaptiveBaseline) Threshold(k float64) float64 {
	return b.Mean + k*b.Stdev
}

// FatigueState tracks re-emission cooldown for one alert fingerprint
// (spec §3/§4.9 stage 7), following the escalation schedule
// {1,3,5,15,30 min}.
type FatigueState struct {
	NextEarliestEmit time.Time
	StreakIndex      int
}

// EscalationSchedule is the fixed re-emission spacing (spec §4.9 stage 7).
var EscalationSchedule = []time.Duration{
	1 * time.Minute,
	3 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// Advance moves the fatigue state to its next cooldown step (capped at the
// schedule's last entry) and returns the new cooldown instant.
func (f *FatigueState) Advance(now time.Time) time.Time {
	idx := f.StreakIndex
	if idx >= len(EscalationSchedule) {
		idx = len(EscalationSchedule) - 1
	}
	next := now.Add(EscalationSchedule[idx])
	if f.StreakIndex < len(EscalationSchedule)-1 {
		f.StreakIndex++
	}
	// Cooldown is monotonic non-decreasing during an active incident
	// (spec §3): never move NextEarliestEmit backward.
	if next.After(f.NextEarliestEmit) {
		f.NextEarliestEmit = next
	}
	return f.NextEarliestEmit
}

// Reset clears the fatigue streak, e.g. when an incident recovers.
func (f *FatigueState) Reset() {
	f.StreakIndex = 0
	f.NextEarliestEmit = time.Time{}
}
