package model

import "time"

// LatencySnapshot is the read-only view of a LatencyWindow (spec §3
// Snapshot: "deep-copied primitives and shallow copies of bounded
// histories").
type LatencySnapshot struct {
	RTTs   []float64
	Jitter float64
	Min    float64
	Avg    float64
	Max    float64
	Stdev  float64
}

// SnapshotOf materializes a read-only copy of a LatencyWindow.
func (w *LatencyWindow) SnapshotOf() LatencySnapshot {
	min, avg, max, stdev := w.Stats()
	return LatencySnapshot{RTTs: w.Values(), Jitter: w.Jitter(), Min: min, Avg: avg, Max: max, Stdev: stdev}
}

// HopSnapshot is the read-only view of a HopStatus.
type HopSnapshot struct {
	Index     int
	IP        string
	Hostname  string
	Geo       Geo
	Latency   LatencySnapshot
	JitterStd float64
	DeltaPrev float64
	Total     int64
	Lost      int64
	Sparkline []int
}

// SnapshotOf materializes a read-only copy of a HopStatus.
func (h *HopStatus) SnapshotOf() HopSnapshot {
	return HopSnapshot{
		Index: h.Index, IP: h.IP, Hostname: h.Hostname, Geo: h.Geo,
		Latency: h.Latency.SnapshotOf(), JitterStd: h.JitterStd, DeltaPrev: h.DeltaPrev,
		Total: h.Total, Lost: h.Lost, Sparkline: h.Sparkline.Slice(),
	}
}

// DnsBenchmarkSnapshot is the read-only view of a DnsBenchmarkStats window.
type DnsBenchmarkSnapshot struct {
	Server      string
	Kind        BenchmarkKind
	Min         float64
	Avg         float64
	Max         float64
	Stdev       float64
	Reliability float64
}

// SnapshotOf materializes a read-only copy of a DnsBenchmarkStats window.
func (s *DnsBenchmarkStats) SnapshotOf() DnsBenchmarkSnapshot {
	min, avg, max, stdev := s.Stats()
	return DnsBenchmarkSnapshot{Server: s.Server, Kind: s.Kind, Min: min, Avg: avg, Max: max, Stdev: stdev, Reliability: s.Reliability()}
}

// StatsSnapshot is the single immutable value shared with every reader
// (TUI, metrics exporter, health endpoint) — spec §3 "Snapshot". Mutating
// any field reachable from a StatsSnapshot must never affect subsequent
// repository reads (spec §8): every slice/map here is a fresh copy.
type StatsSnapshot struct {
	CapturedAt time.Time

	Counters        Counters
	Latency         LatencySnapshot
	LossRatio30m    float64
	ConnectionLost  bool

	PublicIP PublicIP
	MTU      MtuState
	TTL      TtlState

	Route      Route
	Hops       []HopSnapshot
	RouteStats RouteStats
	RouteChanges int

	DnsRecords   []DnsRecordStatus
	DnsBenchmark []DnsBenchmarkSnapshot
	DnsScore     float64
	DnsBucket    DnsScoreBucket

	Diagnosis ProblemDiagnosis

	ActiveAlerts []AlertEntity
	AlertHistory []AlertEntity

	FirstSampleAt     time.Time
	LastSampleAt      time.Time // SentAt of the most recently recorded ping sample
	HaveSample        bool
	PingWorkerReady   bool // true once the ping worker has completed its first tick
}
