package model

import (
	"hash/fnv"
	"time"
)

// Hop is one router on the path to the target.
type Hop struct {
	Index    int
	IP       string
	Hostname string
	ASN      string
	Country  string
}

// Route is one captured traceroute result (spec §3).
type Route struct {
	Hops        []Hop
	CapturedAt  time.Time
	Fingerprint uint64
}

// FingerprintHops computes a stable hash over the ordered hop IP sequence.
// Identical sequences hash identically; any single hop change flips it
// (spec §8 "round-trips and laws").
func FingerprintHops(hops []Hop) uint64 {
	h := fnv.New64a()
	for _, hop := range hops {
		_, _ = h.Write([]byte(hop.IP))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// HopStatus is the live per-hop state maintained by the hop prober
// (spec §3/§4.7). Reset wholesale on every route re-discovery.
type HopStatus struct {
	Index      int
	IP         string
	Hostname   string
	Geo        Geo
	Latency    *LatencyWindow
	JitterStd  float64 // stdev over the last N round-trips, distinct from
	                    // LatencyWindow's EMA jitter — spec calls out both.
	DeltaPrev  float64 // latency delta vs the previous ping to this hop
	lastLatency float64
	haveLast    bool
	Total      int64
	Lost       int64
	Sparkline  *Ring[int] // last ~10 samples normalized into 5 bins
}

// NewHopStatus creates a freshly-reset hop entry.
func NewHopStatus(index int, ip, hostname string, latencyWindow int) *HopStatus {
	return &HopStatus{
		Index:     index,
		IP:        ip,
		Hostname:  hostname,
		Latency:   NewLatencyWindow(latencyWindow),
		Sparkline: NewRing[int](10),
	}
}

// RecordOK records one successful hop ping.
func (h *HopStatus) RecordOK(rttMs float64) {
	h.Total++
	h.Latency.Add(rttMs)
	if h.haveLast {
		h.DeltaPrev = rttMs - h.lastLatency
	}
	h.lastLatency = rttMs
	h.haveLast = true
	_, _, _, stdev := h.Latency.Stats()
	h.JitterStd = stdev
	h.Sparkline.Push(sparkBin(rttMs, h.Latency))
}

// RecordLoss records one lost hop ping (or a single timeout, which the
// route detector treats specially — see RouteDetector).
func (h *HopStatus) RecordLoss() {
	h.Total++
	h.Lost++
	h.Sparkline.Push(0)
}

// sparkBin normalizes a latency value to one of 5 bins relative to the
// window's observed max, for compact sparkline rendering.
func sparkBin(v float64, w *LatencyWindow) int {
	_, _, max, _ := w.Stats()
	if max <= 0 {
		return 0
	}
	bin := int((v / max) * 4)
	if bin < 0 {
		bin = 0
	}
	if bin > 4 {
		bin = 4
	}
	return bin
}

// RouteClassification buckets an overall route health summary (spec §4.7).
type RouteClassification string

const (
	RouteHealthy  RouteClassification = "healthy"
	RouteDegraded RouteClassification = "degraded"
	RouteCritical RouteClassification = "critical"
	RouteUnknown  RouteClassification = "unknown"
)

// RouteStats is the compact per-tick route summary emitted by the hop
// prober (spec §4.7).
type RouteStats struct {
	HopCount       int
	AvgLatencyMs   float64
	MaxLatencyMs   float64
	LossRatio      float64
	Classification RouteClassification
}
