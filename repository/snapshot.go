package repository

import (
	"sort"
	"time"

	"github.com/netwatch/netwatch/model"
)

// Snapshot returns a consistent, deep-copied, read-only view of all
// repository state (spec §4.1). No torn reads: everything is gathered
// under one RLock, alert sub-state under its own lock in sequence (never
// nested inside the first — spec §5 "no lock ever nests into the
// repository lock except the reentrant case").
func (r *Repository) Snapshot() model.StatsSnapshot {
	r.mu.RLock()
	snap := model.StatsSnapshot{
		CapturedAt:      time.Now(),
		Counters:        r.counters,
		Latency:         r.latency.SnapshotOf(),
		LossRatio30m:    r.loss.LossRatio(),
		ConnectionLost:  r.connectionLost,
		PublicIP:        r.publicIP,
		MTU:             r.mtu,
		TTL:             r.ttl,
		Route:           cloneRoute(r.route),
		RouteStats:      r.routeStats,
		RouteChanges:    r.routeChanges,
		DnsScore:        r.dnsScore,
		DnsBucket:       model.BucketDnsScore(r.dnsScore),
		Diagnosis:       r.diagnosis,
		FirstSampleAt:   r.firstSampleAt,
		LastSampleAt:    r.lastSampleAt,
		HaveSample:      r.haveSample,
		PingWorkerReady: r.pingWorkerReady,
	}

	snap.Hops = make([]model.HopSnapshot, 0, len(r.hops))
	for _, hop := range r.hops {
		snap.Hops = append(snap.Hops, hop.SnapshotOf())
	}
	sort.Slice(snap.Hops, func(i, j int) bool { return snap.Hops[i].Index < snap.Hops[j].Index })

	snap.DnsRecords = make([]model.DnsRecordStatus, 0, len(r.dnsRecords))
	for _, status := range r.dnsRecords {
		snap.DnsRecords = append(snap.DnsRecords, *status)
	}

	snap.DnsBenchmark = make([]model.DnsBenchmarkSnapshot, 0, len(r.dnsBench))
	for _, stats := range r.dnsBench {
		snap.DnsBenchmark = append(snap.DnsBenchmark, stats.SnapshotOf())
	}
	r.mu.RUnlock()

	r.alertMu.Lock()
	snap.ActiveAlerts = make([]model.AlertEntity, 0, len(r.activeAlerts))
	for _, a := range r.activeAlerts {
		snap.ActiveAlerts = append(snap.ActiveAlerts, *a)
	}
	snap.AlertHistory = r.alertHistory.Slice()
	r.alertMu.Unlock()

	sort.Slice(snap.ActiveAlerts, func(i, j int) bool { return snap.ActiveAlerts[i].CreatedAt.Before(snap.ActiveAlerts[j].CreatedAt) })

	return snap
}

func cloneRoute(rt model.Route) model.Route {
	hops := make([]model.Hop, len(rt.Hops))
	copy(hops, rt.Hops)
	return model.Route{Hops: hops, CapturedAt: rt.CapturedAt, Fingerprint: rt.Fingerprint}
}

// Evidence is the read-only slice of repository state the problem
// classifier needs, distinct from StatsSnapshot because the classifier
// also needs the first-hop loss ratio and the MTU "intermittent loss"
// signal that the public snapshot doesn't otherwise expose as derived
// fields (spec §4.8).
type Evidence struct {
	ConnectionLost      bool
	ConsecutiveLost     int64
	Loss30m             float64
	FirstHopLossRatio   float64
	HaveFirstHop        bool
	DnsScore            float64
	PingLossRecentRatio float64 // lost/sent over every ping since startup (cumulative counters, not a recent window)
	MTUIssue            bool
	IntermittentLoss    bool // loss > 0 but not sustained (not connection-lost)
}

// ClassifierEvidence gathers the repository state the problem classifier's
// rule table evaluates (spec §4.8).
func (r *Repository) ClassifierEvidence() Evidence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev := Evidence{
		ConnectionLost:  r.connectionLost,
		ConsecutiveLost: r.counters.ConsecutiveLost,
		Loss30m:         r.loss.LossRatio(),
		DnsScore:        r.dnsScore,
		MTUIssue:        r.mtu.Issue,
	}
	if hop, ok := r.hops[1]; ok {
		ev.HaveFirstHop = true
		if hop.Total > 0 {
			ev.FirstHopLossRatio = float64(hop.Lost) / float64(hop.Total)
		}
	}
	if r.counters.Sent > 0 {
		ev.PingLossRecentRatio = float64(r.counters.Lost) / float64(r.counters.Sent)
	}
	ev.IntermittentLoss = ev.PingLossRecentRatio > 0 && !ev.ConnectionLost
	return ev
}
