package repository

import (
	"time"

	"github.com/netwatch/netwatch/model"
)

// CommitRoute stores a newly (hysteresis-confirmed) route and resets every
// hop's per-hop state, since spec §3 requires "per-hop state reset on
// route re-discovery" and §8 scenario 3 requires the reset hop have "fresh
// counters, empty history".
func (r *Repository) CommitRoute(route model.Route, latencyWindowSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.route = route
	r.hops = make(map[int]*model.HopStatus, len(route.Hops))
	for _, hop := range route.Hops {
		r.hops[hop.Index] = model.NewHopStatus(hop.Index, hop.IP, hop.Hostname, latencyWindowSize)
	}
}

// Route returns a copy of the currently stored route.
func (r *Repository) Route() model.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hops := make([]model.Hop, len(r.route.Hops))
	copy(hops, r.route.Hops)
	return model.Route{Hops: hops, CapturedAt: r.route.CapturedAt, Fingerprint: r.route.Fingerprint}
}

// RecordHopPing records one hop ping result. Returns false if index is not
// a currently-known hop (the route changed out from under an in-flight
// probe tick, which is expected and not an error).
func (r *Repository) RecordHopPing(index int, ok bool, rttMs float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	hop, found := r.hops[index]
	if !found {
		return false
	}
	if ok {
		hop.RecordOK(rttMs)
	} else {
		hop.RecordLoss()
	}
	return true
}

// SetHopGeo fills in best-effort geo data for a hop (spec §4.7, 1-hour
// cached rate-limited lookup — see probe/geocache.go for the cache itself).
func (r *Repository) SetHopGeo(index int, geo model.Geo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hop, ok := r.hops[index]; ok {
		hop.Geo = geo
	}
}

// UpdateRouteStats stores the compact per-tick RouteStats summary the hop
// prober computes (spec §4.7).
func (r *Repository) UpdateRouteStats(stats model.RouteStats) {
	r.mu.Lock()
	r.routeStats = stats
	r.mu.Unlock()
}

// HopIndices returns the indices of every currently-known hop, for workers
// that need to iterate the hop table without holding the lock themselves.
func (r *Repository) HopIndices() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.hops))
	for idx := range r.hops {
		out = append(out, idx)
	}
	return out
}

// RecordDNS updates the status of one (record-type, server) pair
// (spec §4.5 monitor).
func (r *Repository) RecordDNS(recordType, server string, ok bool, latency time.Duration, recordCount int, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordType + "|" + server
	status, ok2 := r.dnsRecords[key]
	if !ok2 {
		status = &model.DnsRecordStatus{RecordType: recordType, Server: server}
		r.dnsRecords[key] = status
	}
	status.LastOK = ok
	status.LastLatency = latency
	status.RecordCount = recordCount
	status.LastError = errMsg
}

// RecordDNSBenchmark logs one benchmark attempt for (server, kind)
// (spec §4.5 benchmark).
func (r *Repository) RecordDNSBenchmark(server string, kind model.BenchmarkKind, ok bool, latencyMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := server + "|" + string(kind)
	stats, found := r.dnsBench[key]
	if !found {
		stats = model.NewDnsBenchmarkStats(server, kind, r.cfg.DNSBenchmarkHistorySize)
		r.dnsBench[key] = stats
	}
	stats.Record(ok, latencyMs)
}

// UpdateDNSScore stores the composite DNS score computed by the DNS
// monitor (spec §4.5), in [0,100].
func (r *Repository) UpdateDNSScore(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	r.mu.Lock()
	r.dnsScore = score
	r.mu.Unlock()
}

// UpdatePublicIP stores a newly validated public IP (spec §4.6 IP worker).
// Callers must have already validated the address; a malformed response is
// never passed here (it is treated as a transient failure by the caller).
func (r *Repository) UpdatePublicIP(ip model.PublicIP) {
	r.mu.Lock()
	r.publicIP = ip
	r.mu.Unlock()
}

// PublicIP returns a copy of the last validated public IP.
func (r *Repository) PublicIP() model.PublicIP {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publicIP
}

// UpdateDiagnosis atomically writes back the classifier's result
// (spec §4.8).
func (r *Repository) UpdateDiagnosis(d model.ProblemDiagnosis) {
	r.mu.Lock()
	r.diagnosis = d
	r.mu.Unlock()
}
