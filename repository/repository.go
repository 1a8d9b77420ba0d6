// Package repository implements the single writer point for every counter,
// window, and sub-state the monitoring engine tracks (spec §4.1). Callers
// never receive a handle to internal state — they call named mutators and
// observe via Snapshot(), which is the only object shared with the TUI,
// metrics exporter, and health endpoint.
package repository

import (
	"sync"
	"time"

	"github.com/netwatch/netwatch/model"
)

// Config bounds every ring buffer and threshold the repository enforces.
// Populated from config.Config at startup (spec §6).
type Config struct {
	LatencyWindowSize        int
	LossWindowSize           int
	ConsecutiveLossThreshold int
	MTUIssueConsecutive      int
	MTUClearConsecutive      int
	RouteChangeConsecutive   int
	DNSBenchmarkHistorySize  int
	AlertHistorySize         int
	RecurringWindow          time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		LatencyWindowSize:        120,
		LossWindowSize:           1800, // 30 min at 1s interval
		ConsecutiveLossThreshold: 5,
		MTUIssueConsecutive:      3,
		MTUClearConsecutive:      3,
		RouteChangeConsecutive:   2,
		DNSBenchmarkHistorySize:  50,
		AlertHistorySize:         200,
		RecurringWindow:          time.Hour,
	}
}

// Repository owns all mutable monitoring state behind one mutex. A single
// RWMutex stands in for spec's "one reentrant mutex": every exported method
// takes the lock exactly once at its entry point and never calls another
// lock-taking exported method from inside a held lock, so nothing ever
// needs true reentrancy. RWMutex (rather than the teacher's plain Mutex) is
// deliberate: Snapshot() is the hottest path, called once per tick by the
// TUI, the metrics exporter, and the health endpoint, while writes only
// happen from the handful of probe goroutines — read/write separation pays
// for itself here in a way it didn't for the teacher's host-metrics model.
type Repository struct {
	mu  sync.RWMutex
	cfg Config

	counters model.Counters
	latency  *model.LatencyWindow
	loss     *model.LossWindow
	connectionLost bool

	ttlSinceLastCheck int

	publicIP model.PublicIP
	mtu      model.MtuState
	ttl      model.TtlState

	route        model.Route
	routeRun     int // consecutive identical-fingerprint detections
	routeChanges int
	pendingFingerprint uint64 // candidate fingerprint awaiting ROUTE_CHANGE_CONSECUTIVE confirmations
	pendingRun         int
	hops         map[int]*model.HopStatus
	routeStats   model.RouteStats

	dnsRecords map[string]*model.DnsRecordStatus // key: recordType+"|"+server
	dnsBench   map[string]*model.DnsBenchmarkStats // key: server+"|"+kind
	dnsScore   float64

	diagnosis model.ProblemDiagnosis

	alertMu      sync.Mutex // finer-grained lock for alert sub-state, per spec §3/§5
	activeAlerts map[uint64]*model.AlertEntity
	alertHistory *model.Ring[model.AlertEntity]

	firstSampleAt   time.Time
	lastSampleAt    time.Time
	haveSample      bool
	pingWorkerReady bool
}

// New creates an empty repository bounded by cfg.
func New(cfg Config) *Repository {
	return &Repository{
		cfg:          cfg,
		latency:      model.NewLatencyWindow(cfg.LatencyWindowSize),
		loss:         model.NewLossWindow(cfg.LossWindowSize),
		hops:         make(map[int]*model.HopStatus),
		dnsRecords:   make(map[string]*model.DnsRecordStatus),
		dnsBench:     make(map[string]*model.DnsBenchmarkStats),
		activeAlerts: make(map[uint64]*model.AlertEntity),
		alertHistory: model.NewRing[model.AlertEntity](cfg.AlertHistorySize),
	}
}

// RecordPing appends one ping sample, atomically updating counters, the
// latency window, the loss window, EMA jitter, consecutive-loss state, and
// the connection-lost boolean (spec §4.1). Returns whether the
// connection-lost boolean flipped, so the ping worker can synchronously
// request re-classification (spec §4.4 step 4) without re-entering the
// repository lock to check.
func (r *Repository) RecordPing(s model.Sample) (lostChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Record(s.OK)
	r.loss.Add(s.OK)
	if s.OK {
		r.latency.Add(s.RTTMs)
	}

	wasLost := r.connectionLost
	if !wasLost && r.counters.ConsecutiveLost >= int64(r.cfg.ConsecutiveLossThreshold) {
		r.connectionLost = true
	} else if wasLost && s.OK {
		// Returns to ok for 1 sample downward (spec §4.1).
		r.connectionLost = false
	}

	if !r.haveSample {
		r.haveSample = true
		r.firstSampleAt = s.SentAt
	}
	r.lastSampleAt = s.SentAt
	return wasLost != r.connectionLost
}

// MarkPingWorkerReady flips the readiness bit the /ready endpoint checks
// (spec §4.10), once the ping worker has completed its first tick.
func (r *Repository) MarkPingWorkerReady() {
	r.mu.Lock()
	r.pingWorkerReady = true
	r.mu.Unlock()
}

// RecordTTL updates the TTL state from a piggybacked ping TTL observation
// (spec §4.4 step 3, §4.6 TTL worker).
func (r *Repository) RecordTTL(ttl int) {
	if ttl < 0 {
		ttl = 0
	}
	r.mu.Lock()
	r.ttl.LastTTL = ttl
	r.ttl.EstimatedHops = estimateHopsFromTTL(ttl)
	r.mu.Unlock()
}

// estimateHopsFromTTL guesses the originating TTL from a small set of
// common OS defaults (64, 128, 255) and returns hops = default - observed.
func estimateHopsFromTTL(observed int) int {
	for _, start := range []int{64, 128, 255} {
		if observed <= start {
			hops := start - observed
			if hops < 0 {
				hops = 0
			}
			return hops
		}
	}
	return 0
}

// UpdateMTUHysteresis applies the "N consecutive to flip" rule for path-MTU
// issue detection (spec §4.1). On the very first call ever made (spec
// §4.6 "first ever run"), the hysteresis step is bypassed so the UI shows a
// value immediately.
func (r *Repository) UpdateMTUHysteresis(issueNow bool, currentMTU, pathMTUEstimate int) (stateChanged bool, newState bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mtu.CurrentMTU = currentMTU
	r.mtu.PathMTUEstimate = pathMTUEstimate

	if !r.mtu.everSet {
		r.mtu.everSet = true
		r.mtu.Issue = issueNow
		r.mtu.ConsecutiveIssue, r.mtu.ConsecutiveClear = 0, 0
		return true, r.mtu.Issue
	}

	if issueNow {
		r.mtu.ConsecutiveIssue++
		r.mtu.ConsecutiveClear = 0
		if !r.mtu.Issue && r.mtu.ConsecutiveIssue >= r.cfg.MTUIssueConsecutive {
			r.mtu.Issue = true
			return true, true
		}
	} else {
		r.mtu.ConsecutiveClear++
		r.mtu.ConsecutiveIssue = 0
		if r.mtu.Issue && r.mtu.ConsecutiveClear >= r.cfg.MTUClearConsecutive {
			r.mtu.Issue = false
			return true, false
		}
	}
	return false, r.mtu.Issue
}

// UpdateRouteHysteresis applies the "N consecutive identical detections to
// flip" rule for route-change detection (spec §4.1/§4.7). changed reports
// whether the stored fingerprint flipped this call; run reports the
// current run length of identical detections.
func (r *Repository) UpdateRouteHysteresis(newFingerprint uint64) (changed bool, run int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if newFingerprint == r.route.Fingerprint {
		r.routeRun++
		return false, r.routeRun
	}

	// A candidate fingerprint must repeat ROUTE_CHANGE_CONSECUTIVE times
	// before it is committed; track it via routeRun keyed to the candidate.
	if r.pendingFingerprint == newFingerprint {
		r.pendingRun++
	} else {
		r.pendingFingerprint = newFingerprint
		r.pendingRun = 1
	}
	if r.pendingRun >= r.cfg.RouteChangeConsecutive {
		r.route.Fingerprint = newFingerprint
		r.routeRun = r.pendingRun
		r.routeChanges++
		r.pendingFingerprint, r.pendingRun = 0, 0
		return true, r.routeRun
	}
	return false, r.pendingRun
}
