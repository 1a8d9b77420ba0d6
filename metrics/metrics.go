// Package metrics exports netwatch's stats repository as Prometheus
// metrics (spec §4.10). Grounded on kubePulse's internal/metrics/metrics.go
// (promauto-registered Counter/Gauge/HistogramVec instruments), swapped in
// for the teacher's hand-rolled writePrometheus text formatter
// (engine/metrics.go).
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/netwatch/netwatch/repository"
)

// Exporter holds every Prometheus instrument netwatch publishes, labeled
// per spec §4.10 ({target, provider, record_type, test_kind, hop_index,
// priority}).
type Exporter struct {
	Repo *repository.Repository
	Log  *zap.SugaredLogger
	Addr string

	registry *prometheus.Registry
	server   *http.Server

	pingSent     prometheus.Counter
	pingLost     prometheus.Counter
	connLost     prometheus.Gauge
	latencyMs    *prometheus.GaugeVec
	jitterMs     prometheus.Gauge
	lossRatio30m prometheus.Gauge

	dnsQueries *prometheus.CounterVec
	dnsLatency *prometheus.HistogramVec
	dnsScore   prometheus.Gauge

	hopLatency   *prometheus.GaugeVec
	hopLoss      *prometheus.GaugeVec
	routeChanges prometheus.Counter

	mtuEstimate prometheus.Gauge

	activeAlerts *prometheus.GaugeVec

	lastSent, lastLost int64 // cumulative totals last observed, for delta .Add()
}

// New builds and registers every instrument against a private registry
// (never the global default, so multiple Exporters in tests don't
// collide).
func New(repo *repository.Repository, log *zap.SugaredLogger, addr string) *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Exporter{
		Repo:     repo,
		Log:      log,
		Addr:     addr,
		registry: reg,

		pingSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_ping_sent_total",
			Help: "Total ping probes sent to the target.",
		}),
		pingLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_ping_lost_total",
			Help: "Total ping probes that received no reply.",
		}),
		connLost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_connection_lost",
			Help: "1 if the connection is currently considered lost, else 0.",
		}),
		latencyMs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_latency_milliseconds",
			Help: "Current latency window statistic in milliseconds.",
		}, []string{"target", "stat"}),
		jitterMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_jitter_milliseconds",
			Help: "Current EMA jitter estimate in milliseconds.",
		}),
		lossRatio30m: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_loss_ratio_30m",
			Help: "Packet loss ratio over the trailing 30-minute window.",
		}),

		dnsQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_dns_queries_total",
			Help: "Total DNS queries issued, by record type and server.",
		}, []string{"record_type", "provider"}),
		dnsLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netwatch_dns_latency_seconds",
			Help:    "DNS query latency by benchmark test kind.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"provider", "test_kind"}),
		dnsScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_dns_score",
			Help: "Composite DNS health score, 0-100.",
		}),

		hopLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_hop_latency_milliseconds",
			Help: "Average latency to a route hop.",
		}, []string{"hop_index"}),
		hopLoss: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_hop_loss_ratio",
			Help: "Loss ratio observed at a route hop.",
		}, []string{"hop_index"}),
		routeChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_route_changes_total",
			Help: "Total confirmed route changes.",
		}),

		mtuEstimate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_path_mtu_bytes",
			Help: "Estimated path MTU in bytes, 0 if unknown.",
		}),

		activeAlerts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_active_alerts",
			Help: "Currently active alerts by priority.",
		}, []string{"priority"}),
	}
}

func (e *Exporter) Name() string          { return "metrics-exporter" }
func (e *Exporter) Period() time.Duration { return 5 * time.Second }

// RunOnce refreshes every gauge from the latest repository snapshot and
// advances the ping counters by the delta since the last tick, since
// repository.Counters tracks cumulative totals while Prometheus counters
// only expose Add/Inc (spec §4.10: exporter reads, never writes to the
// repository).
func (e *Exporter) RunOnce(ctx context.Context) error {
	snap := e.Repo.Snapshot()

	if d := snap.Counters.Sent - e.lastSent; d > 0 {
		e.pingSent.Add(float64(d))
	}
	if d := snap.Counters.Lost - e.lastLost; d > 0 {
		e.pingLost.Add(float64(d))
	}
	e.lastSent, e.lastLost = snap.Counters.Sent, snap.Counters.Lost

	connLostVal := 0.0
	if snap.ConnectionLost {
		connLostVal = 1
	}
	e.connLost.Set(connLostVal)

	e.latencyMs.WithLabelValues("target", "avg").Set(snap.Latency.Avg)
	e.latencyMs.WithLabelValues("target", "min").Set(snap.Latency.Min)
	e.latencyMs.WithLabelValues("target", "max").Set(snap.Latency.Max)
	e.jitterMs.Set(snap.Latency.Jitter)
	e.lossRatio30m.Set(snap.LossRatio30m)

	e.dnsScore.Set(snap.DnsScore)

	for _, hop := range snap.Hops {
		idx := strconv.Itoa(hop.Index)
		e.hopLatency.WithLabelValues(idx).Set(hop.Latency.Avg)
		if hop.Total > 0 {
			e.hopLoss.WithLabelValues(idx).Set(float64(hop.Lost) / float64(hop.Total))
		}
	}

	mtu := 0.0
	if snap.MTU.PathMTUEstimate > 0 {
		mtu = float64(snap.MTU.PathMTUEstimate)
	}
	e.mtuEstimate.Set(mtu)

	byPriority := map[string]int{}
	for _, a := range snap.ActiveAlerts {
		byPriority[string(a.Priority)]++
	}
	for _, p := range []string{"low", "medium", "high", "critical"} {
		e.activeAlerts.WithLabelValues(p).Set(float64(byPriority[p]))
	}
	return nil
}

// NoteRouteChange increments the route-change counter. The counter is not
// re-derived from a snapshot diff, and no worker in this module calls this
// method, so the counter stays at zero unless a caller invokes it.
func (e *Exporter) NoteRouteChange() { e.routeChanges.Inc() }

// NoteDNSQuery increments the DNS query counter and records latency for
// one resolved query.
func (e *Exporter) NoteDNSQuery(recordType, provider string, latency time.Duration, testKind string) {
	e.dnsQueries.WithLabelValues(recordType, provider).Inc()
	if testKind != "" {
		e.dnsLatency.WithLabelValues(provider, testKind).Observe(latency.Seconds())
	}
}

// Start serves /metrics on Addr until ctx is cancelled.
func (e *Exporter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: e.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- e.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
