package probe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

// recordTypeMap resolves the configured record type names to miekg/dns
// query type constants.
var recordTypeMap = map[string]uint16{
	"A":     dns.TypeA,
	"AAAA":  dns.TypeAAAA,
	"MX":    dns.TypeMX,
	"TXT":   dns.TypeTXT,
	"NS":    dns.TypeNS,
	"CNAME": dns.TypeCNAME,
	"SOA":   dns.TypeSOA,
}

// DNSMonitor periodically resolves TestDomain for every configured record
// type against Server (spec §4.5 "Monitor"). Every resolve call is
// delegated to a bounded worker pool so the orchestrator's scheduling
// goroutine is never blocked (spec §4.5, §5).
type DNSMonitor struct {
	Repo        *repository.Repository
	Log         *zap.SugaredLogger
	Server      string // host:port, e.g. "1.1.1.1:53"
	TestDomain  string
	RecordTypes []string
	Interval    time.Duration
	Timeout     time.Duration
	MaxParallel int
	Alerts      AlertRaiser // may be nil
	PoorCutoff  float64     // DnsScore at/below this raises dns_degraded

	// SlowThresholdMs normalizes benchmark latency into the composite score
	// (spec §4.5, OQ1: normalized_latency = min(1, avg_latency/threshold)).
	// Falls back to the spec's documented default of 200ms if unset.
	SlowThresholdMs float64
}

func (m *DNSMonitor) Name() string          { return "dns-monitor" }
func (m *DNSMonitor) Period() time.Duration { return m.Interval }

func (m *DNSMonitor) RunOnce(ctx context.Context) error {
	sem := make(chan struct{}, maxParallel(m.MaxParallel))
	g, gctx := errgroup.WithContext(ctx)

	for _, rt := range m.RecordTypes {
		rt := rt
		qtype, ok := recordTypeMap[rt]
		if !ok {
			continue
		}
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			m.resolveOne(gctx, rt, qtype)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.updateScore()
	m.evaluateAlerts()
	return nil
}

// updateScore computes and stores the composite DNS score (spec §4.5):
// 0.40·record_success_rate + 0.30·reliability + 0.30·(1−normalized_latency),
// scaled to [0,100]. record_success_rate comes from this tick's resolve
// results, reliability/latency from the benchmark windows the sibling
// DNSBenchmark worker maintains for the same server.
func (m *DNSMonitor) updateScore() {
	snap := m.Repo.Snapshot()

	recordTotal, recordOK := 0, 0
	for _, rec := range snap.DnsRecords {
		if rec.Server != m.Server {
			continue
		}
		recordTotal++
		if rec.LastOK {
			recordOK++
		}
	}
	recordSuccessRate := 1.0
	if recordTotal > 0 {
		recordSuccessRate = float64(recordOK) / float64(recordTotal)
	}

	reliability, normalizedLatency := 1.0, 0.0
	var reliabilitySum, avgLatencySum float64
	benchCount := 0
	for _, b := range snap.DnsBenchmark {
		if b.Server != m.Server {
			continue
		}
		reliabilitySum += b.Reliability
		avgLatencySum += b.Avg
		benchCount++
	}
	if benchCount > 0 {
		reliability = reliabilitySum / float64(benchCount)
		threshold := m.SlowThresholdMs
		if threshold <= 0 {
			threshold = 200
		}
		normalizedLatency = (avgLatencySum / float64(benchCount)) / threshold
		if normalizedLatency > 1 {
			normalizedLatency = 1
		}
	}

	score := 100 * (0.40*recordSuccessRate + 0.30*reliability + 0.30*(1-normalizedLatency))
	m.Repo.UpdateDNSScore(score)
}

// evaluateAlerts raises/clears dns_degraded off the repository's composite
// DNS score (spec §4.5 "Monitor" combined with §4.9).
func (m *DNSMonitor) evaluateAlerts() {
	if m.Alerts == nil {
		return
	}
	snap := m.Repo.Snapshot()
	fp := m.Alerts.Fingerprint(model.KindDNSDegraded, m.Server)
	if snap.DnsScore <= m.PoorCutoff {
		m.Alerts.Raise(model.KindDNSDegraded, model.SeverityWarning, m.Server,
			fmt.Sprintf("DNS quality score %.0f for %s at or below %.0f", snap.DnsScore, m.Server, m.PoorCutoff))
	} else {
		m.Alerts.Clear(fp)
	}
}

func (m *DNSMonitor) resolveOne(ctx context.Context, recordType string, qtype uint16) {
	client := &dns.Client{Timeout: m.Timeout}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(m.TestDomain), qtype)
	msg.RecursionDesired = true

	start := time.Now()
	resp, _, err := client.ExchangeContext(ctx, msg, m.Server)
	latency := time.Since(start)

	if err != nil {
		m.Repo.RecordDNS(recordType, m.Server, false, latency, 0, err.Error())
		return
	}
	if resp.Rcode != dns.RcodeSuccess {
		m.Repo.RecordDNS(recordType, m.Server, false, latency, 0, dns.RcodeToString[resp.Rcode])
		return
	}
	m.Repo.RecordDNS(recordType, m.Server, true, latency, len(resp.Answer), "")
}

// DNSBenchmark runs the three test kinds against Server each tick (spec
// §4.5 "Benchmark").
type DNSBenchmark struct {
	Repo       *repository.Repository
	Log        *zap.SugaredLogger
	Server     string
	DotComHost string // a popular .com name, e.g. "google.com"
	Interval   time.Duration
	Timeout    time.Duration
}

func (b *DNSBenchmark) Name() string          { return "dns-benchmark:" + b.Server }
func (b *DNSBenchmark) Period() time.Duration { return b.Interval }

func (b *DNSBenchmark) RunOnce(ctx context.Context) error {
	b.runCached(ctx)
	b.runUncached(ctx)
	b.runDotCom(ctx)
	return nil
}

func (b *DNSBenchmark) exchange(ctx context.Context, name string) (time.Duration, error) {
	client := &dns.Client{Timeout: b.Timeout}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	start := time.Now()
	_, _, err := client.ExchangeContext(ctx, msg, b.Server)
	return time.Since(start), err
}

func (b *DNSBenchmark) runCached(ctx context.Context) {
	// Two sequential queries for the same name; the second is presumed
	// cached by the resolver (spec §4.5).
	name := "netwatch-cache-probe.example.com"
	if _, err := b.exchange(ctx, name); err != nil {
		b.Repo.RecordDNSBenchmark(b.Server, "cached", false, 0)
		return
	}
	latency, err := b.exchange(ctx, name)
	if err != nil {
		b.Repo.RecordDNSBenchmark(b.Server, "cached", false, 0)
		return
	}
	b.Repo.RecordDNSBenchmark(b.Server, "cached", true, ms(latency))
}

func (b *DNSBenchmark) runUncached(ctx context.Context) {
	// A single attempt against a freshly generated random subdomain forces
	// recursion; no retry on failure (spec §4.5).
	name := randomSubdomain() + ".netwatch-uncached-probe.example.com"
	latency, err := b.exchange(ctx, name)
	if err != nil {
		b.Repo.RecordDNSBenchmark(b.Server, "uncached", false, 0)
		return
	}
	b.Repo.RecordDNSBenchmark(b.Server, "uncached", true, ms(latency))
}

func (b *DNSBenchmark) runDotCom(ctx context.Context) {
	latency, err := b.exchange(ctx, b.DotComHost)
	if err != nil {
		b.Repo.RecordDNSBenchmark(b.Server, "dotcom", false, 0)
		return
	}
	b.Repo.RecordDNSBenchmark(b.Server, "dotcom", true, ms(latency))
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func randomSubdomain() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func maxParallel(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}
