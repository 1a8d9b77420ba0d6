package probe

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/procsup"
	"github.com/netwatch/netwatch/repository"
)

// traceHopLine matches one traceroute/tracert output line: hop index, then
// an IP address (hostname resolution is disabled on the argv itself, per
// spec §4.7). Hops are not resolved to hostnames afterward either; their
// Hostname stays empty.
var traceHopLine = regexp.MustCompile(`^\s*(\d+)\D+?(\d{1,3}(?:\.\d{1,3}){3})`)

// RouteChangeNotifier is told about every committed route change. The hop
// prober's implementation does nothing; it picks up the new hops on its
// next tick.
type RouteChangeNotifier interface {
	OnRouteChanged(route model.Route)
}

// RouteDetector runs traceroute on Interval and, additionally, whenever
// TriggerEscalation is called (bounded by EscalationCooldown) — spec §4.7.
type RouteDetector struct {
	Repo               *repository.Repository
	Sup                *procsup.Supervisor
	Log                *zap.SugaredLogger
	Target             string
	Interval           time.Duration
	Timeout            time.Duration
	EscalationCooldown time.Duration
	LatencyWindowSize  int
	OnChange           RouteChangeNotifier
	Alerts             AlertRaiser // may be nil; raises route_changed once per committed change

	lastEscalation time.Time
	pendingTimeout map[int]int // consecutive-timeout counter per hop index, cleared each commit
}

func (d *RouteDetector) Name() string          { return "route-detector" }
func (d *RouteDetector) Period() time.Duration { return d.Interval }

// TriggerEscalation requests an out-of-cycle traceroute run, e.g. after a
// connection-problem escalation, bounded by EscalationCooldown so repeated
// escalations don't flood traceroute invocations (spec §4.7).
func (d *RouteDetector) TriggerEscalation(ctx context.Context) {
	if time.Since(d.lastEscalation) < d.EscalationCooldown {
		return
	}
	d.lastEscalation = time.Now()
	_ = d.RunOnce(ctx)
}

func (d *RouteDetector) RunOnce(ctx context.Context) error {
	argv := tracerouteArgv(d.Target)
	res, err := d.Sup.Spawn(ctx, argv, d.Timeout)
	if err != nil {
		return err
	}
	if res.Kind != procsup.KindOK {
		return nil
	}

	hops := parseTraceroute(res.Stdout)
	hops = d.filterSingleTimeouts(hops)
	if len(hops) == 0 {
		return nil
	}

	fingerprint := model.FingerprintHops(hops)
	changed, _ := d.Repo.UpdateRouteHysteresis(fingerprint)
	if !changed {
		return nil
	}

	route := model.Route{Hops: hops, CapturedAt: time.Now(), Fingerprint: fingerprint}
	d.Repo.CommitRoute(route, d.LatencyWindowSize)
	d.pendingTimeout = nil
	if d.OnChange != nil {
		d.OnChange.OnRouteChanged(route)
	}
	if d.Alerts != nil {
		d.Alerts.Raise(model.KindRouteChanged, model.SeverityInfo, d.Target,
			fmt.Sprintf("route to %s changed (%d hops)", d.Target, len(hops)))
	}
	return nil
}

// filterSingleTimeouts drops a hop that has timed out exactly once; two or
// more consecutive timeouts at the same position are kept as a real
// "unknown hop" entry (spec §4.7 "a single timeout hop is not treated as
// problematic").
func (d *RouteDetector) filterSingleTimeouts(hops []model.Hop) []model.Hop {
	if d.pendingTimeout == nil {
		d.pendingTimeout = make(map[int]int)
	}
	out := make([]model.Hop, 0, len(hops))
	for _, h := range hops {
		if h.IP == "" {
			d.pendingTimeout[h.Index]++
			if d.pendingTimeout[h.Index] < 2 {
				continue // a lone timeout hop is dropped, not committed
			}
		} else {
			d.pendingTimeout[h.Index] = 0
		}
		out = append(out, h)
	}
	return out
}

// parseTraceroute extracts (index, ip) pairs from traceroute/tracert
// output, skipping lines it can't parse (header lines, comments).
func parseTraceroute(output string) []model.Hop {
	var hops []model.Hop
	for _, line := range strings.Split(output, "\n") {
		m := traceHopLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		hops = append(hops, model.Hop{Index: idx, IP: m[2]})
	}
	return hops
}

// tracerouteArgv builds a traceroute/tracert invocation with synchronous
// DNS resolution disabled (spec §4.7).
func tracerouteArgv(target string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"tracert", "-d", "-h", "30", target}
	default:
		return []string{"traceroute", "-n", "-m", "30", target}
	}
}
