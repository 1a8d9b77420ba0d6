package probe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/procsup"
	"github.com/netwatch/netwatch/repository"
)

// HopProber pings every known hop in parallel each tick (spec §4.7). It
// implements RouteChangeNotifier, but a committed route change does not
// trigger an extra probe; the new hops are pinged on the next scheduled
// tick.
type HopProber struct {
	Repo     *repository.Repository
	Sup      *procsup.Supervisor
	Log      *zap.SugaredLogger
	Geo      *GeoLookup
	Interval time.Duration
	Timeout  time.Duration
}

func (p *HopProber) Name() string          { return "hop-prober" }
func (p *HopProber) Period() time.Duration { return p.Interval }

// OnRouteChanged satisfies probe.RouteChangeNotifier; the hop table itself
// is already reset by repository.CommitRoute, so there is nothing further
// to do here beyond letting the next tick discover the new hops.
func (p *HopProber) OnRouteChanged(route model.Route) {}

func (p *HopProber) RunOnce(ctx context.Context) error {
	route := p.Repo.Route()
	if len(route.Hops) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, hop := range route.Hops {
		hop := hop
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.pingHop(ctx, hop)
		}()
	}
	wg.Wait()

	p.updateRouteStats(route)
	return nil
}

func (p *HopProber) pingHop(ctx context.Context, hop model.Hop) {
	argv := pingArgv(hop.IP, p.Timeout)
	res, err := p.Sup.Spawn(ctx, argv, p.Timeout)
	ok := err == nil && res.Kind == procsup.KindOK && res.ExitCode == 0
	if !ok {
		p.Repo.RecordHopPing(hop.Index, false, 0)
		return
	}
	m := rttPattern.FindStringSubmatch(res.Stdout)
	if len(m) != 2 {
		p.Repo.RecordHopPing(hop.Index, false, 0)
		return
	}
	rtt, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil {
		p.Repo.RecordHopPing(hop.Index, false, 0)
		return
	}
	p.Repo.RecordHopPing(hop.Index, true, rtt)

	if p.Geo != nil && hop.IP != "" {
		geo := p.Geo.Lookup(ctx, hop.IP)
		p.Repo.SetHopGeo(hop.Index, geo)
	}
}

// updateRouteStats recomputes the compact RouteStats summary from the
// repository's current hop state (spec §4.7).
func (p *HopProber) updateRouteStats(route model.Route) {
	indices := p.Repo.HopIndices()
	if len(indices) == 0 {
		return
	}

	snap := p.Repo.Snapshot()
	var totalLat, maxLat, totalLoss float64
	n := 0
	for _, h := range snap.Hops {
		if h.Total == 0 {
			continue
		}
		n++
		totalLat += h.Latency.Avg
		if h.Latency.Max > maxLat {
			maxLat = h.Latency.Max
		}
		if h.Total > 0 {
			totalLoss += float64(h.Lost) / float64(h.Total)
		}
	}
	if n == 0 {
		p.Repo.UpdateRouteStats(model.RouteStats{HopCount: len(route.Hops), Classification: model.RouteUnknown})
		return
	}

	avgLat := totalLat / float64(n)
	avgLoss := totalLoss / float64(n)

	classification := model.RouteHealthy
	switch {
	case avgLoss > 0.2 || maxLat > 500:
		classification = model.RouteCritical
	case avgLoss > 0.05 || maxLat > 200:
		classification = model.RouteDegraded
	}

	p.Repo.UpdateRouteStats(model.RouteStats{
		HopCount:       len(route.Hops),
		AvgLatencyMs:   avgLat,
		MaxLatencyMs:   maxLat,
		LossRatio:      avgLoss,
		Classification: classification,
	})
}
