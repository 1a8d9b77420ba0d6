package probe

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/procsup"
	"github.com/netwatch/netwatch/repository"
)

// mtuProbeSizes are payload sizes (bytes, excluding the 28-byte IP+ICMP
// header) tried largest-first; the largest that doesn't fragment estimates
// the path MTU (spec §4.6).
var mtuProbeSizes = []int{1472, 1392, 1300, 1200, 1024, 576}

// mtuPingTimeout is intentionally short: the whole probe tries up to six
// sizes and must still complete in a few seconds (spec §4.6 "fast-fail
// per-ping timeout").
const mtuPingTimeout = 800 * time.Millisecond

// MTUWorker probes path MTU via don't-fragment pings every CheckInterval
// ticks (spec §4.6).
type MTUWorker struct {
	Repo          *repository.Repository
	Sup           *procsup.Supervisor
	Log           *zap.SugaredLogger
	Target        string
	Interval      time.Duration
	CheckInterval int // run the actual probe every N ticks
	Alerts        AlertRaiser // may be nil

	tick int
}

func (w *MTUWorker) Name() string          { return "mtu" }
func (w *MTUWorker) Period() time.Duration { return w.Interval }

func (w *MTUWorker) RunOnce(ctx context.Context) error {
	w.tick++
	if w.CheckInterval > 1 && w.tick%w.CheckInterval != 0 {
		return nil
	}

	best := 0
	for _, size := range mtuProbeSizes {
		argv := dfPingArgv(w.Target, size)
		res, err := w.Sup.Spawn(ctx, argv, mtuPingTimeout)
		if err == nil && res.Kind == procsup.KindOK && res.ExitCode == 0 && rttPattern.MatchString(res.Stdout) {
			best = size + 28
			break
		}
	}

	currentMTU := best
	pathMTUEstimate := best
	issueNow := best > 0 && best < 1500

	changed, newState := w.Repo.UpdateMTUHysteresis(issueNow, currentMTU, pathMTUEstimate)
	if changed && newState {
		w.Log.Infow("path MTU issue detected", "estimate", pathMTUEstimate)
	}
	if w.Alerts != nil && changed {
		fp := w.Alerts.Fingerprint(model.KindMTUIssue, w.Target)
		if newState {
			w.Alerts.Raise(model.KindMTUIssue, model.SeverityWarning, w.Target,
				fmt.Sprintf("path MTU to %s dropped to an estimated %d bytes", w.Target, pathMTUEstimate))
		} else {
			w.Alerts.Clear(fp)
		}
	}
	return nil
}

// dfPingArgv builds a don't-fragment ping of the given payload size.
func dfPingArgv(target string, size int) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"ping", "-n", "1", "-f", "-l", strconv.Itoa(size), target}
	case "darwin":
		return []string{"ping", "-c", "1", "-D", "-s", strconv.Itoa(size), target}
	default:
		return []string{"ping", "-c", "1", "-M", "do", "-s", strconv.Itoa(size), target}
	}
}
