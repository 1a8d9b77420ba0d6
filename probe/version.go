package probe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// VersionPoller polls a release endpoint on a calendar schedule (default
// hourly) and surfaces "update available" only through its own
// UpdateAvailable() method; it writes nothing to the repository. Its
// schedule is calendar-shaped rather than a fixed tick, so it is driven by
// a cron expression instead of the orchestrator's Worker interface.
type VersionPoller struct {
	Log            *zap.SugaredLogger
	Endpoint       string // returns JSON {"tag_name": "v1.2.3"}
	CurrentVersion string
	Schedule       string // cron spec, default "@hourly"
	HTTPClient     *http.Client

	cronRunner  *cron.Cron
	mu          sync.Mutex
	latest      string
	updateAvail bool
}

type releaseResponse struct {
	TagName string `json:"tag_name"`
}

// Start schedules the poller and runs one immediate poll in the background.
func (p *VersionPoller) Start(ctx context.Context) error {
	schedule := p.Schedule
	if schedule == "" {
		schedule = "@hourly"
	}
	p.cronRunner = cron.New()
	_, err := p.cronRunner.AddFunc(schedule, func() { p.poll(ctx) })
	if err != nil {
		return err
	}
	p.cronRunner.Start()
	go p.poll(ctx)
	return nil
}

// Stop halts the cron scheduler.
func (p *VersionPoller) Stop() {
	if p.cronRunner != nil {
		stopCtx := p.cronRunner.Stop()
		<-stopCtx.Done()
	}
}

// UpdateAvailable reports whether the last successful poll found a newer
// release than CurrentVersion.
func (p *VersionPoller) UpdateAvailable() (latest string, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.updateAvail
}

func (p *VersionPoller) poll(ctx context.Context) {
	const attempts = 3
	backoff := 500 * time.Millisecond

	var tag string
	var err error
	for i := 0; i < attempts; i++ {
		tag, err = p.fetchLatest(ctx)
		if err == nil {
			break
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	if err != nil {
		p.Log.Debugw("version poll failed after retries", "error", err)
		return
	}

	p.mu.Lock()
	p.latest = tag
	p.updateAvail = isNewer(tag, p.CurrentVersion)
	p.mu.Unlock()
}

func (p *VersionPoller) fetchLatest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint, nil)
	if err != nil {
		return "", err
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errBadStatus
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		return "", err
	}
	var parsed releaseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	return parsed.TagName, nil
}

// isNewer compares two "vMAJOR.MINOR.PATCH[-rcN]" tags numerically,
// tolerating a leading "v" and an -rcN/-beta-style suffix (spec §4.6
// "tolerates suffixes like -rcN").
func isNewer(latest, current string) bool {
	lv, lok := parseVersion(latest)
	cv, cok := parseVersion(current)
	if !lok || !cok {
		return latest != current && latest != ""
	}
	for i := 0; i < 3; i++ {
		if lv[i] != cv[i] {
			return lv[i] > cv[i]
		}
	}
	return false
}

func parseVersion(v string) ([3]int, bool) {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	parts := strings.SplitN(v, ".", 3)
	var out [3]int
	for i := 0; i < 3 && i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
