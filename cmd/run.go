package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/netwatch/netwatch/alertpipe"
	"github.com/netwatch/netwatch/classify"
	"github.com/netwatch/netwatch/config"
	"github.com/netwatch/netwatch/eventlog"
	"github.com/netwatch/netwatch/health"
	"github.com/netwatch/netwatch/lockfile"
	"github.com/netwatch/netwatch/metrics"
	"github.com/netwatch/netwatch/orchestrator"
	"github.com/netwatch/netwatch/probe"
	"github.com/netwatch/netwatch/procsup"
	"github.com/netwatch/netwatch/repository"
	"github.com/netwatch/netwatch/ui"
)

// newLogger builds the process-wide logger, grounded on kubePulse's
// cmd/kubepulse/main.go (production config, ISO8601 timestamps).
func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// runMonitor loads configuration, acquires the single-instance lock, wires
// every worker onto the orchestrator, and runs until an interrupt or
// terminate signal arrives (spec §6 "Shutdown discipline").
func runMonitor(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return exitf(2, "config invalid: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return exitf(1, "failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	log := logger.Sugar()

	if !probe.PingAvailable() {
		return exitf(1, "ping binary not found in PATH")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return exitf(1, "creating data directory %s: %v", cfg.DataDir, err)
	}

	lock, err := lockfile.Acquire(filepath.Join(cfg.DataDir, "netwatch.lock"))
	if err != nil {
		return exitf(1, "another netwatch instance is already running: %v", err)
	}
	defer lock.Release() //nolint:errcheck

	events, err := eventlog.New(cfg.DataDir)
	if err != nil {
		return exitf(1, "opening event log: %v", err)
	}
	_ = events.Append("startup", "netwatch starting", map[string]string{"target": cfg.Target})

	repo := repository.New(repository.Config{
		LatencyWindowSize:        cfg.LatencyWindowSize,
		LossWindowSize:           1800,
		ConsecutiveLossThreshold: cfg.ConsecutiveLossThreshold,
		MTUIssueConsecutive:      3,
		MTUClearConsecutive:      3,
		RouteChangeConsecutive:   2,
		DNSBenchmarkHistorySize:  50,
		AlertHistorySize:         200,
		RecurringWindow:          time.Hour,
	})

	sup := procsup.New(log)
	orch := orchestrator.New(log)

	notifier := alertpipe.NewNotifier(alertpipe.NotifyConfig{
		Webhook:          cfg.AlertWebhook,
		Command:          cfg.AlertCommand,
		Email:            cfg.AlertEmail,
		SlackWebhook:     cfg.AlertSlackWebhook,
		TelegramBotToken: cfg.AlertTelegramToken,
		TelegramChatID:   cfg.AlertTelegramChatID,
	}, log)

	pipeline := alertpipe.New(repo, notifier, log, alertpipe.Config{
		Interval:           5 * time.Second,
		BaselineMinSamples: 30,
		BaselineBucketHist: 168,
		LatencyK:           3,
		JitterK:            3,
		StaticLatencyMs:    cfg.AvgLatencyThresholdMs,
		StaticJitterMs:     cfg.JitterThresholdMs,
		StaticLossRatio:    cfg.PacketLossThreshold,
		RateLimitPerMinute: cfg.AlertRateLimitPerMin,
		RateLimitBurst:     cfg.AlertRateLimitBurst,
		EscalationAfter:    time.Duration(cfg.AlertEscalationMins) * time.Minute,
		JaccardThreshold:   cfg.AlertJaccardThreshold,
		QuietHoursEnabled:  cfg.EnableQuietHours,
		QuietHoursStart:    cfg.QuietHoursStart,
		QuietHoursEnd:      cfg.QuietHoursEnd,
		SoundEnabled:       cfg.EnableSoundAlerts,
	})

	classifyThresholds := classify.DefaultThresholds()
	classifyThresholds.ConsecutiveLostThreshold = int64(cfg.ConsecutiveLossThreshold)
	classifyThresholds.Loss30mThreshold = cfg.PacketLossThreshold

	classifier := &classify.Classifier{
		Repo:       repo,
		Log:        log,
		Thresholds: classifyThresholds,
		Interval:   time.Second,
	}

	geo := probe.NewGeoLookup("https://ipapi.co/%s/json/", 3*time.Second)

	pingWorker := &probe.PingWorker{
		Repo:       repo,
		Sup:        sup,
		Log:        log,
		Target:     cfg.Target,
		Interval:   cfg.Interval,
		TTLEvery:   10,
		Classifier: classifier,
	}
	if cfg.SmartAlertsEnabled {
		pingWorker.Alerts = pipeline
	}
	orch.Register(pingWorker)
	orch.Register(classifier)

	var routeDetector *probe.RouteDetector
	var hopProber *probe.HopProber
	if cfg.HopProbingEnabled {
		hopProber = &probe.HopProber{
			Repo:     repo,
			Sup:      sup,
			Log:      log,
			Geo:      geo,
			Interval: cfg.HopProbingInterval,
			Timeout:  2 * time.Second,
		}
		routeDetector = &probe.RouteDetector{
			Repo:               repo,
			Sup:                sup,
			Log:                log,
			Target:             cfg.Target,
			Interval:           cfg.TracerouteInterval,
			Timeout:            10 * time.Second,
			EscalationCooldown: 30 * time.Second,
			LatencyWindowSize:  cfg.LatencyWindowSize,
			OnChange:           hopProber,
		}
		if cfg.SmartAlertsEnabled {
			routeDetector.Alerts = pipeline
		}
		orch.Register(routeDetector)
		orch.Register(hopProber)
	}

	pingWorker.Incident = &incidentHook{
		repo:    repo,
		route:   routeDetector,
		events:  events,
		dataDir: cfg.DataDir,
		enabled: cfg.AutoTracerouteOnLoss,
	}

	if cfg.MTUCheckEnabled {
		mtuWorker := &probe.MTUWorker{
			Repo:          repo,
			Sup:           sup,
			Log:           log,
			Target:        cfg.Target,
			Interval:      cfg.MTUCheckInterval,
			CheckInterval: 1,
		}
		if cfg.SmartAlertsEnabled {
			mtuWorker.Alerts = pipeline
		}
		orch.Register(mtuWorker)
	}

	if cfg.DNSMonitorEnabled {
		for _, server := range cfg.DNSBenchmarkServers {
			if _, _, err := net.SplitHostPort(server); err != nil {
				server = net.JoinHostPort(server, "53")
			}
			monitor := &probe.DNSMonitor{
				Repo:            repo,
				Log:             log,
				Server:          server,
				TestDomain:      cfg.DNSTestDomain,
				RecordTypes:     cfg.DNSRecordTypes,
				Interval:        cfg.DNSMonitorInterval,
				Timeout:         3 * time.Second,
				MaxParallel:     4,
				PoorCutoff:      50,
				SlowThresholdMs: cfg.DNSSlowThresholdMs,
			}
			if cfg.SmartAlertsEnabled {
				monitor.Alerts = pipeline
			}
			orch.Register(monitor)

			orch.Register(&probe.DNSBenchmark{
				Repo:       repo,
				Log:        log,
				Server:     server,
				DotComHost: "google.com",
				Interval:   cfg.DNSBenchmarkInterval,
				Timeout:    3 * time.Second,
			})
		}
	}

	ipWorker := &probe.IPWorker{
		Repo: repo,
		Log:  log,
		Geo:  geo,
		Providers: []probe.IPProvider{
			{URL: "https://api.ipify.org", Field: ""},
			{URL: "https://ifconfig.me/ip", Field: ""},
			{URL: "https://icanhazip.com", Field: ""},
		},
		Interval:   time.Minute,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
	orch.Register(ipWorker)

	versionPoller := &probe.VersionPoller{
		Log:            log,
		Endpoint:       "https://api.github.com/repos/netwatch/netwatch/releases/latest",
		CurrentVersion: Version,
		Schedule:       "@hourly",
		HTTPClient:     &http.Client{Timeout: 5 * time.Second},
	}
	if err := versionPoller.Start(ctx); err != nil {
		log.Warnw("version poller failed to start", "error", err)
	} else {
		defer versionPoller.Stop()
	}

	if cfg.SmartAlertsEnabled {
		orch.Register(pipeline)
	}

	var exporter *metrics.Exporter
	if cfg.MetricsPort != 0 {
		exporter = metrics.New(repo, log, fmt.Sprintf("%s:%d", cfg.MetricsAddr, cfg.MetricsPort))
		orch.Register(exporter)
	}

	healthSrv := &health.Server{
		Repo:             repo,
		Log:              log,
		Addr:             fmt.Sprintf("%s:%d", cfg.HealthAddr, cfg.HealthPort),
		Interval:         cfg.Interval,
		AllowNonLoopback: cfg.HealthAllowNonLoopback,
		AuthToken:        cfg.HealthAuthToken,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := healthSrv.Start(runCtx); err != nil {
			log.Warnw("health server stopped", "error", err)
		}
	}()
	if exporter != nil {
		go func() {
			if err := exporter.Start(runCtx); err != nil {
				log.Warnw("metrics server stopped", "error", err)
			}
		}()
	}
	go orch.Run(runCtx)

	var uiErr error
	if !isatty() {
		// Headless operation (no TTY, e.g. under a container supervisor):
		// block on shutdown signals instead of driving a dashboard.
		select {
		case <-sigCh:
		case <-runCtx.Done():
		}
	} else {
		program := tea.NewProgram(ui.NewModel(repo, cfg.Target, cfg.Interval))
		go func() {
			select {
			case <-sigCh:
				program.Quit()
			case <-runCtx.Done():
				program.Quit()
			}
		}()
		_, uiErr = program.Run()
	}

	log.Info("shutting down")
	cancel()
	orch.Shutdown(5 * time.Second)
	sup.Shutdown(5 * time.Second)
	_ = events.Append("shutdown", "netwatch stopped", nil)

	if uiErr != nil {
		return fmt.Errorf("dashboard exited: %w", uiErr)
	}
	return nil
}

// incidentHook triggers an out-of-cycle traceroute and persists the
// currently known route on every connection-lost transition (spec §6
// "auto-traceroute on loss", "Persisted state").
type incidentHook struct {
	repo    *repository.Repository
	route   *probe.RouteDetector
	events  *eventlog.Log
	dataDir string
	enabled bool
}

func (h *incidentHook) NoteConnectionTransition(ctx context.Context, lost bool) {
	if !lost || !h.enabled {
		return
	}
	if h.route != nil {
		h.route.TriggerEscalation(ctx)
	}
	route := h.repo.Route()
	if len(route.Hops) == 0 {
		return
	}
	var b strings.Builder
	for _, hop := range route.Hops {
		fmt.Fprintf(&b, "%d  %s\n", hop.Index, hop.IP)
	}
	path, err := eventlog.SaveTraceroute(h.dataDir, b.String())
	if err != nil {
		return
	}
	_ = h.events.Append("traceroute_snapshot", "saved traceroute snapshot on connection loss", map[string]string{"path": path})
}

func isatty() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
