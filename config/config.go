// Package config loads netwatch's configuration: a YAML file on disk
// supplies defaults, environment variables overlay it (spec §6). Grounded
// on kubePulse's internal/config/config.go (yaml.v3 struct + Default() +
// env overrides + Validate()).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete set of knobs spec.md §6 documents.
type Config struct {
	Target   string        `yaml:"target_ip"`
	Interval time.Duration `yaml:"interval"`

	LatencyWindowSize int `yaml:"window_size"`

	PacketLossThreshold      float64 `yaml:"packet_loss_threshold"`
	AvgLatencyThresholdMs    float64 `yaml:"avg_latency_threshold"`
	JitterThresholdMs        float64 `yaml:"jitter_threshold"`
	ConsecutiveLossThreshold int     `yaml:"consecutive_loss_threshold"`

	EnableSoundAlerts bool          `yaml:"enable_sound_alerts"`
	AlertCooldown     time.Duration `yaml:"alert_cooldown"`
	EnableQuietHours  bool          `yaml:"enable_quiet_hours"`
	QuietHoursStart   int           `yaml:"quiet_hours_start"`
	QuietHoursEnd     int           `yaml:"quiet_hours_end"`

	DNSMonitorEnabled    bool          `yaml:"dns_monitor_enabled"`
	DNSTestDomain        string        `yaml:"dns_test_domain"`
	DNSRecordTypes       []string      `yaml:"dns_record_types"`
	DNSMonitorInterval   time.Duration `yaml:"dns_monitor_interval"`
	DNSBenchmarkServers  []string      `yaml:"dns_benchmark_servers"`
	DNSBenchmarkInterval time.Duration `yaml:"dns_benchmark_interval"`
	DNSSlowThresholdMs   float64       `yaml:"dns_slow_threshold"`

	MTUCheckEnabled  bool          `yaml:"mtu_check_enabled"`
	MTUCheckInterval time.Duration `yaml:"mtu_check_interval"`

	HopProbingEnabled   bool          `yaml:"hop_probing_enabled"`
	HopProbingInterval  time.Duration `yaml:"hop_probing_interval"`
	AutoTracerouteOnLoss bool         `yaml:"auto_traceroute_on_loss"`
	TracerouteInterval   time.Duration `yaml:"traceroute_interval"`

	MetricsAddr   string `yaml:"metrics_addr"`
	MetricsPort   int    `yaml:"metrics_port"`
	HealthAddr    string `yaml:"health_addr"`
	HealthPort    int    `yaml:"health_port"`
	HealthAllowNonLoopback bool `yaml:"health_allow_non_loopback"`
	HealthAuthToken        string `yaml:"health_auth_token"`

	SmartAlertsEnabled   bool    `yaml:"smart_alerts_enabled"`
	AlertEscalationMins  int     `yaml:"alert_escalation_time_minutes"`
	AlertRateLimitPerMin int     `yaml:"alert_rate_limit_per_minute"`
	AlertRateLimitBurst  int     `yaml:"alert_rate_limit_burst"`
	AlertJaccardThreshold float64 `yaml:"alert_jaccard_threshold"`

	AlertWebhook         string `yaml:"alert_webhook"`
	AlertCommand         string `yaml:"alert_command"`
	AlertEmail           string `yaml:"alert_email"`
	AlertSlackWebhook    string `yaml:"alert_slack_webhook"`
	AlertTelegramToken   string `yaml:"alert_telegram_bot_token"`
	AlertTelegramChatID  string `yaml:"alert_telegram_chat_id"`

	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
}

// Default returns spec.md §6's documented defaults.
func Default() *Config {
	return &Config{
		Target:                   "8.8.8.8",
		Interval:                 time.Second,
		LatencyWindowSize:        120,
		PacketLossThreshold:      0.05,
		AvgLatencyThresholdMs:    150,
		JitterThresholdMs:        50,
		ConsecutiveLossThreshold: 5,
		EnableSoundAlerts:        true,
		AlertCooldown:            time.Minute,
		EnableQuietHours:         false,
		QuietHoursStart:          22,
		QuietHoursEnd:            6,
		DNSMonitorEnabled:        true,
		DNSTestDomain:            "google.com",
		DNSRecordTypes:           []string{"A", "AAAA"},
		DNSMonitorInterval:       10 * time.Second,
		DNSBenchmarkServers:      []string{"8.8.8.8", "1.1.1.1"},
		DNSBenchmarkInterval:     30 * time.Second,
		DNSSlowThresholdMs:       200,
		MTUCheckEnabled:          true,
		MTUCheckInterval:         30 * time.Second,
		HopProbingEnabled:        true,
		HopProbingInterval:       5 * time.Second,
		AutoTracerouteOnLoss:     true,
		TracerouteInterval:       time.Minute,
		MetricsAddr:              "127.0.0.1",
		MetricsPort:              9109,
		HealthAddr:               "127.0.0.1",
		HealthPort:               9110,
		SmartAlertsEnabled:       true,
		AlertEscalationMins:      15,
		AlertRateLimitPerMin:     10,
		AlertRateLimitBurst:      5,
		AlertJaccardThreshold:    0.85,
		LogLevel:                 "info",
		DataDir:                  defaultDataDir(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".netwatch"
	}
	return home + "/.netwatch"
}

// Load reads path (if it exists), falls back to Default() otherwise, then
// applies environment variable overrides and validates bounds (spec §6,
// §7 ValidationError). A missing file is not an error — matching the
// teacher's config.Load resilience posture of "always return something
// usable" — but a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	str("TARGET_IP", &c.Target)
	duration("INTERVAL", &c.Interval, time.Second)
	integer("WINDOW_SIZE", &c.LatencyWindowSize)
	float("PACKET_LOSS_THRESHOLD", &c.PacketLossThreshold)
	float("AVG_LATENCY_THRESHOLD", &c.AvgLatencyThresholdMs)
	float("JITTER_THRESHOLD", &c.JitterThresholdMs)
	integer("CONSECUTIVE_LOSS_THRESHOLD", &c.ConsecutiveLossThreshold)
	boolean("ENABLE_SOUND_ALERTS", &c.EnableSoundAlerts)
	duration("ALERT_COOLDOWN", &c.AlertCooldown, time.Second)
	boolean("ENABLE_QUIET_HOURS", &c.EnableQuietHours)
	integer("QUIET_HOURS_START", &c.QuietHoursStart)
	integer("QUIET_HOURS_END", &c.QuietHoursEnd)
	boolean("DNS_MONITOR_ENABLED", &c.DNSMonitorEnabled)
	str("DNS_TEST_DOMAIN", &c.DNSTestDomain)
	csv("DNS_RECORD_TYPES", &c.DNSRecordTypes)
	duration("DNS_MONITOR_INTERVAL", &c.DNSMonitorInterval, time.Second)
	csv("DNS_BENCHMARK_SERVERS", &c.DNSBenchmarkServers)
	duration("DNS_BENCHMARK_INTERVAL", &c.DNSBenchmarkInterval, time.Second)
	float("DNS_SLOW_THRESHOLD", &c.DNSSlowThresholdMs)
	boolean("MTU_CHECK_ENABLED", &c.MTUCheckEnabled)
	duration("MTU_CHECK_INTERVAL", &c.MTUCheckInterval, time.Second)
	boolean("HOP_PROBING_ENABLED", &c.HopProbingEnabled)
	duration("HOP_PROBING_INTERVAL", &c.HopProbingInterval, time.Second)
	boolean("AUTO_TRACEROUTE_ON_LOSS", &c.AutoTracerouteOnLoss)
	duration("TRACEROUTE_INTERVAL", &c.TracerouteInterval, time.Second)
	str("METRICS_ADDR", &c.MetricsAddr)
	integer("METRICS_PORT", &c.MetricsPort)
	str("HEALTH_ADDR", &c.HealthAddr)
	integer("HEALTH_PORT", &c.HealthPort)
	boolean("HEALTH_ALLOW_NON_LOOPBACK", &c.HealthAllowNonLoopback)
	str("HEALTH_AUTH_TOKEN", &c.HealthAuthToken)
	boolean("SMART_ALERTS_ENABLED", &c.SmartAlertsEnabled)
	integer("ALERT_ESCALATION_TIME_MINUTES", &c.AlertEscalationMins)
	integer("ALERT_RATE_LIMIT_PER_MINUTE", &c.AlertRateLimitPerMin)
	integer("ALERT_RATE_LIMIT_BURST", &c.AlertRateLimitBurst)
	float("ALERT_JACCARD_THRESHOLD", &c.AlertJaccardThreshold)
	str("ALERT_WEBHOOK", &c.AlertWebhook)
	str("ALERT_COMMAND", &c.AlertCommand)
	str("ALERT_EMAIL", &c.AlertEmail)
	str("ALERT_SLACK_WEBHOOK", &c.AlertSlackWebhook)
	str("ALERT_TELEGRAM_BOT_TOKEN", &c.AlertTelegramToken)
	str("ALERT_TELEGRAM_CHAT_ID", &c.AlertTelegramChatID)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATA_DIR", &c.DataDir)
}

func str(env string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func csv(env string, dst *[]string) {
	if v := os.Getenv(env); v != "" {
		*dst = strings.Split(v, ",")
	}
}

func boolean(env string, dst *bool) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func integer(env string, dst *int) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func float(env string, dst *float64) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func duration(env string, dst *time.Duration, unit time.Duration) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * unit
	}
}

// Validate checks every bound spec.md §6/§7 requires, returning a single
// joined error listing every violation found (spec §7 ValidationError).
func (c *Config) Validate() error {
	var problems []string

	if c.Target == "" {
		problems = append(problems, "target_ip is required")
	}
	if c.Interval <= 0 || c.Interval > time.Second {
		problems = append(problems, "interval must be > 0 and <= 1s (spec: probing is bounded to 1Hz)")
	}
	if c.LatencyWindowSize <= 0 {
		problems = append(problems, "window_size must be positive")
	}
	if c.PacketLossThreshold < 0 || c.PacketLossThreshold > 1 {
		problems = append(problems, "packet_loss_threshold must be in [0,1]")
	}
	if c.ConsecutiveLossThreshold <= 0 {
		problems = append(problems, "consecutive_loss_threshold must be positive")
	}
	if c.EnableQuietHours {
		if c.QuietHoursStart < 0 || c.QuietHoursStart > 23 || c.QuietHoursEnd < 0 || c.QuietHoursEnd > 23 {
			problems = append(problems, "quiet_hours_start/end must be in [0,23]")
		}
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		problems = append(problems, "metrics_port must be a valid TCP port")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		problems = append(problems, "health_port must be a valid TCP port")
	}
	if c.AlertJaccardThreshold < 0 || c.AlertJaccardThreshold > 1 {
		problems = append(problems, "alert_jaccard_threshold must be in [0,1]")
	}
	if c.AlertRateLimitPerMin <= 0 {
		problems = append(problems, "alert_rate_limit_per_minute must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
