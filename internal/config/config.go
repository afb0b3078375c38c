package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "storeforge.db"
	defaultIngressDomain = "127.0.0.1.nip.io"
	defaultIngressPort   = 8080

	defaultProvisioningTimeout = 10 * time.Minute
	defaultReapInterval        = time.Minute
	defaultPodPollInterval     = 3 * time.Second
	defaultJobPollInterval     = 5 * time.Second
	defaultPodWaitBudget       = 10 * time.Minute
	defaultJobWaitBudget       = 10 * time.Minute

	defaultMaxActiveStores = 10
	defaultOwnerQuota      = 5

	envListenAddr          = "STOREFORGE_LISTEN_ADDR"
	envDBPath              = "STOREFORGE_DB_PATH"
	envLogLevel            = "STOREFORGE_LOG_LEVEL"
	envIngressDomain       = "STOREFORGE_INGRESS_DOMAIN"
	envIngressPort         = "STOREFORGE_INGRESS_PORT"
	envProvisioningTimeout = "STOREFORGE_PROVISIONING_TIMEOUT"
	envReapInterval        = "STOREFORGE_REAP_INTERVAL"
	envPodPollInterval     = "STOREFORGE_POD_POLL_INTERVAL"
	envJobPollInterval     = "STOREFORGE_JOB_POLL_INTERVAL"
	envPodWaitBudget       = "STOREFORGE_POD_WAIT_BUDGET"
	envJobWaitBudget       = "STOREFORGE_JOB_WAIT_BUDGET"
	envMaxActiveStores     = "STOREFORGE_MAX_ACTIVE_STORES"
	envOwnerQuota          = "STOREFORGE_OWNER_QUOTA"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// IngressDomain and IngressPort drive the deterministic store URL
	// scheme: http://<store-id>.<domain>:<port>.
	IngressDomain string
	IngressPort   int

	// ProvisioningTimeout is the instance-level deadline window set at
	// creation time and enforced by the reaper.
	ProvisioningTimeout time.Duration
	ReapInterval        time.Duration

	// Per-step polling knobs for the provisioning pipeline.
	PodPollInterval time.Duration
	JobPollInterval time.Duration
	PodWaitBudget   time.Duration
	JobWaitBudget   time.Duration

	// MaxActiveStores caps concurrently active (provisioning or ready)
	// stores platform-wide; OwnerQuota caps non-deleted stores per caller.
	MaxActiveStores int
	OwnerQuota      int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:          defaultListenAddr,
		DBPath:              defaultDBPath,
		LogLevel:            slog.LevelInfo,
		IngressDomain:       defaultIngressDomain,
		IngressPort:         defaultIngressPort,
		ProvisioningTimeout: defaultProvisioningTimeout,
		ReapInterval:        defaultReapInterval,
		PodPollInterval:     defaultPodPollInterval,
		JobPollInterval:     defaultJobPollInterval,
		PodWaitBudget:       defaultPodWaitBudget,
		JobWaitBudget:       defaultJobWaitBudget,
		MaxActiveStores:     defaultMaxActiveStores,
		OwnerQuota:          defaultOwnerQuota,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envIngressDomain); v != "" {
		cfg.IngressDomain = v
	}
	cfg.IngressPort = intEnv(envIngressPort, cfg.IngressPort)

	cfg.ProvisioningTimeout = durationEnv(envProvisioningTimeout, cfg.ProvisioningTimeout)
	cfg.ReapInterval = durationEnv(envReapInterval, cfg.ReapInterval)
	cfg.PodPollInterval = durationEnv(envPodPollInterval, cfg.PodPollInterval)
	cfg.JobPollInterval = durationEnv(envJobPollInterval, cfg.JobPollInterval)
	cfg.PodWaitBudget = durationEnv(envPodWaitBudget, cfg.PodWaitBudget)
	cfg.JobWaitBudget = durationEnv(envJobWaitBudget, cfg.JobWaitBudget)

	cfg.MaxActiveStores = intEnv(envMaxActiveStores, cfg.MaxActiveStores)
	cfg.OwnerQuota = intEnv(envOwnerQuota, cfg.OwnerQuota)

	return cfg
}

func intEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func durationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
