package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings shared by the analyzer and
// executor processes. Strategy thresholds live in the YAML profile file,
// not here.
type Config struct {
	// HTTP ops surface
	Port string

	// Paths
	DBPath      string
	ProfilePath string // YAML profile/instrument configuration
	SignalDir   string // durable decision queue directory

	// Instruments evaluated by the analyzer
	Symbols []string

	// Cadences
	AnalysisInterval time.Duration
	SignalPoll       time.Duration
	MonitorInterval  time.Duration
	ReconcileEvery   time.Duration

	// Ingestion
	UseMockFeed bool
	FeedURL     string

	// Broker
	DryRun         bool
	SimBalance     float64
	SimFailureRate float64
	OrderTag       string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the process still starts when .env is missing.
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/mft.db")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           dbPath,
		ProfilePath:      getEnv("PROFILE_CONFIG_PATH", "./config/profiles.yaml"),
		SignalDir:        getEnv("SIGNAL_DIR", "./data/signals"),
		Symbols:          splitAndTrim(getEnv("SYMBOLS", "WIN$N")),
		AnalysisInterval: getEnvDuration("ANALYSIS_INTERVAL", 5*time.Second),
		SignalPoll:       getEnvDuration("SIGNAL_POLL_INTERVAL", 2*time.Second),
		MonitorInterval:  getEnvDuration("MONITOR_INTERVAL", 30*time.Second),
		ReconcileEvery:   getEnvDuration("RECONCILE_INTERVAL", 10*time.Second),
		UseMockFeed:      getEnv("USE_MOCK_FEED", "true") == "true",
		FeedURL:          getEnv("FEED_URL", ""),
		DryRun:           getEnv("DRY_RUN", "true") == "true",
		SimBalance:       getEnvFloat("SIM_INITIAL_BALANCE", 100000.0),
		SimFailureRate:   getEnvFloat("SIM_FAILURE_RATE", 0),
		OrderTag:         getEnv("ORDER_TAG", "mft-core"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are treated as seconds.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
