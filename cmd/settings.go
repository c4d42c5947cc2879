package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Settings is the environment-driven configuration surface. Flags override
// these at the command level.
type Settings struct {
	PopulationSize int
	MaxGenerations int
	Timeout        time.Duration

	OSRMBaseURL   string
	OSRMTimeout   time.Duration
	RouteCacheTTL time.Duration

	MaxConcurrent int
	CheckpointDir string
}

// LoadSettings reads the OPTIMIZATION_*, OSRM_*, and scheduler environment
// variables, falling back to documented defaults. Malformed values are
// rejected loudly rather than silently defaulted.
func LoadSettings() Settings {
	return Settings{
		PopulationSize: envInt("OPTIMIZATION_POPULATION_SIZE", 200),
		MaxGenerations: envInt("OPTIMIZATION_MAX_GENERATIONS", 500),
		Timeout:        envDuration("OPTIMIZATION_TIMEOUT", 900*time.Second),
		OSRMBaseURL:    os.Getenv("OSRM_BASE_URL"),
		OSRMTimeout:    envDuration("OSRM_TIMEOUT", 30*time.Second),
		RouteCacheTTL:  time.Duration(envInt("ROUTE_CACHE_TTL_HOURS", 24)) * time.Hour,
		MaxConcurrent:  envInt("MAX_CONCURRENT_OPTIMIZATIONS", 4),
		CheckpointDir:  os.Getenv("CHECKPOINT_DIR"),
	}
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Fatalf("Invalid %s=%q: %v", key, raw, err)
	}
	return v
}

// envDuration accepts Go duration syntax ("15m") or a bare second count.
func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Fatalf("Invalid %s=%q: want a duration or seconds", key, raw)
	}
	return time.Duration(secs) * time.Second
}
