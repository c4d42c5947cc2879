package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSettings_Defaults(t *testing.T) {
	// GIVEN a clean environment
	for _, key := range []string{
		"OPTIMIZATION_POPULATION_SIZE", "OPTIMIZATION_MAX_GENERATIONS",
		"OPTIMIZATION_TIMEOUT", "OSRM_BASE_URL", "OSRM_TIMEOUT",
		"ROUTE_CACHE_TTL_HOURS", "MAX_CONCURRENT_OPTIMIZATIONS", "CHECKPOINT_DIR",
	} {
		t.Setenv(key, "")
	}

	s := LoadSettings()

	assert.Equal(t, 200, s.PopulationSize)
	assert.Equal(t, 500, s.MaxGenerations)
	assert.Equal(t, 900*time.Second, s.Timeout)
	assert.Empty(t, s.OSRMBaseURL)
	assert.Equal(t, 30*time.Second, s.OSRMTimeout)
	assert.Equal(t, 24*time.Hour, s.RouteCacheTTL)
	assert.Equal(t, 4, s.MaxConcurrent)
}

func TestLoadSettings_EnvironmentOverrides(t *testing.T) {
	t.Setenv("OPTIMIZATION_POPULATION_SIZE", "64")
	t.Setenv("OPTIMIZATION_MAX_GENERATIONS", "120")
	t.Setenv("OPTIMIZATION_TIMEOUT", "5m")
	t.Setenv("OSRM_BASE_URL", "http://osrm.internal:5000")
	t.Setenv("ROUTE_CACHE_TTL_HOURS", "6")
	t.Setenv("MAX_CONCURRENT_OPTIMIZATIONS", "2")

	s := LoadSettings()

	assert.Equal(t, 64, s.PopulationSize)
	assert.Equal(t, 120, s.MaxGenerations)
	assert.Equal(t, 5*time.Minute, s.Timeout)
	assert.Equal(t, "http://osrm.internal:5000", s.OSRMBaseURL)
	assert.Equal(t, 6*time.Hour, s.RouteCacheTTL)
	assert.Equal(t, 2, s.MaxConcurrent)
}

func TestLoadSettings_TimeoutAcceptsBareSeconds(t *testing.T) {
	t.Setenv("OPTIMIZATION_TIMEOUT", "600")
	s := LoadSettings()
	assert.Equal(t, 600*time.Second, s.Timeout)
}
