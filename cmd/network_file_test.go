package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validNetworkYAML = `
id: net-1
name: test network
test_types:
  - culture-sensitivity
laboratories:
  - id: lab-a
    latitude: -1.2921
    longitude: 36.8219
    max_tests_per_day: 500
    max_tests_per_month: 10000
    staff_count: 8
    utilization_factor: 0.8
    capabilities:
      culture-sensitivity:
        available: true
        processing_time_minutes: 45
        staff_required: 2
        cost_per_test: 20
        quality_score: 0.9
    operational_hours:
      monday:
        open: "08:00"
        close: "17:00"
service_areas:
  - id: area-1
    latitude: -1.3
    longitude: 36.8
    population: 500000
demands:
  - area_id: area-1
    test_type: culture-sensitivity
    count: 100
    urgency: routine
cost_per_km: 0.5
`

func writeNetworkFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadNetwork_ValidFile(t *testing.T) {
	net, err := LoadNetwork(writeNetworkFile(t, validNetworkYAML))
	require.NoError(t, err)

	assert.Equal(t, "net-1", net.ID)
	require.Len(t, net.Laboratories, 1)
	assert.Equal(t, 0.8, net.Laboratories[0].UtilizationFactor)
	cap, ok := net.Laboratories[0].Capabilities["culture-sensitivity"]
	require.True(t, ok)
	assert.Equal(t, 45.0, cap.ProcessingTimeMinutes)
	require.Len(t, net.Demands, 1)
	assert.Equal(t, "routine", net.Demands[0].Urgency)
}

func TestLoadNetwork_UnknownFieldIsAnError(t *testing.T) {
	// A typoed key must fail loudly under strict parsing
	bad := validNetworkYAML + "\nmax_aceptable_distance_km: 100\n"
	_, err := LoadNetwork(writeNetworkFile(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadNetwork_MissingFile(t *testing.T) {
	_, err := LoadNetwork(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
