package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdst-optimize/cdst-optimize/opt/routing"
)

// stubRouter answers every pair with a haversine leg, so problem building in
// tests needs no HTTP.
type stubRouter struct{}

func (stubRouter) Distance(_ context.Context, o, d routing.Coordinate) routing.Leg {
	km := routing.Haversine(o, d)
	return routing.Leg{KM: km, Minutes: km / routing.FallbackSpeedKMH * 60, Source: routing.SourceFallback}
}

func (r stubRouter) DistanceBatch(ctx context.Context, pairs []routing.Pair) []routing.Leg {
	legs := make([]routing.Leg, len(pairs))
	for i, p := range pairs {
		legs[i] = r.Distance(ctx, p.Origin, p.Destination)
	}
	return legs
}

// testNetwork is a small but non-trivial fixture: two service areas around
// Nairobi, three laboratories, two test types. lab-c cannot run
// culture-sensitivity.
func testNetwork() *Network {
	cap1 := TestCapability{
		Available: true, ProcessingTimeMinutes: 30, StaffRequired: 1,
		EquipmentUtilization: 0.5, CostPerTest: 12, QualityScore: 0.9,
	}
	cap2 := TestCapability{
		Available: true, ProcessingTimeMinutes: 45, StaffRequired: 2,
		EquipmentUtilization: 0.6, CostPerTest: 20, QualityScore: 0.85,
	}
	hours := map[string]OperationalWindow{
		"monday": {Open: "08:00", Close: "17:00"}, "tuesday": {Open: "08:00", Close: "17:00"},
		"wednesday": {Open: "08:00", Close: "17:00"}, "thursday": {Open: "08:00", Close: "17:00"},
		"friday": {Open: "08:00", Close: "17:00"},
	}

	return &Network{
		ID:        "net-test",
		TestTypes: []string{"culture-sensitivity", "gram-stain"},
		Laboratories: []Laboratory{
			{
				ID: "lab-a", Latitude: -1.2921, Longitude: 36.8219,
				MaxTestsPerDay: 500, MaxTestsPerMonth: 10000, StaffCount: 10,
				UtilizationFactor: 0.8, OverheadCost: 5000,
				Capabilities: map[string]TestCapability{
					"culture-sensitivity": cap2, "gram-stain": cap1,
				},
				OperationalHours: hours,
			},
			{
				ID: "lab-b", Latitude: -1.1000, Longitude: 37.0100,
				MaxTestsPerDay: 300, MaxTestsPerMonth: 6000, StaffCount: 6,
				UtilizationFactor: 0.8, OverheadCost: 3000,
				Capabilities: map[string]TestCapability{
					"culture-sensitivity": cap2, "gram-stain": cap1,
				},
				OperationalHours: hours,
			},
			{
				ID: "lab-c", Latitude: -0.7200, Longitude: 36.4300,
				MaxTestsPerDay: 200, MaxTestsPerMonth: 4000, StaffCount: 4,
				UtilizationFactor: 0.7, OverheadCost: 2000,
				Capabilities: map[string]TestCapability{
					"gram-stain": cap1,
				},
				OperationalHours: hours,
			},
		},
		ServiceAreas: []ServiceArea{
			{ID: "area-1", Latitude: -1.3000, Longitude: 36.8000, Population: 500000},
			{ID: "area-2", Latitude: -0.9000, Longitude: 36.9500, Population: 120000},
		},
		Demands: []TestDemand{
			{AreaID: "area-1", TestType: "culture-sensitivity", Count: 120},
			{AreaID: "area-1", TestType: "gram-stain", Count: 200},
			{AreaID: "area-2", TestType: "culture-sensitivity", Count: 60},
			{AreaID: "area-2", TestType: "gram-stain", Count: 80},
		},
		CostPerKM:               0.5,
		MaxAcceptableDistanceKM: 100,
	}
}

func testProblem(t *testing.T) *Problem {
	t.Helper()
	p, err := buildTestProblem(testNetwork())
	require.NoError(t, err)
	return p
}

func buildTestProblem(net *Network) (*Problem, error) {
	return BuildProblem(context.Background(), net, stubRouter{}, DateWindow{})
}

// testParams are shrunk for fast, deterministic test runs.
func testParams() Parameters {
	params := DefaultParameters()
	params.PopulationSize = 20
	params.MaxGenerations = 30
	params.EliteSize = 4
	params.ConvergenceWindow = 5
	params.CheckpointInterval = 10
	params.Seed = 42
	params.Seeded = true
	params.Workers = 2
	return params
}
