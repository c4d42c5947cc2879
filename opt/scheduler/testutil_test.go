package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdst-optimize/cdst-optimize/opt"
	"github.com/cdst-optimize/cdst-optimize/opt/routing"
)

// stubRouter keeps scheduler tests off the network: every pair resolves to a
// haversine leg.
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

// testProblem builds a compact two-area, two-lab, one-test problem.
func testProblem(t *testing.T) *opt.Problem {
	t.Helper()
	capability := opt.TestCapability{
		Available: true, ProcessingTimeMinutes: 30, StaffRequired: 1,
		EquipmentUtilization: 0.5, CostPerTest: 10, QualityScore: 0.9,
	}
	net := &opt.Network{
		ID:        "net-sched",
		TestTypes: []string{"culture-sensitivity"},
		Laboratories: []opt.Laboratory{
			{
				ID: "lab-a", Latitude: -1.2921, Longitude: 36.8219,
				MaxTestsPerDay: 500, MaxTestsPerMonth: 10000, StaffCount: 8,
				UtilizationFactor: 0.8,
				Capabilities:      map[string]opt.TestCapability{"culture-sensitivity": capability},
			},
			{
				ID: "lab-b", Latitude: -1.1000, Longitude: 37.0100,
				MaxTestsPerDay: 300, MaxTestsPerMonth: 6000, StaffCount: 5,
				UtilizationFactor: 0.8,
				Capabilities:      map[string]opt.TestCapability{"culture-sensitivity": capability},
			},
		},
		ServiceAreas: []opt.ServiceArea{
			{ID: "area-1", Latitude: -1.3000, Longitude: 36.8000, Population: 500000},
			{ID: "area-2", Latitude: -0.9000, Longitude: 36.9500, Population: 120000},
		},
		Demands: []opt.TestDemand{
			{AreaID: "area-1", TestType: "culture-sensitivity", Count: 100},
			{AreaID: "area-2", TestType: "culture-sensitivity", Count: 40},
		},
		CostPerKM: 0.5,
	}
	p, err := opt.BuildProblem(context.Background(), net, stubRouter{}, opt.DateWindow{})
	require.NoError(t, err)
	return p
}

// testParams are shrunk so scenarios finish in milliseconds.
func testParams() opt.Parameters {
	params := opt.DefaultParameters()
	params.PopulationSize = 12
	params.MaxGenerations = 15
	params.EliteSize = 2
	params.ConvergenceWindow = 5
	params.CheckpointInterval = 5
	params.Seed = 42
	params.Seeded = true
	params.Workers = 2
	return params
}
