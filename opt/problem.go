package opt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cdst-optimize/cdst-optimize/opt/routing"
)

// Bounds on per-pair processing time accepted by validation, in minutes.
const (
	MinProcessingMinutes = 5
	MaxProcessingMinutes = 480
)

// Problem is the dense, immutable per-run view of a network snapshot. All
// matrices are fully populated before the solver starts; index tables map
// external IDs to 0-based positions. Shared read-only across the run.
type Problem struct {
	NAreas int
	NLabs  int
	NTests int

	AreaIDs []string
	LabIDs  []string
	TestIDs []string

	areaIdx map[string]int
	labIdx  map[string]int
	testIdx map[string]int

	// Demand[a*NTests+t] in tests over the aggregation window.
	Demand []int64

	// Dist and Time are [a*NLabs+j], kilometers and minutes.
	Dist []float64
	Time []float64

	// Per-(lab,test) tables, [j*NTests+t].
	Capable     []bool
	ProcTime    []float64
	StaffReq    []float64
	EquipUtil   []float64
	CostPerTest []float64
	Quality     []float64

	// Per-lab tables.
	Overhead         []float64
	MaxPerDay        []int64
	MaxPerMonth      []int64
	StaffCount       []int64
	UtilFactor       []float64
	AvailableMinutes []float64 // staff-minutes available over the window, utilization-scaled
	MonthlyCapacity  []float64

	// Per-area tables.
	Population []int64
	MaxPop     int64

	CostPerKM             float64
	MaxAcceptableDistance float64

	// RoutingSource is "osrm" when every leg came from the external router,
	// "fallback" when any leg degraded to haversine.
	RoutingSource string

	// MaxDemand is the largest single Demand cell, used to scale mutation.
	MaxDemand int64

	WindowDays float64
}

// Index helpers. Callers must pass in-range indices.

func (p *Problem) DemandAt(a, t int) int64   { return p.Demand[a*p.NTests+t] }
func (p *Problem) DistAt(a, j int) float64   { return p.Dist[a*p.NLabs+j] }
func (p *Problem) TimeAt(a, j int) float64   { return p.Time[a*p.NLabs+j] }
func (p *Problem) CapableAt(j, t int) bool   { return p.Capable[j*p.NTests+t] }
func (p *Problem) ProcAt(j, t int) float64   { return p.ProcTime[j*p.NTests+t] }
func (p *Problem) CostAt(j, t int) float64   { return p.CostPerTest[j*p.NTests+t] }
func (p *Problem) QualityAt(j, t int) float64 { return p.Quality[j*p.NTests+t] }

// AreaIndex resolves an external area ID; ok is false for unknown IDs.
func (p *Problem) AreaIndex(id string) (int, bool) { i, ok := p.areaIdx[id]; return i, ok }

// LabIndex resolves an external lab ID.
func (p *Problem) LabIndex(id string) (int, bool) { i, ok := p.labIdx[id]; return i, ok }

// TestIndex resolves an external test type.
func (p *Problem) TestIndex(id string) (int, bool) { i, ok := p.testIdx[id]; return i, ok }

// CapableLabs returns the lab indices capable of test t, ascending.
func (p *Problem) CapableLabs(t int) []int {
	labs := make([]int, 0, p.NLabs)
	for j := 0; j < p.NLabs; j++ {
		if p.CapableAt(j, t) {
			labs = append(labs, j)
		}
	}
	return labs
}

// TotalDemand is the total number of tests demanded across all cells.
func (p *Problem) TotalDemand() int64 {
	var sum int64
	for _, d := range p.Demand {
		sum += d
	}
	return sum
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidNetwork, fmt.Sprintf(format, args...))
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// weeklyOpenMinutes sums the lab's per-weekday open intervals. Intervals whose
// close precedes their open (crossing midnight) are clamped to 24:00; weekly
// aggregation is the plain sum over weekdays. A lab with no hours at all is
// treated as open 8h every weekday.
func weeklyOpenMinutes(hours map[string]OperationalWindow) (float64, error) {
	if len(hours) == 0 {
		return 5 * 8 * 60, nil
	}
	total := 0.0
	for _, day := range weekdays {
		w, ok := hours[day]
		if !ok {
			continue
		}
		open, err := parseClock(w.Open)
		if err != nil {
			return 0, err
		}
		closeM, err := parseClock(w.Close)
		if err != nil {
			return 0, err
		}
		if closeM <= open {
			closeM = 24 * 60
		}
		total += float64(closeM - open)
	}
	return total, nil
}

// BuildProblem validates the snapshot, aggregates demand over the window, and
// materializes dense distance/time matrices through the router. Any violated
// invariant fails with ErrInvalidNetwork before the solver starts.
func BuildProblem(ctx context.Context, net *Network, router routing.Router, window DateWindow) (*Problem, error) {
	if net == nil {
		return nil, invalid("network is nil")
	}
	if len(net.Laboratories) == 0 {
		return nil, invalid("network %q has no laboratories", net.ID)
	}
	if len(net.ServiceAreas) == 0 {
		return nil, invalid("network %q has no service areas", net.ID)
	}
	if len(net.TestTypes) == 0 {
		return nil, invalid("network %q has no test types", net.ID)
	}
	if net.CostPerKM < 0 {
		return nil, invalid("cost_per_km %f is negative", net.CostPerKM)
	}

	p := &Problem{
		NAreas:                len(net.ServiceAreas),
		NLabs:                 len(net.Laboratories),
		NTests:                len(net.TestTypes),
		areaIdx:               make(map[string]int, len(net.ServiceAreas)),
		labIdx:                make(map[string]int, len(net.Laboratories)),
		testIdx:               make(map[string]int, len(net.TestTypes)),
		CostPerKM:             net.CostPerKM,
		MaxAcceptableDistance: net.MaxAcceptableDistanceKM,
		WindowDays:            window.Days(),
	}
	if p.MaxAcceptableDistance <= 0 {
		p.MaxAcceptableDistance = 100
	}

	for t, id := range net.TestTypes {
		if _, dup := p.testIdx[id]; dup {
			return nil, invalid("duplicate test type %q", id)
		}
		p.testIdx[id] = t
		p.TestIDs = append(p.TestIDs, id)
	}

	for a, area := range net.ServiceAreas {
		if _, dup := p.areaIdx[area.ID]; dup {
			return nil, invalid("duplicate service area %q", area.ID)
		}
		c := routing.Coordinate{Lat: area.Latitude, Lng: area.Longitude}
		if !c.Valid() {
			return nil, invalid("service area %q has coordinates outside WGS84 bounds", area.ID)
		}
		if area.Population < 0 {
			return nil, invalid("service area %q has negative population", area.ID)
		}
		p.areaIdx[area.ID] = a
		p.AreaIDs = append(p.AreaIDs, area.ID)
		p.Population = append(p.Population, int64(area.Population))
		if int64(area.Population) > p.MaxPop {
			p.MaxPop = int64(area.Population)
		}
	}

	p.Capable = make([]bool, p.NLabs*p.NTests)
	p.ProcTime = make([]float64, p.NLabs*p.NTests)
	p.StaffReq = make([]float64, p.NLabs*p.NTests)
	p.EquipUtil = make([]float64, p.NLabs*p.NTests)
	p.CostPerTest = make([]float64, p.NLabs*p.NTests)
	p.Quality = make([]float64, p.NLabs*p.NTests)

	for j, lab := range net.Laboratories {
		if _, dup := p.labIdx[lab.ID]; dup {
			return nil, invalid("duplicate laboratory %q", lab.ID)
		}
		c := routing.Coordinate{Lat: lab.Latitude, Lng: lab.Longitude}
		if !c.Valid() {
			return nil, invalid("laboratory %q has coordinates outside WGS84 bounds", lab.ID)
		}
		if lab.MaxTestsPerDay <= 0 || lab.MaxTestsPerMonth <= 0 {
			return nil, invalid("laboratory %q has non-positive capacity", lab.ID)
		}
		if lab.StaffCount <= 0 {
			return nil, invalid("laboratory %q has non-positive staff count", lab.ID)
		}
		util := lab.UtilizationFactor
		if util <= 0 || util > 1 {
			return nil, invalid("laboratory %q utilization factor %f outside (0,1]", lab.ID, util)
		}

		weekly, err := weeklyOpenMinutes(lab.OperationalHours)
		if err != nil {
			return nil, invalid("laboratory %q operational hours: %v", lab.ID, err)
		}

		p.labIdx[lab.ID] = j
		p.LabIDs = append(p.LabIDs, lab.ID)
		p.Overhead = append(p.Overhead, lab.OverheadCost)
		p.MaxPerDay = append(p.MaxPerDay, int64(lab.MaxTestsPerDay))
		p.MaxPerMonth = append(p.MaxPerMonth, int64(lab.MaxTestsPerMonth))
		p.StaffCount = append(p.StaffCount, int64(lab.StaffCount))
		p.UtilFactor = append(p.UtilFactor, util)
		p.MonthlyCapacity = append(p.MonthlyCapacity, float64(lab.MaxTestsPerMonth))
		p.AvailableMinutes = append(p.AvailableMinutes,
			float64(lab.StaffCount)*weekly*util*(window.Days()/7))

		for tid, cap := range lab.Capabilities {
			t, ok := p.testIdx[tid]
			if !ok {
				return nil, invalid("laboratory %q declares unknown test type %q", lab.ID, tid)
			}
			if !cap.Available {
				continue
			}
			if cap.ProcessingTimeMinutes < MinProcessingMinutes || cap.ProcessingTimeMinutes > MaxProcessingMinutes {
				return nil, invalid("laboratory %q test %q processing time %f outside [%d,%d] minutes",
					lab.ID, tid, cap.ProcessingTimeMinutes, MinProcessingMinutes, MaxProcessingMinutes)
			}
			if cap.StaffRequired > lab.StaffCount {
				return nil, invalid("laboratory %q test %q requires %d staff but has %d",
					lab.ID, tid, cap.StaffRequired, lab.StaffCount)
			}
			k := j*p.NTests + t
			p.Capable[k] = true
			p.ProcTime[k] = cap.ProcessingTimeMinutes
			p.StaffReq[k] = float64(cap.StaffRequired)
			p.EquipUtil[k] = cap.EquipmentUtilization
			p.CostPerTest[k] = cap.CostPerTest
			p.Quality[k] = cap.QualityScore
		}
	}

	// Demand aggregation over the window.
	p.Demand = make([]int64, p.NAreas*p.NTests)
	for _, d := range net.Demands {
		if d.Count < 0 {
			return nil, invalid("demand for area %q test %q is negative", d.AreaID, d.TestType)
		}
		if !window.Contains(d.Date) {
			continue
		}
		a, ok := p.areaIdx[d.AreaID]
		if !ok {
			return nil, invalid("demand references unknown service area %q", d.AreaID)
		}
		t, ok := p.testIdx[d.TestType]
		if !ok {
			return nil, invalid("demand references unknown test type %q", d.TestType)
		}
		cell := a*p.NTests + t
		p.Demand[cell] += int64(d.Count)
		if p.Demand[cell] > p.MaxDemand {
			p.MaxDemand = p.Demand[cell]
		}
	}

	if err := p.checkCoverage(); err != nil {
		return nil, err
	}

	if err := p.materializeMatrices(ctx, net, router); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"network": net.ID,
		"areas":   p.NAreas,
		"labs":    p.NLabs,
		"tests":   p.NTests,
		"demand":  p.TotalDemand(),
		"routing": p.RoutingSource,
	}).Info("problem built")

	return p, nil
}

// checkCoverage rejects demand no capable lab can absorb: either a cell with
// no capable lab at all, or a test type whose total demanded processing load
// exceeds the capable labs' combined available minutes.
func (p *Problem) checkCoverage() error {
	for t := 0; t < p.NTests; t++ {
		capable := p.CapableLabs(t)

		var demandT int64
		for a := 0; a < p.NAreas; a++ {
			d := p.DemandAt(a, t)
			if d > 0 && len(capable) == 0 {
				return invalid("demand for test %q in area %q has no capable laboratory",
					p.TestIDs[t], p.AreaIDs[a])
			}
			demandT += d
		}
		if demandT == 0 {
			continue
		}

		// Cheapest-case load uses each test's fastest capable lab.
		minProc := 0.0
		capacity := 0.0
		for i, j := range capable {
			proc := p.ProcAt(j, t)
			if i == 0 || proc < minProc {
				minProc = proc
			}
			capacity += p.AvailableMinutes[j]
		}
		if float64(demandT)*minProc > capacity {
			return invalid("test %q demands %d tests (%.0f min at best) but capable labs offer only %.0f min",
				p.TestIDs[t], demandT, float64(demandT)*minProc, capacity)
		}
	}
	return nil
}

func (p *Problem) materializeMatrices(ctx context.Context, net *Network, router routing.Router) error {
	pairs := make([]routing.Pair, 0, p.NAreas*p.NLabs)
	for _, area := range net.ServiceAreas {
		for _, lab := range net.Laboratories {
			pairs = append(pairs, routing.Pair{
				Origin:      routing.Coordinate{Lat: area.Latitude, Lng: area.Longitude},
				Destination: routing.Coordinate{Lat: lab.Latitude, Lng: lab.Longitude},
			})
		}
	}

	legs := router.DistanceBatch(ctx, pairs)
	if len(legs) != len(pairs) {
		return invalid("router returned %d legs for %d pairs", len(legs), len(pairs))
	}

	p.Dist = make([]float64, len(legs))
	p.Time = make([]float64, len(legs))
	p.RoutingSource = routing.SourceOSRM
	for i, leg := range legs {
		p.Dist[i] = leg.KM
		p.Time[i] = leg.Minutes
		if leg.Source == routing.SourceFallback {
			p.RoutingSource = routing.SourceFallback
		}
	}
	return nil
}
