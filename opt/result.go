package opt

import (
	"math"
	"sort"
	"time"
)

// AllocationRow is one non-zero cell of the final allocation, denormalized
// back to external IDs with per-row cost and travel figures.
type AllocationRow struct {
	AreaID            string  `json:"area_id" yaml:"area_id"`
	LabID             string  `json:"lab_id" yaml:"lab_id"`
	TestType          string  `json:"test_type" yaml:"test_type"`
	AllocatedTests    int64   `json:"allocated_tests" yaml:"allocated_tests"`
	DistanceKM        float64 `json:"distance_km" yaml:"distance_km"`
	TravelTimeMinutes float64 `json:"travel_time_minutes" yaml:"travel_time_minutes"`
	TransportCost     float64 `json:"transport_cost" yaml:"transport_cost"`
	ProcessingCost    float64 `json:"processing_cost" yaml:"processing_cost"`
	TotalCost         float64 `json:"total_cost" yaml:"total_cost"`
}

// LabUtilization reports one laboratory's projected load over the window.
type LabUtilization struct {
	LabID            string  `json:"lab_id" yaml:"lab_id"`
	LoadMinutes      float64 `json:"load_minutes" yaml:"load_minutes"`
	AvailableMinutes float64 `json:"available_minutes" yaml:"available_minutes"`
	Utilization      float64 `json:"utilization" yaml:"utilization"`
}

// AreaAccessibility reports one service area's accessibility score under the
// chosen allocation.
type AreaAccessibility struct {
	AreaID string  `json:"area_id" yaml:"area_id"`
	Score  float64 `json:"score" yaml:"score"`
}

// Candidate is one Pareto-front solution.
type Candidate struct {
	Objectives [NumObjectives]float64 `json:"objectives" yaml:"objectives"`
	Penalty    float64                `json:"penalty" yaml:"penalty"`
	Composite  float64                `json:"composite" yaml:"composite"`
	Rows       []AllocationRow        `json:"rows" yaml:"rows"`
}

// Summary compares the recommended solution against the greedy baseline.
// Improvement is per objective, in percent; positive means the optimizer beat
// the baseline.
type Summary struct {
	TotalTests            int64                  `json:"total_tests" yaml:"total_tests"`
	TotalCost             float64                `json:"total_cost" yaml:"total_cost"`
	MeanDistanceKM        float64                `json:"mean_distance_km" yaml:"mean_distance_km"`
	MeanTurnaroundMinutes float64                `json:"mean_turnaround_minutes" yaml:"mean_turnaround_minutes"`
	BaselineObjectives    [NumObjectives]float64 `json:"baseline_objectives" yaml:"baseline_objectives"`
	ImprovementPct        [NumObjectives]float64 `json:"improvement_pct" yaml:"improvement_pct"`
}

// Result is the full outcome of one optimization run.
type Result struct {
	Best              Candidate           `json:"best" yaml:"best"`
	Front             []Candidate         `json:"front" yaml:"front"`
	LabUtilization    []LabUtilization    `json:"lab_utilization" yaml:"lab_utilization"`
	AreaAccessibility []AreaAccessibility `json:"area_accessibility" yaml:"area_accessibility"`
	Summary           Summary             `json:"summary" yaml:"summary"`

	Generations   int           `json:"generations" yaml:"generations"`
	Hypervolume   float64       `json:"hypervolume" yaml:"hypervolume"`
	Converged     bool          `json:"converged" yaml:"converged"`
	Elapsed       time.Duration `json:"elapsed" yaml:"elapsed"`
	Seed          int64         `json:"seed" yaml:"seed"`
	RoutingSource string        `json:"routing_source" yaml:"routing_source"`
}

// ExtractResult denormalizes the final front. The best candidate is the one
// with the lowest composite fitness; the front is reported best-first. The
// greedy baseline is built and evaluated here so the summary always carries
// the comparison.
func ExtractResult(p *Problem, params Parameters, front []*Individual) *Result {
	ranked := make([]*Individual, len(front))
	copy(ranked, front)
	sort.SliceStable(ranked, func(i, k int) bool {
		return ranked[i].Composite < ranked[k].Composite
	})

	res := &Result{RoutingSource: p.RoutingSource}
	for _, ind := range ranked {
		res.Front = append(res.Front, Candidate{
			Objectives: ind.Objectives,
			Penalty:    ind.Penalty,
			Composite:  ind.Composite,
			Rows:       allocationRows(p, ind.Alloc),
		})
	}
	if len(res.Front) > 0 {
		res.Best = res.Front[0]
		best := ranked[0]
		res.LabUtilization = labUtilization(p, best.Alloc)
		res.AreaAccessibility = areaAccessibility(p, params.Constraints, best.Alloc)
		res.Summary = summarize(p, params.Constraints, best)
	}
	return res
}

func allocationRows(p *Problem, al *Allocation) []AllocationRow {
	var rows []AllocationRow
	for a := 0; a < p.NAreas; a++ {
		for j := 0; j < p.NLabs; j++ {
			for t := 0; t < p.NTests; t++ {
				x := al.At(a, j, t)
				if x == 0 {
					continue
				}
				fx := float64(x)
				dist := p.DistAt(a, j)
				transport := fx * dist * p.CostPerKM
				processing := fx * p.CostAt(j, t)
				if p.MonthlyCapacity[j] > 0 {
					processing += fx * p.Overhead[j] / p.MonthlyCapacity[j]
				}
				rows = append(rows, AllocationRow{
					AreaID:            p.AreaIDs[a],
					LabID:             p.LabIDs[j],
					TestType:          p.TestIDs[t],
					AllocatedTests:    x,
					DistanceKM:        dist,
					TravelTimeMinutes: p.TimeAt(a, j),
					TransportCost:     transport,
					ProcessingCost:    processing,
					TotalCost:         transport + processing,
				})
			}
		}
	}
	return rows
}

func labUtilization(p *Problem, al *Allocation) []LabUtilization {
	out := make([]LabUtilization, p.NLabs)
	for j := 0; j < p.NLabs; j++ {
		load := al.LabLoadMinutes(p, j)
		u := 0.0
		if p.AvailableMinutes[j] > 0 {
			u = load / p.AvailableMinutes[j]
		}
		out[j] = LabUtilization{
			LabID:            p.LabIDs[j],
			LoadMinutes:      load,
			AvailableMinutes: p.AvailableMinutes[j],
			Utilization:      u,
		}
	}
	return out
}

func areaAccessibility(p *Problem, c Constraints, al *Allocation) []AreaAccessibility {
	eval := &Evaluator{p: p, constraints: c}
	out := make([]AreaAccessibility, p.NAreas)
	for a := 0; a < p.NAreas; a++ {
		out[a] = AreaAccessibility{
			AreaID: p.AreaIDs[a],
			Score:  eval.accessibilityScore(al, a),
		}
	}
	return out
}

func summarize(p *Problem, c Constraints, best *Individual) Summary {
	s := Summary{
		TotalTests:            best.Alloc.TotalTests(),
		TotalCost:             best.Objectives[ObjCost],
		MeanDistanceKM:        best.Objectives[ObjDistance],
		MeanTurnaroundMinutes: best.Objectives[ObjTime],
	}

	baseline := GreedyBaseline(p)
	baseObj, _ := NewEvaluator(p, c).Evaluate(baseline)
	s.BaselineObjectives = baseObj
	for i := range baseObj {
		s.ImprovementPct[i] = improvementPct(baseObj[i], best.Objectives[i])
	}
	return s
}

// improvementPct is positive when the optimized value beats the baseline.
// All objectives minimize, so improvement = (baseline − optimized) relative
// to the baseline's magnitude.
func improvementPct(baseline, optimized float64) float64 {
	denom := math.Abs(baseline)
	if denom < 1e-12 {
		return 0
	}
	return (baseline - optimized) / denom * 100
}

// GreedyBaseline builds the nearest-capable-lab allocation used as the
// comparison point: each demand cell goes to the closest capable lab with
// remaining minutes, overflowing to the next closest.
func GreedyBaseline(p *Problem) *Allocation {
	al := NewAllocation(p)
	slack := make([]float64, p.NLabs)
	copy(slack, p.AvailableMinutes)

	for a := 0; a < p.NAreas; a++ {
		for t := 0; t < p.NTests; t++ {
			d := p.DemandAt(a, t)
			if d == 0 {
				continue
			}
			byDist := nearestCapable(p, a, t)
			remaining := d
			for _, j := range byDist {
				if remaining == 0 {
					break
				}
				proc := p.ProcAt(j, t)
				fit := remaining
				if proc > 0 {
					if byMinutes := int64(slack[j] / proc); byMinutes < fit {
						fit = byMinutes
					}
				}
				if fit <= 0 {
					continue
				}
				al.Add(a, j, t, fit)
				slack[j] -= float64(fit) * proc
				remaining -= fit
			}
			if remaining > 0 && len(byDist) > 0 {
				al.Add(a, byDist[0], t, remaining)
			}
		}
	}
	Repair(p, al)
	return al
}
