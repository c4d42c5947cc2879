package opt

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// DefaultEvalCacheSize bounds the per-run memoization cache.
const DefaultEvalCacheSize = 100_000

// penaltyLambda scales every soft-constraint penalty term.
const penaltyLambda = 1.0

type evalEntry struct {
	objectives [NumObjectives]float64
	penalty    float64
}

// Evaluator computes the five objective values and the soft-constraint
// penalty for an allocation. Pure and deterministic; results are memoized by
// the allocation's 64-bit content hash. One Evaluator is scoped to one solver
// run and must only be called from its goroutines (the cache is safe for
// concurrent use).
type Evaluator struct {
	p           *Problem
	constraints Constraints
	cache       *lru.Cache[uint64, evalEntry]
}

// NewEvaluator builds an evaluator for one run.
func NewEvaluator(p *Problem, c Constraints) *Evaluator {
	cache, _ := lru.New[uint64, evalEntry](DefaultEvalCacheSize)
	return &Evaluator{p: p, constraints: c, cache: cache}
}

// Evaluate returns (objectives, penalty) for a repaired allocation. A
// non-finite result marks the individual with an infinite penalty rather than
// aborting the run.
func (e *Evaluator) Evaluate(al *Allocation) ([NumObjectives]float64, float64) {
	key := al.Hash()
	if hit, ok := e.cache.Get(key); ok {
		return hit.objectives, hit.penalty
	}

	obj, penalty := e.compute(al)
	for i, v := range obj {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			logrus.WithFields(logrus.Fields{
				"objective": ObjectiveNames[i],
				"value":     v,
			}).Warn("evaluation produced non-finite objective; penalizing individual")
			penalty = math.Inf(1)
			obj[i] = 0
		}
	}

	e.cache.Add(key, evalEntry{objectives: obj, penalty: penalty})
	return obj, penalty
}

// CacheLen reports memoized entries. Used by tests.
func (e *Evaluator) CacheLen() int { return e.cache.Len() }

func (e *Evaluator) compute(al *Allocation) ([NumObjectives]float64, float64) {
	p := e.p
	var obj [NumObjectives]float64

	var totalTests int64
	sumDist := 0.0    // sum x * dist
	sumTime := 0.0    // sum x * (travel + processing)
	totalCost := 0.0  // transport + per-test + amortized overhead
	penalty := 0.0

	labLoad := make([]float64, p.NLabs) // processing minutes per lab

	for a := 0; a < p.NAreas; a++ {
		for j := 0; j < p.NLabs; j++ {
			dist := p.DistAt(a, j)
			travel := p.TimeAt(a, j)
			for t := 0; t < p.NTests; t++ {
				x := al.At(a, j, t)
				if x == 0 {
					continue
				}
				fx := float64(x)
				proc := p.ProcAt(j, t)

				sumDist += fx * dist
				sumTime += fx * (travel + proc)

				unitCost := dist*p.CostPerKM + p.CostAt(j, t)
				if p.MonthlyCapacity[j] > 0 {
					unitCost += p.Overhead[j] / p.MonthlyCapacity[j]
				}
				totalCost += fx * unitCost

				labLoad[j] += fx * proc

				penalty += e.cellPenalty(fx, dist, travel, p.QualityAt(j, t))
			}
		}
	}
	totalTests = al.TotalTests()

	if totalTests > 0 {
		obj[ObjDistance] = sumDist / float64(totalTests)
		obj[ObjTime] = sumTime / float64(totalTests)
	}
	obj[ObjCost] = totalCost

	// Utilization: negated mean of the piecewise score so all objectives
	// minimize.
	utilSum := 0.0
	for j := 0; j < p.NLabs; j++ {
		u := 0.0
		if p.AvailableMinutes[j] > 0 {
			u = labLoad[j] / p.AvailableMinutes[j]
		}
		utilSum += utilizationScore(u)
		penalty += e.utilizationPenalty(u)
	}
	if p.NLabs > 0 {
		obj[ObjUtilization] = -utilSum / float64(p.NLabs)
	}

	// Accessibility: negated mean of the per-area score.
	accSum := 0.0
	for a := 0; a < p.NAreas; a++ {
		accSum += e.accessibilityScore(al, a)
	}
	if p.NAreas > 0 {
		obj[ObjAccessibility] = -accSum / float64(p.NAreas)
	}

	return obj, penalty
}

// utilizationScore is the piecewise score U(u): half credit below 30%, full
// credit in the 30–90% band, declining past 90%.
func utilizationScore(u float64) float64 {
	switch {
	case u < 0.3:
		return u / 2
	case u <= 0.9:
		return u
	default:
		return 0.9 - 2*(u-0.9)
	}
}

// accessibilityScore is A(a) = 0.4·proximity + 0.3·population + 0.3·coverage.
func (e *Evaluator) accessibilityScore(al *Allocation, a int) float64 {
	p := e.p

	dMin := math.Inf(1)
	served := make(map[int]bool, p.NTests)
	for j := 0; j < p.NLabs; j++ {
		for t := 0; t < p.NTests; t++ {
			if al.At(a, j, t) > 0 {
				served[t] = true
				if d := p.DistAt(a, j); d < dMin {
					dMin = d
				}
			}
		}
	}

	proximity := 0.0
	if !math.IsInf(dMin, 1) && p.MaxAcceptableDistance > 0 {
		proximity = math.Max(0, 1-dMin/p.MaxAcceptableDistance)
	}

	population := 0.0
	if p.MaxPop > 1 && p.Population[a] > 1 {
		population = math.Log(float64(p.Population[a])) / math.Log(float64(p.MaxPop))
	}

	coverage := 0.0
	if p.NTests > 0 {
		coverage = float64(len(served)) / float64(p.NTests)
	}

	return 0.4*proximity + 0.3*population + 0.3*coverage
}

// cellPenalty accumulates per-test soft-constraint penalties for one
// allocation cell: quadratic distance and travel-time overage, linear quality
// shortfall.
func (e *Evaluator) cellPenalty(fx, dist, travel, quality float64) float64 {
	c := e.constraints
	pen := 0.0
	if c.MaxDistanceKM > 0 && dist > c.MaxDistanceKM {
		excess := (dist - c.MaxDistanceKM) / c.MaxDistanceKM
		pen += fx * penaltyLambda * excess * excess
	}
	if c.MaxTravelTimeMinutes > 0 && travel > c.MaxTravelTimeMinutes {
		excess := (travel - c.MaxTravelTimeMinutes) / c.MaxTravelTimeMinutes
		pen += fx * penaltyLambda * excess * excess
	}
	if c.MinQuality > 0 && quality < c.MinQuality {
		pen += fx * penaltyLambda * (c.MinQuality - quality)
	}
	return pen
}

// utilizationPenalty is quadratic in the distance from the allowed band.
func (e *Evaluator) utilizationPenalty(u float64) float64 {
	c := e.constraints
	if c.MaxUtilization <= 0 && c.MinUtilization <= 0 {
		return 0
	}
	violation := 0.0
	if c.MinUtilization > 0 && u < c.MinUtilization {
		violation = c.MinUtilization - u
	}
	if c.MaxUtilization > 0 && u > c.MaxUtilization {
		violation = u - c.MaxUtilization
	}
	return penaltyLambda * violation * violation
}

// NormalizeComposites recomputes every individual's composite fitness
// F = Σ w·normalize(f) + penalty, normalizing each objective linearly into
// [0,1] by the population's current min/max.
func NormalizeComposites(pop []*Individual, w Weights) {
	if len(pop) == 0 {
		return
	}
	var lo, hi [NumObjectives]float64
	for i := range lo {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	for _, ind := range pop {
		for i, v := range ind.Objectives {
			if v < lo[i] {
				lo[i] = v
			}
			if v > hi[i] {
				hi[i] = v
			}
		}
	}
	wv := w.Vector()
	for _, ind := range pop {
		f := 0.0
		for i, v := range ind.Objectives {
			span := hi[i] - lo[i]
			if span > 0 {
				f += wv[i] * (v - lo[i]) / span
			}
		}
		ind.Composite = f + ind.Penalty
	}
}
