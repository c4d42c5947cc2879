package opt

import (
	"math"
	mathrand "math/rand"

	"gonum.org/v1/gonum/stat"
)

// hvSamples is the fixed sample count of the hypervolume estimator. Samples
// are drawn once per run from the hypervolume RNG subsystem, so estimates are
// comparable across generations and reproducible under seed.
const hvSamples = 2048

// hypervolumeEstimator tracks an archive of non-dominated objective vectors
// and estimates the dominated fraction of a fixed reference box by point
// membership over a frozen sample set.
//
// Because the archive only ever grows its dominated region, the estimate is
// non-decreasing over a run, which is what the convergence window and the
// monotone-progress guarantee rely on.
type hypervolumeEstimator struct {
	refLo   [NumObjectives]float64
	refHi   [NumObjectives]float64
	samples [][NumObjectives]float64
	archive [][NumObjectives]float64
}

// newHypervolumeEstimator fixes the reference box from the initial
// population: objective-wise maxima inflated by 10% form the upper corner,
// minima deflated by 10% of the span the lower.
func newHypervolumeEstimator(initial []*Individual, rng *mathrand.Rand) *hypervolumeEstimator {
	h := &hypervolumeEstimator{}
	for i := range h.refLo {
		h.refLo[i] = math.Inf(1)
		h.refHi[i] = math.Inf(-1)
	}
	for _, ind := range initial {
		for i, v := range ind.Objectives {
			if v < h.refLo[i] {
				h.refLo[i] = v
			}
			if v > h.refHi[i] {
				h.refHi[i] = v
			}
		}
	}
	for i := range h.refLo {
		span := h.refHi[i] - h.refLo[i]
		if span <= 0 {
			span = math.Max(math.Abs(h.refHi[i]), 1)
		}
		h.refHi[i] += 0.1 * span
		h.refLo[i] -= 0.1 * span
	}

	h.samples = make([][NumObjectives]float64, hvSamples)
	for s := range h.samples {
		for i := range h.samples[s] {
			h.samples[s][i] = h.refLo[i] + rng.Float64()*(h.refHi[i]-h.refLo[i])
		}
	}
	return h
}

// Update folds the current rank-0 front into the archive and returns the new
// estimate in [0,1].
func (h *hypervolumeEstimator) Update(front []*Individual) float64 {
	for _, ind := range front {
		h.insert(ind.Objectives)
	}

	if len(h.archive) == 0 {
		return 0
	}
	dominated := 0
	for _, s := range h.samples {
		for _, p := range h.archive {
			if pointDominatesSample(p, s) {
				dominated++
				break
			}
		}
	}
	return float64(dominated) / float64(len(h.samples))
}

func (h *hypervolumeEstimator) insert(obj [NumObjectives]float64) {
	kept := h.archive[:0]
	for _, p := range h.archive {
		if p == obj || vectorDominates(p, obj) {
			return // already covered
		}
		if !vectorDominates(obj, p) {
			kept = append(kept, p)
		}
	}
	h.archive = append(kept, obj)
}

func vectorDominates(a, b [NumObjectives]float64) bool {
	better := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			better = true
		}
	}
	return better
}

// pointDominatesSample: a front point dominates every sample above it on all
// axes (minimization).
func pointDominatesSample(p, s [NumObjectives]float64) bool {
	for i := range p {
		if p[i] > s[i] {
			return false
		}
	}
	return true
}

// convergenceWindow decides termination from the variance of the trailing
// hypervolume estimates.
type convergenceWindow struct {
	size      int
	threshold float64
	values    []float64
}

func newConvergenceWindow(size int, threshold float64) *convergenceWindow {
	return &convergenceWindow{size: size, threshold: threshold}
}

// Push records one estimate and reports whether the window is full and its
// variance has fallen below the threshold.
func (c *convergenceWindow) Push(hv float64) bool {
	c.values = append(c.values, hv)
	if len(c.values) > c.size {
		c.values = c.values[len(c.values)-c.size:]
	}
	if len(c.values) < c.size {
		return false
	}
	return stat.Variance(c.values, nil) < c.threshold
}

// meanPairwiseDistance is the population diversity measure: mean Euclidean
// distance between objective vectors.
func meanPairwiseDistance(pop []*Individual) float64 {
	n := len(pop)
	if n < 2 {
		return 0
	}
	sum := 0.0
	pairs := 0
	for i := 0; i < n; i++ {
		for k := i + 1; k < n; k++ {
			d := 0.0
			for o := 0; o < NumObjectives; o++ {
				diff := pop[i].Objectives[o] - pop[k].Objectives[o]
				d += diff * diff
			}
			sum += math.Sqrt(d)
			pairs++
		}
	}
	return sum / float64(pairs)
}
