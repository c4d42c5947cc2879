package opt

import (
	mathrand "math/rand"
	"sort"
)

// tournamentSelect picks the winner of a k-way tournament: lowest rank wins,
// ties broken by larger crowding distance, then by lower composite fitness.
func tournamentSelect(rng *mathrand.Rand, pop []*Individual, k int) *Individual {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < k; i++ {
		challenger := pop[rng.Intn(len(pop))]
		if crowdedLess(challenger, best) {
			best = challenger
		} else if challenger.Rank == best.Rank && challenger.Crowding == best.Crowding &&
			challenger.Composite < best.Composite {
			best = challenger
		}
	}
	return best
}

// crossover performs multi-point integer crossover over the flat gene vector:
// 1–3 cut points, alternating segments swapped between the parents. Children
// are fresh copies; parents are untouched.
func crossover(rng *mathrand.Rand, p1, p2 *Allocation) (*Allocation, *Allocation) {
	c1 := p1.Clone()
	c2 := p2.Clone()
	n := c1.Len()
	if n < 2 {
		return c1, c2
	}

	nCuts := 1 + rng.Intn(3)
	cuts := make([]int, 0, nCuts)
	for len(cuts) < nCuts {
		cuts = append(cuts, 1+rng.Intn(n-1))
	}
	sort.Ints(cuts)

	swapping := false
	cutIdx := 0
	for i := 0; i < n; i++ {
		for cutIdx < len(cuts) && i == cuts[cutIdx] {
			swapping = !swapping
			cutIdx++
		}
		if swapping {
			a, b := c1.Gene(i), c2.Gene(i)
			c1.SetGene(i, b)
			c2.SetGene(i, a)
		}
	}
	return c1, c2
}

// mutate applies integer Gaussian perturbation per gene. The per-gene rate
// and the spread both anneal linearly with generation progress; the rate
// never drops below a tenth of its base value. Genes are clamped to
// [0, demand(a,t)].
func mutate(rng *mathrand.Rand, p *Problem, al *Allocation, baseRate float64, gen, maxGen int) {
	progress := 0.0
	if maxGen > 0 {
		progress = float64(gen) / float64(maxGen)
	}
	rate := baseRate * (1 - progress)
	if min := baseRate / 10; rate < min {
		rate = min
	}
	sigma := float64(p.MaxDemand) * 0.1 * (1 - progress)
	if sigma < 1 {
		sigma = 1
	}

	for i := 0; i < al.Len(); i++ {
		if rng.Float64() >= rate {
			continue
		}
		a, j, t := al.GeneCoords(i)
		if !p.CapableAt(j, t) {
			continue
		}
		delta := int64(rng.NormFloat64() * sigma)
		if delta == 0 {
			continue
		}
		v := al.Gene(i) + delta
		if v < 0 {
			v = 0
		}
		if d := p.DemandAt(a, t); v > d {
			v = d
		}
		al.SetGene(i, v)
	}
}
