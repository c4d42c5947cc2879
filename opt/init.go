package opt

import (
	mathrand "math/rand"
	"sort"
)

// Population seeding mix: 30% random, 40% greedy nearest-lab, 30%
// capacity-balanced. Every seed ends with a repair pass.
func seedPopulation(p *Problem, rng *mathrand.Rand, size int) []*Individual {
	pop := make([]*Individual, 0, size)
	nRandom := size * 30 / 100
	nGreedy := size * 40 / 100

	for i := 0; i < size; i++ {
		var al *Allocation
		switch {
		case i < nRandom:
			al = randomSeed(p, rng)
		case i < nRandom+nGreedy:
			al = greedySeed(p, rng)
		default:
			al = balancedSeed(p, rng)
		}
		Repair(p, al)
		pop = append(pop, NewIndividual(al))
	}
	return pop
}

// randomSeed distributes each demand cell across capable labs with random
// proportions.
func randomSeed(p *Problem, rng *mathrand.Rand) *Allocation {
	al := NewAllocation(p)
	for a := 0; a < p.NAreas; a++ {
		for t := 0; t < p.NTests; t++ {
			d := p.DemandAt(a, t)
			if d == 0 {
				continue
			}
			capable := p.CapableLabs(t)
			weights := make([]float64, len(capable))
			total := 0.0
			for i := range capable {
				weights[i] = rng.Float64()
				total += weights[i]
			}
			var assigned int64
			for i, j := range capable {
				v := int64(float64(d) * weights[i] / total)
				al.Set(a, j, t, v)
				assigned += v
			}
			// Leftover units from truncation go to a random capable lab.
			if rem := d - assigned; rem > 0 {
				al.Add(a, capable[rng.Intn(len(capable))], t, rem)
			}
		}
	}
	return al
}

// greedySeed fills the nearest capable lab until its minutes run out, then
// the next nearest.
func greedySeed(p *Problem, rng *mathrand.Rand) *Allocation {
	al := NewAllocation(p)
	slack := make([]float64, p.NLabs)
	copy(slack, p.AvailableMinutes)

	// Randomized area order diversifies which areas win contested capacity.
	order := rng.Perm(p.NAreas)
	for _, a := range order {
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
			// Whatever found no slack lands on the nearest lab; repair
			// rebalances it.
			if remaining > 0 && len(byDist) > 0 {
				al.Add(a, byDist[0], t, remaining)
			}
		}
	}
	return al
}

// balancedSeed scores capable labs by 0.7·distance + 0.3·utilization and
// feeds the best-scoring lab, keeping utilization level as volume lands.
func balancedSeed(p *Problem, rng *mathrand.Rand) *Allocation {
	al := NewAllocation(p)
	load := make([]float64, p.NLabs)

	order := rng.Perm(p.NAreas)
	for _, a := range order {
		for t := 0; t < p.NTests; t++ {
			d := p.DemandAt(a, t)
			if d == 0 {
				continue
			}
			capable := p.CapableLabs(t)
			if len(capable) == 0 {
				continue
			}

			// Assign in chunks so utilization feedback steers later chunks.
			chunk := d / int64(len(capable))
			if chunk < 1 {
				chunk = 1
			}
			remaining := d
			for remaining > 0 {
				best := capable[0]
				bestScore := 0.0
				for i, j := range capable {
					util := 0.0
					if p.AvailableMinutes[j] > 0 {
						util = load[j] / p.AvailableMinutes[j]
					}
					score := p.DistAt(a, j)*0.7 + util*100*0.3
					if i == 0 || score < bestScore {
						best = j
						bestScore = score
					}
				}
				take := chunk
				if take > remaining {
					take = remaining
				}
				al.Add(a, best, t, take)
				load[best] += float64(take) * p.ProcAt(best, t)
				remaining -= take
			}
		}
	}
	return al
}

// nearestCapable returns capable labs for test t ordered by distance from
// area a, ties to the lower index.
func nearestCapable(p *Problem, a, t int) []int {
	labs := p.CapableLabs(t)
	sort.SliceStable(labs, func(i, k int) bool {
		return p.DistAt(a, labs[i]) < p.DistAt(a, labs[k])
	})
	return labs
}
