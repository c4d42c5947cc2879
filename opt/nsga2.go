package opt

import (
	"math"
	"sort"
)

// Dominates reports Pareto dominance on the raw objective vectors: a
// dominates b iff a is no worse on every objective and strictly better on at
// least one (all objectives minimize).
func Dominates(a, b *Individual) bool {
	better := false
	for i := range a.Objectives {
		if a.Objectives[i] > b.Objectives[i] {
			return false
		}
		if a.Objectives[i] < b.Objectives[i] {
			better = true
		}
	}
	return better
}

// constrainedDominates applies Deb's constrained-dominance relation: a
// lower-penalty individual dominates a higher-penalty one outright; equal
// penalties fall back to Pareto dominance.
func constrainedDominates(a, b *Individual) bool {
	if a.Penalty != b.Penalty {
		return a.Penalty < b.Penalty
	}
	return Dominates(a, b)
}

// FastNonDominatedSort assigns ranks (rank 0 is the current Pareto front) and
// returns the fronts in rank order. O(M·P²) with M objectives and P
// individuals.
func FastNonDominatedSort(pop []*Individual) [][]*Individual {
	n := len(pop)
	dominatedBy := make([][]int, n)
	domCount := make([]int, n)

	var fronts [][]*Individual
	var current []int

	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			if i == k {
				continue
			}
			if constrainedDominates(pop[i], pop[k]) {
				dominatedBy[i] = append(dominatedBy[i], k)
			} else if constrainedDominates(pop[k], pop[i]) {
				domCount[i]++
			}
		}
		if domCount[i] == 0 {
			pop[i].Rank = 0
			current = append(current, i)
		}
	}

	rank := 0
	for len(current) > 0 {
		front := make([]*Individual, 0, len(current))
		for _, i := range current {
			front = append(front, pop[i])
		}
		fronts = append(fronts, front)

		var next []int
		for _, i := range current {
			for _, k := range dominatedBy[i] {
				domCount[k]--
				if domCount[k] == 0 {
					pop[k].Rank = rank + 1
					next = append(next, k)
				}
			}
		}
		rank++
		current = next
	}
	return fronts
}

// AssignCrowdingDistance computes the crowding distance within one front:
// boundary individuals get infinite distance, interior ones accumulate the
// normalized spread of their neighbors per objective.
func AssignCrowdingDistance(front []*Individual) {
	n := len(front)
	if n == 0 {
		return
	}
	for _, ind := range front {
		ind.Crowding = 0
	}
	if n <= 2 {
		for _, ind := range front {
			ind.Crowding = math.Inf(1)
		}
		return
	}

	order := make([]*Individual, n)
	copy(order, front)
	for obj := 0; obj < NumObjectives; obj++ {
		sort.SliceStable(order, func(i, k int) bool {
			return order[i].Objectives[obj] < order[k].Objectives[obj]
		})
		order[0].Crowding = math.Inf(1)
		order[n-1].Crowding = math.Inf(1)

		span := order[n-1].Objectives[obj] - order[0].Objectives[obj]
		if span == 0 {
			continue
		}
		for i := 1; i < n-1; i++ {
			order[i].Crowding += (order[i+1].Objectives[obj] - order[i-1].Objectives[obj]) / span
		}
	}
}

// crowdedLess is the NSGA-II replacement order: lower rank first, then larger
// crowding distance.
func crowdedLess(a, b *Individual) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.Crowding > b.Crowding
}
