package opt

import "sort"

// Repair restores the allocation invariants after initialization or
// variation:
//
//  1. positive cells only at capable labs,
//  2. per-(a,t) sums equal to demand,
//  3. per-lab processing load within available minutes.
//
// Repair is idempotent: a second pass over an already-repaired tensor is a
// no-op (capacity redirection picks contributors and receivers
// deterministically).
func Repair(p *Problem, al *Allocation) {
	repairCapability(p, al)
	repairDemand(p, al)
	repairCapacity(p, al)
}

// repairCapability zeroes assignments to labs that cannot run the test; the
// lost volume is restored by repairDemand.
func repairCapability(p *Problem, al *Allocation) {
	for a := 0; a < p.NAreas; a++ {
		for j := 0; j < p.NLabs; j++ {
			for t := 0; t < p.NTests; t++ {
				if al.At(a, j, t) != 0 && !p.CapableAt(j, t) {
					al.Set(a, j, t, 0)
				}
				if al.At(a, j, t) < 0 {
					al.Set(a, j, t, 0)
				}
			}
		}
	}
}

// repairDemand makes every (a,t) sum match demand exactly: proportional
// scaling with largest-remainder rounding when something is allocated,
// uniform spread over capable labs when nothing is.
func repairDemand(p *Problem, al *Allocation) {
	for a := 0; a < p.NAreas; a++ {
		for t := 0; t < p.NTests; t++ {
			d := p.DemandAt(a, t)
			s := al.SumFor(a, t)
			if s == d {
				continue
			}
			capable := p.CapableLabs(t)
			if len(capable) == 0 {
				// Problem validation guarantees d == 0 here.
				for _, j := range capable {
					al.Set(a, j, t, 0)
				}
				continue
			}
			if d == 0 {
				for _, j := range capable {
					al.Set(a, j, t, 0)
				}
				continue
			}
			if s == 0 {
				spreadUniform(al, a, t, capable, d)
				continue
			}
			scaleProportional(p, al, a, t, capable, d, s)
		}
	}
}

// spreadUniform distributes d tests evenly over the capable labs, earlier
// indices taking the remainder.
func spreadUniform(al *Allocation, a, t int, capable []int, d int64) {
	n := int64(len(capable))
	base := d / n
	rem := d % n
	for i, j := range capable {
		v := base
		if int64(i) < rem {
			v++
		}
		al.Set(a, j, t, v)
	}
}

// scaleProportional rescales current assignments so they sum to d, assigning
// leftover units by largest fractional remainder (ties to the lower lab
// index, keeping the pass deterministic).
func scaleProportional(p *Problem, al *Allocation, a, t int, capable []int, d, s int64) {
	type share struct {
		lab  int
		frac float64
	}
	shares := make([]share, 0, len(capable))
	var assigned int64
	for _, j := range capable {
		exact := float64(al.At(a, j, t)) * float64(d) / float64(s)
		floor := int64(exact)
		al.Set(a, j, t, floor)
		assigned += floor
		shares = append(shares, share{lab: j, frac: exact - float64(floor)})
	}
	sort.SliceStable(shares, func(i, k int) bool { return shares[i].frac > shares[k].frac })
	for i := int64(0); i < d-assigned; i++ {
		al.Add(a, shares[i%int64(len(shares))].lab, t, 1)
	}
}

// repairCapacity scales back overloaded labs, moving the largest contributors
// to the next-nearest capable lab with slack. Moves preserve per-(a,t) sums.
// If no receiver has slack the overload stays; build-time coverage checks
// make that reachable only through extreme fragmentation.
func repairCapacity(p *Problem, al *Allocation) {
	slack := make([]float64, p.NLabs)
	for j := 0; j < p.NLabs; j++ {
		slack[j] = p.AvailableMinutes[j] - al.LabLoadMinutes(p, j)
	}

	for j := 0; j < p.NLabs; j++ {
		for slack[j] < 0 {
			a, t := largestContributor(p, al, j)
			if a < 0 {
				break
			}
			proc := p.ProcAt(j, t)
			need := int64(-slack[j]/proc) + 1
			if have := al.At(a, j, t); need > have {
				need = have
			}

			moved := moveTests(p, al, slack, a, j, t, need)
			if moved == 0 {
				break
			}
		}
	}
}

// largestContributor picks the (area, test) cell with the biggest processing
// load on lab j; ties resolve to the lowest indices.
func largestContributor(p *Problem, al *Allocation, j int) (int, int) {
	bestA, bestT := -1, -1
	best := 0.0
	for a := 0; a < p.NAreas; a++ {
		for t := 0; t < p.NTests; t++ {
			if x := al.At(a, j, t); x > 0 {
				if load := float64(x) * p.ProcAt(j, t); load > best {
					best = load
					bestA, bestT = a, t
				}
			}
		}
	}
	return bestA, bestT
}

// moveTests redirects up to count tests of (a,t) from lab j to capable labs
// with slack, nearest to area a first. Returns the number actually moved.
func moveTests(p *Problem, al *Allocation, slack []float64, a, j, t int, count int64) int64 {
	type candidate struct {
		lab  int
		dist float64
	}
	cands := make([]candidate, 0, p.NLabs)
	for k := 0; k < p.NLabs; k++ {
		if k == j || !p.CapableAt(k, t) {
			continue
		}
		cands = append(cands, candidate{lab: k, dist: p.DistAt(a, k)})
	}
	sort.SliceStable(cands, func(i, k int) bool { return cands[i].dist < cands[k].dist })

	var moved int64
	for _, c := range cands {
		if moved >= count {
			break
		}
		proc := p.ProcAt(c.lab, t)
		if proc <= 0 || slack[c.lab] < proc {
			continue
		}
		fit := int64(slack[c.lab] / proc)
		take := count - moved
		if take > fit {
			take = fit
		}
		if take <= 0 {
			continue
		}
		al.Add(a, j, t, -take)
		al.Add(a, c.lab, t, take)
		slack[j] += float64(take) * p.ProcAt(j, t)
		slack[c.lab] -= float64(take) * proc
		moved += take
	}
	return moved
}
