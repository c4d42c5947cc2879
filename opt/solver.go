package opt

import (
	"context"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// GenerationStats is the per-generation progress record the scheduler turns
// into frames.
type GenerationStats struct {
	Generation    int
	BestComposite float64
	Hypervolume   float64
	Diversity     float64
	Converged     bool
}

// Strategy is the solver capability set. NSGA-II is the default; MOEA/D or
// SPEA2 variants slot in without touching the scheduler.
type Strategy interface {
	// Initialize seeds and evaluates the starting population.
	Initialize(ctx context.Context) error
	// EvolveOneGeneration advances the population by one generation and
	// reports progress. Converged=true asks the caller to stop.
	EvolveOneGeneration(ctx context.Context) (GenerationStats, error)
	// ExtractFront returns the current rank-0 individuals.
	ExtractFront() []*Individual

	// Generation, Population, and Seed expose checkpointable state; Restore
	// replaces Initialize when resuming from a checkpoint.
	Generation() int
	Population() []*Individual
	Seed() int64
	Restore(generation int, pop []*Individual)
}

// NSGA2 is the default Strategy: non-dominated sorting, crowding-distance
// replacement, tournament selection, multi-point crossover, annealed Gaussian
// mutation, and repair after every variation.
type NSGA2 struct {
	p      *Problem
	params Parameters
	eval   *Evaluator
	rng    *PartitionedRNG

	pop []*Individual
	gen int

	hv        *hypervolumeEstimator
	window    *convergenceWindow
	lastHV    float64
	staleGens int

	workers int
	log     *logrus.Entry
}

// NewNSGA2 builds a solver for one run. Parameters must already be validated.
func NewNSGA2(p *Problem, params Parameters) *NSGA2 {
	seed := params.Seed
	if !params.Seeded {
		seed = EntropySeed()
	}
	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers > 8 {
			workers = 8
		}
	}
	return &NSGA2{
		p:       p,
		params:  params,
		eval:    NewEvaluator(p, params.Constraints),
		rng:     NewPartitionedRNG(seed),
		window:  newConvergenceWindow(params.ConvergenceWindow, params.ConvergenceThreshold),
		workers: workers,
		log:     logrus.WithField("component", "nsga2"),
	}
}

// Seed returns the master seed in effect (drawn from entropy when the run
// was not seeded explicitly).
func (s *NSGA2) Seed() int64 { return s.rng.Seed() }

// Generation returns the number of completed generations.
func (s *NSGA2) Generation() int { return s.gen }

// Population exposes the current population for checkpointing.
func (s *NSGA2) Population() []*Individual { return s.pop }

// Initialize seeds the population (30% random, 40% greedy, 30% balanced),
// evaluates it, and fixes the hypervolume reference box.
func (s *NSGA2) Initialize(ctx context.Context) error {
	s.pop = seedPopulation(s.p, s.rng.ForSubsystem(SubsystemInit), s.params.PopulationSize)
	if err := s.evaluateAll(ctx, s.pop); err != nil {
		return err
	}
	s.rankAndScore(s.pop)
	s.hv = newHypervolumeEstimator(s.pop, s.rng.ForSubsystem(SubsystemHypervolume))
	s.lastHV = s.hv.Update(s.frontOf(s.pop))
	s.log.WithFields(logrus.Fields{
		"population": len(s.pop),
		"seed":       s.rng.Seed(),
	}).Debug("population initialized")
	return nil
}

// Restore replaces Initialize when resuming from a checkpoint. Objectives
// arrive with the population, so no re-evaluation happens; the hypervolume
// reference box is re-derived from the restored population.
func (s *NSGA2) Restore(generation int, pop []*Individual) {
	s.pop = pop
	s.gen = generation
	s.rankAndScore(s.pop)
	s.hv = newHypervolumeEstimator(s.pop, s.rng.ForSubsystem(SubsystemHypervolume))
	s.lastHV = s.hv.Update(s.frontOf(s.pop))
}

// EvolveOneGeneration runs selection, variation, repair, evaluation, and
// (rank, -crowding) replacement over the 2P union, then updates convergence
// tracking.
func (s *NSGA2) EvolveOneGeneration(ctx context.Context) (GenerationStats, error) {
	if err := ctx.Err(); err != nil {
		return GenerationStats{}, err
	}

	offspring := s.makeOffspring()
	if err := s.evaluateAll(ctx, offspring); err != nil {
		return GenerationStats{}, err
	}

	elites := s.currentElites()

	union := make([]*Individual, 0, len(s.pop)+len(offspring))
	union = append(union, s.pop...)
	union = append(union, offspring...)

	fronts := FastNonDominatedSort(union)
	for _, front := range fronts {
		AssignCrowdingDistance(front)
	}
	sort.SliceStable(union, func(i, k int) bool { return crowdedLess(union[i], union[k]) })

	next := union[:s.params.PopulationSize]
	next = s.preserveElites(next, elites)
	s.pop = next
	NormalizeComposites(s.pop, s.params.Weights)
	s.gen++

	stats := s.collectStats()
	if s.gen%10 == 0 {
		s.log.WithFields(logrus.Fields{
			"generation":  s.gen,
			"best":        stats.BestComposite,
			"hypervolume": stats.Hypervolume,
			"diversity":   stats.Diversity,
		}).Debug("generation complete")
	}
	return stats, nil
}

// ExtractFront returns the current rank-0 set.
func (s *NSGA2) ExtractFront() []*Individual {
	return s.frontOf(s.pop)
}

func (s *NSGA2) frontOf(pop []*Individual) []*Individual {
	var front []*Individual
	for _, ind := range pop {
		if ind.Rank == 0 {
			front = append(front, ind)
		}
	}
	return front
}

// makeOffspring produces PopulationSize children via tournament selection,
// crossover, mutation, and repair.
func (s *NSGA2) makeOffspring() []*Individual {
	selRNG := s.rng.ForSubsystem(SubsystemSelection)
	xRNG := s.rng.ForSubsystem(SubsystemCrossover)
	mRNG := s.rng.ForSubsystem(SubsystemMutation)

	offspring := make([]*Individual, 0, s.params.PopulationSize)
	for len(offspring) < s.params.PopulationSize {
		p1 := tournamentSelect(selRNG, s.pop, s.params.TournamentSize)
		p2 := tournamentSelect(selRNG, s.pop, s.params.TournamentSize)

		var c1, c2 *Allocation
		if xRNG.Float64() < s.params.CrossoverRate {
			c1, c2 = crossover(xRNG, p1.Alloc, p2.Alloc)
		} else {
			c1, c2 = p1.Alloc.Clone(), p2.Alloc.Clone()
		}

		mutate(mRNG, s.p, c1, s.params.MutationRate, s.gen, s.params.MaxGenerations)
		mutate(mRNG, s.p, c2, s.params.MutationRate, s.gen, s.params.MaxGenerations)
		Repair(s.p, c1)
		Repair(s.p, c2)

		offspring = append(offspring, NewIndividual(c1))
		if len(offspring) < s.params.PopulationSize {
			offspring = append(offspring, NewIndividual(c2))
		}
	}
	return offspring
}

// evaluateAll fills in objectives for unevaluated individuals in parallel.
// Results are written back by index, so evaluation order never perturbs the
// population and seeded runs stay reproducible.
func (s *NSGA2) evaluateAll(ctx context.Context, pop []*Individual) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, ind := range pop {
		if ind.Evaluated() {
			continue
		}
		ind := ind
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			obj, penalty := s.eval.Evaluate(ind.Alloc)
			ind.SetEvaluation(obj, penalty)
			return nil
		})
	}
	return g.Wait()
}

// rankAndScore sorts, crowds, and scores a population in place.
func (s *NSGA2) rankAndScore(pop []*Individual) {
	fronts := FastNonDominatedSort(pop)
	for _, front := range fronts {
		AssignCrowdingDistance(front)
	}
	NormalizeComposites(pop, s.params.Weights)
}

// currentElites returns the EliteSize best-composite parents.
func (s *NSGA2) currentElites() []*Individual {
	if s.params.EliteSize == 0 {
		return nil
	}
	byComposite := make([]*Individual, len(s.pop))
	copy(byComposite, s.pop)
	sort.SliceStable(byComposite, func(i, k int) bool {
		return byComposite[i].Composite < byComposite[k].Composite
	})
	n := s.params.EliteSize
	if n > len(byComposite) {
		n = len(byComposite)
	}
	return byComposite[:n]
}

// preserveElites reinserts any elite lost to replacement, evicting from the
// tail so extreme mutation can never wipe the best individuals.
func (s *NSGA2) preserveElites(next, elites []*Individual) []*Individual {
	if len(elites) == 0 {
		return next
	}
	present := make(map[*Individual]bool, len(next))
	for _, ind := range next {
		present[ind] = true
	}
	slot := len(next) - 1
	for _, elite := range elites {
		if present[elite] {
			continue
		}
		for slot >= 0 && present[next[slot]] && isElite(elites, next[slot]) {
			slot--
		}
		if slot < 0 {
			break
		}
		next[slot] = elite
		present[elite] = true
		slot--
	}
	return next
}

func isElite(elites []*Individual, ind *Individual) bool {
	for _, e := range elites {
		if e == ind {
			return true
		}
	}
	return false
}

// collectStats derives the generation's progress record and convergence
// verdict.
func (s *NSGA2) collectStats() GenerationStats {
	best := 0.0
	for i, ind := range s.pop {
		if i == 0 || ind.Composite < best {
			best = ind.Composite
		}
	}

	hv := s.hv.Update(s.frontOf(s.pop))
	converged := s.window.Push(hv)

	if hv > s.lastHV+1e-12 {
		s.staleGens = 0
	} else {
		s.staleGens++
	}
	s.lastHV = hv

	diversity := meanPairwiseDistance(s.pop)
	if diversity < s.params.DiversityThreshold && s.staleGens >= s.params.ConvergenceWindow {
		converged = true
	}

	return GenerationStats{
		Generation:    s.gen,
		BestComposite: best,
		Hypervolume:   hv,
		Diversity:     diversity,
		Converged:     converged,
	}
}
