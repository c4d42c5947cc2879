package opt

import (
	"fmt"
	"math"
	"time"
)

// NumObjectives is the fixed size of the objective vector: distance, time,
// cost, utilization, accessibility (all minimized; the last two negated).
const NumObjectives = 5

// Objective indices into the [NumObjectives]float64 vector.
const (
	ObjDistance = iota
	ObjTime
	ObjCost
	ObjUtilization
	ObjAccessibility
)

// ObjectiveNames in index order, for logs and result summaries.
var ObjectiveNames = [NumObjectives]string{
	"distance", "time", "cost", "utilization", "accessibility",
}

// Weights are the per-objective weights of the composite fitness. They must
// sum to 1 within 1e-6.
type Weights struct {
	Distance      float64 `yaml:"distance"`
	Time          float64 `yaml:"time"`
	Cost          float64 `yaml:"cost"`
	Utilization   float64 `yaml:"utilization"`
	Accessibility float64 `yaml:"accessibility"`
}

// DefaultWeights spread weight evenly with the remainder on distance.
func DefaultWeights() Weights {
	return Weights{Distance: 0.3, Time: 0.2, Cost: 0.2, Utilization: 0.15, Accessibility: 0.15}
}

// Vector returns the weights in objective-index order.
func (w Weights) Vector() [NumObjectives]float64 {
	return [NumObjectives]float64{w.Distance, w.Time, w.Cost, w.Utilization, w.Accessibility}
}

// Validate checks non-negativity and the unit-sum constraint.
func (w Weights) Validate() error {
	sum := 0.0
	for i, v := range w.Vector() {
		if v < 0 {
			return fmt.Errorf("%w: weight %q is negative", ErrInvalidParameters, ObjectiveNames[i])
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: weights sum to %.8f, want 1", ErrInvalidParameters, sum)
	}
	return nil
}

// Constraints are soft-constraint thresholds. A zero threshold disables the
// corresponding penalty.
type Constraints struct {
	MaxDistanceKM        float64 `yaml:"max_distance_km"`
	MaxTravelTimeMinutes float64 `yaml:"max_travel_time_minutes"`
	MinUtilization       float64 `yaml:"min_utilization"`
	MaxUtilization       float64 `yaml:"max_utilization"`
	MinQuality           float64 `yaml:"min_quality"`
}

// Parameters are the per-scenario algorithm knobs.
type Parameters struct {
	Weights     Weights
	Constraints Constraints

	PopulationSize       int
	MaxGenerations       int
	CrossoverRate        float64
	MutationRate         float64
	TournamentSize       int
	EliteSize            int
	ConvergenceWindow    int
	ConvergenceThreshold float64
	DiversityThreshold   float64

	TimeBudget         time.Duration
	CheckpointInterval int
	Workers            int // evaluation workers; 0 = min(GOMAXPROCS, 8)

	// Seed makes runs reproducible when Seeded is true; otherwise a fresh
	// entropy seed is drawn at solver construction.
	Seed   int64
	Seeded bool
}

// DefaultParameters mirror the documented configuration surface.
func DefaultParameters() Parameters {
	return Parameters{
		Weights:              DefaultWeights(),
		PopulationSize:       200,
		MaxGenerations:       500,
		CrossoverRate:        0.9,
		MutationRate:         0.1,
		TournamentSize:       3,
		EliteSize:            20,
		ConvergenceWindow:    50,
		ConvergenceThreshold: 1e-3,
		DiversityThreshold:   1e-4,
		TimeBudget:           900 * time.Second,
		CheckpointInterval:   50,
	}
}

// Validate rejects unusable knob combinations; every failure wraps
// ErrInvalidParameters.
func (p Parameters) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if p.PopulationSize < 2 {
		return fmt.Errorf("%w: population size %d < 2", ErrInvalidParameters, p.PopulationSize)
	}
	if p.MaxGenerations < 1 {
		return fmt.Errorf("%w: max generations %d < 1", ErrInvalidParameters, p.MaxGenerations)
	}
	if p.CrossoverRate < 0 || p.CrossoverRate > 1 {
		return fmt.Errorf("%w: crossover rate %f outside [0,1]", ErrInvalidParameters, p.CrossoverRate)
	}
	if p.MutationRate < 0 || p.MutationRate > 1 {
		return fmt.Errorf("%w: mutation rate %f outside [0,1]", ErrInvalidParameters, p.MutationRate)
	}
	if p.TournamentSize < 1 {
		return fmt.Errorf("%w: tournament size %d < 1", ErrInvalidParameters, p.TournamentSize)
	}
	if p.EliteSize < 0 || p.EliteSize > p.PopulationSize {
		return fmt.Errorf("%w: elite size %d outside [0,%d]", ErrInvalidParameters, p.EliteSize, p.PopulationSize)
	}
	if p.ConvergenceWindow < 2 {
		return fmt.Errorf("%w: convergence window %d < 2", ErrInvalidParameters, p.ConvergenceWindow)
	}
	if c := p.Constraints; c.MaxUtilization > 0 && c.MinUtilization > c.MaxUtilization {
		return fmt.Errorf("%w: utilization band [%f,%f] is empty", ErrInvalidParameters, c.MinUtilization, c.MaxUtilization)
	}
	return nil
}
