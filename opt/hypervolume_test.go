package opt

import (
	mathrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHypervolumeEstimator_GrowsWithBetterFronts(t *testing.T) {
	// GIVEN an estimator boxed around an initial population
	initial := []*Individual{ind(10, 10, 10, 10, 10), ind(0, 0, 0, 0, 0)}
	rng := mathrand.New(mathrand.NewSource(1))
	h := newHypervolumeEstimator(initial, rng)

	// WHEN a mediocre front is folded in
	mid := h.Update([]*Individual{ind(5, 5, 5, 5, 5)})
	assert.Greater(t, mid, 0.0)
	assert.Less(t, mid, 1.0)

	// AND a strictly better point arrives
	better := h.Update([]*Individual{ind(1, 1, 1, 1, 1)})
	assert.Greater(t, better, mid)

	// THEN re-presenting a worse point never shrinks the estimate
	again := h.Update([]*Individual{ind(8, 8, 8, 8, 8)})
	assert.GreaterOrEqual(t, again, better)
}

func TestHypervolumeEstimator_ArchiveKeepsOnlyNonDominated(t *testing.T) {
	initial := []*Individual{ind(10, 10, 10, 10, 10), ind(0, 0, 0, 0, 0)}
	h := newHypervolumeEstimator(initial, mathrand.New(mathrand.NewSource(2)))

	h.Update([]*Individual{ind(5, 5, 5, 5, 5)})
	h.Update([]*Individual{ind(2, 2, 2, 2, 2)}) // dominates the first
	require.Len(t, h.archive, 1)

	h.Update([]*Individual{ind(1, 9, 2, 2, 2)}) // trade-off, kept
	assert.Len(t, h.archive, 2)

	h.Update([]*Individual{ind(2, 2, 2, 2, 2)}) // duplicate of a member
	assert.Len(t, h.archive, 2)
}

func TestHypervolumeEstimator_DegenerateInitialPopulation(t *testing.T) {
	// A single-point population still yields a usable box
	initial := []*Individual{ind(3, 3, 3, 3, 3)}
	h := newHypervolumeEstimator(initial, mathrand.New(mathrand.NewSource(3)))

	hv := h.Update(initial)
	assert.GreaterOrEqual(t, hv, 0.0)
	assert.LessOrEqual(t, hv, 1.0)
	for i := range h.refLo {
		assert.Less(t, h.refLo[i], h.refHi[i])
	}
}

func TestConvergenceWindow(t *testing.T) {
	// GIVEN a window of 5 with threshold 1e-3
	w := newConvergenceWindow(5, 1e-3)

	// An unfilled window never converges
	for _, v := range []float64{0.1, 0.5, 0.8, 0.9} {
		assert.False(t, w.Push(v))
	}

	// Still churning: variance above threshold
	assert.False(t, w.Push(0.1))

	// WHEN the estimate plateaus for a full window THEN it converges
	w = newConvergenceWindow(5, 1e-3)
	for i := 0; i < 4; i++ {
		w.Push(0.75)
	}
	assert.True(t, w.Push(0.75))
}

func TestMeanPairwiseDistance(t *testing.T) {
	// Identical individuals have zero diversity
	same := []*Individual{ind(1, 1, 1, 1, 1), ind(1, 1, 1, 1, 1), ind(1, 1, 1, 1, 1)}
	assert.Zero(t, meanPairwiseDistance(same))

	// A known pair: distance sqrt(5) for unit offsets on every axis
	pair := []*Individual{ind(0, 0, 0, 0, 0), ind(1, 1, 1, 1, 1)}
	assert.InDelta(t, 2.2360679, meanPairwiseDistance(pair), 1e-6)

	// Fewer than two individuals reports zero
	assert.Zero(t, meanPairwiseDistance(nil))
	assert.Zero(t, meanPairwiseDistance(same[:1]))
}
