package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionedRNG_SubsystemsAreIndependent(t *testing.T) {
	// GIVEN one master seed
	r := NewPartitionedRNG(42)

	// THEN distinct subsystems draw from distinct streams
	a := r.ForSubsystem(SubsystemMutation).Int63()
	b := r.ForSubsystem(SubsystemCrossover).Int63()
	assert.NotEqual(t, a, b)

	// AND asking again returns the same stream, already advanced
	next := r.ForSubsystem(SubsystemMutation).Int63()
	assert.NotEqual(t, a, next)
}

func TestPartitionedRNG_SameSeedSameStreams(t *testing.T) {
	r1 := NewPartitionedRNG(42)
	r2 := NewPartitionedRNG(42)
	for i := 0; i < 10; i++ {
		require.Equal(t,
			r1.ForSubsystem(SubsystemSelection).Int63(),
			r2.ForSubsystem(SubsystemSelection).Int63())
	}

	r3 := NewPartitionedRNG(43)
	assert.NotEqual(t,
		NewPartitionedRNG(42).ForSubsystem(SubsystemInit).Int63(),
		r3.ForSubsystem(SubsystemInit).Int63())
}

func TestPartitionedRNG_SeedAccessor(t *testing.T) {
	assert.Equal(t, int64(7), NewPartitionedRNG(7).Seed())
}

func TestEntropySeed_Varies(t *testing.T) {
	// Two draws colliding is astronomically unlikely
	assert.NotEqual(t, EntropySeed(), EntropySeed())
}
