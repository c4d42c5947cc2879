package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdst-optimize/cdst-optimize/opt"
)

func testCheckpoint(p *opt.Problem) *Checkpoint {
	pop := make([]CheckpointIndividual, 3)
	for i := range pop {
		al := opt.NewAllocation(p)
		al.Set(0, 0, 0, int64(10+i))
		pop[i] = CheckpointIndividual{
			Genes:      append([]int64(nil), al.Raw()...),
			Objectives: [opt.NumObjectives]float64{1, 2, 3, -0.5, -0.3},
			Penalty:    float64(i),
		}
	}
	return &Checkpoint{
		ScenarioID: "scn-1",
		Generation: 150,
		Seed:       42,
		Areas:      p.NAreas,
		Labs:       p.NLabs,
		Tests:      p.NTests,
		Population: pop,
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	// GIVEN a checkpoint from a mid-run population
	p := testProblem(t)
	cp := testCheckpoint(p)

	// WHEN encoded and decoded
	blob, err := EncodeCheckpoint(cp)
	require.NoError(t, err)
	got, err := DecodeCheckpoint(blob)
	require.NoError(t, err)

	// THEN everything survives: identity, progress, seed, population
	assert.Equal(t, cp.ScenarioID, got.ScenarioID)
	assert.Equal(t, cp.Generation, got.Generation)
	assert.Equal(t, cp.Seed, got.Seed)
	require.Len(t, got.Population, len(cp.Population))
	assert.Equal(t, cp.Population[2].Genes, got.Population[2].Genes)
	assert.Equal(t, cp.Population[1].Objectives, got.Population[1].Objectives)
	assert.Equal(t, cp.Population[1].Penalty, got.Population[1].Penalty)
}

func TestCheckpoint_BlobIsFramed(t *testing.T) {
	p := testProblem(t)
	blob, err := EncodeCheckpoint(testCheckpoint(p))
	require.NoError(t, err)

	// The frame starts with the magic and version
	assert.Equal(t, []byte("CDST\x01"), blob[:5])
	assert.Equal(t, byte(checkpointVersion), blob[5])
}

func TestDecodeCheckpoint_RejectsCorruptBlobs(t *testing.T) {
	p := testProblem(t)
	blob, err := EncodeCheckpoint(testCheckpoint(p))
	require.NoError(t, err)

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", blob[:3]},
		{"bad magic", append([]byte("XXXX\x00"), blob[5:]...)},
		{"unknown version", append(append([]byte{}, blob[:5]...), append([]byte{99}, blob[6:]...)...)},
		{"truncated payload", blob[:len(blob)-10]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCheckpoint(tc.data)
			assert.Error(t, err)
		})
	}
}

func TestRestorePopulation_ValidatesDimensions(t *testing.T) {
	p := testProblem(t)
	cp := testCheckpoint(p)

	// Mismatched dimensions are rejected
	cp.Labs++
	_, err := restorePopulation(p, cp)
	require.Error(t, err)
	cp.Labs--

	// Wrong gene counts are rejected
	cp.Population[0].Genes = cp.Population[0].Genes[:2]
	_, err = restorePopulation(p, cp)
	require.Error(t, err)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	// GIVEN a live population
	p := testProblem(t)
	var pop []*opt.Individual
	for i := 0; i < 4; i++ {
		al := opt.NewAllocation(p)
		al.Set(0, 1, 0, int64(i*7))
		ind := opt.NewIndividual(al)
		ind.SetEvaluation([opt.NumObjectives]float64{float64(i), 0, 0, 0, 0}, 0)
		pop = append(pop, ind)
	}

	// WHEN snapshotted and restored
	cp := &Checkpoint{
		Areas: p.NAreas, Labs: p.NLabs, Tests: p.NTests,
		Population: snapshotPopulation(pop),
	}
	restored, err := restorePopulation(p, cp)
	require.NoError(t, err)

	// THEN genes and evaluations carry over, already evaluated
	require.Len(t, restored, 4)
	for i, ind := range restored {
		assert.True(t, ind.Evaluated())
		assert.Equal(t, pop[i].Alloc.Raw(), ind.Alloc.Raw())
		assert.Equal(t, pop[i].Objectives, ind.Objectives)
	}
}
