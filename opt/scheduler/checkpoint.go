// Package scheduler runs optimization scenarios: admission control, the
// scenario lifecycle, progress broadcasting, and periodic checkpointing.
package scheduler

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/cdst-optimize/cdst-optimize/opt"
)

// Checkpoint blob layout: 5-byte magic, 1-byte version, then a
// zstd-compressed gob payload.
var checkpointMagic = []byte("CDST\x01")

const checkpointVersion = 1

// Shared stateless codecs, per the klauspost EncodeAll/DecodeAll pattern.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Checkpoint is the resumable state of a running scenario.
type Checkpoint struct {
	ScenarioID string
	Generation int
	// Seed is the master RNG seed. Resuming re-derives the subsystem streams
	// from it at position zero rather than continuing mid-stream; the restored
	// population carries its evaluations, so resumed runs stay deterministic
	// under the same seed even though the stream positions restart.
	Seed int64
	Areas      int
	Labs       int
	Tests      int
	Population []CheckpointIndividual
}

// CheckpointIndividual carries one individual's genes and cached evaluation,
// so resuming never re-evaluates the restored population.
type CheckpointIndividual struct {
	Genes      []int64
	Objectives [opt.NumObjectives]float64
	Penalty    float64
}

// EncodeCheckpoint serializes a checkpoint into the framed blob format.
func EncodeCheckpoint(cp *Checkpoint) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(cp); err != nil {
		return nil, fmt.Errorf("encoding checkpoint: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(payload.Bytes(), nil)

	out := make([]byte, 0, len(checkpointMagic)+1+len(compressed))
	out = append(out, checkpointMagic...)
	out = append(out, checkpointVersion)
	out = append(out, compressed...)
	return out, nil
}

// DecodeCheckpoint parses a blob produced by EncodeCheckpoint. Corrupt or
// foreign blobs fail without panicking.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	if len(data) < len(checkpointMagic)+1 || !bytes.Equal(data[:len(checkpointMagic)], checkpointMagic) {
		return nil, fmt.Errorf("checkpoint blob has bad magic")
	}
	if v := data[len(checkpointMagic)]; v != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", v)
	}
	payload, err := zstdDecoder.DecodeAll(data[len(checkpointMagic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	return &cp, nil
}

// snapshotPopulation converts the solver population into checkpoint form.
func snapshotPopulation(pop []*opt.Individual) []CheckpointIndividual {
	out := make([]CheckpointIndividual, len(pop))
	for i, ind := range pop {
		genes := make([]int64, ind.Alloc.Len())
		copy(genes, ind.Alloc.Raw())
		out[i] = CheckpointIndividual{
			Genes:      genes,
			Objectives: ind.Objectives,
			Penalty:    ind.Penalty,
		}
	}
	return out
}

// restorePopulation rebuilds solver individuals from a checkpoint, validating
// gene counts against the problem's dimensions.
func restorePopulation(p *opt.Problem, cp *Checkpoint) ([]*opt.Individual, error) {
	if cp.Areas != p.NAreas || cp.Labs != p.NLabs || cp.Tests != p.NTests {
		return nil, fmt.Errorf("checkpoint dimensions %dx%dx%d do not match problem %dx%dx%d",
			cp.Areas, cp.Labs, cp.Tests, p.NAreas, p.NLabs, p.NTests)
	}
	want := p.NAreas * p.NLabs * p.NTests
	pop := make([]*opt.Individual, len(cp.Population))
	for i, ci := range cp.Population {
		if len(ci.Genes) != want {
			return nil, fmt.Errorf("checkpoint individual %d has %d genes, want %d", i, len(ci.Genes), want)
		}
		al := opt.NewAllocation(p)
		copy(al.Raw(), ci.Genes)
		ind := opt.NewIndividual(al)
		ind.SetEvaluation(ci.Objectives, ci.Penalty)
		pop[i] = ind
	}
	return pop, nil
}
