package opt

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Allocation is the decision tensor x[area,lab,test], stored as one
// contiguous row-major buffer with the test axis innermost. Demand
// satisfaction (per (a,t) sums equal demand) and capability (positive cells
// only at capable labs) are maintained by initialization and repair.
type Allocation struct {
	x      []int64
	nAreas int
	nLabs  int
	nTests int
}

// NewAllocation returns a zero tensor shaped for p.
func NewAllocation(p *Problem) *Allocation {
	return &Allocation{
		x:      make([]int64, p.NAreas*p.NLabs*p.NTests),
		nAreas: p.NAreas,
		nLabs:  p.NLabs,
		nTests: p.NTests,
	}
}

func (al *Allocation) idx(a, j, t int) int {
	return (a*al.nLabs+j)*al.nTests + t
}

// At returns x[a,j,t].
func (al *Allocation) At(a, j, t int) int64 { return al.x[al.idx(a, j, t)] }

// Set assigns x[a,j,t].
func (al *Allocation) Set(a, j, t int, v int64) { al.x[al.idx(a, j, t)] = v }

// Add increments x[a,j,t] by delta.
func (al *Allocation) Add(a, j, t int, delta int64) { al.x[al.idx(a, j, t)] += delta }

// Len is the flat gene-vector length.
func (al *Allocation) Len() int { return len(al.x) }

// Gene returns the flat gene at position i.
func (al *Allocation) Gene(i int) int64 { return al.x[i] }

// SetGene assigns the flat gene at position i.
func (al *Allocation) SetGene(i int, v int64) { al.x[i] = v }

// GeneCoords decomposes flat position i into (area, lab, test).
func (al *Allocation) GeneCoords(i int) (a, j, t int) {
	t = i % al.nTests
	i /= al.nTests
	j = i % al.nLabs
	a = i / al.nLabs
	return
}

// Clone deep-copies the tensor.
func (al *Allocation) Clone() *Allocation {
	cp := &Allocation{
		x:      make([]int64, len(al.x)),
		nAreas: al.nAreas,
		nLabs:  al.nLabs,
		nTests: al.nTests,
	}
	copy(cp.x, al.x)
	return cp
}

// Raw exposes the underlying buffer for serialization. Callers must not
// mutate it outside the solver goroutine.
func (al *Allocation) Raw() []int64 { return al.x }

// Dims returns (areas, labs, tests).
func (al *Allocation) Dims() (int, int, int) { return al.nAreas, al.nLabs, al.nTests }

// Hash is a 64-bit content hash of the tensor, keying the evaluator's memo
// cache.
func (al *Allocation) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range al.x {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		d.Write(buf[:])
	}
	return d.Sum64()
}

// SumFor returns the allocated total for one (area, test) cell across labs.
func (al *Allocation) SumFor(a, t int) int64 {
	var s int64
	base := a * al.nLabs * al.nTests
	for j := 0; j < al.nLabs; j++ {
		s += al.x[base+j*al.nTests+t]
	}
	return s
}

// TotalTests is the number of allocated tests across the tensor.
func (al *Allocation) TotalTests() int64 {
	var s int64
	for _, v := range al.x {
		s += v
	}
	return s
}

// LabLoadMinutes is the processing load placed on lab j in minutes.
func (al *Allocation) LabLoadMinutes(p *Problem, j int) float64 {
	load := 0.0
	for a := 0; a < al.nAreas; a++ {
		for t := 0; t < al.nTests; t++ {
			if v := al.At(a, j, t); v > 0 {
				load += float64(v) * p.ProcAt(j, t)
			}
		}
	}
	return load
}

// Individual couples an allocation with its evaluation and NSGA-II bookkeeping.
type Individual struct {
	Alloc      *Allocation
	Objectives [NumObjectives]float64
	Penalty    float64
	Composite  float64
	Rank       int
	Crowding   float64

	evaluated bool
}

// NewIndividual wraps an allocation; it is not yet evaluated.
func NewIndividual(al *Allocation) *Individual {
	return &Individual{Alloc: al}
}

// Clone deep-copies the individual, evaluation included.
func (ind *Individual) Clone() *Individual {
	cp := *ind
	cp.Alloc = ind.Alloc.Clone()
	return &cp
}

// Invalidate marks the individual for re-evaluation after variation.
func (ind *Individual) Invalidate() { ind.evaluated = false }

// Evaluated reports whether Objectives and Penalty are current.
func (ind *Individual) Evaluated() bool { return ind.evaluated }

// SetEvaluation stores the evaluator's answer.
func (ind *Individual) SetEvaluation(obj [NumObjectives]float64, penalty float64) {
	ind.Objectives = obj
	ind.Penalty = penalty
	ind.evaluated = true
}
