package opt

import (
	mathrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertInvariants checks the three repair guarantees on al.
func assertInvariants(t *testing.T, p *Problem, al *Allocation) {
	t.Helper()
	for a := 0; a < p.NAreas; a++ {
		for tt := 0; tt < p.NTests; tt++ {
			assert.Equal(t, p.DemandAt(a, tt), al.SumFor(a, tt),
				"demand mismatch at area %d test %d", a, tt)
		}
	}
	for a := 0; a < p.NAreas; a++ {
		for j := 0; j < p.NLabs; j++ {
			for tt := 0; tt < p.NTests; tt++ {
				v := al.At(a, j, tt)
				assert.GreaterOrEqual(t, v, int64(0))
				if v > 0 {
					assert.True(t, p.CapableAt(j, tt),
						"allocation at incapable lab %d test %d", j, tt)
				}
			}
		}
	}
}

func TestRepair_FixesRandomTensor(t *testing.T) {
	// GIVEN a tensor with negative cells, incapable assignments, and wrong sums
	p := testProblem(t)
	rng := mathrand.New(mathrand.NewSource(7))
	al := NewAllocation(p)
	for i := 0; i < al.Len(); i++ {
		al.SetGene(i, int64(rng.Intn(400))-100)
	}

	// WHEN repaired THEN all invariants hold
	Repair(p, al)
	assertInvariants(t, p, al)
}

func TestRepair_ZeroTensorSpreadsDemand(t *testing.T) {
	// GIVEN an empty tensor
	p := testProblem(t)
	al := NewAllocation(p)

	// WHEN repaired THEN demand is spread uniformly over capable labs
	Repair(p, al)
	assertInvariants(t, p, al)

	a1, _ := p.AreaIndex("area-1")
	cs, _ := p.TestIndex("culture-sensitivity")
	labA, _ := p.LabIndex("lab-a")
	labB, _ := p.LabIndex("lab-b")
	assert.Equal(t, int64(60), al.At(a1, labA, cs))
	assert.Equal(t, int64(60), al.At(a1, labB, cs))
}

func TestRepair_Idempotent(t *testing.T) {
	p := testProblem(t)
	rng := mathrand.New(mathrand.NewSource(99))
	al := NewAllocation(p)
	for i := 0; i < al.Len(); i++ {
		al.SetGene(i, int64(rng.Intn(300)))
	}

	Repair(p, al)
	snapshot := al.Clone()
	Repair(p, al)
	assert.Equal(t, snapshot.Raw(), al.Raw(), "second repair pass changed the tensor")
}

func TestRepair_ProportionalScalingPreservesShape(t *testing.T) {
	// GIVEN an over-allocated cell split 3:1 between two labs
	p := testProblem(t)
	a1, _ := p.AreaIndex("area-1")
	cs, _ := p.TestIndex("culture-sensitivity") // demand 120
	labA, _ := p.LabIndex("lab-a")
	labB, _ := p.LabIndex("lab-b")

	al := NewAllocation(p)
	fillOtherCells(p, al, a1, cs)
	al.Set(a1, labA, cs, 300)
	al.Set(a1, labB, cs, 100)

	// WHEN repaired THEN the 3:1 ratio survives the scale-down
	Repair(p, al)
	assertInvariants(t, p, al)
	assert.Equal(t, int64(90), al.At(a1, labA, cs))
	assert.Equal(t, int64(30), al.At(a1, labB, cs))
}

// fillOtherCells satisfies every (area,test) cell except (skipA, skipT) so a
// test can focus on one cell's repair behavior.
func fillOtherCells(p *Problem, al *Allocation, skipA, skipT int) {
	for a := 0; a < p.NAreas; a++ {
		for tt := 0; tt < p.NTests; tt++ {
			if a == skipA && tt == skipT {
				continue
			}
			d := p.DemandAt(a, tt)
			if d == 0 {
				continue
			}
			capable := p.CapableLabs(tt)
			al.Set(a, capable[0], tt, d)
		}
	}
}

func TestRepair_CapacityOverloadRedirects(t *testing.T) {
	// GIVEN a problem where lab-b has almost no available minutes
	net := testNetwork()
	net.Laboratories[1].StaffCount = 1
	net.Laboratories[1].UtilizationFactor = 0.01
	p, err := buildTestProblem(net)
	require.NoError(t, err)

	labB, _ := p.LabIndex("lab-b")

	// AND everything piled onto lab-b
	al := NewAllocation(p)
	for a := 0; a < p.NAreas; a++ {
		for tt := 0; tt < p.NTests; tt++ {
			al.Set(a, labB, tt, p.DemandAt(a, tt))
		}
	}

	// WHEN repaired THEN lab-b is brought within its minutes and the moved
	// volume lands on capable labs without breaking demand sums
	Repair(p, al)
	assertInvariants(t, p, al)
	assert.LessOrEqual(t, al.LabLoadMinutes(p, labB), p.AvailableMinutes[labB]+1e-9)
}
