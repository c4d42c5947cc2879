package opt

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	mathrand "math/rand"
)

// RNG subsystem names. Each solver concern draws from its own deterministic
// stream so a change in one operator's consumption pattern cannot perturb the
// others.
const (
	SubsystemInit        = "init"
	SubsystemSelection   = "selection"
	SubsystemCrossover   = "crossover"
	SubsystemMutation    = "mutation"
	SubsystemRepair      = "repair"
	SubsystemHypervolume = "hypervolume"
)

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem, derived from a single master seed. Two solver runs with the same
// seed and identical inputs MUST produce bit-for-bit identical populations.
//
// Thread-safety: NOT thread-safe. Owned by the solver goroutine.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*mathrand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*mathrand.Rand),
	}
}

// EntropySeed draws a fresh master seed for unseeded runs.
func EntropySeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Crypto source unavailable; fall back to the global math source.
		return mathrand.Int63()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) &^ (1 << 63))
}

// ForSubsystem returns the deterministically-seeded RNG for the named
// subsystem. The same name always returns the same cached instance.
func (p *PartitionedRNG) ForSubsystem(name string) *mathrand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derived := p.seed ^ fnv1a64(name)
	rng := mathrand.New(mathrand.NewSource(derived))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed, persisted in checkpoints so resumed runs stay
// reproducible.
func (p *PartitionedRNG) Seed() int64 { return p.seed }

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
