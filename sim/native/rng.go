package native

import (
	"hash/fnv"
	"math/rand"
)

// Each named stream is seeded independently, so adding a stream never
// perturbs the draws of an existing one under a fixed seed.
const subsystemInflow = "inflow"

// partitionedRNG provides deterministic, isolated RNG instances per
// subsystem. Two engines with the same seed and replication label produce
// identical vehicle trajectories.
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type partitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

func newPartitionedRNG(seed int64) *partitionedRNG {
	return &partitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// forSubsystem returns a deterministically-seeded RNG for the named
// subsystem, derived as seed XOR fnv1a64(name). The same name always
// returns the same cached *rand.Rand.
func (p *partitionedRNG) forSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.seed ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
