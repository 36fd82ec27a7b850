package woodland

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// NewRand returns the deterministic random stream for a simulation seed.
func NewRand(seed int64) *rand.Rand {
	// Non-cryptographic PRNG is intentional for reproducible runs.
	// #nosec G404
	return rand.New(rand.NewPCG(seedWord(seed, "a"), seedWord(seed, "b")))
}

func seedWord(seed int64, salt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%d:%s", seed, salt)))
	return h.Sum64()
}

// splitStream derives an independent stream from parent. Streams derived in
// the same order from the same parent are identical across runs.
func splitStream(parent *rand.Rand) *rand.Rand {
	// #nosec G404
	return rand.New(rand.NewPCG(parent.Uint64(), parent.Uint64()))
}
