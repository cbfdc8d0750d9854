// Package random forks reproducible generators from a world seed so each
// subsystem draws from its own stream.
package random

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
	"time"
)

// Subsystem labels.
const (
	LabelGenerator = "generator"
	LabelPathing   = "pathing"
)

// SeedValue hashes the root seed and label into a non-zero source seed.
func SeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// New returns a generator dedicated to one subsystem.
func New(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(SeedValue(rootSeed, label)))
}

// ChunkSeed derives the seed for one chunk so that its contents do not
// depend on the order in which chunks were generated.
func ChunkSeed(rootSeed string, x, y int) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(int64(x)))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(y)))
	hasher.Write(buf[:])
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// Duration draws uniformly from [min, max).
func Duration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}

// Sample returns k distinct values from [0, n) without replacement.
func Sample(rng *rand.Rand, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	return rng.Perm(n)[:k]
}
