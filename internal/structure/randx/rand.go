// Package randx supplies the random sources used during placement. Every source is
// an explicit value; nothing reads a global generator.
package randx

import (
	"math/rand/v2"
	"time"

	"voxelstamp.ai/internal/structure/geom"
)

// Rand is the subset of *rand.Rand the engine draws from.
type Rand interface {
	Float32() float32
	Float64() float64
	IntN(n int) int
	Int64() int64
}

// FromSeed returns a reproducible generator.
func FromSeed(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, mix64(s)))
}

// ForPos derives a generator from a block position and a salt. The same inputs
// always produce the same sequence.
func ForPos(p geom.BlockPos, salt int64) *rand.Rand {
	return FromSeed(int64(Hash3(salt, p.X, p.Y, p.Z)))
}

// TimeSeeded is the last resort when no position is known.
func TimeSeeded() *rand.Rand {
	return FromSeed(time.Now().UnixNano())
}
