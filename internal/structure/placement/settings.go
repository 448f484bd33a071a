package placement

import (
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/processor"
	"voxelstamp.ai/internal/structure/randx"
)

// Settings configure one placement call.
type Settings struct {
	Mirror   geom.Mirror
	Rotation geom.Rotation
	Pivot    geom.BlockPos

	IgnoreEntities bool
	// BoundingBox clips writes to a world-space box when set.
	BoundingBox      *geom.Box
	KeepLiquids      bool
	KnownShape       bool
	FinalizeEntities bool

	Processors []processor.Processor

	// Random, when set, makes the placement reproducible regardless of position.
	Random randx.Rand
	// Salt mixes into position-derived generators.
	Salt int64
}

func DefaultSettings() Settings {
	return Settings{KeepLiquids: true}
}

// Clone copies the settings with a fresh processor slice. Processor values are shared.
func (s Settings) Clone() Settings {
	out := s
	out.Processors = append([]processor.Processor(nil), s.Processors...)
	if s.BoundingBox != nil {
		b := *s.BoundingBox
		out.BoundingBox = &b
	}
	return out
}

// RandomFor returns the explicit generator if one is set, otherwise one seeded from
// p, otherwise a time-seeded one.
func (s Settings) RandomFor(p *geom.BlockPos) randx.Rand {
	if s.Random != nil {
		return s.Random
	}
	if p != nil {
		return randx.ForPos(*p, s.Salt)
	}
	return randx.TimeSeeded()
}

func (s Settings) clipped(p geom.BlockPos) bool {
	return s.BoundingBox != nil && !s.BoundingBox.Contains(p)
}
