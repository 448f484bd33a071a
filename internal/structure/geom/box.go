package geom

// Box is an axis-aligned box with inclusive corners.
type Box struct {
	Min BlockPos
	Max BlockPos
}

func BoxFromCorners(a, b BlockPos) Box {
	return Box{
		Min: BlockPos{min(a.X, b.X), min(a.Y, b.Y), min(a.Z, b.Z)},
		Max: BlockPos{max(a.X, b.X), max(a.Y, b.Y), max(a.Z, b.Z)},
	}
}

func (b Box) Move(off BlockPos) Box { return Box{Min: b.Min.Add(off), Max: b.Max.Add(off)} }

func (b Box) Contains(p BlockPos) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (b Box) Intersects(o Box) bool {
	return b.Max.X >= o.Min.X && b.Min.X <= o.Max.X &&
		b.Max.Y >= o.Min.Y && b.Min.Y <= o.Max.Y &&
		b.Max.Z >= o.Min.Z && b.Min.Z <= o.Max.Z
}

// Encapsulate grows the box to include p.
func (b Box) Encapsulate(p BlockPos) Box {
	return Box{
		Min: BlockPos{min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z)},
		Max: BlockPos{max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z)},
	}
}

// Size returns the per-axis extent (inclusive, so a single block is 1x1x1).
func (b Box) Size() BlockPos {
	return BlockPos{b.Max.X - b.Min.X + 1, b.Max.Y - b.Min.Y + 1, b.Max.Z - b.Min.Z + 1}
}

func (b Box) Volume() int {
	s := b.Size()
	if s.X <= 0 || s.Y <= 0 || s.Z <= 0 {
		return 0
	}
	return s.X * s.Y * s.Z
}
