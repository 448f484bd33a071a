package placement

import (
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
)

var liquidNeighbors = [...]geom.Direction{geom.Up, geom.North, geom.East, geom.South, geom.West}

// liquidRepair restores water into waterloggable blocks placed where water used to be
// or next to it.
type liquidRepair struct {
	enabled bool
	pending []geom.BlockPos
	inSet   map[geom.BlockPos]struct{}
}

func newLiquidRepair(enabled bool) *liquidRepair {
	return &liquidRepair{
		enabled: enabled,
		inSet:   map[geom.BlockPos]struct{}{},
	}
}

func (l *liquidRepair) snapshot(world level.Reader, p geom.BlockPos) level.Fluid {
	if !l.enabled {
		return level.Fluid{}
	}
	return world.FluidAt(p)
}

func (l *liquidRepair) afterWrite(world level.Accessor, p geom.BlockPos, placed blockstate.State, before level.Fluid) {
	if !l.enabled {
		return
	}
	// A full source at p is never pending and may seed neighbours, including sources
	// written by this placement.
	if world.FluidAt(p).IsSource() {
		return
	}
	if !world.IsWaterloggable(placed) {
		return
	}
	if before.Kind == level.FluidWater && before.Source {
		waterlog(world, p)
		return
	}
	l.pending = append(l.pending, p)
	l.inSet[p] = struct{}{}
}

// repair waterlogs pending positions next to a water source until a full scan makes
// no progress. Each successful scan removes at least one position, so it terminates.
func (l *liquidRepair) repair(world level.Accessor) {
	if !l.enabled {
		return
	}
	for progress := true; progress && len(l.pending) > 0; {
		progress = false
		kept := l.pending[:0]
		for _, p := range l.pending {
			if l.hasSourceNeighbor(world, p) && waterlog(world, p) {
				delete(l.inSet, p)
				progress = true
				continue
			}
			kept = append(kept, p)
		}
		l.pending = kept
	}
}

func (l *liquidRepair) hasSourceNeighbor(world level.Reader, p geom.BlockPos) bool {
	for _, d := range liquidNeighbors {
		q := p.Offset(d)
		if _, ok := l.inSet[q]; ok {
			continue
		}
		if f := world.FluidAt(q); f.Kind == level.FluidWater && f.Source {
			return true
		}
	}
	return false
}

func waterlog(world level.Accessor, p geom.BlockPos) bool {
	s := world.BlockAt(p)
	if !world.IsWaterloggable(s) {
		return false
	}
	if v, _ := s.Get("waterlogged"); v == "true" {
		return true
	}
	return world.SetBlock(p, s.With("waterlogged", "true"), level.UpdateDefault)
}
