package placement

import (
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
)

// voxelSet is an occupancy bitset over a box.
type voxelSet struct {
	box   geom.Box
	size  geom.BlockPos
	words []uint64
}

func newVoxelSet(box geom.Box) *voxelSet {
	size := box.Size()
	n := size.X * size.Y * size.Z
	return &voxelSet{box: box, size: size, words: make([]uint64, (n+63)/64)}
}

func (v *voxelSet) index(p geom.BlockPos) (int, bool) {
	if !v.box.Contains(p) {
		return 0, false
	}
	l := p.Sub(v.box.Min)
	return (l.X*v.size.Y+l.Y)*v.size.Z + l.Z, true
}

func (v *voxelSet) set(p geom.BlockPos) {
	if i, ok := v.index(p); ok {
		v.words[i>>6] |= 1 << (uint(i) & 63)
	}
}

func (v *voxelSet) has(p geom.BlockPos) bool {
	i, ok := v.index(p)
	return ok && v.words[i>>6]&(1<<(uint(i)&63)) != 0
}

// faces calls fn for every face of an occupied voxel whose neighbor is empty.
func (v *voxelSet) faces(fn func(p geom.BlockPos, d geom.Direction)) {
	for x := v.box.Min.X; x <= v.box.Max.X; x++ {
		for y := v.box.Min.Y; y <= v.box.Max.Y; y++ {
			for z := v.box.Min.Z; z <= v.box.Max.Z; z++ {
				p := geom.BlockPos{X: x, Y: y, Z: z}
				if !v.has(p) {
					continue
				}
				for _, d := range geom.Directions {
					if !v.has(p.Offset(d)) {
						fn(p, d)
					}
				}
			}
		}
	}
}

// updateShapeAtEdge reconciles shapes across the outer surface of the placed blocks
// only. Interior faces are left alone.
func updateShapeAtEdge(world level.Accessor, flags level.UpdateFlags, touched geom.Box, placed []placedBlock) {
	set := newVoxelSet(touched)
	for _, b := range placed {
		set.set(b.pos)
	}
	light := flags.Light()
	set.faces(func(p geom.BlockPos, d geom.Direction) {
		np := p.Offset(d)
		self := world.BlockAt(p)
		neighbor := world.BlockAt(np)
		updated := world.UpdateShape(p, self, d, np, neighbor)
		if updated != self {
			world.SetBlock(p, updated, light)
		}
		updatedNeighbor := world.UpdateShape(np, neighbor, d.Opposite(), p, updated)
		if updatedNeighbor != neighbor {
			world.SetBlock(np, updatedNeighbor, light)
		}
	})
}
