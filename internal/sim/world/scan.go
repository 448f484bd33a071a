package world

import (
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
)

// Scan reads box into a local palette and one palette index per cell, x fastest,
// then z, then y. Index 0 is always air.
func (w *World) Scan(box geom.Box) (palette []string, ids []uint16) {
	local := map[uint16]uint16{0: 0}
	palette = []string{blockstate.Air.String()}
	ids = make([]uint16, 0, box.Volume())
	for y := box.Min.Y; y <= box.Max.Y; y++ {
		for z := box.Min.Z; z <= box.Max.Z; z++ {
			for x := box.Min.X; x <= box.Max.X; x++ {
				g := w.store.GetBlock(geom.BlockPos{X: x, Y: y, Z: z})
				l, ok := local[g]
				if !ok {
					l = uint16(len(palette))
					local[g] = l
					palette = append(palette, w.states.state(g).String())
				}
				ids = append(ids, l)
			}
		}
	}
	return palette, ids
}

// Fill writes s into every cell of box and returns the number of changed cells.
func (w *World) Fill(box geom.Box, s blockstate.State, flags level.UpdateFlags) int {
	n := 0
	for y := box.Min.Y; y <= box.Max.Y; y++ {
		for z := box.Min.Z; z <= box.Max.Z; z++ {
			for x := box.Min.X; x <= box.Max.X; x++ {
				if w.SetBlock(geom.BlockPos{X: x, Y: y, Z: z}, s, flags) {
					n++
				}
			}
		}
	}
	return n
}

func blockPos(x, y, z int) geom.BlockPos { return geom.BlockPos{X: x, Y: y, Z: z} }
