package blueprint

import (
	"math"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

// Capture records the region [origin, origin+size) of world as a single-variant
// blueprint. Blocks of type ignore are skipped; a zero ignore defaults to
// structure_void. Players are never captured and entity UUIDs are stripped.
func Capture(world level.Reader, origin, size geom.BlockPos, withEntities bool, ignore blockstate.State, author string) (*Blueprint, error) {
	if ignore.IsZero() {
		ignore = blockstate.StructureVoid
	}
	if size.X < 1 || size.Y < 1 || size.Z < 1 {
		return New(size, author, [][]BlockEntry{{}}, nil, world)
	}

	var entries []BlockEntry
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			for z := 0; z < size.Z; z++ {
				local := geom.BlockPos{X: x, Y: y, Z: z}
				wp := origin.Add(local)
				s := world.BlockAt(wp)
				if s.Name() == ignore.Name() {
					continue
				}
				e := BlockEntry{Pos: local, State: s}
				if d := world.BlockData(wp); d != nil {
					d = d.Clone()
					delete(d, "x")
					delete(d, "y")
					delete(d, "z")
					e.Data = d
				}
				entries = append(entries, e)
			}
		}
	}

	var entities []EntityRecord
	if withEntities {
		box := geom.Box{Min: origin, Max: origin.Add(size).Sub(geom.BlockPos{X: 1, Y: 1, Z: 1})}
		originVec := origin.Vec()
		for _, ent := range world.EntitiesIn(box) {
			if ent.IsPlayer() {
				continue
			}
			data := ent.Data().Clone()
			delete(data, "UUID")
			pos := ent.Pos().Sub(originVec)
			bp := geom.BlockPos{X: int(math.Floor(pos[0])), Y: int(math.Floor(pos[1])), Z: int(math.Floor(pos[2]))}
			if tile, ok := hangingTile(data); ok {
				bp = tile.Sub(origin)
			}
			entities = append(entities, EntityRecord{Pos: pos, BlockPos: bp, Data: data})
		}
	}
	return New(size, author, [][]BlockEntry{entries}, entities, world)
}

// hangingTile reads the block anchor of wall-mounted entities.
func hangingTile(data nbtdoc.Compound) (geom.BlockPos, bool) {
	x, okx := data.Int("TileX")
	y, oky := data.Int("TileY")
	z, okz := data.Int("TileZ")
	if !okx || !oky || !okz {
		return geom.BlockPos{}, false
	}
	return geom.BlockPos{X: int(x), Y: int(y), Z: int(z)}, true
}
