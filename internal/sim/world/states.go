package world

import (
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/level"
)

// stateTable interns block states to the uint16 ids stored in sections. Id 0 is air.
// Per-state facts the hot paths need are computed once at intern time.
type stateTable struct {
	blocks *catalogs.BlockCatalog
	states []blockstate.State
	info   []stateInfo
	ids    map[blockstate.State]uint16
}

type stateInfo struct {
	surface bool // counts for WORLD_SURFACE
	solid   bool // counts for OCEAN_FLOOR
	motion  bool // counts for MOTION_BLOCKING
	fluid   level.Fluid
}

func newStateTable(blocks *catalogs.BlockCatalog) *stateTable {
	t := &stateTable{blocks: blocks, ids: map[blockstate.State]uint16{}}
	t.id(blockstate.Air)
	return t
}

func (t *stateTable) id(s blockstate.State) uint16 {
	if id, ok := t.ids[s]; ok {
		return id
	}
	if len(t.states) > 0xFFFF {
		panic("world: block state table full")
	}
	id := uint16(len(t.states))
	t.states = append(t.states, s)
	t.info = append(t.info, t.describe(s))
	t.ids[s] = id
	return id
}

func (t *stateTable) state(id uint16) blockstate.State {
	if int(id) >= len(t.states) {
		return blockstate.Air
	}
	return t.states[id]
}

func (t *stateTable) describe(s blockstate.State) stateInfo {
	def := t.blocks.Def(s.Name())
	var in stateInfo
	in.fluid = fluidOf(def.Fluid, s)
	in.surface = !isAirLike(s)
	in.solid = def.Shape != catalogs.ShapeNone
	in.motion = in.solid || !in.fluid.IsEmpty()
	return in
}

func (t *stateTable) countsFor(kind level.HeightmapKind, id uint16) bool {
	in := t.info[id]
	switch kind {
	case level.WorldSurface:
		return in.surface
	case level.OceanFloor:
		return in.solid
	}
	return in.motion
}

func isAirLike(s blockstate.State) bool {
	switch s.Name() {
	case "minecraft:air", "minecraft:cave_air", "minecraft:void_air":
		return true
	}
	return false
}

// fluidOf derives the fluid in a cell: fluid blocks at level 0 (or without a level)
// are sources, waterlogged blocks hold a water source.
func fluidOf(kind string, s blockstate.State) level.Fluid {
	switch kind {
	case "water", "lava":
		k := level.FluidWater
		if kind == "lava" {
			k = level.FluidLava
		}
		lvl, ok := s.Get("level")
		return level.Fluid{Kind: k, Source: !ok || lvl == "0"}
	}
	if v, _ := s.Get("waterlogged"); v == "true" {
		return level.Fluid{Kind: level.FluidWater, Source: true}
	}
	return level.Fluid{}
}
