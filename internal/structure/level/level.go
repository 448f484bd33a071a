// Package level is the contract between the placement engine and a world volume.
// The engine reads and writes only through these interfaces.
package level

import (
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

// UpdateFlags select the side effects of a block write.
type UpdateFlags int

const (
	UpdateNeighbors  UpdateFlags = 1 << 0
	UpdateClients    UpdateFlags = 1 << 1
	UpdateInvisible  UpdateFlags = 1 << 2
	UpdateKnownShape UpdateFlags = 1 << 4

	UpdateDefault = UpdateNeighbors | UpdateClients
)

// Light strips the neighbor notification, used for follow-up shape writes.
func (f UpdateFlags) Light() UpdateFlags { return f &^ UpdateNeighbors }

type FluidKind uint8

const (
	FluidNone FluidKind = iota
	FluidWater
	FluidLava
)

func (k FluidKind) String() string {
	switch k {
	case FluidWater:
		return "water"
	case FluidLava:
		return "lava"
	}
	return "none"
}

// Fluid is the fluid occupying a block cell.
type Fluid struct {
	Kind   FluidKind
	Source bool
}

func (f Fluid) IsEmpty() bool { return f.Kind == FluidNone }

// IsSource reports a full source block of any fluid.
func (f Fluid) IsSource() bool { return f.Kind != FluidNone && f.Source }

type HeightmapKind uint8

const (
	WorldSurface HeightmapKind = iota
	OceanFloor
	MotionBlocking
)

var heightmapNames = [...]string{"WORLD_SURFACE", "OCEAN_FLOOR", "MOTION_BLOCKING"}

func (k HeightmapKind) String() string {
	if int(k) < len(heightmapNames) {
		return heightmapNames[k]
	}
	return "UNKNOWN"
}

func ParseHeightmap(s string) (HeightmapKind, bool) {
	for i, n := range heightmapNames {
		if n == s {
			return HeightmapKind(i), true
		}
	}
	return 0, false
}

// Catalog answers static questions about block states.
type Catalog interface {
	IsFullCube(s blockstate.State) bool
	HasTag(s blockstate.State, tag string) bool
	CanHoldData(s blockstate.State) bool
	IsLootable(s blockstate.State) bool
	IsWaterloggable(s blockstate.State) bool
}

// Entity is a live entity in the world.
type Entity interface {
	ID() string
	Type() string
	Pos() geom.Vec3
	// Data is the serialized form, including position and identity.
	Data() nbtdoc.Compound
	IsPlayer() bool
	IsMob() bool
}

// Reader is the read side of a world volume.
type Reader interface {
	Catalog
	BlockAt(p geom.BlockPos) blockstate.State
	FluidAt(p geom.BlockPos) Fluid
	BlockData(p geom.BlockPos) nbtdoc.Compound
	// Height returns the first free Y above the given heightmap column.
	Height(kind HeightmapKind, x, z int) int
	EntitiesIn(box geom.Box) []Entity
}

// Accessor is a writable world volume.
type Accessor interface {
	Reader
	SetBlock(p geom.BlockPos, s blockstate.State, flags UpdateFlags) bool
	// SetBlockData replaces the data slot at p. It reports false when the block at p
	// cannot hold data.
	SetBlockData(p geom.BlockPos, data nbtdoc.Compound) bool
	ClearBlockData(p geom.BlockPos)
	// UpdateShape returns s as it should look next to neighbor in direction dir.
	UpdateShape(p geom.BlockPos, s blockstate.State, dir geom.Direction, neighborPos geom.BlockPos, neighbor blockstate.State) blockstate.State
	CreateEntity(data nbtdoc.Compound) (Entity, error)
	FinalizeSpawn(e Entity)
	AddEntity(e Entity) error
}
