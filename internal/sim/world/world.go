// Package world is an in-memory voxel world: chunked block storage with lazy terrain
// generation, block data slots, heightmaps, fluids, connection shapes and entities.
// A World is not safe for concurrent use; the server drives it from one goroutine.
package world

import (
	"sort"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

// Stats counts world mutations.
type Stats struct {
	BlockWrites   int `json:"block_writes"`
	ShapeUpdates  int `json:"shape_updates"`
	DataWrites    int `json:"data_writes"`
	EntitiesAdded int `json:"entities_added"`
}

type World struct {
	gen      WorldGen
	blocks   *catalogs.BlockCatalog
	entTypes *catalogs.EntityCatalog
	logger   *log.Logger

	states   *stateTable
	store    *ChunkStore
	data     map[geom.BlockPos]nbtdoc.Compound
	entities map[string]*Entity

	stats Stats
}

var _ level.Accessor = (*World)(nil)

func NewWorld(gen WorldGen, cats *catalogs.Catalogs, logger *log.Logger) *World {
	if logger == nil {
		logger = log.Default()
	}
	gen = gen.normalized()
	states := newStateTable(&cats.Blocks)
	gen.Air = 0
	gen.Bedrock = states.id(blockstate.Of("bedrock"))
	gen.Stone = states.id(blockstate.Of("stone"))
	gen.Dirt = states.id(blockstate.Of("dirt"))
	gen.Grass = states.id(blockstate.MustParse("grass_block[snowy=false]"))
	gen.Sand = states.id(blockstate.Of("sand"))
	gen.Gravel = states.id(blockstate.Of("gravel"))
	gen.Log = states.id(blockstate.MustParse("oak_log[axis=y]"))
	gen.Water = states.id(blockstate.Water.With("level", "0"))
	return &World{
		gen:      gen,
		blocks:   &cats.Blocks,
		entTypes: &cats.Entities,
		logger:   logger,
		states:   states,
		store:    NewChunkStore(gen, states),
		data:     map[geom.BlockPos]nbtdoc.Compound{},
		entities: map[string]*Entity{},
	}
}

func (w *World) Gen() WorldGen { return w.gen }
func (w *World) Stats() Stats  { return w.stats }

// Contains reports whether p is inside the world's vertical and horizontal limits.
func (w *World) Contains(p geom.BlockPos) bool { return w.store.inBounds(p) }

func (w *World) IsFullCube(s blockstate.State) bool         { return w.blocks.IsFullCube(s) }
func (w *World) HasTag(s blockstate.State, tag string) bool { return w.blocks.HasTag(s, tag) }
func (w *World) CanHoldData(s blockstate.State) bool        { return w.blocks.CanHoldData(s) }
func (w *World) IsLootable(s blockstate.State) bool         { return w.blocks.IsLootable(s) }
func (w *World) IsWaterloggable(s blockstate.State) bool    { return w.blocks.IsWaterloggable(s) }

func (w *World) BlockAt(p geom.BlockPos) blockstate.State {
	return w.states.state(w.store.GetBlock(p))
}

func (w *World) FluidAt(p geom.BlockPos) level.Fluid {
	return w.states.info[w.store.GetBlock(p)].fluid
}

// BlockData returns a copy of the data slot at p, nil when empty.
func (w *World) BlockData(p geom.BlockPos) nbtdoc.Compound {
	return w.data[p].Clone()
}

func (w *World) Height(kind level.HeightmapKind, x, z int) int {
	return w.store.Height(kind, x, z)
}

// SetBlock writes s at p. It reports false when p is outside the world or the cell
// already holds s. Unless flags carry UpdateKnownShape, the six neighbors are
// reshaped against the new block.
func (w *World) SetBlock(p geom.BlockPos, s blockstate.State, flags level.UpdateFlags) bool {
	if s.IsZero() {
		s = blockstate.Air
	}
	if !w.store.SetBlock(p, w.states.id(s)) {
		return false
	}
	w.stats.BlockWrites++
	if _, ok := w.data[p]; ok && !w.blocks.CanHoldData(s) {
		delete(w.data, p)
	}
	if flags&level.UpdateKnownShape == 0 {
		w.updateNeighborShapes(p, s, flags)
	}
	return true
}

func (w *World) SetBlockData(p geom.BlockPos, data nbtdoc.Compound) bool {
	if !w.store.inBounds(p) || !w.blocks.CanHoldData(w.BlockAt(p)) {
		return false
	}
	data = data.Clone()
	if data == nil {
		data = nbtdoc.Compound{}
	}
	data["x"], data["y"], data["z"] = int32(p.X), int32(p.Y), int32(p.Z)
	w.data[p] = data
	w.stats.DataWrites++
	return true
}

func (w *World) ClearBlockData(p geom.BlockPos) {
	delete(w.data, p)
}

// updateNeighborShapes reshapes the neighbors of p without further propagation.
func (w *World) updateNeighborShapes(p geom.BlockPos, s blockstate.State, flags level.UpdateFlags) {
	follow := (flags &^ level.UpdateNeighbors) | level.UpdateKnownShape
	for _, d := range geom.Directions {
		np := p.Offset(d)
		if !w.store.inBounds(np) {
			continue
		}
		neighbor := w.BlockAt(np)
		if updated := w.UpdateShape(np, neighbor, d.Opposite(), p, s); updated != neighbor {
			w.SetBlock(np, updated, follow)
		}
	}
}

// DataPositions lists positions holding block data inside box, in Y, X, Z order.
func (w *World) DataPositions(box geom.Box) []geom.BlockPos {
	var out []geom.BlockPos
	for p := range w.data {
		if box.Contains(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out
}

// ChunkDigests returns the content digest of each loaded chunk.
func (w *World) ChunkDigests() map[ChunkKey][32]byte {
	out := map[ChunkKey][32]byte{}
	name := func(id uint16) string { return w.states.state(id).String() }
	for _, k := range w.store.LoadedChunkKeys() {
		out[k] = w.store.chunks[k].Digest(name)
	}
	return out
}

// ChunkDigest returns the content digest of chunk k, generating it if needed.
func (w *World) ChunkDigest(k ChunkKey) [32]byte {
	ch := w.store.getOrGenChunk(k.CX, k.CZ)
	return ch.Digest(func(id uint16) string { return w.states.state(id).String() })
}
