package world

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"voxelstamp.ai/internal/persistence/snapshot"
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/codec"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
)

// ExportSnapshot captures every generated chunk, block data slot and entity.
func (w *World) ExportSnapshot(now time.Time) (snapshot.WorldV1, error) {
	g := w.gen
	snap := snapshot.WorldV1{
		Header: snapshot.Header{Version: snapshot.Version, Seed: g.Seed, SavedAt: now.Unix()},
		Gen: snapshot.GenV1{
			Seed:            g.Seed,
			Terrain:         g.Terrain,
			MinY:            g.MinY,
			MaxY:            g.MaxY,
			SeaLevel:        g.SeaLevel,
			BoundaryR:       g.BoundaryR,
			BiomeRegionSize: g.BiomeRegionSize,
			ReliefBlocks:    g.ReliefBlocks,
			StumpPermille:   g.StumpPermille,
			GravelPermille:  g.GravelPermille,
		},
		States: make([]string, len(w.states.states)),
	}
	for i, s := range w.states.states {
		snap.States[i] = s.String()
	}

	for _, k := range w.store.LoadedChunkKeys() {
		ch := w.store.chunks[k]
		out := snapshot.ChunkV1{CX: k.CX, CZ: k.CZ}
		ys := make([]int, 0, len(ch.Sections))
		for sy := range ch.Sections {
			ys = append(ys, sy)
		}
		sort.Ints(ys)
		for _, sy := range ys {
			blocks := make([]uint16, sectionVol)
			copy(blocks, ch.Sections[sy].Blocks[:])
			out.Sections = append(out.Sections, snapshot.SectionV1{Y: sy, Blocks: blocks})
		}
		snap.Chunks = append(snap.Chunks, out)
	}
	snap.Header.Chunks = len(snap.Chunks)

	all := geom.Box{
		Min: geom.BlockPos{X: math.MinInt, Y: g.MinY, Z: math.MinInt},
		Max: geom.BlockPos{X: math.MaxInt, Y: g.MaxY, Z: math.MaxInt},
	}
	for _, p := range w.DataPositions(all) {
		b, err := codec.MarshalCompound(w.data[p])
		if err != nil {
			return snap, fmt.Errorf("block data at %v: %w", p, err)
		}
		snap.BlockData = append(snap.BlockData, snapshot.BlockDataV1{Pos: p.ToArray(), NBT: b})
	}

	ids := make([]string, 0, len(w.entities))
	for id := range w.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b, err := codec.MarshalCompound(w.entities[id].data)
		if err != nil {
			return snap, fmt.Errorf("entity %s: %w", id, err)
		}
		snap.Entities = append(snap.Entities, snapshot.EntityV1{ID: id, NBT: b})
	}
	return snap, nil
}

// FromSnapshot rebuilds a world. Chunks missing from the snapshot are generated on
// first access from the saved generator settings.
func FromSnapshot(snap snapshot.WorldV1, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	sg := snap.Gen
	w := NewWorld(WorldGen{
		Seed:            sg.Seed,
		Terrain:         sg.Terrain,
		MinY:            sg.MinY,
		MaxY:            sg.MaxY,
		SeaLevel:        sg.SeaLevel,
		BoundaryR:       sg.BoundaryR,
		BiomeRegionSize: sg.BiomeRegionSize,
		ReliefBlocks:    sg.ReliefBlocks,
		StumpPermille:   sg.StumpPermille,
		GravelPermille:  sg.GravelPermille,
	}, cats, logger)

	remap := make([]uint16, len(snap.States))
	for i, text := range snap.States {
		s, err := blockstate.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("snapshot state %d: %w", i, err)
		}
		remap[i] = w.states.id(s)
	}

	store := w.store
	for _, c := range snap.Chunks {
		ch := &Chunk{CX: c.CX, CZ: c.CZ, Sections: map[int]*Section{}}
		for _, sec := range c.Sections {
			if len(sec.Blocks) != sectionVol {
				return nil, fmt.Errorf("chunk %d,%d section %d: %d cells", c.CX, c.CZ, sec.Y, len(sec.Blocks))
			}
			out := &Section{}
			for i, id := range sec.Blocks {
				if int(id) >= len(remap) {
					return nil, fmt.Errorf("chunk %d,%d section %d: state %d out of range", c.CX, c.CZ, sec.Y, id)
				}
				out.Blocks[i] = remap[id]
			}
			ch.Sections[sec.Y] = out
		}
		for lz := 0; lz < chunkSize; lz++ {
			for lx := 0; lx < chunkSize; lx++ {
				for kind := range ch.Heightmaps {
					ch.Heightmaps[kind][lx+lz*chunkSize] = store.scanDown(ch, level.HeightmapKind(kind), lx, store.gen.MaxY, lz)
				}
			}
		}
		ch.dirty = true
		store.chunks[ChunkKey{CX: c.CX, CZ: c.CZ}] = ch
	}

	for _, d := range snap.BlockData {
		data, err := codec.UnmarshalCompound(d.NBT)
		if err != nil {
			return nil, fmt.Errorf("block data at %v: %w", d.Pos, err)
		}
		w.data[geom.BlockPos{X: d.Pos[0], Y: d.Pos[1], Z: d.Pos[2]}] = data
	}

	for _, e := range snap.Entities {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.ID, err)
		}
		data, err := codec.UnmarshalCompound(e.NBT)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		typ, _ := data.Str("id")
		def, ok := w.entTypes.Def(typ)
		if !ok {
			return nil, fmt.Errorf("entity %s: %w: %s", e.ID, ErrUnknownEntity, typ)
		}
		w.entities[id.String()] = &Entity{id: id, def: def, data: data}
	}
	w.logger.Info("world restored", "chunks", len(snap.Chunks), "entities", len(snap.Entities), "seed", sg.Seed)
	return w, nil
}
