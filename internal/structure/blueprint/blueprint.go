// Package blueprint is the in-memory structure template: a size, one or more
// palette variants of block entries and a list of entity records. A Blueprint is
// immutable after construction.
package blueprint

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

var (
	ErrNoPalettes      = errors.New("blueprint has no palettes")
	ErrVariantMismatch = errors.New("palette variants are not aligned")
	ErrOutOfBounds     = errors.New("block entry outside blueprint size")
	ErrDuplicatePos    = errors.New("duplicate block position")
	ErrNegativeSize    = errors.New("negative blueprint size")
)

// BlockEntry is one block of a palette. Data is nil for blocks without auxiliary data.
type BlockEntry struct {
	Pos   geom.BlockPos
	State blockstate.State
	Data  nbtdoc.Compound
}

func (e BlockEntry) Clone() BlockEntry {
	e.Data = e.Data.Clone()
	return e
}

// EntityRecord is an entity to spawn with the structure, in local coordinates.
type EntityRecord struct {
	Pos      geom.Vec3
	BlockPos geom.BlockPos
	Data     nbtdoc.Compound
}

// ShapeClassifier decides which commit group an entry belongs to.
type ShapeClassifier interface {
	IsFullCube(s blockstate.State) bool
}

// Palette is one variant of the blueprint's blocks in commit order.
type Palette struct {
	blocks []BlockEntry

	mu     sync.Mutex
	byType map[string][]BlockEntry
}

func (p *Palette) Blocks() []BlockEntry { return p.blocks }
func (p *Palette) Len() int             { return len(p.blocks) }

// ByType returns the entries of one block id, preserving commit order.
func (p *Palette) ByType(block string) []BlockEntry {
	name := blockstate.Of(block).Name()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byType == nil {
		p.byType = map[string][]BlockEntry{}
		for _, e := range p.blocks {
			n := e.State.Name()
			p.byType[n] = append(p.byType[n], e)
		}
	}
	return p.byType[name]
}

type Blueprint struct {
	size     geom.BlockPos
	author   string
	palettes []*Palette
	entities []EntityRecord
}

// New validates variants and stores them in commit order. Every variant must list the
// same positions at the same indices. The commit permutation is computed from the
// first variant and applied to all of them.
func New(size geom.BlockPos, author string, variants [][]BlockEntry, entities []EntityRecord, shapes ShapeClassifier) (*Blueprint, error) {
	if size.X < 0 || size.Y < 0 || size.Z < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNegativeSize, size)
	}
	if len(variants) == 0 {
		return nil, ErrNoPalettes
	}
	first := variants[0]
	seen := make(map[geom.BlockPos]struct{}, len(first))
	for _, e := range first {
		if e.Pos.X < 0 || e.Pos.Y < 0 || e.Pos.Z < 0 || e.Pos.X >= size.X || e.Pos.Y >= size.Y || e.Pos.Z >= size.Z {
			return nil, fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, e.Pos, size)
		}
		if _, dup := seen[e.Pos]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicatePos, e.Pos)
		}
		seen[e.Pos] = struct{}{}
	}
	for i, v := range variants[1:] {
		if len(v) != len(first) {
			return nil, fmt.Errorf("%w: variant %d has %d entries, want %d", ErrVariantMismatch, i+1, len(v), len(first))
		}
		for j := range v {
			if v[j].Pos != first[j].Pos {
				return nil, fmt.Errorf("%w: variant %d entry %d at %v, want %v", ErrVariantMismatch, i+1, j, v[j].Pos, first[j].Pos)
			}
		}
	}

	order := commitOrder(first, shapes)
	bp := &Blueprint{size: size, author: author}
	for _, v := range variants {
		blocks := make([]BlockEntry, len(v))
		for i, idx := range order {
			blocks[i] = v[idx].Clone()
		}
		bp.palettes = append(bp.palettes, &Palette{blocks: blocks})
	}
	for _, e := range entities {
		e.Data = e.Data.Clone()
		bp.entities = append(bp.entities, e)
	}
	return bp, nil
}

// commitOrder returns indices of entries: full cubes without data, then other blocks
// without data, then blocks with data. Each group is ordered by Y, X, Z.
func commitOrder(entries []BlockEntry, shapes ShapeClassifier) []int {
	group := func(e BlockEntry) int {
		switch {
		case e.Data != nil:
			return 2
		case shapes != nil && shapes.IsFullCube(e.State):
			return 0
		}
		return 1
	}
	idx := make([]int, len(entries))
	groups := make([]int, len(entries))
	for i, e := range entries {
		idx[i] = i
		groups[i] = group(e)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ea, eb := entries[idx[a]], entries[idx[b]]
		if ga, gb := groups[idx[a]], groups[idx[b]]; ga != gb {
			return ga < gb
		}
		if ea.Pos.Y != eb.Pos.Y {
			return ea.Pos.Y < eb.Pos.Y
		}
		if ea.Pos.X != eb.Pos.X {
			return ea.Pos.X < eb.Pos.X
		}
		return ea.Pos.Z < eb.Pos.Z
	})
	return idx
}

func (b *Blueprint) Size() geom.BlockPos      { return b.size }
func (b *Blueprint) Author() string           { return b.author }
func (b *Blueprint) Palettes() []*Palette     { return b.palettes }
func (b *Blueprint) Entities() []EntityRecord { return b.entities }
func (b *Blueprint) Palette(i int) *Palette   { return b.palettes[i] }
func (b *Blueprint) VariantCount() int        { return len(b.palettes) }

// IsEmptySize reports whether any dimension is below one.
func (b *Blueprint) IsEmptySize() bool {
	return b.size.X < 1 || b.size.Y < 1 || b.size.Z < 1
}

// Variants copies the palettes back out, for encoders.
func (b *Blueprint) Variants() [][]BlockEntry {
	out := make([][]BlockEntry, len(b.palettes))
	for i, p := range b.palettes {
		out[i] = append([]BlockEntry(nil), p.blocks...)
	}
	return out
}

// BlockCount is the number of entries per variant.
func (b *Blueprint) BlockCount() int {
	if len(b.palettes) == 0 {
		return 0
	}
	return b.palettes[0].Len()
}
