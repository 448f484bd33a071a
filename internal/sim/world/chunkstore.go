package world

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
)

const (
	chunkSize   = 16
	sectionSize = 16
	sectionVol  = chunkSize * sectionSize * chunkSize
)

type ChunkKey struct {
	CX int
	CZ int
}

// Section is a 16×16×16 cube of state ids. A nil section is all air.
type Section struct {
	Blocks [sectionVol]uint16
}

func sectionIndex(x, y, z int) int {
	// x fastest, then z, then y
	return x + z*chunkSize + y*chunkSize*chunkSize
}

type Chunk struct {
	CX, CZ int
	// Sections by section Y (floorDiv(y, 16)).
	Sections map[int]*Section
	// Heightmaps hold the first free Y above the top matching block per column.
	Heightmaps [3][chunkSize * chunkSize]int

	dirty bool
	hash  [32]byte
}

func (c *Chunk) Get(x, y, z int) uint16 {
	sec := c.Sections[floorDiv(y, sectionSize)]
	if sec == nil {
		return 0
	}
	return sec.Blocks[sectionIndex(x, mod(y, sectionSize), z)]
}

// Set stores id and reports whether the cell changed.
func (c *Chunk) Set(x, y, z int, id uint16) bool {
	sy := floorDiv(y, sectionSize)
	sec := c.Sections[sy]
	if sec == nil {
		if id == 0 {
			return false
		}
		sec = &Section{}
		c.Sections[sy] = sec
	}
	i := sectionIndex(x, mod(y, sectionSize), z)
	if sec.Blocks[i] == id {
		return false
	}
	sec.Blocks[i] = id
	c.dirty = true
	return true
}

// Digest hashes the chunk by state name, so equal content digests equally across
// worlds whose state tables differ. All-air sections are skipped.
func (c *Chunk) Digest(name func(id uint16) string) [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		// Hash sections in Y order so the digest does not depend on map order.
		keys := make([]int, 0, len(c.Sections))
		for sy := range c.Sections {
			keys = append(keys, sy)
		}
		sort.Ints(keys)
		h := sha256.New()
		local := map[uint16]uint16{0: 0}
		var tmp [8]byte
		for _, sy := range keys {
			sec := c.Sections[sy]
			if sec.Blocks == ([sectionVol]uint16{}) {
				continue
			}
			binary.LittleEndian.PutUint64(tmp[:], uint64(int64(sy)))
			h.Write(tmp[:])
			for _, v := range sec.Blocks {
				l, ok := local[v]
				if !ok {
					l = uint16(len(local))
					local[v] = l
					h.Write([]byte(name(v)))
					h.Write([]byte{0})
				}
				binary.LittleEndian.PutUint16(tmp[:2], l)
				h.Write(tmp[:2])
			}
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

type ChunkStore struct {
	gen    WorldGen
	states *stateTable
	// Accessed only from the world loop goroutine.
	chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen WorldGen, states *stateTable) *ChunkStore {
	return &ChunkStore{
		gen:    gen,
		states: states,
		chunks: map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) inBounds(pos geom.BlockPos) bool {
	if pos.Y < s.gen.MinY || pos.Y > s.gen.MaxY {
		return false
	}
	if s.gen.BoundaryR > 0 {
		if pos.X < -s.gen.BoundaryR || pos.X > s.gen.BoundaryR || pos.Z < -s.gen.BoundaryR || pos.Z > s.gen.BoundaryR {
			return false
		}
	}
	return true
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) GetBlock(pos geom.BlockPos) uint16 {
	if !s.inBounds(pos) {
		return 0
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, chunkSize), floorDiv(pos.Z, chunkSize))
	return ch.Get(mod(pos.X, chunkSize), pos.Y, mod(pos.Z, chunkSize))
}

// SetBlock stores id at pos and reports whether anything changed.
func (s *ChunkStore) SetBlock(pos geom.BlockPos, id uint16) bool {
	if !s.inBounds(pos) {
		return false
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, chunkSize), floorDiv(pos.Z, chunkSize))
	lx, lz := mod(pos.X, chunkSize), mod(pos.Z, chunkSize)
	if !ch.Set(lx, pos.Y, lz, id) {
		return false
	}
	s.updateHeight(ch, lx, pos.Y, lz, id)
	return true
}

func (s *ChunkStore) Height(kind level.HeightmapKind, x, z int) int {
	ch := s.getOrGenChunk(floorDiv(x, chunkSize), floorDiv(z, chunkSize))
	return ch.Heightmaps[kind][mod(x, chunkSize)+mod(z, chunkSize)*chunkSize]
}

func (s *ChunkStore) updateHeight(ch *Chunk, lx, y, lz int, id uint16) {
	col := lx + lz*chunkSize
	for k := range ch.Heightmaps {
		kind := level.HeightmapKind(k)
		h := ch.Heightmaps[k][col]
		switch {
		case s.states.countsFor(kind, id):
			if y >= h {
				ch.Heightmaps[k][col] = y + 1
			}
		case y == h-1:
			ch.Heightmaps[k][col] = s.scanDown(ch, kind, lx, y-1, lz)
		}
	}
}

func (s *ChunkStore) scanDown(ch *Chunk, kind level.HeightmapKind, lx, from, lz int) int {
	for y := from; y >= s.gen.MinY; y-- {
		sy := floorDiv(y, sectionSize)
		sec := ch.Sections[sy]
		if sec == nil {
			y = sy * sectionSize
			continue
		}
		if s.states.countsFor(kind, sec.Blocks[sectionIndex(lx, mod(y, sectionSize), lz)]) {
			return y + 1
		}
	}
	return s.gen.MinY
}

func (s *ChunkStore) getOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:       cx,
		CZ:       cz,
		Sections: map[int]*Section{},
	}
	s.generateChunk(ch)
	for lz := 0; lz < chunkSize; lz++ {
		for lx := 0; lx < chunkSize; lx++ {
			for kind := range ch.Heightmaps {
				ch.Heightmaps[kind][lx+lz*chunkSize] = s.scanDown(ch, level.HeightmapKind(kind), lx, s.gen.MaxY, lz)
			}
		}
	}
	ch.dirty = true
	s.chunks[k] = ch
	return ch
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
