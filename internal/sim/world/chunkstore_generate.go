package world

import "voxelstamp.ai/internal/structure/randx"

func (s *ChunkStore) generateChunk(ch *Chunk) {
	if s.gen.Terrain == TerrainVoid {
		return
	}
	for z := 0; z < chunkSize; z++ {
		for x := 0; x < chunkSize; x++ {
			wx := ch.CX*chunkSize + x
			wz := ch.CZ*chunkSize + z
			if !s.inBounds(blockPos(wx, s.gen.MinY, wz)) {
				continue
			}
			s.generateColumn(ch, x, z, wx, wz)
		}
	}
}

func (s *ChunkStore) generateColumn(ch *Chunk, x, z, wx, wz int) {
	g := s.gen
	top := g.SeaLevel
	biome := "PLAINS"
	if g.Terrain == TerrainNoise {
		top += relief(g.Seed, wx, wz, g.ReliefBlocks)
		biome = biomeAt(g.Seed, wx, wz, g.BiomeRegionSize)
	}
	top = min(top, g.MaxY)

	surface, filler := g.Grass, g.Dirt
	if biome == "DESERT" || (g.Terrain == TerrainNoise && top <= g.SeaLevel) {
		surface, filler = g.Sand, g.Sand
	}

	ch.Set(x, g.MinY, z, g.Bedrock)
	for y := g.MinY + 1; y <= top; y++ {
		b := g.Stone
		switch {
		case y == top:
			b = surface
		case y > top-4:
			b = filler
		case randx.Hash3(g.Seed+7, wx, y, wz)%1000 < uint64(g.GravelPermille):
			b = g.Gravel
		}
		ch.Set(x, y, z, b)
	}
	if g.Terrain != TerrainNoise {
		return
	}
	for y := top + 1; y <= g.SeaLevel; y++ {
		ch.Set(x, y, z, g.Water)
	}
	if biome == "FOREST" && top > g.SeaLevel && randx.Hash2(g.Seed+201, wx, wz)%1000 < uint64(g.StumpPermille) {
		for y := top + 1; y <= min(top+3, g.MaxY); y++ {
			ch.Set(x, y, z, g.Log)
		}
	}
}

// relief is bilinear value noise on a 16-block lattice in [-amp, amp].
func relief(seed int64, x, z, amp int) int {
	if amp <= 0 {
		return 0
	}
	const cell = 16
	gx, gz := floorDiv(x, cell), floorDiv(z, cell)
	fx := float64(mod(x, cell)) / cell
	fz := float64(mod(z, cell)) / cell
	at := func(i, j int) float64 {
		return randx.Unit(randx.Hash2(seed+11, gx+i, gz+j))*2 - 1
	}
	top := at(0, 0)*(1-fx) + at(1, 0)*fx
	bottom := at(0, 1)*(1-fx) + at(1, 1)*fx
	v := top*(1-fz) + bottom*fz
	return int(v * float64(amp))
}

func biomeAt(seed int64, x, z, regionSize int) string {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := floorDiv(x, regionSize)
	rz := floorDiv(z, regionSize)
	return biomeFrom(randx.Hash2(seed, rx, rz))
}

func biomeFrom(noise uint64) string {
	// 3-way split.
	switch noise % 3 {
	case 0:
		return "PLAINS"
	case 1:
		return "FOREST"
	default:
		return "DESERT"
	}
}
