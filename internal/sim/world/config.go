package world

const (
	TerrainNoise = "noise"
	TerrainFlat  = "flat"
	TerrainVoid  = "void"
)

type WorldGen struct {
	Seed      int64
	BoundaryR int // blocks, 0 for unbounded

	MinY     int
	MaxY     int
	SeaLevel int
	// Terrain selects the generator: "noise", "flat" or "void".
	Terrain string

	// Worldgen tuning.
	BiomeRegionSize int
	ReliefBlocks    int
	StumpPermille   int
	GravelPermille  int

	// State ids for core blocks, assigned by NewWorld.
	Air     uint16
	Bedrock uint16
	Stone   uint16
	Dirt    uint16
	Grass   uint16
	Sand    uint16
	Gravel  uint16
	Log     uint16
	Water   uint16
}

func DefaultWorldGen() WorldGen {
	return WorldGen{
		Seed:            1,
		MinY:            -64,
		MaxY:            319,
		SeaLevel:        62,
		Terrain:         TerrainNoise,
		BiomeRegionSize: 64,
		ReliefBlocks:    6,
		StumpPermille:   6,
		GravelPermille:  8,
	}
}

func (g WorldGen) normalized() WorldGen {
	d := DefaultWorldGen()
	if g.MaxY <= g.MinY {
		g.MinY, g.MaxY = d.MinY, d.MaxY
	}
	if g.SeaLevel < g.MinY || g.SeaLevel > g.MaxY {
		g.SeaLevel = g.MinY + (g.MaxY-g.MinY)/2
	}
	if g.Terrain == "" {
		g.Terrain = d.Terrain
	}
	if g.BiomeRegionSize <= 0 {
		g.BiomeRegionSize = d.BiomeRegionSize
	}
	if g.ReliefBlocks < 0 {
		g.ReliefBlocks = 0
	}
	return g
}
