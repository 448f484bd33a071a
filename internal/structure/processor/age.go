package processor

import (
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/randx"
)

const (
	TagStairs = "minecraft:stairs"
	TagSlabs  = "minecraft:slabs"
	TagWalls  = "minecraft:walls"
)

var fullStone = map[string]bool{
	"minecraft:stone":                 true,
	"minecraft:stone_bricks":          true,
	"minecraft:chiseled_stone_bricks": true,
}

// age weathers stone work. Full stone blocks, stairs, slabs and walls each get a 50%
// chance to change; obsidian has its own 15% chance. Everything else is untouched.
// Mossiness only picks mossy over cracked for full blocks, since stairs, slabs and walls
// have no cracked variant.
func (p Processor) age(world level.Reader, e blueprint.BlockEntry, settings Env) blueprint.BlockEntry {
	pos := e.Pos
	rng := settings.RandomFor(&pos)
	s := e.State
	var out blockstate.State
	switch {
	case fullStone[s.Name()]:
		if rng.Float32() < 0.5 {
			if rng.Float32() < p.Mossiness {
				out = blockstate.Of("minecraft:mossy_stone_bricks")
			} else {
				out = blockstate.Of("minecraft:cracked_stone_bricks")
			}
		}
	case world.HasTag(s, TagStairs):
		out = mossy(rng, "minecraft:mossy_stone_brick_stairs", s)
	case world.HasTag(s, TagSlabs):
		out = mossy(rng, "minecraft:mossy_stone_brick_slab", s)
	case world.HasTag(s, TagWalls):
		out = mossy(rng, "minecraft:mossy_stone_brick_wall", s)
	case s.Name() == "minecraft:obsidian":
		if rng.Float32() < 0.15 {
			out = blockstate.Of("minecraft:crying_obsidian")
		}
	}
	if out.IsZero() {
		return e
	}
	e.State = out
	return e
}

func mossy(rng randx.Rand, to string, from blockstate.State) blockstate.State {
	if rng.Float32() >= 0.5 {
		return blockstate.State{}
	}
	return blockstate.Of(to).CopyProps(from, "facing", "half", "shape", "type", "waterlogged")
}
