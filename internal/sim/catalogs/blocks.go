package catalogs

import (
	"strings"

	"voxelstamp.ai/internal/structure/blockstate"
)

// Def returns the definition of a block id. Ids missing from blocks.json get one
// inferred from the naming conventions of the vanilla registry.
func (c *BlockCatalog) Def(id string) BlockDef {
	id = blockstate.Of(id).Name()
	if d, ok := c.Defs[id]; ok {
		return d
	}
	return inferDef(id)
}

func (c *BlockCatalog) IsFullCube(s blockstate.State) bool {
	return c.Def(s.Name()).Shape == ShapeFull
}

func (c *BlockCatalog) HasTag(s blockstate.State, tag string) bool {
	tag = qualifyTag(tag)
	for _, t := range c.Def(s.Name()).Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (c *BlockCatalog) CanHoldData(s blockstate.State) bool { return c.Def(s.Name()).Data }
func (c *BlockCatalog) IsLootable(s blockstate.State) bool  { return c.Def(s.Name()).Lootable }

func (c *BlockCatalog) IsWaterloggable(s blockstate.State) bool {
	return c.Def(s.Name()).Waterloggable || s.Has("waterlogged")
}

// ConnectGroup is the connection family of fences, walls and panes, or "".
func (c *BlockCatalog) ConnectGroup(s blockstate.State) string {
	return c.Def(s.Name()).Connects
}

// FluidOf is the fluid a block is made of, "" for solid blocks.
func (c *BlockCatalog) FluidOf(s blockstate.State) string {
	return c.Def(s.Name()).Fluid
}

// IsReplaceable reports cells that terrain and heightmaps treat as empty.
func (c *BlockCatalog) IsReplaceable(s blockstate.State) bool {
	d := c.Def(s.Name())
	return d.Shape == ShapeNone && d.Fluid == ""
}

var containers = map[string]bool{
	"chest": true, "trapped_chest": true, "barrel": true, "hopper": true,
	"dispenser": true, "dropper": true, "shulker_box": true,
}

var dataOnly = []string{
	"furnace", "blast_furnace", "smoker", "sign", "banner", "spawner",
	"beacon", "lectern", "jukebox", "command_block", "structure_block", "jigsaw",
	"bed", "skull", "head", "campfire", "bell", "brewing_stand", "enchanting_table",
}

func inferDef(id string) BlockDef {
	d := BlockDef{ID: id, Shape: ShapeFull}
	name := id
	if i := strings.IndexByte(id, ':'); i >= 0 {
		name = id[i+1:]
	}
	has := func(suffix string) bool { return name == suffix || strings.HasSuffix(name, "_"+suffix) }

	switch {
	case name == "air" || name == "cave_air" || name == "void_air" || name == "structure_void":
		d.Shape = ShapeNone
	case name == "water" || name == "lava":
		d.Shape = ShapeNone
		d.Fluid = name
	case has("stairs"):
		d.Shape, d.Waterloggable = ShapePartial, true
		d.Tags = []string{"minecraft:stairs"}
	case has("slab"):
		d.Shape, d.Waterloggable = ShapePartial, true
		d.Tags = []string{"minecraft:slabs"}
	case has("wall"):
		d.Shape, d.Waterloggable, d.Connects = ShapePartial, true, "wall"
		d.Tags = []string{"minecraft:walls"}
	case has("fence"):
		d.Shape, d.Waterloggable, d.Connects = ShapePartial, true, "fence"
		d.Tags = []string{"minecraft:fences"}
	case has("pane") || name == "iron_bars":
		d.Shape, d.Waterloggable, d.Connects = ShapePartial, true, "pane"
	case has("fence_gate") || has("door") || has("trapdoor") || has("button") || has("pressure_plate"):
		d.Shape = ShapePartial
	case has("torch") || has("rail") || has("carpet") || has("flower") || name == "grass" || name == "short_grass" || name == "fern":
		d.Shape = ShapeNone
	case has("lantern") || name == "chain" || has("ladder"):
		d.Shape, d.Waterloggable = ShapePartial, true
	}
	for c := range containers {
		if has(c) {
			d.Data, d.Lootable = true, true
			if c == "chest" || c == "trapped_chest" {
				d.Shape, d.Waterloggable = ShapePartial, true
			}
		}
	}
	for _, c := range dataOnly {
		if has(c) {
			d.Data = true
			if c == "sign" || c == "banner" || c == "bed" || c == "skull" || c == "head" || c == "campfire" {
				d.Shape = ShapePartial
			}
		}
	}
	return d
}
