package processor

var blackstoneTable = map[string]string{
	"minecraft:cobblestone":              "minecraft:blackstone",
	"minecraft:mossy_cobblestone":        "minecraft:blackstone",
	"minecraft:stone":                    "minecraft:polished_blackstone",
	"minecraft:stone_bricks":             "minecraft:polished_blackstone_bricks",
	"minecraft:mossy_stone_bricks":       "minecraft:polished_blackstone_bricks",
	"minecraft:cobblestone_stairs":       "minecraft:blackstone_stairs",
	"minecraft:mossy_cobblestone_stairs": "minecraft:blackstone_stairs",
	"minecraft:stone_stairs":             "minecraft:polished_blackstone_stairs",
	"minecraft:stone_brick_stairs":       "minecraft:polished_blackstone_brick_stairs",
	"minecraft:mossy_stone_brick_stairs": "minecraft:polished_blackstone_brick_stairs",
	"minecraft:cobblestone_slab":         "minecraft:blackstone_slab",
	"minecraft:mossy_cobblestone_slab":   "minecraft:blackstone_slab",
	"minecraft:smooth_stone_slab":        "minecraft:polished_blackstone_slab",
	"minecraft:stone_slab":               "minecraft:polished_blackstone_slab",
	"minecraft:stone_brick_slab":         "minecraft:polished_blackstone_brick_slab",
	"minecraft:mossy_stone_brick_slab":   "minecraft:polished_blackstone_brick_slab",
	"minecraft:stone_brick_wall":         "minecraft:polished_blackstone_brick_wall",
	"minecraft:mossy_stone_brick_wall":   "minecraft:polished_blackstone_brick_wall",
	"minecraft:cobblestone_wall":         "minecraft:blackstone_wall",
	"minecraft:mossy_cobblestone_wall":   "minecraft:blackstone_wall",
	"minecraft:chiseled_stone_bricks":    "minecraft:chiseled_polished_blackstone",
	"minecraft:cracked_stone_bricks":     "minecraft:cracked_polished_blackstone_bricks",
	"minecraft:iron_bars":                "minecraft:chain",
}
