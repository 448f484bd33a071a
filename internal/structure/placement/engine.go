// Package placement materializes blueprints into a world volume: variant selection,
// the processor pipeline, block and data writes, liquid repair, the boundary shape
// pass and entity spawning.
package placement

import (
	"fmt"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/processor"
	"voxelstamp.ai/internal/structure/randx"
)

// Result summarizes a placement. Placed is false only when there was nothing to do.
type Result struct {
	Placed          bool      `json:"placed"`
	Variant         int       `json:"variant"`
	BlocksWritten   int       `json:"blocks_written"`
	BlocksDropped   int       `json:"blocks_dropped"`
	EntitiesPlaced  int       `json:"entities_placed"`
	EntitiesSkipped int       `json:"entities_skipped"`
	Touched         *geom.Box `json:"touched,omitempty"`
}

// Engine places blueprints. It keeps no per-placement state; one call owns the target
// volume for its duration.
type Engine struct {
	logger *log.Logger
}

func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{logger: logger}
}

type placedBlock struct {
	pos   geom.BlockPos
	state blockstate.State
}

// Place writes bp into world at anchor. pivot is the reference point handed to the
// processors; the rotation pivot comes from settings. rng seeds container loot and
// defaults to the settings generator for anchor.
func (e *Engine) Place(world level.Accessor, anchor, pivot geom.BlockPos, bp *blueprint.Blueprint, settings Settings, rng randx.Rand, flags level.UpdateFlags) (Result, error) {
	var res Result
	variant, palette := pickPalette(bp, settings, &anchor)
	res.Variant = variant
	var blocks []blueprint.BlockEntry
	if palette != nil {
		blocks = palette.Blocks()
	}
	if len(blocks) == 0 && (settings.IgnoreEntities || len(bp.Entities()) == 0) && bp.IsEmptySize() {
		return res, nil
	}
	if rng == nil {
		rng = settings.RandomFor(&anchor)
	}

	entries, err := ProcessBlocks(world, anchor, pivot, settings, blocks)
	if err != nil {
		return res, err
	}
	res.BlocksDropped = len(blocks) - len(entries)

	var (
		placed      []placedBlock
		withData    []blueprint.BlockEntry
		liquids     = newLiquidRepair(settings.KeepLiquids)
		touched     geom.Box
		haveTouched bool
	)
	for _, entry := range entries {
		if settings.clipped(entry.Pos) {
			res.BlocksDropped++
			continue
		}
		fluid := liquids.snapshot(world, entry.Pos)
		if entry.Data != nil {
			world.ClearBlockData(entry.Pos)
			world.SetBlock(entry.Pos, blockstate.Barrier, level.UpdateInvisible|level.UpdateKnownShape)
		}
		state := entry.State.Transform(settings.Mirror, settings.Rotation)
		if !world.SetBlock(entry.Pos, state, flags) {
			continue
		}
		res.BlocksWritten++
		if haveTouched {
			touched = touched.Encapsulate(entry.Pos)
		} else {
			touched, haveTouched = geom.Box{Min: entry.Pos, Max: entry.Pos}, true
		}
		placed = append(placed, placedBlock{pos: entry.Pos, state: state})
		if entry.Data != nil {
			withData = append(withData, entry)
		}
		liquids.afterWrite(world, entry.Pos, state, fluid)
	}

	for _, entry := range withData {
		data := entry.Data.Clone()
		if world.IsLootable(world.BlockAt(entry.Pos)) {
			data["LootTableSeed"] = rng.Int64()
		}
		if !world.SetBlockData(entry.Pos, data) {
			e.logger.Debug("block data not applied", "pos", entry.Pos, "block", world.BlockAt(entry.Pos))
		}
	}

	liquids.repair(world)

	if haveTouched {
		res.Touched = &touched
		if !settings.KnownShape {
			updateShapeAtEdge(world, flags, touched, placed)
		}
	}

	if !settings.IgnoreEntities {
		n, skipped := e.placeEntities(world, anchor, bp, settings)
		res.EntitiesPlaced, res.EntitiesSkipped = n, skipped
	}

	res.Placed = true
	e.logger.Debug("placed blueprint",
		"anchor", anchor,
		"rotation", settings.Rotation,
		"mirror", settings.Mirror,
		"variant", variant,
		"written", res.BlocksWritten,
		"dropped", res.BlocksDropped,
		"entities", res.EntitiesPlaced,
	)
	return res, nil
}

// ProcessBlocks moves entries to world space and runs the processor pipeline. The
// result excludes dropped entries; states are still untransformed.
func ProcessBlocks(world level.Reader, anchor, pivot geom.BlockPos, settings Settings, entries []blueprint.BlockEntry) ([]blueprint.BlockEntry, error) {
	out := make([]blueprint.BlockEntry, 0, len(entries))
	for _, original := range entries {
		candidate := blueprint.BlockEntry{
			Pos:   geom.TransformPos(original.Pos, settings.Mirror, settings.Rotation, settings.Pivot).Add(anchor),
			State: original.State,
			Data:  original.Data.Clone(),
		}
		next, ok, err := processor.Run(settings.Processors, world, anchor, pivot, original, candidate, settings)
		if err != nil {
			return nil, fmt.Errorf("place %v: %w", original.Pos, err)
		}
		if ok {
			out = append(out, next)
		}
	}
	return out, nil
}

func pickPalette(bp *blueprint.Blueprint, settings Settings, anchor *geom.BlockPos) (int, *blueprint.Palette) {
	switch n := bp.VariantCount(); n {
	case 0:
		return 0, nil
	case 1:
		return 0, bp.Palette(0)
	default:
		i := settings.RandomFor(anchor).IntN(n)
		return i, bp.Palette(i)
	}
}
