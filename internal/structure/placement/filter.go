package placement

import (
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
)

// FilterBlocks lists the entries of one block type (all entries when blockType is
// empty) from the variant settings would pick at anchor. With transformed set the
// entries are moved to world space and their states follow the mirror and rotation.
// Without it both positions and states stay in the blueprint's local frame, unrotated.
// The clip box applies to the returned positions. It never writes and never fails.
func FilterBlocks(anchor geom.BlockPos, settings Settings, bp *blueprint.Blueprint, blockType string, transformed bool) []blueprint.BlockEntry {
	if bp == nil {
		return nil
	}
	_, palette := pickPalette(bp, settings, &anchor)
	if palette == nil {
		return nil
	}
	src := palette.Blocks()
	if blockType != "" {
		src = palette.ByType(blockType)
	}
	var out []blueprint.BlockEntry
	for _, e := range src {
		e = e.Clone()
		if transformed {
			e.Pos = geom.TransformPos(e.Pos, settings.Mirror, settings.Rotation, settings.Pivot).Add(anchor)
			e.State = e.State.Transform(settings.Mirror, settings.Rotation)
		}
		if settings.clipped(e.Pos) {
			continue
		}
		out = append(out, e)
	}
	return out
}
