package placement

import (
	"math"

	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

func (e *Engine) placeEntities(world level.Accessor, anchor geom.BlockPos, bp *blueprint.Blueprint, settings Settings) (placed, skipped int) {
	for _, rec := range bp.Entities() {
		blockPos := geom.TransformPos(rec.BlockPos, settings.Mirror, settings.Rotation, settings.Pivot).Add(anchor)
		if settings.clipped(blockPos) {
			continue
		}
		pos := geom.TransformVec(rec.Pos, settings.Mirror, settings.Rotation, settings.Pivot).Add(anchor.Vec())

		data := rec.Data.Clone()
		if data == nil {
			data = nbtdoc.Compound{}
		}
		delete(data, "UUID")
		data.SetVec("Pos", pos)
		transformFacing(data, settings.Mirror, settings.Rotation, blockPos)

		ent, err := world.CreateEntity(data)
		if err != nil {
			skipped++
			e.logger.Warn("skipping entity", "id", data["id"], "pos", blockPos, "err", err)
			continue
		}
		if settings.FinalizeEntities && ent.IsMob() {
			world.FinalizeSpawn(ent)
		}
		if err := world.AddEntity(ent); err != nil {
			skipped++
			e.logger.Warn("entity rejected by world", "id", ent.Type(), "pos", blockPos, "err", err)
			continue
		}
		placed++
	}
	return placed, skipped
}

// transformFacing rewrites yaw and, for wall-mounted entities, the facing and tile
// anchor to follow the structure's mirror and rotation.
func transformFacing(data nbtdoc.Compound, m geom.Mirror, r geom.Rotation, blockPos geom.BlockPos) {
	if rot, ok := data.Floats("Rotation"); ok && len(rot) >= 1 {
		pitch := float32(0)
		if len(rot) > 1 {
			pitch = float32(rot[1])
		}
		yaw := transformYaw(float32(rot[0]), m, r)
		data["Rotation"] = []float32{yaw, pitch}
	}
	if f, ok := data.Int("Facing"); ok && f >= 0 && int(f) < len(geom.Directions) {
		d := geom.Directions[f]
		d = r.RotateDir(m.MirrorDir(d))
		data["Facing"] = int8(d)
	}
	if data.Has("TileX") {
		data["TileX"] = int32(blockPos.X)
		data["TileY"] = int32(blockPos.Y)
		data["TileZ"] = int32(blockPos.Z)
	}
}

// transformYaw uses the entity convention: yaw 0 faces south, 90 faces west.
func transformYaw(yaw float32, m geom.Mirror, r geom.Rotation) float32 {
	y := wrapDegrees(yaw)
	switch m {
	case geom.MirrorAcrossX:
		y = 180 - y
	case geom.MirrorAcrossZ:
		y = -y
	}
	y += 90 * float32(r)
	return wrapDegrees(y)
}

func wrapDegrees(v float32) float32 {
	f := float32(math.Mod(float64(v), 360))
	if f >= 180 {
		f -= 360
	}
	if f < -180 {
		f += 360
	}
	return f
}
