package world

import (
	"strings"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
)

// UpdateShape recomputes the side of s facing dir. Fences, walls and panes connect to
// their own family and to full cubes; everything else keeps its state.
func (w *World) UpdateShape(p geom.BlockPos, s blockstate.State, dir geom.Direction, np geom.BlockPos, neighbor blockstate.State) blockstate.State {
	if !dir.Horizontal() {
		return s
	}
	group := w.blocks.ConnectGroup(s)
	if group == "" {
		return s
	}
	connect := w.connects(group, neighbor)
	var value string
	switch group {
	case "wall":
		value = "none"
		if connect {
			value = "low"
			if w.blocks.ConnectGroup(w.BlockAt(p.Offset(geom.Up))) != "" || w.blocks.IsFullCube(w.BlockAt(p.Offset(geom.Up))) {
				value = "tall"
			}
		}
	default:
		value = "false"
		if connect {
			value = "true"
		}
	}
	if cur, _ := s.Get(dir.String()); cur == value {
		return s
	}
	w.stats.ShapeUpdates++
	return s.With(dir.String(), value)
}

func (w *World) connects(group string, neighbor blockstate.State) bool {
	if w.blocks.IsFullCube(neighbor) {
		return true
	}
	other := w.blocks.ConnectGroup(neighbor)
	switch group {
	case "fence":
		return other == "fence" || strings.HasSuffix(neighbor.Name(), "_fence_gate")
	case "wall":
		return other == "wall" || other == "pane"
	case "pane":
		return other == "pane" || other == "wall"
	}
	return false
}
