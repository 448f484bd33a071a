package blockstate

import (
	"strconv"
	"strings"

	"voxelstamp.ai/internal/structure/geom"
)

var horizontalSides = [...]geom.Direction{geom.North, geom.East, geom.South, geom.West}

// Rotate turns the orientable properties of s by r.
func (s State) Rotate(r geom.Rotation) State {
	if r == geom.RotationNone || !s.HasProps() {
		return s
	}
	return s.remap(r.RotateDir, func(v int) int { return (v + 4*int(r)) & 15 }, false)
}

// Mirror reflects the orientable properties of s. Handedness (stair corners, door hinges)
// flips under any reflection.
func (s State) Mirror(m geom.Mirror) State {
	if m == geom.MirrorNone || !s.HasProps() {
		return s
	}
	return s.remap(m.MirrorDir, func(v int) int { return mirrorRotation16(v, m) }, true)
}

// Transform applies mirror then rotation, the order used for placement.
func (s State) Transform(m geom.Mirror, r geom.Rotation) State {
	return s.Mirror(m).Rotate(r)
}

func (s State) remap(dir func(geom.Direction) geom.Direction, rot16 func(int) int, flipHand bool) State {
	in := s.Props()
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}

	if v, ok := in["facing"]; ok {
		if d, ok := geom.DirectionByName(v); ok {
			out["facing"] = dir(d).String()
		}
	}
	if v, ok := in["axis"]; ok && (v == "x" || v == "z") {
		d := geom.East
		if v == "z" {
			d = geom.South
		}
		out["axis"] = string(dir(d).Axis())
	}
	if v, ok := in["rotation"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < 16 {
			out["rotation"] = strconv.Itoa(rot16(n))
		}
	}
	// Connection properties move with the side they name.
	for _, side := range horizontalSides {
		delete(out, side.String())
	}
	for _, side := range horizontalSides {
		if v, ok := in[side.String()]; ok {
			out[dir(side).String()] = v
		}
	}
	if v, ok := in["shape"]; ok {
		out["shape"] = remapShape(v, dir, flipHand)
	}
	if flipHand {
		if v, ok := in["hinge"]; ok {
			out["hinge"] = swapHand(v)
		}
	}
	return New(s.name, out)
}

func mirrorRotation16(v int, m geom.Mirror) int {
	j := v
	if v > 8 {
		j = v - 16
	}
	switch m {
	case geom.MirrorAcrossZ:
		return (16 - j) % 16
	case geom.MirrorAcrossX:
		return (8 - j + 16) % 16
	}
	return v
}

// remapShape handles stair shapes (straight/inner_left/...) and rail shapes made of
// direction tokens (north_south, ascending_east, south_west, ...).
func remapShape(v string, dir func(geom.Direction) geom.Direction, flipHand bool) string {
	if strings.HasSuffix(v, "_left") || strings.HasSuffix(v, "_right") {
		if flipHand {
			return swapHand(v)
		}
		return v
	}
	parts := strings.Split(v, "_")
	var sides []geom.Direction
	ascending := false
	for _, p := range parts {
		if p == "ascending" {
			ascending = true
			continue
		}
		d, ok := geom.DirectionByName(p)
		if !ok || !d.Horizontal() {
			return v
		}
		sides = append(sides, dir(d))
	}
	switch {
	case ascending && len(sides) == 1:
		return "ascending_" + sides[0].String()
	case !ascending && len(sides) == 2:
		a, b := sides[0], sides[1]
		if a.Axis() == b.Axis() {
			if a.Axis() == 'z' {
				return "north_south"
			}
			return "east_west"
		}
		// Corners are written z-side first: south_east, north_west, ...
		if a.Axis() != 'z' {
			a, b = b, a
		}
		return a.String() + "_" + b.String()
	}
	return v
}

func swapHand(v string) string {
	switch {
	case strings.HasSuffix(v, "left"):
		return strings.TrimSuffix(v, "left") + "right"
	case strings.HasSuffix(v, "right"):
		return strings.TrimSuffix(v, "right") + "left"
	}
	return v
}
