// Package geom holds the integer/float coordinate transforms used when a blueprint is
// stamped into the world: mirror, quarter-turn rotation about a pivot, swapped sizes and
// axis-aligned boxes.
package geom

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

type BlockPos struct {
	X int
	Y int
	Z int
}

func (p BlockPos) Add(o BlockPos) BlockPos { return BlockPos{p.X + o.X, p.Y + o.Y, p.Z + o.Z} }
func (p BlockPos) Sub(o BlockPos) BlockPos { return BlockPos{p.X - o.X, p.Y - o.Y, p.Z - o.Z} }

func (p BlockPos) Offset(d Direction) BlockPos {
	s := d.Step()
	return BlockPos{p.X + s.X, p.Y + s.Y, p.Z + s.Z}
}

func (p BlockPos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

// Vec returns the position of the block's minimum corner.
func (p BlockPos) Vec() Vec3 { return Vec3{float64(p.X), float64(p.Y), float64(p.Z)} }

func (p BlockPos) String() string { return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z) }

func Manhattan(a, b BlockPos) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y) + absInt(a.Z-b.Z)
}

// ParseBlockPos accepts "x,y,z".
func ParseBlockPos(s string) (BlockPos, error) {
	var p BlockPos
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return p, fmt.Errorf("bad position %q: want x,y,z", s)
	}
	var v [3]int
	for i, part := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &v[i]); err != nil {
			return p, fmt.Errorf("bad position %q: %w", s, err)
		}
	}
	return BlockPos{v[0], v[1], v[2]}, nil
}

// Vec3 is an exact (entity) position.
type Vec3 = mgl64.Vec3

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
