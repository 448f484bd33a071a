package geom

import (
	"fmt"
	"strings"
)

type Mirror uint8

const (
	MirrorNone Mirror = iota
	// MirrorAcrossX flips the Z axis (north <-> south).
	MirrorAcrossX
	// MirrorAcrossZ flips the X axis (east <-> west).
	MirrorAcrossZ
)

var mirrorNames = [...]string{"none", "across_x", "across_z"}

func (m Mirror) String() string {
	if int(m) < len(mirrorNames) {
		return mirrorNames[m]
	}
	return fmt.Sprintf("mirror(%d)", m)
}

func ParseMirror(s string) (Mirror, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return MirrorNone, nil
	case "across_x", "left_right", "x":
		return MirrorAcrossX, nil
	case "across_z", "front_back", "z":
		return MirrorAcrossZ, nil
	}
	return MirrorNone, fmt.Errorf("unknown mirror %q", s)
}

// MirrorDir reflects a direction. Vertical directions are unchanged.
func (m Mirror) MirrorDir(d Direction) Direction {
	switch m {
	case MirrorAcrossX:
		if d == North || d == South {
			return d.Opposite()
		}
	case MirrorAcrossZ:
		if d == East || d == West {
			return d.Opposite()
		}
	}
	return d
}

// Rotation is a clockwise quarter-turn count around the Y axis.
type Rotation uint8

const (
	RotationNone Rotation = iota
	RotationCW90
	RotationCW180
	RotationCCW90
)

var rotationNames = [...]string{"none", "cw_90", "cw_180", "ccw_90"}

func (r Rotation) String() string {
	if int(r) < len(rotationNames) {
		return rotationNames[r]
	}
	return fmt.Sprintf("rotation(%d)", r)
}

// NormalizeRotation converts a client-provided rotation value into a stable
// quarter-turn count in [0,3].
//
// It accepts either quarter-turns (0..3) or degrees (multiples of 90).
func NormalizeRotation(r int) Rotation {
	// Treat large multiples of 90 as degrees.
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	r %= 4
	if r < 0 {
		r += 4
	}
	return Rotation(r)
}

// ParseRotation accepts rotation names as well as quarter-turns or degrees.
func ParseRotation(s string) (Rotation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none":
		return RotationNone, nil
	case "cw_90", "clockwise_90":
		return RotationCW90, nil
	case "cw_180", "clockwise_180":
		return RotationCW180, nil
	case "ccw_90", "counterclockwise_90":
		return RotationCCW90, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return RotationNone, fmt.Errorf("unknown rotation %q", s)
	}
	if n%90 != 0 && (n > 3 || n < -3) {
		return RotationNone, fmt.Errorf("rotation %d is not a quarter turn", n)
	}
	return NormalizeRotation(n), nil
}

func (r Rotation) Compose(o Rotation) Rotation { return Rotation((uint8(r) + uint8(o)) & 3) }
func (r Rotation) Inverse() Rotation           { return Rotation((4 - uint8(r)) & 3) }

// RotateDir turns a horizontal direction r quarter-turns clockwise.
func (r Rotation) RotateDir(d Direction) Direction {
	if d == Up || d == Down {
		return d
	}
	for i := Rotation(0); i < r&3; i++ {
		d = d.Clockwise()
	}
	return d
}

// TransformPos maps a local block position into pivot space. Mirroring ignores the pivot.
func TransformPos(p BlockPos, m Mirror, r Rotation, pivot BlockPos) BlockPos {
	x, y, z := p.X, p.Y, p.Z
	mirrored := true
	switch m {
	case MirrorAcrossX:
		z = -z
	case MirrorAcrossZ:
		x = -x
	default:
		mirrored = false
	}
	px, pz := pivot.X, pivot.Z
	switch r {
	case RotationCCW90:
		return BlockPos{px - pz + z, y, px + pz - x}
	case RotationCW90:
		return BlockPos{px + pz - z, y, pz - px + x}
	case RotationCW180:
		return BlockPos{px + px - x, y, pz + pz - z}
	}
	if mirrored {
		return BlockPos{x, y, z}
	}
	return p
}

// InverseTransformPos undoes TransformPos for the same mirror, rotation and pivot.
func InverseTransformPos(p BlockPos, m Mirror, r Rotation, pivot BlockPos) BlockPos {
	q := TransformPos(p, MirrorNone, r.Inverse(), pivot)
	return TransformPos(q, m, RotationNone, BlockPos{})
}

// TransformVec is the exact-position variant. Mirroring uses the unit-cell convention
// (1-x, 1-z) so an entity centred in a block stays centred in the mirrored block.
func TransformVec(v Vec3, m Mirror, r Rotation, pivot BlockPos) Vec3 {
	x, y, z := v[0], v[1], v[2]
	switch m {
	case MirrorAcrossX:
		z = 1 - z
	case MirrorAcrossZ:
		x = 1 - x
	}
	px, pz := float64(pivot.X), float64(pivot.Z)
	switch r {
	case RotationCCW90:
		return Vec3{px - pz + z, y, px + pz + 1 - x}
	case RotationCW90:
		return Vec3{px + pz + 1 - z, y, pz - px + x}
	case RotationCW180:
		return Vec3{px + px + 1 - x, y, pz + pz + 1 - z}
	}
	return Vec3{x, y, z}
}

// InverseTransformVec undoes TransformVec for the same mirror, rotation and pivot.
func InverseTransformVec(v Vec3, m Mirror, r Rotation, pivot BlockPos) Vec3 {
	q := TransformVec(v, MirrorNone, r.Inverse(), pivot)
	return TransformVec(q, m, RotationNone, BlockPos{})
}

// RotatedSize swaps the X and Z extents for quarter turns.
func RotatedSize(size BlockPos, r Rotation) BlockPos {
	switch r {
	case RotationCW90, RotationCCW90:
		return BlockPos{size.Z, size.Y, size.X}
	}
	return size
}

// BoundingBox is the world-space box covered by a blueprint of the given size.
// An empty size yields the single-block box at the anchor.
func BoundingBox(anchor BlockPos, r Rotation, pivot BlockPos, m Mirror, size BlockPos) Box {
	if size.X < 1 || size.Y < 1 || size.Z < 1 {
		return Box{Min: anchor, Max: anchor}
	}
	far := BlockPos{size.X - 1, size.Y - 1, size.Z - 1}
	a := TransformPos(BlockPos{}, m, r, pivot)
	b := TransformPos(far, m, r, pivot)
	return BoxFromCorners(a, b).Move(anchor)
}
