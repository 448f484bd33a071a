package geom

import "testing"

var (
	allMirrors   = []Mirror{MirrorNone, MirrorAcrossX, MirrorAcrossZ}
	allRotations = []Rotation{RotationNone, RotationCW90, RotationCW180, RotationCCW90}
)

func TestTransformPos_ReferenceFormulas(t *testing.T) {
	pivot := BlockPos{2, 0, 5}
	p := BlockPos{3, 7, -1}
	cases := []struct {
		m    Mirror
		r    Rotation
		want BlockPos
	}{
		{MirrorNone, RotationNone, BlockPos{3, 7, -1}},
		{MirrorAcrossX, RotationNone, BlockPos{3, 7, 1}},
		{MirrorAcrossZ, RotationNone, BlockPos{-3, 7, -1}},
		{MirrorNone, RotationCCW90, BlockPos{2 - 5 + -1, 7, 2 + 5 - 3}},
		{MirrorNone, RotationCW90, BlockPos{2 + 5 - -1, 7, 5 - 2 + 3}},
		{MirrorNone, RotationCW180, BlockPos{4 - 3, 7, 10 - -1}},
		{MirrorAcrossX, RotationCW90, BlockPos{2 + 5 - 1, 7, 5 - 2 + 3}},
		{MirrorAcrossZ, RotationCW180, BlockPos{4 + 3, 7, 10 + 1}},
	}
	for _, c := range cases {
		if got := TransformPos(p, c.m, c.r, pivot); got != c.want {
			t.Fatalf("TransformPos(%v,%v,%v)=%v want %v", p, c.m, c.r, got, c.want)
		}
	}
}

func TestTransformPos_InverseRoundTrip(t *testing.T) {
	pivots := []BlockPos{{0, 0, 0}, {3, 9, -4}, {-7, 0, 11}}
	for _, pv := range pivots {
		for _, m := range allMirrors {
			for _, r := range allRotations {
				for x := -3; x <= 3; x++ {
					for z := -3; z <= 3; z++ {
						p := BlockPos{x, x + z, z}
						w := TransformPos(p, m, r, pv)
						if back := InverseTransformPos(w, m, r, pv); back != p {
							t.Fatalf("mirror=%v rot=%v pivot=%v: %v -> %v -> %v", m, r, pv, p, w, back)
						}
					}
				}
			}
		}
	}
}

func TestTransformPos_RotationUndoneByInverseRotation(t *testing.T) {
	pv := BlockPos{5, 0, -2}
	for _, r := range allRotations {
		p := BlockPos{1, 2, 3}
		q := TransformPos(TransformPos(p, MirrorNone, r, pv), MirrorNone, r.Inverse(), pv)
		if q != p {
			t.Fatalf("rot=%v: got %v want %v", r, q, p)
		}
	}
}

func TestTransformPos_IdentityAndPivotFixedPoint(t *testing.T) {
	p := BlockPos{4, 5, 6}
	if got := TransformPos(p, MirrorNone, RotationNone, BlockPos{9, 9, 9}); got != p {
		t.Fatalf("identity: got %v", got)
	}
	pv := BlockPos{2, 0, 3}
	for _, r := range allRotations {
		if got := TransformPos(BlockPos{2, 1, 3}, MirrorNone, r, pv); got != (BlockPos{2, 1, 3}) {
			t.Fatalf("pivot must be fixed under %v, got %v", r, got)
		}
	}
}

func TestTransformPos_Bijective(t *testing.T) {
	for _, m := range allMirrors {
		for _, r := range allRotations {
			seen := map[BlockPos]BlockPos{}
			for x := 0; x < 6; x++ {
				for z := 0; z < 6; z++ {
					p := BlockPos{x, 0, z}
					w := TransformPos(p, m, r, BlockPos{1, 0, 2})
					if prev, dup := seen[w]; dup {
						t.Fatalf("mirror=%v rot=%v: %v and %v both map to %v", m, r, prev, p, w)
					}
					seen[w] = p
				}
			}
		}
	}
}

func TestTransformVec_CellCentresFollowBlocks(t *testing.T) {
	pv := BlockPos{2, 0, -3}
	for _, m := range allMirrors {
		for _, r := range allRotations {
			for x := -2; x <= 2; x++ {
				for z := -2; z <= 2; z++ {
					cell := BlockPos{x, 1, z}
					centre := cell.Vec().Add(Vec3{0.5, 0.25, 0.5})
					got := TransformVec(centre, m, r, pv)
					want := TransformPos(cell, m, r, pv).Vec().Add(Vec3{0.5, 0.25, 0.5})
					if !got.ApproxEqual(want) {
						t.Fatalf("mirror=%v rot=%v cell=%v: got %v want %v", m, r, cell, got, want)
					}
				}
			}
		}
	}
}

func TestTransformVec_InverseRoundTrip(t *testing.T) {
	pv := BlockPos{3, 0, -2}
	v := Vec3{1.25, 4, -0.75}
	for _, m := range allMirrors {
		for _, r := range allRotations {
			w := TransformVec(v, m, r, pv)
			back := InverseTransformVec(w, m, r, pv)
			if !back.ApproxEqual(v) {
				t.Fatalf("mirror=%v rot=%v: %v -> %v -> %v", m, r, v, w, back)
			}
		}
	}
}

func TestRotatedSize(t *testing.T) {
	size := BlockPos{3, 4, 7}
	if got := RotatedSize(size, RotationCW90); got != (BlockPos{7, 4, 3}) {
		t.Fatalf("cw90: %v", got)
	}
	if got := RotatedSize(size, RotationCW180); got != size {
		t.Fatalf("cw180: %v", got)
	}
	if got := RotatedSize(RotatedSize(size, RotationCW90), RotationCCW90); got != size {
		t.Fatalf("cw90 then ccw90: %v", got)
	}
	if got := RotatedSize(RotatedSize(size, RotationCCW90), RotationCW90); got != size {
		t.Fatalf("ccw90 then cw90: %v", got)
	}
}

func TestBoundingBox(t *testing.T) {
	box := BoundingBox(BlockPos{10, 64, 10}, RotationCW90, BlockPos{}, MirrorNone, BlockPos{3, 2, 5})
	want := Box{Min: BlockPos{6, 64, 10}, Max: BlockPos{10, 65, 12}}
	if box != want {
		t.Fatalf("box=%+v want %+v", box, want)
	}
	if box.Size() != RotatedSize(BlockPos{3, 2, 5}, RotationCW90) {
		t.Fatalf("box size %v does not match rotated size", box.Size())
	}

	anchor := BlockPos{10, 64, 10}
	for _, size := range []BlockPos{{}, {0, 4, 4}, {3, 3, -1}} {
		empty := BoundingBox(anchor, RotationNone, BlockPos{}, MirrorNone, size)
		if empty != (Box{Min: anchor, Max: anchor}) {
			t.Fatalf("size %v: box=%+v want degenerate box at anchor", size, empty)
		}
	}
}

func TestParseRotation(t *testing.T) {
	cases := []struct {
		in   string
		want Rotation
	}{
		{"", RotationNone},
		{"cw_90", RotationCW90},
		{"CCW_90", RotationCCW90},
		{"180", RotationCW180},
		{"270", RotationCCW90},
		{"-1", RotationCCW90},
		{"2", RotationCW180},
	}
	for _, c := range cases {
		got, err := ParseRotation(c.in)
		if err != nil {
			t.Fatalf("ParseRotation(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseRotation(%q)=%v want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseRotation("45"); err == nil {
		t.Fatalf("expected error for 45 degrees")
	}
}

func TestRotateDir_MatchesPositionTransform(t *testing.T) {
	for _, r := range allRotations {
		for _, d := range []Direction{North, East, South, West} {
			step := TransformPos(d.Step(), MirrorNone, r, BlockPos{})
			if got := r.RotateDir(d).Step(); got != step {
				t.Fatalf("rot=%v dir=%v: step %v want %v", r, d, got, step)
			}
		}
	}
	for _, m := range allMirrors {
		for _, d := range []Direction{North, East, South, West} {
			step := TransformPos(d.Step(), m, RotationNone, BlockPos{})
			if got := m.MirrorDir(d).Step(); got != step {
				t.Fatalf("mirror=%v dir=%v: step %v want %v", m, d, got, step)
			}
		}
	}
}
