package blockstate

import (
	"errors"
	"testing"

	"voxelstamp.ai/internal/structure/geom"
)

func TestParse_RoundTripAndCanonicalOrder(t *testing.T) {
	s, err := Parse("minecraft:oak_stairs[half=top,facing=north,shape=straight]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := s.String(); got != "minecraft:oak_stairs[facing=north,half=top,shape=straight]" {
		t.Fatalf("String()=%q", got)
	}
	again, err := Parse(s.String())
	if err != nil {
		t.Fatalf("Parse(String()): %v", err)
	}
	if again != s {
		t.Fatalf("round trip changed state: %v vs %v", again, s)
	}
	if v, ok := s.Get("half"); !ok || v != "top" {
		t.Fatalf("Get(half)=%q,%v", v, ok)
	}
}

func TestParse_DefaultNamespace(t *testing.T) {
	s, err := Parse("stone")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s != Of("minecraft:stone") || !s.Is("stone") {
		t.Fatalf("got %v", s)
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"Minecraft:Stone",
		"minecraft:stone[",
		"minecraft:stone[facing]",
		"minecraft:stone[facing=north,facing=south]",
		"minecraft:stone[facing=no rth]",
		":stone",
	}
	for _, in := range bad {
		if _, err := Parse(in); !errors.Is(err, ErrSyntax) {
			t.Fatalf("Parse(%q): want ErrSyntax, got %v", in, err)
		}
	}
}

func TestWith_KeepsStatesComparable(t *testing.T) {
	a := Of("minecraft:oak_fence").With("north", "true").With("east", "false")
	b := New("minecraft:oak_fence", map[string]string{"east": "false", "north": "true"})
	if a != b {
		t.Fatalf("%v != %v", a, b)
	}
}

func TestRotate_Facing(t *testing.T) {
	s := MustParse("minecraft:furnace[facing=north,lit=false]")
	cases := map[geom.Rotation]string{
		geom.RotationNone:  "north",
		geom.RotationCW90:  "east",
		geom.RotationCW180: "south",
		geom.RotationCCW90: "west",
	}
	for r, want := range cases {
		got, _ := s.Rotate(r).Get("facing")
		if got != want {
			t.Fatalf("rotate %v: facing=%s want %s", r, got, want)
		}
	}
	up := MustParse("minecraft:piston[facing=up]")
	if up.Rotate(geom.RotationCW90) != up {
		t.Fatalf("vertical facing must not rotate")
	}
}

func TestRotate_AxisConnectionsAndRotation16(t *testing.T) {
	log := MustParse("minecraft:oak_log[axis=x]")
	if got, _ := log.Rotate(geom.RotationCW90).Get("axis"); got != "z" {
		t.Fatalf("axis=%s", got)
	}
	fence := MustParse("minecraft:oak_fence[east=false,north=true,south=false,west=false]")
	rot := fence.Rotate(geom.RotationCW90)
	if v, _ := rot.Get("east"); v != "true" {
		t.Fatalf("north connection should move east: %v", rot)
	}
	if v, _ := rot.Get("north"); v != "false" {
		t.Fatalf("north should now be false: %v", rot)
	}
	sign := MustParse("minecraft:oak_sign[rotation=15]")
	if v, _ := sign.Rotate(geom.RotationCW90).Get("rotation"); v != "3" {
		t.Fatalf("rotation=%s", v)
	}
}

func TestMirror_StairsFlipHandedness(t *testing.T) {
	s := MustParse("minecraft:stone_stairs[facing=north,half=bottom,shape=inner_left]")
	m := s.Mirror(geom.MirrorAcrossX)
	if v, _ := m.Get("facing"); v != "south" {
		t.Fatalf("facing=%s", v)
	}
	if v, _ := m.Get("shape"); v != "inner_right" {
		t.Fatalf("shape=%s", v)
	}
	if m.Mirror(geom.MirrorAcrossX) != s {
		t.Fatalf("mirroring twice must restore the state")
	}
}

func TestRotate_RailShapes(t *testing.T) {
	cases := []struct {
		in   string
		r    geom.Rotation
		want string
	}{
		{"north_south", geom.RotationCW90, "east_west"},
		{"south_east", geom.RotationCW90, "south_west"},
		{"ascending_north", geom.RotationCW180, "ascending_south"},
		{"north_east", geom.RotationCCW90, "north_west"},
	}
	for _, c := range cases {
		s := Of("minecraft:rail").With("shape", c.in)
		if got, _ := s.Rotate(c.r).Get("shape"); got != c.want {
			t.Fatalf("%s rotated %v = %s want %s", c.in, c.r, got, c.want)
		}
	}
}

func TestTransform_FullTurnIsIdentity(t *testing.T) {
	s := MustParse("minecraft:oak_stairs[facing=east,half=top,shape=outer_right]")
	got := s
	for i := 0; i < 4; i++ {
		got = got.Rotate(geom.RotationCW90)
	}
	if got != s {
		t.Fatalf("four quarter turns: %v", got)
	}
}
