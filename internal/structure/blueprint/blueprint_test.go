package blueprint

import (
	"errors"
	"testing"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

type fullCubes map[string]bool

func (f fullCubes) IsFullCube(s blockstate.State) bool { return f[s.Name()] }

var shapes = fullCubes{"minecraft:stone": true, "minecraft:chest": false}

func pos(x, y, z int) geom.BlockPos { return geom.BlockPos{X: x, Y: y, Z: z} }

func TestNew_CommitOrder(t *testing.T) {
	stone := blockstate.Of("stone")
	torch := blockstate.Of("torch")
	chest := blockstate.Of("chest")
	entries := []BlockEntry{
		{Pos: pos(0, 1, 0), State: chest, Data: nbtdoc.Compound{"Items": []any{}}},
		{Pos: pos(1, 0, 0), State: torch},
		{Pos: pos(1, 1, 0), State: stone},
		{Pos: pos(0, 0, 1), State: stone},
		{Pos: pos(0, 0, 0), State: stone},
	}
	bp, err := New(pos(2, 2, 2), "test", [][]BlockEntry{entries}, nil, shapes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := bp.Palette(0).Blocks()
	want := []geom.BlockPos{pos(0, 0, 0), pos(0, 0, 1), pos(1, 1, 0), pos(1, 0, 0), pos(0, 1, 0)}
	for i := range want {
		if got[i].Pos != want[i] {
			t.Fatalf("index %d: got %v want %v (full order %+v)", i, got[i].Pos, want[i], got)
		}
	}
}

func TestNew_VariantsShareCommitOrder(t *testing.T) {
	a := []BlockEntry{
		{Pos: pos(0, 1, 0), State: blockstate.Of("torch")},
		{Pos: pos(0, 0, 0), State: blockstate.Of("stone")},
	}
	// In the second skin both are irregular; order must still follow the first.
	b := []BlockEntry{
		{Pos: pos(0, 1, 0), State: blockstate.Of("lantern")},
		{Pos: pos(0, 0, 0), State: blockstate.Of("glass")},
	}
	bp, err := New(pos(1, 2, 1), "", [][]BlockEntry{a, b}, nil, shapes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 2; i++ {
		pa, pb := bp.Palette(0).Blocks()[i].Pos, bp.Palette(1).Blocks()[i].Pos
		if pa != pb {
			t.Fatalf("entry %d misaligned: %v vs %v", i, pa, pb)
		}
	}
	if bp.Palette(1).Blocks()[0].State != blockstate.Of("glass") {
		t.Fatalf("second variant not permuted with the first: %+v", bp.Palette(1).Blocks())
	}
}

func TestNew_Rejects(t *testing.T) {
	stone := blockstate.Of("stone")
	cases := []struct {
		name     string
		size     geom.BlockPos
		variants [][]BlockEntry
		want     error
	}{
		{"no palettes", pos(1, 1, 1), nil, ErrNoPalettes},
		{"out of bounds", pos(1, 1, 1), [][]BlockEntry{{{Pos: pos(1, 0, 0), State: stone}}}, ErrOutOfBounds},
		{"duplicate", pos(2, 1, 1), [][]BlockEntry{{{Pos: pos(0, 0, 0), State: stone}, {Pos: pos(0, 0, 0), State: stone}}}, ErrDuplicatePos},
		{"cardinality", pos(2, 1, 1), [][]BlockEntry{{{Pos: pos(0, 0, 0), State: stone}}, {}}, ErrVariantMismatch},
		{"positions", pos(2, 1, 1), [][]BlockEntry{{{Pos: pos(0, 0, 0), State: stone}}, {{Pos: pos(1, 0, 0), State: stone}}}, ErrVariantMismatch},
		{"negative", pos(-1, 1, 1), [][]BlockEntry{{}}, ErrNegativeSize},
	}
	for _, c := range cases {
		if _, err := New(c.size, "", c.variants, nil, shapes); !errors.Is(err, c.want) {
			t.Fatalf("%s: want %v, got %v", c.name, c.want, err)
		}
	}
}

func TestNew_DoesNotAliasInput(t *testing.T) {
	data := nbtdoc.Compound{"Lock": "key"}
	entries := []BlockEntry{{Pos: pos(0, 0, 0), State: blockstate.Of("chest"), Data: data}}
	bp, err := New(pos(1, 1, 1), "", [][]BlockEntry{entries}, nil, shapes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data["Lock"] = "changed"
	if v, _ := bp.Palette(0).Blocks()[0].Data.Str("Lock"); v != "key" {
		t.Fatalf("blueprint data aliased caller map: %q", v)
	}
}

func TestPalette_ByType(t *testing.T) {
	entries := []BlockEntry{
		{Pos: pos(0, 0, 0), State: blockstate.MustParse("minecraft:jigsaw[orientation=north_up]")},
		{Pos: pos(1, 0, 0), State: blockstate.Of("stone")},
		{Pos: pos(2, 0, 0), State: blockstate.MustParse("minecraft:jigsaw[orientation=up_north]")},
	}
	bp, err := New(pos(3, 1, 1), "", [][]BlockEntry{entries}, nil, shapes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := bp.Palette(0).ByType("jigsaw")
	if len(got) != 2 {
		t.Fatalf("ByType(jigsaw)=%d entries", len(got))
	}
	if len(bp.Palette(0).ByType("minecraft:dirt")) != 0 {
		t.Fatalf("unexpected dirt entries")
	}
}

func TestEmptyBlueprint(t *testing.T) {
	bp, err := New(geom.BlockPos{}, "", [][]BlockEntry{{}}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !bp.IsEmptySize() || bp.BlockCount() != 0 {
		t.Fatalf("expected empty blueprint")
	}
}
