package nbtdoc

import (
	"testing"

	"voxelstamp.ai/internal/structure/geom"
)

func TestClone_IsDeep(t *testing.T) {
	orig := Compound{
		"Items": []any{map[string]any{"id": "minecraft:apple", "Count": int8(3)}},
		"Pos":   []float64{1, 2, 3},
		"tag":   Compound{"x": int32(1)},
	}
	c := orig.Clone()
	c["Pos"].([]float64)[0] = 99
	c["tag"].(Compound)["x"] = int32(7)
	c["Items"].([]any)[0].(Compound)["Count"] = int8(9)

	if orig["Pos"].([]float64)[0] != 1 {
		t.Fatalf("Pos aliased")
	}
	if orig["tag"].(Compound)["x"] != int32(1) {
		t.Fatalf("nested compound aliased")
	}
	if orig["Items"].([]any)[0].(map[string]any)["Count"] != int8(3) {
		t.Fatalf("list element aliased")
	}
}

func TestVecAndBlockPos(t *testing.T) {
	c := Compound{}
	c.SetVec("Pos", geom.Vec3{1.5, 64, -2.25})
	v, ok := c.Vec("Pos")
	if !ok || v != (geom.Vec3{1.5, 64, -2.25}) {
		t.Fatalf("Vec=%v,%v", v, ok)
	}
	c.SetBlockPos("at", geom.BlockPos{X: 1, Y: 2, Z: 3})
	p, ok := c.BlockPos("at")
	if !ok || p != (geom.BlockPos{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("BlockPos=%v,%v", p, ok)
	}

	decoded := Compound{"Pos": []any{float64(1), float64(2), float64(3)}}
	if v, ok := decoded.Vec("Pos"); !ok || v != (geom.Vec3{1, 2, 3}) {
		t.Fatalf("decoded Vec=%v,%v", v, ok)
	}
}

func TestNumericGetters(t *testing.T) {
	c := Compound{"a": int8(-2), "b": int64(1 << 40), "f": float32(0.5), "s": "x"}
	if n, ok := c.Int("a"); !ok || n != -2 {
		t.Fatalf("Int(a)=%d,%v", n, ok)
	}
	if n, ok := c.Int("b"); !ok || n != 1<<40 {
		t.Fatalf("Int(b)=%d,%v", n, ok)
	}
	if f, ok := c.Float("f"); !ok || f != 0.5 {
		t.Fatalf("Float(f)=%v,%v", f, ok)
	}
	if _, ok := c.Int("s"); ok {
		t.Fatalf("string must not read as int")
	}
}

func TestFromAny(t *testing.T) {
	c, err := FromAny(map[string]any{"inner": map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	inner, ok := c.Child("inner")
	if !ok {
		t.Fatalf("inner not normalized")
	}
	if s, _ := inner.Str("k"); s != "v" {
		t.Fatalf("k=%q", s)
	}
	if _, err := FromAny(int32(3)); err == nil {
		t.Fatalf("expected error for scalar root")
	}
}
