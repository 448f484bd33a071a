package encoding

import (
	"errors"
	"testing"

	"voxelstamp.ai/internal/structure/geom"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_Limit(t *testing.T) {
	enc := EncodeRLE(make([]uint16, 100))
	if _, err := DecodeRLE(enc, 99); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := DecodeRLE("%%%", 0); err == nil {
		t.Fatalf("expected base64 error")
	}
}

func TestGrid(t *testing.T) {
	box := geom.BoxFromCorners(geom.BlockPos{X: 2, Y: 10, Z: 4}, geom.BlockPos{X: 3, Y: 11, Z: 4})
	palette := []string{"minecraft:air", "minecraft:stone"}
	// x fastest, then z, then y: the lower layer is stone.
	ids := []uint16{1, 1, 0, 0}
	g, err := NewGrid(box, palette, ids)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	got, err := g.IDs()
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if s, ok := g.StateAt(got, geom.BlockPos{X: 3, Y: 10, Z: 4}); !ok || s != "minecraft:stone" {
		t.Fatalf("StateAt low = %q %v", s, ok)
	}
	if s, _ := g.StateAt(got, geom.BlockPos{X: 2, Y: 11, Z: 4}); s != "minecraft:air" {
		t.Fatalf("StateAt high = %q", s)
	}
	if _, ok := g.StateAt(got, geom.BlockPos{X: 4, Y: 10, Z: 4}); ok {
		t.Fatalf("outside grid reported a state")
	}

	if _, err := NewGrid(box, palette, ids[:3]); !errors.Is(err, ErrGridShape) {
		t.Fatalf("short ids: %v", err)
	}
	g.Palette = palette[:1]
	if _, err := g.IDs(); err == nil {
		t.Fatalf("expected palette range error")
	}
}
