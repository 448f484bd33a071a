package main

import (
	"testing"

	"voxelstamp.ai/internal/structure/geom"
)

func TestParseAABB(t *testing.T) {
	b, err := parseAABB("5,70,-2:1,60,3")
	if err != nil {
		t.Fatalf("parseAABB: %v", err)
	}
	want := geom.Box{Min: geom.BlockPos{X: 1, Y: 60, Z: -2}, Max: geom.BlockPos{X: 5, Y: 70, Z: 3}}
	if b != want {
		t.Fatalf("box = %+v, want %+v", b, want)
	}
	for _, bad := range []string{"", "1,2,3", "1,2:3,4,5", "a,b,c:1,2,3"} {
		if _, err := parseAABB(bad); err == nil {
			t.Fatalf("parseAABB(%q): expected error", bad)
		}
	}
}
