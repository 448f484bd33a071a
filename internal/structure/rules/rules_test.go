package rules

import (
	"errors"
	"testing"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
)

// scriptedRand returns queued draws and counts how many were taken.
type scriptedRand struct {
	draws []float32
	taken int
}

func (r *scriptedRand) next() float32 {
	if r.taken >= len(r.draws) {
		r.taken++
		return 0
	}
	v := r.draws[r.taken]
	r.taken++
	return v
}

func (r *scriptedRand) Float32() float32 { return r.next() }
func (r *scriptedRand) Float64() float64 { return float64(r.next()) }
func (r *scriptedRand) IntN(n int) int   { return int(r.next() * float32(n)) }
func (r *scriptedRand) Int64() int64     { return int64(r.next() * 1e9) }

func TestRuleTest_RandomDrawsOnlyAfterMatch(t *testing.T) {
	rng := &scriptedRand{draws: []float32{0.1}}
	rt := RandomBlock("minecraft:stone", 0.5)

	if rt.Test(blockstate.Of("minecraft:dirt"), rng) {
		t.Fatalf("dirt must not match")
	}
	if rng.taken != 0 {
		t.Fatalf("mismatch consumed %d draws", rng.taken)
	}
	if !rt.Test(blockstate.Of("minecraft:stone"), rng) {
		t.Fatalf("stone with draw 0.1 < 0.5 should match")
	}
	if rng.taken != 1 {
		t.Fatalf("match consumed %d draws", rng.taken)
	}

	rng = &scriptedRand{draws: []float32{0.5}}
	if rt.Test(blockstate.Of("minecraft:stone"), rng) {
		t.Fatalf("draw equal to probability must fail")
	}
}

func TestRuleTest_Kinds(t *testing.T) {
	stairs := blockstate.MustParse("minecraft:oak_stairs[facing=north]")
	other := stairs.With("facing", "south")
	rng := &scriptedRand{}
	cases := []struct {
		name string
		rt   RuleTest
		s    blockstate.State
		want bool
	}{
		{"always", Always(), other, true},
		{"block match ignores props", MatchBlock("oak_stairs"), other, true},
		{"exact state", MatchState(stairs), stairs, true},
		{"exact state props differ", MatchState(stairs), other, false},
		{"random state", RandomState(stairs, 1), stairs, true},
		{"random state mismatch", RandomState(stairs, 1), other, false},
	}
	for _, c := range cases {
		if got := c.rt.Test(c.s, rng); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestLinearPos_RejectsBadRange(t *testing.T) {
	if _, err := LinearPos(0, 1, 5, 5); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("want ErrInvalidRange, got %v", err)
	}
	if _, err := AxisLinearPos(0, 1, 6, 2, 'y'); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("want ErrInvalidRange, got %v", err)
	}
	if _, err := AxisLinearPos(0, 1, 0, 2, 'w'); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("want ErrInvalidRange for axis, got %v", err)
	}
}

func TestLinearPos_ChanceEndpointsAndMonotonic(t *testing.T) {
	p, err := LinearPos(0.2, 0.9, 4, 12)
	if err != nil {
		t.Fatalf("LinearPos: %v", err)
	}
	if got := p.Chance(4); got != 0.2 {
		t.Fatalf("Chance(minDist)=%v", got)
	}
	if got := p.Chance(12); got != 0.9 {
		t.Fatalf("Chance(maxDist)=%v", got)
	}
	if got := p.Chance(0); got != 0.2 {
		t.Fatalf("below range must clamp, got %v", got)
	}
	if got := p.Chance(40); got != 0.9 {
		t.Fatalf("above range must clamp, got %v", got)
	}
	prev := p.Chance(4)
	for d := 5; d <= 12; d++ {
		c := p.Chance(d)
		if c < prev {
			t.Fatalf("not monotonic at %d: %v < %v", d, c, prev)
		}
		prev = c
	}
}

func TestLinearPos_TestUsesManhattanToPivot(t *testing.T) {
	p, _ := LinearPos(0, 1, 0, 10)
	pivot := geom.BlockPos{X: 0, Y: 0, Z: 0}
	target := geom.BlockPos{X: 3, Y: -1, Z: 1} // distance 5, chance 0.5
	if !p.Test(geom.BlockPos{}, target, pivot, &scriptedRand{draws: []float32{0.5}}) {
		t.Fatalf("draw equal to chance must pass")
	}
	if p.Test(geom.BlockPos{}, target, pivot, &scriptedRand{draws: []float32{0.51}}) {
		t.Fatalf("draw above chance must fail")
	}
}

func TestAxisLinearPos_UsesOneAxis(t *testing.T) {
	p, _ := AxisLinearPos(0, 1, 0, 10, 'y')
	target := geom.BlockPos{X: 100, Y: -2, Z: 100} // |dy| = 2, chance 0.2
	if p.Test(geom.BlockPos{}, target, geom.BlockPos{}, &scriptedRand{draws: []float32{0.3}}) {
		t.Fatalf("x/z distance must be ignored")
	}
	if !p.Test(geom.BlockPos{}, target, geom.BlockPos{}, &scriptedRand{draws: []float32{0.1}}) {
		t.Fatalf("draw 0.1 <= 0.2 should pass")
	}
}

func TestPredicateRule_OrderAndShortCircuit(t *testing.T) {
	stone := blockstate.Of("minecraft:stone")
	air := blockstate.Air
	r := PredicateRule{
		Input:    RandomBlock("minecraft:stone", 0.5),
		Location: RandomState(air, 0.5),
		Position: PosAlways(),
		Output:   blockstate.Of("minecraft:andesite"),
	}
	rng := &scriptedRand{draws: []float32{0.9}}
	if r.Test(stone, air, geom.BlockPos{}, geom.BlockPos{}, geom.BlockPos{}, rng) {
		t.Fatalf("input draw 0.9 should fail")
	}
	if rng.taken != 1 {
		t.Fatalf("location must not draw after input fails, taken=%d", rng.taken)
	}
	rng = &scriptedRand{draws: []float32{0.1, 0.2}}
	if !r.Test(stone, air, geom.BlockPos{}, geom.BlockPos{}, geom.BlockPos{}, rng) {
		t.Fatalf("both draws pass")
	}
	if rng.taken != 2 {
		t.Fatalf("want two draws, got %d", rng.taken)
	}
}
