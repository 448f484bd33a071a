// Package rules implements the block and position predicates used by rule-based
// processors. Each predicate family is a closed set of kinds dispatched by a single
// switch.
package rules

import (
	"errors"
	"fmt"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/nbtdoc"
	"voxelstamp.ai/internal/structure/randx"
)

var ErrInvalidRange = errors.New("invalid predicate range")

type TestKind uint8

const (
	AlwaysTrue TestKind = iota
	BlockMatch
	ExactState
	RandomBlockType
	RandomBlockState
)

var testKindNames = [...]string{"always_true", "block_match", "blockstate_match", "random_block_match", "random_blockstate_match"}

func (k TestKind) String() string {
	if int(k) < len(testKindNames) {
		return testKindNames[k]
	}
	return fmt.Sprintf("rule_test(%d)", k)
}

func ParseTestKind(s string) (TestKind, bool) {
	for i, n := range testKindNames {
		if n == s {
			return TestKind(i), true
		}
	}
	return 0, false
}

// RuleTest is a predicate over a block state.
type RuleTest struct {
	Kind        TestKind
	State       blockstate.State // ExactState, RandomBlockState
	Block       string           // BlockMatch, RandomBlockType
	Probability float32
}

func Always() RuleTest { return RuleTest{Kind: AlwaysTrue} }

func MatchBlock(block string) RuleTest {
	return RuleTest{Kind: BlockMatch, Block: blockstate.Of(block).Name()}
}

func MatchState(s blockstate.State) RuleTest { return RuleTest{Kind: ExactState, State: s} }

func RandomBlock(block string, p float32) RuleTest {
	return RuleTest{Kind: RandomBlockType, Block: blockstate.Of(block).Name(), Probability: p}
}

func RandomState(s blockstate.State, p float32) RuleTest {
	return RuleTest{Kind: RandomBlockState, State: s, Probability: p}
}

// Test evaluates the predicate. Random kinds draw only after the match succeeds.
func (t RuleTest) Test(s blockstate.State, rng randx.Rand) bool {
	switch t.Kind {
	case AlwaysTrue:
		return true
	case BlockMatch:
		return s.Name() == t.Block
	case ExactState:
		return s == t.State
	case RandomBlockType:
		return s.Name() == t.Block && rng.Float32() < t.Probability
	case RandomBlockState:
		return s == t.State && rng.Float32() < t.Probability
	}
	return false
}

type PosKind uint8

const (
	PosAlwaysTrue PosKind = iota
	LinearDistance
	AxisLinearDistance
)

var posKindNames = [...]string{"always_true", "linear_pos", "axis_aligned_linear_pos"}

func (k PosKind) String() string {
	if int(k) < len(posKindNames) {
		return posKindNames[k]
	}
	return fmt.Sprintf("pos_rule_test(%d)", k)
}

func ParsePosKind(s string) (PosKind, bool) {
	for i, n := range posKindNames {
		if n == s {
			return PosKind(i), true
		}
	}
	return 0, false
}

// PosRuleTest is a predicate over the distance between the target and the pivot.
type PosRuleTest struct {
	Kind      PosKind
	MinChance float32
	MaxChance float32
	MinDist   int
	MaxDist   int
	Axis      byte // 'x', 'y' or 'z'
}

func PosAlways() PosRuleTest { return PosRuleTest{Kind: PosAlwaysTrue} }

// LinearPos accepts with a chance that moves from minChance at minDist to maxChance
// at maxDist, measured as Manhattan distance.
func LinearPos(minChance, maxChance float32, minDist, maxDist int) (PosRuleTest, error) {
	if minDist >= maxDist {
		return PosRuleTest{}, fmt.Errorf("%w: min distance %d >= max distance %d", ErrInvalidRange, minDist, maxDist)
	}
	return PosRuleTest{Kind: LinearDistance, MinChance: minChance, MaxChance: maxChance, MinDist: minDist, MaxDist: maxDist}, nil
}

// AxisLinearPos is LinearPos with distance measured along one axis.
func AxisLinearPos(minChance, maxChance float32, minDist, maxDist int, axis byte) (PosRuleTest, error) {
	if minDist >= maxDist {
		return PosRuleTest{}, fmt.Errorf("%w: min distance %d >= max distance %d", ErrInvalidRange, minDist, maxDist)
	}
	switch axis {
	case 'x', 'y', 'z':
	default:
		return PosRuleTest{}, fmt.Errorf("%w: unknown axis %q", ErrInvalidRange, axis)
	}
	return PosRuleTest{Kind: AxisLinearDistance, MinChance: minChance, MaxChance: maxChance, MinDist: minDist, MaxDist: maxDist, Axis: axis}, nil
}

// Test evaluates the predicate for a target position relative to the pivot.
func (t PosRuleTest) Test(original, target, pivot geom.BlockPos, rng randx.Rand) bool {
	switch t.Kind {
	case PosAlwaysTrue:
		return true
	case LinearDistance:
		return rng.Float32() <= t.Chance(geom.Manhattan(target, pivot))
	case AxisLinearDistance:
		d := target.Sub(pivot)
		var n int
		switch t.Axis {
		case 'x':
			n = d.X
		case 'y':
			n = d.Y
		default:
			n = d.Z
		}
		if n < 0 {
			n = -n
		}
		return rng.Float32() <= t.Chance(n)
	}
	return false
}

// Chance is the acceptance probability at distance d.
func (t PosRuleTest) Chance(d int) float32 {
	if t.Kind == PosAlwaysTrue {
		return 1
	}
	f := inverseLerp(float32(d), float32(t.MinDist), float32(t.MaxDist))
	return clampedLerp(t.MinChance, t.MaxChance, f)
}

func inverseLerp(v, lo, hi float32) float32 {
	return (v - lo) / (hi - lo)
}

func clampedLerp(a, b, f float32) float32 {
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	return a + f*(b-a)
}

// PredicateRule replaces a block when all three predicates pass.
type PredicateRule struct {
	Input      RuleTest
	Location   RuleTest
	Position   PosRuleTest
	Output     blockstate.State
	OutputData nbtdoc.Compound
}

func NewRule(input, location RuleTest, output blockstate.State) PredicateRule {
	return PredicateRule{Input: input, Location: location, Position: PosAlways(), Output: output}
}

// Test checks input against the template state, location against the world state and
// then the position, in that order, on one shared generator.
func (r PredicateRule) Test(input, location blockstate.State, original, target, pivot geom.BlockPos, rng randx.Rand) bool {
	return r.Input.Test(input, rng) &&
		r.Location.Test(location, rng) &&
		r.Position.Test(original, target, pivot, rng)
}
