// Package processor implements the block entry pipeline run during placement. A
// processor either returns a (possibly rewritten) entry or drops it; a drop ends the
// pipeline for that entry.
package processor

import (
	"errors"
	"fmt"
	"strings"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/randx"
	"voxelstamp.ai/internal/structure/rules"
)

var ErrMalformedFinalState = errors.New("malformed jigsaw final_state")

// Env is the part of the placement settings processors read.
type Env interface {
	// RandomFor returns the generator to use for a block at p.
	RandomFor(p *geom.BlockPos) randx.Rand
}

type Kind uint8

const (
	Nop Kind = iota
	BlockIgnore
	BlockAge
	Gravity
	JigsawReplacement
	BlackstoneReplace
	LavaSubmergedBlock
	Rule
	ProtectedBlocks
)

var kindNames = [...]string{
	"nop",
	"block_ignore",
	"block_age",
	"gravity",
	"jigsaw_replacement",
	"blackstone_replace",
	"lava_submerged_block",
	"rule",
	"protected_blocks",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("processor(%d)", k)
}

// ParseKind accepts names with or without the minecraft: namespace.
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimPrefix(s, blockstate.DefaultNamespace+":")
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// Processor is a tagged variant; only the fields of its Kind are meaningful.
type Processor struct {
	Kind Kind

	Blocks    []string // BlockIgnore, namespaced ids
	Mossiness float32  // BlockAge

	Heightmap level.HeightmapKind // Gravity
	Offset    int                 // Gravity

	Rules []rules.PredicateRule // Rule

	Tag string // ProtectedBlocks
}

func NewNop() Processor { return Processor{Kind: Nop} }

func NewBlockIgnore(blocks ...string) Processor {
	names := make([]string, len(blocks))
	for i, b := range blocks {
		names[i] = blockstate.Of(b).Name()
	}
	return Processor{Kind: BlockIgnore, Blocks: names}
}

func NewBlockAge(mossiness float32) Processor {
	return Processor{Kind: BlockAge, Mossiness: mossiness}
}

func NewGravity(kind level.HeightmapKind, offset int) Processor {
	return Processor{Kind: Gravity, Heightmap: kind, Offset: offset}
}

func NewJigsawReplacement() Processor  { return Processor{Kind: JigsawReplacement} }
func NewBlackstoneReplace() Processor  { return Processor{Kind: BlackstoneReplace} }
func NewLavaSubmergedBlock() Processor { return Processor{Kind: LavaSubmergedBlock} }

func NewRule(rs ...rules.PredicateRule) Processor {
	return Processor{Kind: Rule, Rules: rs}
}

// NewProtectedBlocks drops entries whose target currently holds a block with tag.
func NewProtectedBlocks(tag string) Processor {
	return Processor{Kind: ProtectedBlocks, Tag: strings.TrimPrefix(tag, "#")}
}

// Process runs one step. original is the untransformed template entry; candidate
// carries the world position and the state rewritten by earlier steps.
func (p Processor) Process(world level.Reader, anchor, pivot geom.BlockPos, original, candidate blueprint.BlockEntry, settings Env) (blueprint.BlockEntry, bool, error) {
	switch p.Kind {
	case Nop:
		return candidate, true, nil
	case BlockIgnore:
		for _, b := range p.Blocks {
			if candidate.State.Name() == b {
				return blueprint.BlockEntry{}, false, nil
			}
		}
		return candidate, true, nil
	case BlockAge:
		return p.age(world, candidate, settings), true, nil
	case Gravity:
		y := world.Height(p.Heightmap, candidate.Pos.X, candidate.Pos.Z) + p.Offset
		candidate.Pos.Y = y + original.Pos.Y
		return candidate, true, nil
	case JigsawReplacement:
		return jigsaw(candidate)
	case BlackstoneReplace:
		if to, ok := blackstoneTable[candidate.State.Name()]; ok {
			candidate.State = blockstate.Of(to).CopyProps(candidate.State, "facing", "half", "shape", "type")
		}
		return candidate, true, nil
	case LavaSubmergedBlock:
		if world.BlockAt(candidate.Pos).Name() == blockstate.Lava.Name() && !world.IsFullCube(candidate.State) {
			candidate.State = blockstate.Lava
		}
		return candidate, true, nil
	case Rule:
		return p.rule(world, pivot, original, candidate), true, nil
	case ProtectedBlocks:
		if world.HasTag(world.BlockAt(candidate.Pos), p.Tag) {
			return blueprint.BlockEntry{}, false, nil
		}
		return candidate, true, nil
	}
	return blueprint.BlockEntry{}, false, fmt.Errorf("processor: unknown kind %d", p.Kind)
}

// Run applies list in order and stops at the first drop.
func Run(list []Processor, world level.Reader, anchor, pivot geom.BlockPos, original, candidate blueprint.BlockEntry, settings Env) (blueprint.BlockEntry, bool, error) {
	cur := candidate
	for _, p := range list {
		next, ok, err := p.Process(world, anchor, pivot, original, cur, settings)
		if err != nil {
			return blueprint.BlockEntry{}, false, fmt.Errorf("%s at %v: %w", p.Kind, cur.Pos, err)
		}
		if !ok {
			return blueprint.BlockEntry{}, false, nil
		}
		cur = next
	}
	return cur, true, nil
}

func jigsaw(candidate blueprint.BlockEntry) (blueprint.BlockEntry, bool, error) {
	if candidate.State.Name() != blockstate.Jigsaw.Name() {
		return candidate, true, nil
	}
	text := "minecraft:air"
	if v, ok := candidate.Data["final_state"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return blueprint.BlockEntry{}, false, fmt.Errorf("%w: %T", ErrMalformedFinalState, v)
		}
		text = s
	}
	st, err := blockstate.Parse(text)
	if err != nil {
		return blueprint.BlockEntry{}, false, fmt.Errorf("%w: %q: %v", ErrMalformedFinalState, text, err)
	}
	if st.Name() == blockstate.StructureVoid.Name() {
		return blueprint.BlockEntry{}, false, nil
	}
	return blueprint.BlockEntry{Pos: candidate.Pos, State: st}, true, nil
}

// rule seeds its generator from the target position alone so the outcome does not
// depend on how many draws other blocks consumed.
func (p Processor) rule(world level.Reader, pivot geom.BlockPos, original, candidate blueprint.BlockEntry) blueprint.BlockEntry {
	rng := randx.ForPos(candidate.Pos, 0)
	here := world.BlockAt(candidate.Pos)
	for _, r := range p.Rules {
		if r.Test(original.State, here, original.Pos, candidate.Pos, pivot, rng) {
			return blueprint.BlockEntry{Pos: candidate.Pos, State: r.Output, Data: r.OutputData.Clone()}
		}
	}
	return candidate
}
