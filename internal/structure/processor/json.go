package processor

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/nbtdoc"
	"voxelstamp.ai/internal/structure/rules"
)

//go:embed processors.schema.json
var schemaJSON string

const schemaURL = "processors.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func listSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

type stateDoc struct {
	Name       string            `json:"Name"`
	Properties map[string]string `json:"Properties,omitempty"`
}

func (d stateDoc) state() (blockstate.State, error) {
	s, err := blockstate.Parse(d.Name)
	if err != nil {
		return blockstate.State{}, err
	}
	if len(d.Properties) == 0 {
		return s, nil
	}
	for k, v := range d.Properties {
		s = s.With(k, v)
	}
	return s, nil
}

func docOf(s blockstate.State) stateDoc {
	d := stateDoc{Name: s.Name()}
	if s.HasProps() {
		d.Properties = s.Props()
	}
	return d
}

type ruleTestDoc struct {
	PredicateType string    `json:"predicate_type"`
	Block         string    `json:"block,omitempty"`
	BlockState    *stateDoc `json:"block_state,omitempty"`
	Probability   float32   `json:"probability,omitempty"`
}

type posTestDoc struct {
	PredicateType string  `json:"predicate_type"`
	MinChance     float32 `json:"min_chance"`
	MaxChance     float32 `json:"max_chance"`
	MinDist       int     `json:"min_dist"`
	MaxDist       int     `json:"max_dist"`
	Axis          string  `json:"axis,omitempty"`
}

type ruleDoc struct {
	Input     ruleTestDoc    `json:"input_predicate"`
	Location  ruleTestDoc    `json:"location_predicate"`
	Position  *posTestDoc    `json:"position_predicate,omitempty"`
	Output    stateDoc       `json:"output_state"`
	OutputNBT map[string]any `json:"output_nbt,omitempty"`
}

type processorDoc struct {
	Type      string     `json:"processor_type"`
	Blocks    []stateDoc `json:"blocks,omitempty"`
	Mossiness *float32   `json:"mossiness,omitempty"`
	Heightmap string     `json:"heightmap,omitempty"`
	Offset    int        `json:"offset,omitempty"`
	Rules     []ruleDoc  `json:"rules,omitempty"`
	Value     string     `json:"value,omitempty"`
}

type listDoc struct {
	Processors []processorDoc `json:"processors"`
}

// DecodeList validates a processor list document and builds the processors.
func DecodeList(data []byte) ([]Processor, error) {
	s, err := listSchema()
	if err != nil {
		return nil, fmt.Errorf("processor schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("processor list: %w", err)
	}
	if err := s.Validate(raw); err != nil {
		return nil, fmt.Errorf("processor list: %w", err)
	}
	var doc listDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("processor list: %w", err)
	}
	out := make([]Processor, 0, len(doc.Processors))
	for i, pd := range doc.Processors {
		p, err := pd.build()
		if err != nil {
			return nil, fmt.Errorf("processors[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (d processorDoc) build() (Processor, error) {
	kind, ok := ParseKind(d.Type)
	if !ok {
		return Processor{}, fmt.Errorf("unknown processor_type %q", d.Type)
	}
	switch kind {
	case Nop:
		return NewNop(), nil
	case BlockIgnore:
		names := make([]string, 0, len(d.Blocks))
		for _, b := range d.Blocks {
			st, err := b.state()
			if err != nil {
				return Processor{}, err
			}
			names = append(names, st.Name())
		}
		return NewBlockIgnore(names...), nil
	case BlockAge:
		var m float32
		if d.Mossiness != nil {
			m = *d.Mossiness
		}
		return NewBlockAge(m), nil
	case Gravity:
		hm := level.WorldSurface
		if d.Heightmap != "" {
			k, ok := level.ParseHeightmap(d.Heightmap)
			if !ok {
				return Processor{}, fmt.Errorf("unknown heightmap %q", d.Heightmap)
			}
			hm = k
		}
		return NewGravity(hm, d.Offset), nil
	case JigsawReplacement:
		return NewJigsawReplacement(), nil
	case BlackstoneReplace:
		return NewBlackstoneReplace(), nil
	case LavaSubmergedBlock:
		return NewLavaSubmergedBlock(), nil
	case Rule:
		rs := make([]rules.PredicateRule, 0, len(d.Rules))
		for i, rd := range d.Rules {
			r, err := rd.build()
			if err != nil {
				return Processor{}, fmt.Errorf("rules[%d]: %w", i, err)
			}
			rs = append(rs, r)
		}
		return NewRule(rs...), nil
	case ProtectedBlocks:
		if d.Value == "" {
			return Processor{}, fmt.Errorf("protected_blocks needs a tag value")
		}
		return NewProtectedBlocks(d.Value), nil
	}
	return Processor{}, fmt.Errorf("unhandled processor kind %v", kind)
}

func (d ruleDoc) build() (rules.PredicateRule, error) {
	in, err := d.Input.build()
	if err != nil {
		return rules.PredicateRule{}, fmt.Errorf("input_predicate: %w", err)
	}
	loc, err := d.Location.build()
	if err != nil {
		return rules.PredicateRule{}, fmt.Errorf("location_predicate: %w", err)
	}
	pos := rules.PosAlways()
	if d.Position != nil {
		if pos, err = d.Position.build(); err != nil {
			return rules.PredicateRule{}, fmt.Errorf("position_predicate: %w", err)
		}
	}
	out, err := d.Output.state()
	if err != nil {
		return rules.PredicateRule{}, fmt.Errorf("output_state: %w", err)
	}
	r := rules.PredicateRule{Input: in, Location: loc, Position: pos, Output: out}
	if d.OutputNBT != nil {
		r.OutputData = jsonToCompound(d.OutputNBT)
	}
	return r, nil
}

func (d ruleTestDoc) build() (rules.RuleTest, error) {
	kind, ok := rules.ParseTestKind(strings.TrimPrefix(d.PredicateType, "minecraft:"))
	if !ok {
		return rules.RuleTest{}, fmt.Errorf("unknown predicate_type %q", d.PredicateType)
	}
	switch kind {
	case rules.AlwaysTrue:
		return rules.Always(), nil
	case rules.BlockMatch, rules.RandomBlockType:
		if d.Block == "" {
			return rules.RuleTest{}, fmt.Errorf("%s needs block", kind)
		}
		if _, err := blockstate.Parse(d.Block); err != nil {
			return rules.RuleTest{}, err
		}
		if kind == rules.BlockMatch {
			return rules.MatchBlock(d.Block), nil
		}
		return rules.RandomBlock(d.Block, d.Probability), nil
	case rules.ExactState, rules.RandomBlockState:
		if d.BlockState == nil {
			return rules.RuleTest{}, fmt.Errorf("%s needs block_state", kind)
		}
		st, err := d.BlockState.state()
		if err != nil {
			return rules.RuleTest{}, err
		}
		if kind == rules.ExactState {
			return rules.MatchState(st), nil
		}
		return rules.RandomState(st, d.Probability), nil
	}
	return rules.RuleTest{}, fmt.Errorf("unhandled predicate kind %v", kind)
}

func (d posTestDoc) build() (rules.PosRuleTest, error) {
	kind, ok := rules.ParsePosKind(strings.TrimPrefix(d.PredicateType, "minecraft:"))
	if !ok {
		return rules.PosRuleTest{}, fmt.Errorf("unknown predicate_type %q", d.PredicateType)
	}
	switch kind {
	case rules.PosAlwaysTrue:
		return rules.PosAlways(), nil
	case rules.LinearDistance:
		return rules.LinearPos(d.MinChance, d.MaxChance, d.MinDist, d.MaxDist)
	case rules.AxisLinearDistance:
		axis := byte('y')
		if d.Axis != "" {
			axis = d.Axis[0]
		}
		return rules.AxisLinearPos(d.MinChance, d.MaxChance, d.MinDist, d.MaxDist, axis)
	}
	return rules.PosRuleTest{}, fmt.Errorf("unhandled position predicate kind %v", kind)
}

// jsonToCompound narrows JSON numbers: whole numbers become int32, others float64.
func jsonToCompound(m map[string]any) nbtdoc.Compound {
	out := make(nbtdoc.Compound, len(m))
	for k, v := range m {
		out[k] = jsonToNBT(v)
	}
	return out
}

func jsonToNBT(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return jsonToCompound(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = jsonToNBT(t[i])
		}
		return out
	case float64:
		if t == math.Trunc(t) && t >= math.MinInt32 && t <= math.MaxInt32 {
			return int32(t)
		}
		return t
	case bool:
		if t {
			return int8(1)
		}
		return int8(0)
	}
	return v
}

// EncodeList writes processors in the format DecodeList reads.
func EncodeList(list []Processor) ([]byte, error) {
	doc := listDoc{Processors: make([]processorDoc, 0, len(list))}
	for _, p := range list {
		pd := processorDoc{Type: blockstate.DefaultNamespace + ":" + p.Kind.String()}
		switch p.Kind {
		case Nop, JigsawReplacement, BlackstoneReplace, LavaSubmergedBlock:
		case BlockIgnore:
			for _, b := range p.Blocks {
				pd.Blocks = append(pd.Blocks, stateDoc{Name: b})
			}
		case BlockAge:
			m := p.Mossiness
			pd.Mossiness = &m
		case Gravity:
			pd.Heightmap = p.Heightmap.String()
			pd.Offset = p.Offset
		case Rule:
			for _, r := range p.Rules {
				pd.Rules = append(pd.Rules, encodeRule(r))
			}
		case ProtectedBlocks:
			pd.Value = "#" + p.Tag
		default:
			return nil, fmt.Errorf("processor: cannot encode kind %v", p.Kind)
		}
		doc.Processors = append(doc.Processors, pd)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func encodeRule(r rules.PredicateRule) ruleDoc {
	rd := ruleDoc{
		Input:    encodeRuleTest(r.Input),
		Location: encodeRuleTest(r.Location),
		Output:   docOf(r.Output),
	}
	if r.Position.Kind != rules.PosAlwaysTrue {
		pd := &posTestDoc{
			PredicateType: blockstate.DefaultNamespace + ":" + r.Position.Kind.String(),
			MinChance:     r.Position.MinChance,
			MaxChance:     r.Position.MaxChance,
			MinDist:       r.Position.MinDist,
			MaxDist:       r.Position.MaxDist,
		}
		if r.Position.Kind == rules.AxisLinearDistance {
			pd.Axis = string(r.Position.Axis)
		}
		rd.Position = pd
	}
	if r.OutputData != nil {
		rd.OutputNBT = r.OutputData
	}
	return rd
}

func encodeRuleTest(t rules.RuleTest) ruleTestDoc {
	d := ruleTestDoc{PredicateType: blockstate.DefaultNamespace + ":" + t.Kind.String()}
	switch t.Kind {
	case rules.BlockMatch, rules.RandomBlockType:
		d.Block = t.Block
	case rules.ExactState, rules.RandomBlockState:
		sd := docOf(t.State)
		d.BlockState = &sd
	}
	switch t.Kind {
	case rules.RandomBlockType, rules.RandomBlockState:
		d.Probability = t.Probability
	}
	return d
}
