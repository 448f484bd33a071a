package codec

import (
	"bytes"
	"fmt"
	"math"
	"reflect"

	"github.com/Tnze/go-mc/nbt"

	"voxelstamp.ai/internal/structure/nbtdoc"
)

// MarshalCompound encodes c as an unnamed root compound.
func MarshalCompound(c nbtdoc.Compound) ([]byte, error) {
	if c == nil {
		c = nbtdoc.Compound{}
	}
	v, err := toNBT(c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := nbt.NewEncoder(&buf).Encode(v, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UnmarshalCompound(b []byte) (nbtdoc.Compound, error) {
	var m map[string]any
	if _, err := nbt.NewDecoder(bytes.NewReader(b)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	c, err := nbtdoc.FromAny(m)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = nbtdoc.Compound{}
	}
	return c, nil
}

// toNBT rewrites a value tree into types the nbt encoder maps onto tags: maps become
// map[string]any, homogeneous []any lists become typed slices, and Go ints and bools
// become int32/int64 and bytes.
func toNBT(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case nbtdoc.Compound:
		return toNBT(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			c, err := toNBT(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			if c != nil {
				out[k] = c
			}
		}
		return out, nil
	case []any:
		return toList(t)
	case []nbtdoc.Compound:
		items := make([]any, len(t))
		for i := range t {
			items[i] = t[i]
		}
		return toList(items)
	case bool:
		if t {
			return int8(1), nil
		}
		return int8(0), nil
	case int:
		if t >= math.MinInt32 && t <= math.MaxInt32 {
			return int32(t), nil
		}
		return int64(t), nil
	case uint8:
		return int8(t), nil
	case []int:
		out := make([]int32, len(t))
		for i, n := range t {
			out[i] = int32(n)
		}
		return out, nil
	case []int8:
		out := make([]byte, len(t))
		for i, n := range t {
			out[i] = byte(n)
		}
		return out, nil
	case int8, int16, int32, int64, float32, float64, string,
		[]byte, []int32, []int64, []float32, []float64, []string:
		return t, nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

func toList(items []any) (any, error) {
	if len(items) == 0 {
		return []map[string]any{}, nil
	}
	conv := make([]any, len(items))
	var elem reflect.Type
	for i, it := range items {
		c, err := toNBT(it)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if c == nil {
			return nil, fmt.Errorf("[%d]: nil list element", i)
		}
		typ := reflect.TypeOf(c)
		if elem == nil {
			elem = typ
		} else if typ != elem {
			return nil, fmt.Errorf("mixed list of %v and %v", elem, typ)
		}
		conv[i] = c
	}
	out := reflect.MakeSlice(reflect.SliceOf(elem), len(conv), len(conv))
	for i, c := range conv {
		out.Index(i).Set(reflect.ValueOf(c))
	}
	return out.Interface(), nil
}
