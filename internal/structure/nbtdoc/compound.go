// Package nbtdoc holds auxiliary block and entity data as plain Go values in the
// shapes the binary compound codec produces: map[string]any for compounds, typed
// slices or []any for lists, and fixed-width integers and floats for scalars.
package nbtdoc

import (
	"fmt"

	"voxelstamp.ai/internal/structure/geom"
)

// Compound is a structured key-value document.
type Compound map[string]any

// Clone deep-copies c. Nil stays nil.
func (c Compound) Clone() Compound {
	if c == nil {
		return nil
	}
	out := make(Compound, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Compound:
		return t.Clone()
	case map[string]any:
		return Compound(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Compound(t[i]).Clone()
		}
		return out
	case []int8:
		return append([]int8(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	case []int32:
		return append([]int32(nil), t...)
	case []int64:
		return append([]int64(nil), t...)
	case []float32:
		return append([]float32(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

func (c Compound) Has(key string) bool {
	_, ok := c[key]
	return ok
}

func (c Compound) Str(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// Int reads any integer-typed value.
func (c Compound) Int(key string) (int64, bool) {
	return asInt(c[key])
}

// Float reads any numeric value as float64.
func (c Compound) Float(key string) (float64, bool) {
	return asFloat(c[key])
}

// Child returns the nested compound at key.
func (c Compound) Child(key string) (Compound, bool) {
	switch t := c[key].(type) {
	case Compound:
		return t, true
	case map[string]any:
		return Compound(t), true
	}
	return nil, false
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int8:
		return int64(t), true
	case uint8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	return 0, false
}

// Floats reads a numeric list of any element type.
func (c Compound) Floats(key string) ([]float64, bool) {
	switch t := c[key].(type) {
	case []float64:
		return append([]float64(nil), t...), true
	case []float32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out, true
	case []int32:
		out := make([]float64, len(t))
		for i, n := range t {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, len(t))
		for i, e := range t {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// Ints reads an integer list or int array.
func (c Compound) Ints(key string) ([]int, bool) {
	switch t := c[key].(type) {
	case []int32:
		out := make([]int, len(t))
		for i, n := range t {
			out[i] = int(n)
		}
		return out, true
	case []int:
		return append([]int(nil), t...), true
	case []any:
		out := make([]int, len(t))
		for i, e := range t {
			n, ok := asInt(e)
			if !ok {
				return nil, false
			}
			out[i] = int(n)
		}
		return out, true
	}
	return nil, false
}

// SetVec writes v as a list of three doubles.
func (c Compound) SetVec(key string, v geom.Vec3) {
	c[key] = []float64{v[0], v[1], v[2]}
}

func (c Compound) Vec(key string) (geom.Vec3, bool) {
	f, ok := c.Floats(key)
	if !ok || len(f) != 3 {
		return geom.Vec3{}, false
	}
	return geom.Vec3{f[0], f[1], f[2]}, true
}

// SetBlockPos writes p as a list of three ints.
func (c Compound) SetBlockPos(key string, p geom.BlockPos) {
	c[key] = []int32{int32(p.X), int32(p.Y), int32(p.Z)}
}

func (c Compound) BlockPos(key string) (geom.BlockPos, bool) {
	n, ok := c.Ints(key)
	if !ok || len(n) != 3 {
		return geom.BlockPos{}, false
	}
	return geom.BlockPos{X: n[0], Y: n[1], Z: n[2]}, true
}

// Normalize converts decoded nested maps into Compound values so callers can use
// the typed getters at any depth.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(Compound, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case Compound:
		for k, e := range t {
			t[k] = Normalize(e)
		}
		return t
	case []any:
		for i := range t {
			t[i] = Normalize(t[i])
		}
		return t
	}
	return v
}

// FromAny accepts a decoded document root.
func FromAny(v any) (Compound, error) {
	switch t := Normalize(v).(type) {
	case nil:
		return nil, nil
	case Compound:
		return t, nil
	}
	return nil, fmt.Errorf("nbtdoc: expected compound, got %T", v)
}
