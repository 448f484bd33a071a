// Package blockstate models immutable block states: a namespaced block id plus a
// canonical, sorted property list. States are comparable and usable as map keys.
package blockstate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const DefaultNamespace = "minecraft"

var ErrSyntax = errors.New("block state syntax")

var (
	Air           = Of("minecraft:air")
	Barrier       = Of("minecraft:barrier")
	StructureVoid = Of("minecraft:structure_void")
	Jigsaw        = Of("minecraft:jigsaw")
	Lava          = Of("minecraft:lava")
	Water         = Of("minecraft:water")
)

// State is a block id with properties. The zero value is not a valid block; use Air.
type State struct {
	name  string
	props string // "k=v,k=v" sorted by key
}

// Of builds a state with no properties.
func Of(name string) State { return State{name: qualify(name)} }

// New builds a state from a property map.
func New(name string, props map[string]string) State {
	s := State{name: qualify(name)}
	if len(props) == 0 {
		return s
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
	}
	s.props = b.String()
	return s
}

func qualify(name string) string {
	if name == "" || strings.Contains(name, ":") {
		return name
	}
	return DefaultNamespace + ":" + name
}

func (s State) Name() string { return s.name }
func (s State) IsZero() bool { return s.name == "" }
func (s State) IsAir() bool  { return s.name == Air.name }
func (s State) Is(name string) bool {
	return s.name == qualify(name)
}

// Props returns a copy of the properties.
func (s State) Props() map[string]string {
	out := map[string]string{}
	s.each(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

func (s State) HasProps() bool { return s.props != "" }

func (s State) Get(key string) (string, bool) {
	var val string
	found := false
	s.each(func(k, v string) bool {
		if k == key {
			val, found = v, true
			return false
		}
		return true
	})
	return val, found
}

func (s State) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// With returns a copy with key set to value.
func (s State) With(key, value string) State {
	p := s.Props()
	p[key] = value
	return New(s.name, p)
}

// WithName swaps the block id and keeps the properties.
func (s State) WithName(name string) State {
	return State{name: qualify(name), props: s.props}
}

// CopyProps copies the listed properties that exist on from.
func (s State) CopyProps(from State, keys ...string) State {
	out := s
	for _, k := range keys {
		if v, ok := from.Get(k); ok {
			out = out.With(k, v)
		}
	}
	return out
}

func (s State) String() string {
	if s.props == "" {
		return s.name
	}
	return s.name + "[" + s.props + "]"
}

func (s State) each(fn func(k, v string) bool) {
	if s.props == "" {
		return
	}
	for _, kv := range strings.Split(s.props, ",") {
		k, v, _ := strings.Cut(kv, "=")
		if !fn(k, v) {
			return
		}
	}
}

// Parse reads "namespace:id[key=value,...]". The namespace defaults to minecraft.
func Parse(text string) (State, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return State{}, fmt.Errorf("%w: empty state", ErrSyntax)
	}
	name, rest := text, ""
	if i := strings.IndexByte(text, '['); i >= 0 {
		name, rest = text[:i], text[i:]
	}
	if !validID(name) {
		return State{}, fmt.Errorf("%w: bad block id %q", ErrSyntax, name)
	}
	if rest == "" {
		return Of(name), nil
	}
	if !strings.HasSuffix(rest, "]") {
		return State{}, fmt.Errorf("%w: unterminated properties in %q", ErrSyntax, text)
	}
	body := strings.TrimSpace(rest[1 : len(rest)-1])
	props := map[string]string{}
	if body != "" {
		for _, kv := range strings.Split(body, ",") {
			k, v, ok := strings.Cut(kv, "=")
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if !ok || !validToken(k) || !validToken(v) {
				return State{}, fmt.Errorf("%w: bad property %q in %q", ErrSyntax, kv, text)
			}
			if _, dup := props[k]; dup {
				return State{}, fmt.Errorf("%w: duplicate property %q in %q", ErrSyntax, k, text)
			}
			props[k] = v
		}
	}
	return New(name, props), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(text string) State {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

func validID(id string) bool {
	ns, path, ok := strings.Cut(id, ":")
	if !ok {
		path, ns = ns, DefaultNamespace
	}
	if ns == "" || path == "" {
		return false
	}
	for _, c := range ns {
		if !isIDChar(c) {
			return false
		}
	}
	for _, c := range path {
		if !isIDChar(c) && c != '/' {
			return false
		}
	}
	return true
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !isIDChar(c) {
			return false
		}
	}
	return true
}

func isIDChar(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '-' || c == '.'
}
