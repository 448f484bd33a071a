package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/processor"
)

//go:embed defaults
var defaultsFS embed.FS

type Catalogs struct {
	Blocks   BlockCatalog
	Entities EntityCatalog

	Processors ProcessorCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID            string   `json:"id"`
	Shape         string   `json:"shape"`           // "full","partial","none"
	Fluid         string   `json:"fluid,omitempty"` // "water","lava"
	Data          bool     `json:"data,omitempty"`
	Lootable      bool     `json:"lootable,omitempty"`
	Waterloggable bool     `json:"waterloggable,omitempty"`
	Connects      string   `json:"connects,omitempty"` // "fence","wall","pane"
	Tags          []string `json:"tags,omitempty"`
}

const (
	ShapeFull    = "full"
	ShapePartial = "partial"
	ShapeNone    = "none"
)

type EntityCatalog struct {
	Defs   map[string]EntityDef
	Digest string
}

type EntityDef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // "mob","hanging","object","player"
}

const (
	KindMob     = "mob"
	KindHanging = "hanging"
	KindObject  = "object"
	KindPlayer  = "player"
)

// ProcessorCatalog holds named processor lists, one file per list.
type ProcessorCatalog struct {
	ByID   map[string][]processor.Processor
	Digest string
}

// IDs returns the processor list names, sorted.
func (p ProcessorCatalog) IDs() []string {
	ids := make([]string, 0, len(p.ByID))
	for id := range p.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load reads catalogs from configDir. blocks.json and entities.json fall back to the
// built-in copies when the directory does not have them; processors/ is optional.
// An empty configDir loads only the built-in catalogs.
func Load(configDir string) (*Catalogs, error) {
	defaults, err := fs.Sub(defaultsFS, "defaults")
	if err != nil {
		return nil, err
	}
	if configDir == "" {
		return load(defaults, defaults)
	}
	return load(os.DirFS(configDir), defaults)
}

// Default returns the built-in catalogs.
func Default() *Catalogs {
	c, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("catalogs: built-in defaults: %v", err))
	}
	return c
}

func load(fsys, defaults fs.FS) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(pick(fsys, defaults, "blocks.json"), "blocks.json", &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadEntities(pick(fsys, defaults, "entities.json"), "entities.json", &c.Entities); err != nil {
		return nil, err
	}
	if err := loadProcessors(fsys, "processors", &c.Processors); err != nil {
		return nil, err
	}
	if fsys != defaults {
		var builtin ProcessorCatalog
		if err := loadProcessors(defaults, "processors", &builtin); err != nil {
			return nil, err
		}
		for id, list := range builtin.ByID {
			if _, ok := c.Processors.ByID[id]; !ok {
				c.Processors.ByID[id] = list
			}
		}
	}
	return &c, nil
}

func pick(fsys, defaults fs.FS, name string) fs.FS {
	if _, err := fs.Stat(fsys, name); err == nil {
		return fsys
	}
	return defaults
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(fsys fs.FS, name string, out *BlockCatalog) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		d.ID = blockstate.Of(d.ID).Name()
		switch d.Shape {
		case "":
			d.Shape = ShapeFull
		case ShapeFull, ShapePartial, ShapeNone:
		default:
			return fmt.Errorf("blocks.json: %s: bad shape %q", d.ID, d.Shape)
		}
		for i, t := range d.Tags {
			d.Tags[i] = qualifyTag(t)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Air is palette id 0.
	air := blockstate.Air.Name()
	if _, ok := out.Defs[air]; !ok {
		return fmt.Errorf("blocks.json: missing %s", air)
	}
	ids = append([]string{air}, filterOut(ids, air)...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadEntities(fsys fs.FS, name string, out *EntityCatalog) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []EntityDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("entities.json: %w", err)
	}
	out.Defs = map[string]EntityDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("entities.json: empty id")
		}
		switch d.Kind {
		case KindMob, KindHanging, KindObject, KindPlayer:
		default:
			return fmt.Errorf("entities.json: %s: bad kind %q", d.ID, d.Kind)
		}
		d.ID = blockstate.Of(d.ID).Name()
		out.Defs[d.ID] = d
	}
	return nil
}

func loadProcessors(fsys fs.FS, dir string, out *ProcessorCatalog) error {
	out.ByID = map[string][]processor.Processor{}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		list, err := processor.DecodeList(b)
		if err != nil {
			return fmt.Errorf("processors %s: %w", path.Base(p), err)
		}
		out.ByID[strings.TrimSuffix(path.Base(p), ".json")] = list
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}

func qualifyTag(tag string) string {
	tag = strings.TrimPrefix(tag, "#")
	if !strings.Contains(tag, ":") {
		return blockstate.DefaultNamespace + ":" + tag
	}
	return tag
}
