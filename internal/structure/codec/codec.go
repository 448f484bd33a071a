// Package codec reads and writes blueprints as binary compound documents:
//
//	DataVersion: int
//	size:        [x, y, z]
//	palette:     [{Name, Properties}]      (one variant)
//	palettes:    [[{Name, Properties}]]    (several variants)
//	blocks:      [{pos: [x, y, z], state: index, nbt?: {...}}]
//	entities:    [{pos: [x, y, z] doubles, blockPos: [x, y, z], nbt: {...}}]
//
// Files are gzip framed; Read also accepts uncompressed documents.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

// CurrentDataVersion is the document version this package writes.
const CurrentDataVersion int32 = 3953

var (
	ErrNewerVersion = errors.New("document is newer than this build")
	ErrBadDocument  = errors.New("malformed blueprint document")
)

// Migrator upgrades a decoded document root written at version from. It must set
// DataVersion on the result.
type Migrator func(doc map[string]any, from int32) (map[string]any, error)

type Codec struct {
	shapes   blueprint.ShapeClassifier
	migrator Migrator
}

// New returns a codec. shapes orders decoded blocks for commit; migrator may be nil,
// in which case older documents are decoded as they are.
func New(shapes blueprint.ShapeClassifier, migrator Migrator) *Codec {
	return &Codec{shapes: shapes, migrator: migrator}
}

type stateDoc struct {
	Name       string            `nbt:"Name"`
	Properties map[string]string `nbt:"Properties,omitempty"`
}

type blockDoc struct {
	Pos   []int32        `nbt:"pos" nbt_type:"list"`
	State int32          `nbt:"state"`
	NBT   map[string]any `nbt:"nbt,omitempty"`
}

type entityDoc struct {
	Pos      []float64      `nbt:"pos"`
	BlockPos []int32        `nbt:"blockPos" nbt_type:"list"`
	NBT      map[string]any `nbt:"nbt"`
}

type document struct {
	DataVersion int32        `nbt:"DataVersion"`
	Author      string       `nbt:"author,omitempty"`
	Size        []int32      `nbt:"size" nbt_type:"list"`
	Palette     []stateDoc   `nbt:"palette,omitempty"`
	Palettes    [][]stateDoc `nbt:"palettes,omitempty"`
	Blocks      []blockDoc   `nbt:"blocks"`
	Entities    []entityDoc  `nbt:"entities"`
}

type versionDoc struct {
	DataVersion int32 `nbt:"DataVersion"`
}

// Encode serializes bp. Variant palettes are deduplicated on the tuple of states a
// block has across all variants, so one state index resolves in every palette.
func (c *Codec) Encode(bp *blueprint.Blueprint) ([]byte, error) {
	doc, err := toDocument(bp)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := nbt.NewEncoder(&buf).Encode(doc, ""); err != nil {
		return nil, fmt.Errorf("encode blueprint: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Codec) Decode(data []byte) (*blueprint.Blueprint, error) {
	var v versionDoc
	if _, err := nbt.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	if v.DataVersion > CurrentDataVersion {
		return nil, fmt.Errorf("%w: %d > %d", ErrNewerVersion, v.DataVersion, CurrentDataVersion)
	}
	if v.DataVersion < CurrentDataVersion && c.migrator != nil {
		migrated, err := c.migrate(data, v.DataVersion)
		if err != nil {
			return nil, err
		}
		data = migrated
	}

	var doc document
	if _, err := nbt.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	return c.fromDocument(&doc)
}

func (c *Codec) migrate(data []byte, from int32) ([]byte, error) {
	var root map[string]any
	if _, err := nbt.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	out, err := c.migrator(root, from)
	if err != nil {
		return nil, fmt.Errorf("migrate from %d: %w", from, err)
	}
	enc, err := toNBT(out)
	if err != nil {
		return nil, fmt.Errorf("migrate from %d: %w", from, err)
	}
	var buf bytes.Buffer
	if err := nbt.NewEncoder(&buf).Encode(enc, ""); err != nil {
		return nil, fmt.Errorf("migrate from %d: %w", from, err)
	}
	return buf.Bytes(), nil
}

// Write encodes bp into w with gzip framing.
func (c *Codec) Write(w io.Writer, bp *blueprint.Blueprint) error {
	data, err := c.Encode(bp)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// Read decodes a gzip framed or raw document.
func (c *Codec) Read(r io.Reader) (*blueprint.Blueprint, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}

func toDocument(bp *blueprint.Blueprint) (*document, error) {
	size := bp.Size()
	doc := &document{
		DataVersion: CurrentDataVersion,
		Author:      bp.Author(),
		Size:        []int32{int32(size.X), int32(size.Y), int32(size.Z)},
		Blocks:      []blockDoc{},
		Entities:    []entityDoc{},
	}

	variants := bp.Variants()
	palettes := make([][]stateDoc, len(variants))
	index := map[string]int32{}
	for i := 0; i < bp.BlockCount(); i++ {
		key := tupleKey(variants, i)
		idx, ok := index[key]
		if !ok {
			idx = int32(len(palettes[0]))
			index[key] = idx
			for v := range variants {
				palettes[v] = append(palettes[v], toStateDoc(variants[v][i].State))
			}
		}
		e := variants[0][i]
		b := blockDoc{Pos: []int32{int32(e.Pos.X), int32(e.Pos.Y), int32(e.Pos.Z)}, State: idx}
		if e.Data != nil {
			m, err := toNBT(e.Data)
			if err != nil {
				return nil, fmt.Errorf("block %v nbt: %w", e.Pos, err)
			}
			b.NBT = m.(map[string]any)
		}
		doc.Blocks = append(doc.Blocks, b)
	}
	if len(palettes) == 1 {
		doc.Palette = palettes[0]
	} else {
		doc.Palettes = palettes
	}

	for _, rec := range bp.Entities() {
		m, err := toNBT(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("entity nbt: %w", err)
		}
		data, _ := m.(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		doc.Entities = append(doc.Entities, entityDoc{
			Pos:      []float64{rec.Pos[0], rec.Pos[1], rec.Pos[2]},
			BlockPos: []int32{int32(rec.BlockPos.X), int32(rec.BlockPos.Y), int32(rec.BlockPos.Z)},
			NBT:      data,
		})
	}
	return doc, nil
}

func tupleKey(variants [][]blueprint.BlockEntry, i int) string {
	if len(variants) == 1 {
		return variants[0][i].State.String()
	}
	parts := make([]string, len(variants))
	for v := range variants {
		parts[v] = variants[v][i].State.String()
	}
	return strings.Join(parts, "\x00")
}

func toStateDoc(s blockstate.State) stateDoc {
	d := stateDoc{Name: s.Name()}
	if s.HasProps() {
		d.Properties = s.Props()
	}
	return d
}

func (c *Codec) fromDocument(doc *document) (*blueprint.Blueprint, error) {
	if len(doc.Size) != 3 {
		return nil, fmt.Errorf("%w: size has %d values", ErrBadDocument, len(doc.Size))
	}
	size := geom.BlockPos{X: int(doc.Size[0]), Y: int(doc.Size[1]), Z: int(doc.Size[2])}

	rawPalettes := doc.Palettes
	if len(rawPalettes) == 0 && doc.Palette != nil {
		rawPalettes = [][]stateDoc{doc.Palette}
	}
	if len(rawPalettes) == 0 {
		if len(doc.Blocks) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrBadDocument, blueprint.ErrNoPalettes)
		}
		// An empty palette list is dropped on write.
		rawPalettes = [][]stateDoc{{}}
	}
	palettes := make([][]blockstate.State, len(rawPalettes))
	for v, raw := range rawPalettes {
		if len(raw) != len(rawPalettes[0]) {
			return nil, fmt.Errorf("%w: palette %d has %d states, want %d", ErrBadDocument, v, len(raw), len(rawPalettes[0]))
		}
		for i, sd := range raw {
			if sd.Name == "" {
				return nil, fmt.Errorf("%w: palette %d state %d has no name", ErrBadDocument, v, i)
			}
			palettes[v] = append(palettes[v], blockstate.New(sd.Name, sd.Properties))
		}
	}

	variants := make([][]blueprint.BlockEntry, len(palettes))
	for i, b := range doc.Blocks {
		if len(b.Pos) != 3 {
			return nil, fmt.Errorf("%w: block %d pos has %d values", ErrBadDocument, i, len(b.Pos))
		}
		if b.State < 0 || int(b.State) >= len(palettes[0]) {
			return nil, fmt.Errorf("%w: block %d state %d out of range", ErrBadDocument, i, b.State)
		}
		pos := geom.BlockPos{X: int(b.Pos[0]), Y: int(b.Pos[1]), Z: int(b.Pos[2])}
		var data nbtdoc.Compound
		if b.NBT != nil {
			var err error
			if data, err = nbtdoc.FromAny(b.NBT); err != nil {
				return nil, fmt.Errorf("%w: block %d: %v", ErrBadDocument, i, err)
			}
		}
		for v := range palettes {
			variants[v] = append(variants[v], blueprint.BlockEntry{Pos: pos, State: palettes[v][b.State], Data: data.Clone()})
		}
	}
	for v := range variants {
		if variants[v] == nil {
			variants[v] = []blueprint.BlockEntry{}
		}
	}

	entities := make([]blueprint.EntityRecord, 0, len(doc.Entities))
	for i, e := range doc.Entities {
		if len(e.Pos) != 3 || len(e.BlockPos) != 3 {
			return nil, fmt.Errorf("%w: entity %d position", ErrBadDocument, i)
		}
		data, err := nbtdoc.FromAny(e.NBT)
		if err != nil {
			return nil, fmt.Errorf("%w: entity %d: %v", ErrBadDocument, i, err)
		}
		if data == nil {
			data = nbtdoc.Compound{}
		}
		entities = append(entities, blueprint.EntityRecord{
			Pos:      geom.Vec3{e.Pos[0], e.Pos[1], e.Pos[2]},
			BlockPos: geom.BlockPos{X: int(e.BlockPos[0]), Y: int(e.BlockPos[1]), Z: int(e.BlockPos[2])},
			Data:     data,
		})
	}

	bp, err := blueprint.New(size, doc.Author, variants, entities, c.shapes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDocument, err)
	}
	return bp, nil
}
