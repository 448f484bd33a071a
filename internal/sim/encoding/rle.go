// Package encoding packs scanned block grids for the wire.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"voxelstamp.ai/internal/structure/geom"
)

var ErrGridShape = errors.New("grid cells do not match its size")

// EncodeRLE encodes a sequence of palette ids into base64(varint pairs).
// The pairs are (palette_id, run_len) repeated.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. limit caps the decoded length; zero means no cap.
func DecodeRLE(b64 string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("palette id too large: %d", b)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("run overflows %d cells", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	return out, nil
}

// Grid is a scanned box: a local palette of state strings and run-length encoded
// palette ids, x fastest, then z, then y.
type Grid struct {
	Min     [3]int   `json:"min"`
	Size    [3]int   `json:"size"`
	Palette []string `json:"palette"`
	Cells   string   `json:"cells"`
}

func NewGrid(box geom.Box, palette []string, ids []uint16) (Grid, error) {
	if len(ids) != box.Volume() {
		return Grid{}, fmt.Errorf("%w: %d ids for volume %d", ErrGridShape, len(ids), box.Volume())
	}
	size := box.Size()
	return Grid{
		Min:     box.Min.ToArray(),
		Size:    size.ToArray(),
		Palette: palette,
		Cells:   EncodeRLE(ids),
	}, nil
}

func (g Grid) Volume() int { return g.Size[0] * g.Size[1] * g.Size[2] }

// IDs decodes the cells and checks them against the size and the palette.
func (g Grid) IDs() ([]uint16, error) {
	ids, err := DecodeRLE(g.Cells, g.Volume())
	if err != nil {
		return nil, err
	}
	if len(ids) != g.Volume() {
		return nil, fmt.Errorf("%w: %d cells for volume %d", ErrGridShape, len(ids), g.Volume())
	}
	for i, id := range ids {
		if int(id) >= len(g.Palette) {
			return nil, fmt.Errorf("cell %d: palette id %d out of range", i, id)
		}
	}
	return ids, nil
}

// StateAt returns the state string at world position p.
func (g Grid) StateAt(ids []uint16, p geom.BlockPos) (string, bool) {
	x, y, z := p.X-g.Min[0], p.Y-g.Min[1], p.Z-g.Min[2]
	if x < 0 || y < 0 || z < 0 || x >= g.Size[0] || y >= g.Size[1] || z >= g.Size[2] {
		return "", false
	}
	return g.Palette[ids[x+z*g.Size[0]+y*g.Size[0]*g.Size[2]]], true
}
