package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

const ext = ".snap.zst"

type Header struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"`
	SavedAt int64 `json:"saved_at"`
	Chunks  int   `json:"chunks"`
}

// WorldV1 is the full state of an in-memory world. Section cells index States.
type WorldV1 struct {
	Header Header `json:"header"`

	Gen       GenV1         `json:"gen"`
	States    []string      `json:"states"`
	Chunks    []ChunkV1     `json:"chunks"`
	BlockData []BlockDataV1 `json:"block_data"`
	Entities  []EntityV1    `json:"entities"`
}

type GenV1 struct {
	Seed            int64  `json:"seed"`
	Terrain         string `json:"terrain"`
	MinY            int    `json:"min_y"`
	MaxY            int    `json:"max_y"`
	SeaLevel        int    `json:"sea_level"`
	BoundaryR       int    `json:"boundary_r"`
	BiomeRegionSize int    `json:"biome_region_size"`
	ReliefBlocks    int    `json:"relief_blocks"`
	StumpPermille   int    `json:"stump_permille"`
	GravelPermille  int    `json:"gravel_permille"`
}

type ChunkV1 struct {
	CX       int         `json:"cx"`
	CZ       int         `json:"cz"`
	Sections []SectionV1 `json:"sections"`
}

type SectionV1 struct {
	Y      int      `json:"y"`
	Blocks []uint16 `json:"blocks"`
}

// BlockDataV1 and EntityV1 carry their compounds as unnamed binary NBT roots.
type BlockDataV1 struct {
	Pos [3]int `json:"pos"`
	NBT []byte `json:"nbt"`
}

type EntityV1 struct {
	ID  string `json:"id"`
	NBT []byte `json:"nbt"`
}

// FileName names a snapshot by its save time so lexical order is save order.
func FileName(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixMilli(), 10) + ext
}

func WriteSnapshot(path string, snap WorldV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap WorldV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (WorldV1, error) {
	var snap WorldV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools; gob repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// Latest returns the newest snapshot in dir, or "" when there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestAt int64
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		at, err := strconv.ParseInt(strings.TrimSuffix(e.Name(), ext), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || at > bestAt {
			bestAt = at
			best = filepath.Join(dir, e.Name())
		}
	}
	return best
}
