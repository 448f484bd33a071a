package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named <prefix>-<hour>.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// PlacementAuditEntry records one placement request and its outcome.
type PlacementAuditEntry struct {
	At        time.Time  `json:"at"`
	Source    string     `json:"source"`
	Blueprint string     `json:"blueprint"`
	Anchor    [3]int     `json:"anchor"`
	Pivot     [3]int     `json:"pivot"`
	Rotation  string     `json:"rotation"`
	Mirror    string     `json:"mirror"`
	Variant   int        `json:"variant"`
	Processor string     `json:"processors,omitempty"`
	Seed      *int64     `json:"seed,omitempty"`
	Clip      *[2][3]int `json:"clip,omitempty"`

	Placed          bool   `json:"placed"`
	BlocksWritten   int    `json:"blocks_written"`
	BlocksDropped   int    `json:"blocks_dropped"`
	EntitiesPlaced  int    `json:"entities_placed"`
	EntitiesSkipped int    `json:"entities_skipped"`
	Error           string `json:"error,omitempty"`
}

// AuditLogger writes placement audit entries (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(dir, "placements")}
}

func (l *AuditLogger) WritePlacement(v PlacementAuditEntry) error {
	if v.At.IsZero() {
		v.At = l.w.now().UTC()
	}
	return l.w.Write(v)
}

func (l *AuditLogger) Close() error { return l.w.Close() }

// ReadPlacements decodes every placement audit file in dir, oldest file first.
func ReadPlacements(dir string) ([]PlacementAuditEntry, error) {
	files, err := filepath.Glob(filepath.Join(dir, "placements-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []PlacementAuditEntry
	for _, path := range files {
		entries, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, entries...)
	}
	return out, nil
}

func readFile(path string) ([]PlacementAuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []PlacementAuditEntry
	jd := json.NewDecoder(dec)
	for {
		var e PlacementAuditEntry
		if err := jd.Decode(&e); err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
