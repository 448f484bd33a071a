package archive

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"voxelstamp.ai/internal/persistence/snapshot"
)

type DayArchiveMeta struct {
	Day       string `json:"day"`
	Seed      int64  `json:"seed"`
	Terrain   string `json:"terrain"`
	Snapshot  string `json:"snapshot"`
	SavedAt   int64  `json:"saved_at"`
	Chunks    int    `json:"chunks"`
	CreatedAt string `json:"created_at"`
}

// ArchiveDailySnapshot copies the first snapshot of each UTC day into
// `snapshotDir/archives/day_<YYYYMMDD>/`. Archived snapshots are never pruned and serve
// as replay bases. It returns archived=false when the day already has one.
func ArchiveDailySnapshot(snapshotDir, snapshotPath string, snap snapshot.WorldV1) (archivedPath string, archived bool, err error) {
	day := time.Unix(snap.Header.SavedAt, 0).UTC().Format("20060102")
	archiveDir := filepath.Join(snapshotDir, "archives", "day_"+day)
	if _, err := os.Stat(filepath.Join(archiveDir, "meta.json")); err == nil {
		return "", false, nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := DayArchiveMeta{
		Day:       day,
		Seed:      snap.Gen.Seed,
		Terrain:   snap.Gen.Terrain,
		Snapshot:  filepath.Base(dst),
		SavedAt:   snap.Header.SavedAt,
		Chunks:    snap.Header.Chunks,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	// meta.json last: its presence marks the day as done.
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// Prune deletes all but the newest keep snapshots directly under snapshotDir.
// keep <= 0 disables pruning.
func Prune(snapshotDir string, keep int) (removed []string, err error) {
	if keep <= 0 {
		return nil, nil
	}
	ents, err := os.ReadDir(snapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil, nil
	}
	// Names are save times in millis; compare by length first so lexical order holds.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	for _, n := range names[:len(names)-keep] {
		p := filepath.Join(snapshotDir, n)
		if err := os.Remove(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
