package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxelstamp.ai/internal/persistence/snapshot"
)

func TestArchiveDailySnapshot_OncePerDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	write := func(at time.Time) (string, snapshot.WorldV1) {
		p := filepath.Join(dir, snapshot.FileName(at))
		if err := os.WriteFile(p, []byte("dummy-"+at.String()), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return p, snapshot.WorldV1{
			Header: snapshot.Header{Version: snapshot.Version, SavedAt: at.Unix(), Chunks: 3},
			Gen:    snapshot.GenV1{Seed: 42, Terrain: "flat"},
		}
	}

	p1, s1 := write(day)
	dst, ok, err := ArchiveDailySnapshot(dir, p1, s1)
	if err != nil || !ok {
		t.Fatalf("first archive: ok=%v err=%v", ok, err)
	}
	want, _ := os.ReadFile(p1)
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != string(want) {
		t.Fatalf("archived copy mismatch: %q err=%v", got, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "archives", "day_20260304", "meta.json"))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	var meta DayArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	if meta.Seed != 42 || meta.Terrain != "flat" || meta.Snapshot != filepath.Base(p1) || meta.Chunks != 3 {
		t.Fatalf("meta = %+v", meta)
	}

	p2, s2 := write(day.Add(time.Hour))
	if _, ok, err := ArchiveDailySnapshot(dir, p2, s2); err != nil || ok {
		t.Fatalf("same day archived again: ok=%v err=%v", ok, err)
	}
	p3, s3 := write(day.Add(24 * time.Hour))
	if _, ok, err := ArchiveDailySnapshot(dir, p3, s3); err != nil || !ok {
		t.Fatalf("next day: ok=%v err=%v", ok, err)
	}
}

func TestPrune_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, snapshot.FileName(base.Add(time.Duration(i)*time.Minute)))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "archives"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	removed, err := Prune(dir, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("removed %d, want 3", len(removed))
	}
	if latest := snapshot.Latest(dir); latest != filepath.Join(dir, snapshot.FileName(base.Add(4*time.Minute))) {
		t.Fatalf("latest after prune = %s", latest)
	}
	if _, err := os.Stat(filepath.Join(dir, "archives")); err != nil {
		t.Fatalf("archives dir removed: %v", err)
	}
	if removed, _ := Prune(dir, 0); removed != nil {
		t.Fatalf("keep=0 pruned %v", removed)
	}
}
