package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/tuning"
)

func TestSQLiteIndex_Blueprints(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	idx.UpsertBlueprint(BlueprintRow{Name: "tower", Digest: "aa", Size: [3]int{3, 9, 3}, Palettes: 1, Blocks: 40})
	idx.UpsertBlueprint(BlueprintRow{Name: "hut", Digest: "bb", Size: [3]int{5, 4, 5}, Palettes: 2, Blocks: 60, Entities: 1, Author: "mason"})
	idx.UpsertBlueprint(BlueprintRow{Name: "tower", Digest: "cc", Size: [3]int{3, 10, 3}, Palettes: 1, Blocks: 45})

	ctx := context.Background()
	rows, err := idx.Blueprints(ctx)
	if err != nil {
		t.Fatalf("Blueprints: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "hut" || rows[1].Name != "tower" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Author != "mason" || rows[0].Entities != 1 || rows[0].Palettes != 2 {
		t.Fatalf("hut = %+v", rows[0])
	}
	if rows[1].Digest != "cc" || rows[1].Size != [3]int{3, 10, 3} {
		t.Fatalf("tower not replaced: %+v", rows[1])
	}

	idx.DeleteBlueprint("tower")
	rows, err = idx.Blueprints(ctx)
	if err != nil {
		t.Fatalf("Blueprints: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("after delete: %+v", rows)
	}
}

func TestSQLiteIndex_Placements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	idx.RecordPlacement(PlacementRow{Blueprint: "hut", Anchor: [3]int{1, 64, 1}, Rotation: "none", Mirror: "none", Placed: true, BlocksWritten: 60, At: at})
	idx.RecordPlacement(PlacementRow{Blueprint: "tower", Anchor: [3]int{9, 64, 9}, Rotation: "cw_90", Mirror: "none", Placed: true, BlocksWritten: 45, At: at})
	idx.RecordPlacement(PlacementRow{Blueprint: "hut", Anchor: [3]int{30, 64, 1}, Rotation: "cw_180", Mirror: "across_x", Placed: false, At: at.Add(time.Second)})

	got, err := idx.Placements(context.Background(), "hut")
	if err != nil {
		t.Fatalf("Placements: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("hut placements = %+v", got)
	}
	if got[0].BlocksWritten != 60 || got[1].Placed || got[1].Mirror != "across_x" {
		t.Fatalf("placements = %+v", got)
	}
	all, err := idx.Placements(context.Background(), "")
	if err != nil || len(all) != 3 {
		t.Fatalf("all placements = %d, %v", len(all), err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM placements WHERE x=30 AND y=64 AND z=1`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 1 {
		t.Fatalf("indexed columns: %d rows", n)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	cats := catalogs.Default()
	if err := idx.UpsertCatalogs(cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	d, err := idx.CatalogDigest(context.Background(), "blocks_defs")
	if err != nil {
		t.Fatalf("CatalogDigest: %v", err)
	}
	if d != cats.Blocks.DefsDigest {
		t.Fatalf("digest = %q want %q", d, cats.Blocks.DefsDigest)
	}
	if d, _ := idx.CatalogDigest(context.Background(), "missing"); d != "" {
		t.Fatalf("missing row digest = %q", d)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqSync, done: make(chan struct{})}

	s.UpsertBlueprint(BlueprintRow{Name: "a"})
	s.DeleteBlueprint("a")
	s.RecordPlacement(PlacementRow{Blueprint: "a"})

	st := s.Stats()
	if st.DropBlueprintTotal != 2 || st.DropPlacementTotal != 1 || st.Queued != 1 {
		t.Fatalf("stats = %+v", st)
	}

	var nilIdx *SQLiteIndex
	nilIdx.RecordPlacement(PlacementRow{})
	if nilIdx.Stats() != (Stats{}) {
		t.Fatalf("nil index stats")
	}
}
