package log

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAuditLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WritePlacement(PlacementAuditEntry{Blueprint: "hut", Anchor: [3]int{1, 64, 2}, Placed: true, BlocksWritten: 12}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WritePlacement(PlacementAuditEntry{Blueprint: "tower", Error: "unknown blueprint"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "placements-*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("expected hourly rotation into 2 files, got %v", files)
	}
	got, err := ReadPlacements(dir)
	if err != nil {
		t.Fatalf("ReadPlacements: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries: %d", len(got))
	}
	if got[0].Blueprint != "hut" || got[0].BlocksWritten != 12 || !got[0].Placed {
		t.Fatalf("first entry: %+v", got[0])
	}
	if got[1].Error != "unknown blueprint" || !got[1].At.Equal(clock) {
		t.Fatalf("second entry: %+v", got[1])
	}
}
