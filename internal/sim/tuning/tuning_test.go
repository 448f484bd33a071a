package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelstamp.ai/internal/structure/level"
)

func TestLoad_TuningYAML(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if tune.Server.Addr != ":8080" || tune.World.SeaLevel != 62 {
		t.Fatalf("unexpected tuning: %+v", tune)
	}
	if got := tune.Placement.Flags(); got != level.UpdateNeighbors|level.UpdateClients {
		t.Fatalf("flags = %b", got)
	}
	s := tune.Placement.Settings()
	if !s.KeepLiquids || !s.FinalizeEntities || s.KnownShape {
		t.Fatalf("settings = %+v", s)
	}
	if tune.World.SnapshotEvery() != 5*time.Minute || tune.Paths.Snapshots != "./data/snapshots" {
		t.Fatalf("snapshots = %+v %+v", tune.World, tune.Paths)
	}
	if tune.Digest() != Defaults().Digest() {
		t.Fatalf("tuning.yaml drifted from defaults")
	}
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	tune, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.Placement.LoadConcurrency != 4 || tune.World.Terrain != "noise" {
		t.Fatalf("defaults = %+v", tune)
	}
}

func TestLoad_PartialOverridesKeepDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "world:\n  terrain: FLAT\n  seed: 7\nserver:\n  log_level: Debug\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.World.Terrain != "flat" || tune.World.Seed != 7 || tune.World.MaxY != 319 {
		t.Fatalf("world = %+v", tune.World)
	}
	if tune.Server.LogLevel != "debug" || tune.Server.Addr != ":8080" {
		t.Fatalf("server = %+v", tune.Server)
	}
	gen := tune.World.Gen()
	if gen.Seed != 7 || gen.Terrain != "flat" || gen.SeaLevel != 62 {
		t.Fatalf("gen = %+v", gen)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Tuning)
		want string
	}{
		{"terrain", func(t *Tuning) { t.World.Terrain = "islands" }, "world.terrain"},
		{"height", func(t *Tuning) { t.World.MaxY = t.World.MinY }, "max_y"},
		{"sea", func(t *Tuning) { t.World.SeaLevel = 1000 }, "sea_level"},
		{"flag", func(t *Tuning) { t.Placement.UpdateFlags = []string{"teleport"} }, "update_flags"},
		{"level", func(t *Tuning) { t.Server.LogLevel = "loud" }, "log_level"},
		{"snapshots", func(t *Tuning) { t.World.SnapshotEverySeconds = -1 }, "snapshot_every_seconds"},
		{"snapshot keep", func(t *Tuning) { t.World.SnapshotKeep = -1 }, "snapshot_keep"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tune := Defaults()
			tc.mut(&tune)
			err := tune.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
