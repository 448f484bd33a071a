package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/persistence/blueprintstore"
	"voxelstamp.ai/internal/persistence/snapshot"
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/tuning"
	"voxelstamp.ai/internal/sim/world"
	"voxelstamp.ai/internal/structure/codec"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "info":
			infoCmd(os.Args[2:])
			return
		case "place":
			placeCmd(os.Args[2:])
			return
		case "scatter":
			scatterCmd(os.Args[2:])
			return
		case "capture":
			captureCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// env is the offline view of a server's data directories.
type env struct {
	tune   tuning.Tuning
	cats   *catalogs.Catalogs
	store  *blueprintstore.Store
	logger *log.Logger
}

func openEnv(tuningPath string) *env {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "admin"})
	logger.SetLevel(log.WarnLevel)

	tune, err := tuning.Load(tuningPath)
	if errors.Is(err, os.ErrNotExist) {
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		fail(1, "load tuning:", err)
	}
	cats, err := catalogs.Load(tune.Paths.Catalogs)
	if err != nil {
		fail(1, "load catalogs:", err)
	}
	store, err := blueprintstore.Open(tune.Paths.Blueprints, codec.New(&cats.Blocks, nil),
		blueprintstore.WithLogger(logger),
		blueprintstore.WithConcurrency(tune.Placement.LoadConcurrency))
	if err != nil {
		fail(1, "open store:", err)
	}
	return &env{tune: tune, cats: cats, store: store, logger: logger}
}

// loadWorld resumes from path, or the newest snapshot, or a freshly generated world.
func (e *env) loadWorld(path string) (*world.World, string) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = snapshot.Latest(e.tune.Paths.Snapshots)
	}
	if path == "" {
		return world.NewWorld(e.tune.World.Gen(), e.cats, e.logger), ""
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fail(1, "read snapshot:", err)
	}
	w, err := world.FromSnapshot(snap, e.cats, e.logger)
	if err != nil {
		fail(1, "import snapshot:", err)
	}
	return w, path
}

func (e *env) saveWorld(w *world.World, out string) string {
	snap, err := w.ExportSnapshot(time.Now().UTC())
	if err != nil {
		fail(1, "export snapshot:", err)
	}
	if strings.TrimSpace(out) == "" {
		out = filepath.Join(e.tune.Paths.Snapshots, snapshot.FileName(time.Now().UTC()))
	}
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		fail(1, "write snapshot:", err)
	}
	return out
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	_ = fs.Parse(args)

	names, err := openEnv(*tuningPath).store.List()
	if err != nil {
		fail(1, "list:", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	name := fs.String("name", "", "blueprint name (required)")
	_ = fs.Parse(args)
	requireFlag("name", *name)

	e := openEnv(*tuningPath)
	bp, err := e.store.Load(context.Background(), *name)
	if err != nil {
		fail(1, "load:", err)
	}
	counts := map[string]int{}
	for _, b := range bp.Palette(0).Blocks() {
		counts[b.State.Name()]++
	}
	out := map[string]any{
		"name":     *name,
		"size":     bp.Size().ToArray(),
		"author":   bp.Author(),
		"variants": bp.VariantCount(),
		"blocks":   bp.BlockCount(),
		"entities": len(bp.Entities()),
		"palette":  counts,
		"digest":   e.store.Digest(*name),
	}
	printJSON(out)
}

func requireFlag(name, v string) {
	if strings.TrimSpace(v) == "" {
		fail(2, "missing -"+name)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(code int, a ...any) {
	fmt.Fprintln(os.Stderr, a...)
	os.Exit(code)
}
