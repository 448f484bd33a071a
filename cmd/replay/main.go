package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/persistence/blueprintstore"
	auditlog "voxelstamp.ai/internal/persistence/log"
	"voxelstamp.ai/internal/persistence/snapshot"
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/tuning"
	"voxelstamp.ai/internal/sim/world"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/codec"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/placement"
	"voxelstamp.ai/internal/structure/randx"
)

// replay re-applies audited placements on top of a snapshot and, given -expect,
// checks that every chunk of the expected snapshot comes out identical.
func main() {
	var (
		snapPath   = flag.String("snapshot", "", "base snapshot (.snap.zst)")
		expectPath = flag.String("expect", "", "snapshot the replay should reproduce (optional)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		auditDir   = flag.String("audit", "", "audit dir (optional; defaults to paths.audit_dir)")
		outPath    = flag.String("out", "", "write the replayed world here (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "replay"})
	logger.SetLevel(log.WarnLevel)

	tune, err := tuning.Load(*tuningPath)
	if errors.Is(err, os.ErrNotExist) {
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		fail("load tuning:", err)
	}
	if *auditDir == "" {
		*auditDir = tune.Paths.AuditDir
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fail("read snapshot:", err)
	}
	fmt.Printf("snapshot v%d seed=%d terrain=%s saved=%s chunks=%d block_data=%d entities=%d\n",
		snap.Header.Version, snap.Gen.Seed, snap.Gen.Terrain, time.Unix(snap.Header.SavedAt, 0).UTC().Format(time.RFC3339),
		len(snap.Chunks), len(snap.BlockData), len(snap.Entities))

	cats, err := catalogs.Load(tune.Paths.Catalogs)
	if err != nil {
		fail("load catalogs:", err)
	}
	w, err := world.FromSnapshot(snap, cats, logger)
	if err != nil {
		fail("import snapshot:", err)
	}

	entries, err := auditlog.ReadPlacements(*auditDir)
	if err != nil {
		fail("read audit:", err)
	}
	since := time.Unix(snap.Header.SavedAt, 0)
	until := time.Now()
	if *expectPath != "" {
		h, err := snapshot.ReadHeader(*expectPath)
		if err != nil {
			fail("read expected header:", err)
		}
		until = time.Unix(h.SavedAt, 0)
	}

	store, err := blueprintstore.Open(tune.Paths.Blueprints, codec.New(&cats.Blocks, nil), blueprintstore.WithLogger(logger))
	if err != nil {
		fail("open store:", err)
	}
	r := &replayer{
		world:  w,
		store:  store,
		cats:   cats,
		tune:   tune,
		engine: placement.NewEngine(logger),
		cache:  map[string]*blueprint.Blueprint{},
	}
	applied, skipped := 0, 0
	for _, e := range entries {
		if e.Error != "" || e.At.Before(since) || e.At.After(until) {
			skipped++
			continue
		}
		if err := r.apply(e); err != nil {
			fail(fmt.Sprintf("replay %s at %v (%s):", e.Blueprint, e.Anchor, e.At.Format(time.RFC3339)), err)
		}
		applied++
	}

	if *expectPath != "" {
		checked, err := verify(w, *expectPath, cats, logger)
		if err != nil {
			fail("verify:", err)
		}
		fmt.Printf("verify ok: chunks=%d\n", checked)
	}
	if *outPath != "" {
		out, err := w.ExportSnapshot(until.UTC())
		if err != nil {
			fail("export:", err)
		}
		if err := snapshot.WriteSnapshot(*outPath, out); err != nil {
			fail("write:", err)
		}
	}
	fmt.Printf("replay ok: applied=%d skipped=%d\n", applied, skipped)
}

type replayer struct {
	world  *world.World
	store  *blueprintstore.Store
	cats   *catalogs.Catalogs
	tune   tuning.Tuning
	engine *placement.Engine
	cache  map[string]*blueprint.Blueprint
}

func (r *replayer) apply(e auditlog.PlacementAuditEntry) error {
	bp, ok := r.cache[e.Blueprint]
	if !ok {
		var err error
		if bp, err = r.store.Load(context.Background(), e.Blueprint); err != nil {
			return err
		}
		r.cache[e.Blueprint] = bp
	}

	s := r.tune.Placement.Settings()
	rot, err := geom.ParseRotation(e.Rotation)
	if err != nil {
		return err
	}
	mir, err := geom.ParseMirror(e.Mirror)
	if err != nil {
		return err
	}
	s.Rotation, s.Mirror = rot, mir
	s.Pivot = geom.BlockPos{X: e.Pivot[0], Y: e.Pivot[1], Z: e.Pivot[2]}
	if e.Processor != "" {
		list, ok := r.cats.Processors.ByID[e.Processor]
		if !ok {
			return fmt.Errorf("unknown processor list %q", e.Processor)
		}
		s.Processors = list
	}
	if e.Seed != nil {
		s.Random = randx.FromSeed(*e.Seed)
	}
	if e.Clip != nil {
		box := geom.BoxFromCorners(
			geom.BlockPos{X: e.Clip[0][0], Y: e.Clip[0][1], Z: e.Clip[0][2]},
			geom.BlockPos{X: e.Clip[1][0], Y: e.Clip[1][1], Z: e.Clip[1][2]})
		s.BoundingBox = &box
	}

	anchor := geom.BlockPos{X: e.Anchor[0], Y: e.Anchor[1], Z: e.Anchor[2]}
	res, err := r.engine.Place(r.world, anchor, anchor, bp, s, nil, r.tune.Placement.Flags())
	if err != nil {
		return err
	}
	if res.BlocksWritten != e.BlocksWritten || res.Variant != e.Variant {
		return fmt.Errorf("result mismatch: written=%d/%d variant=%d/%d", res.BlocksWritten, e.BlocksWritten, res.Variant, e.Variant)
	}
	return nil
}

func verify(w *world.World, path string, cats *catalogs.Catalogs, logger *log.Logger) (int, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return 0, err
	}
	want, err := world.FromSnapshot(snap, cats, logger)
	if err != nil {
		return 0, err
	}
	digests := want.ChunkDigests()
	keys := make([]world.ChunkKey, 0, len(digests))
	for k := range digests {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	for _, k := range keys {
		if got, exp := w.ChunkDigest(k), digests[k]; got != exp {
			return 0, fmt.Errorf("chunk %d,%d differs: got=%x want=%x", k.CX, k.CZ, got[:8], exp[:8])
		}
	}
	return len(keys), nil
}

func fail(a ...any) {
	fmt.Fprintln(os.Stderr, a...)
	os.Exit(1)
}
