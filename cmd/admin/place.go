package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"

	"github.com/schollz/progressbar/v3"

	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/placement"
	"voxelstamp.ai/internal/structure/randx"
)

type placeFlags struct {
	rotation   *string
	mirror     *string
	processors *string
	seed       *int64
}

func addPlaceFlags(fs *flag.FlagSet) placeFlags {
	return placeFlags{
		rotation:   fs.String("rotation", "none", "none|cw_90|cw_180|ccw_90"),
		mirror:     fs.String("mirror", "none", "none|left_right|front_back"),
		processors: fs.String("processors", "", "processor list id (optional)"),
		seed:       fs.Int64("seed", 0, "placement seed (0 derives one from the anchor)"),
	}
}

func (f placeFlags) settings(e *env) placement.Settings {
	s := e.tune.Placement.Settings()
	r, err := geom.ParseRotation(*f.rotation)
	if err != nil {
		fail(2, "bad -rotation:", err)
	}
	m, err := geom.ParseMirror(*f.mirror)
	if err != nil {
		fail(2, "bad -mirror:", err)
	}
	s.Rotation, s.Mirror = r, m
	if *f.processors != "" {
		list, ok := e.cats.Processors.ByID[*f.processors]
		if !ok {
			fail(2, "unknown processor list:", *f.processors)
		}
		s.Processors = list
	}
	if *f.seed != 0 {
		s.Random = randx.FromSeed(*f.seed)
	}
	return s
}

func placeCmd(args []string) {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	name := fs.String("name", "", "blueprint name (required)")
	at := fs.String("at", "", "anchor x,y,z (required)")
	snapPath := fs.String("snapshot", "", "snapshot to place into (optional; defaults to latest)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	pf := addPlaceFlags(fs)
	_ = fs.Parse(args)
	requireFlag("name", *name)
	requireFlag("at", *at)

	anchor, err := geom.ParseBlockPos(*at)
	if err != nil {
		fail(2, "bad -at:", err)
	}
	e := openEnv(*tuningPath)
	bp, err := e.store.Load(context.Background(), *name)
	if err != nil {
		fail(1, "load:", err)
	}
	w, from := e.loadWorld(*snapPath)
	if !w.Contains(anchor) {
		fail(2, "anchor outside world:", anchor)
	}

	settings := pf.settings(e)
	res, err := placement.NewEngine(e.logger).Place(w, anchor, anchor, bp, settings, nil, e.tune.Placement.Flags())
	if err != nil {
		fail(1, "place:", err)
	}
	out := e.saveWorld(w, *outPath)
	fmt.Printf("place ok: blueprint=%s anchor=%s rotation=%s mirror=%s variant=%d written=%d dropped=%d entities=%d from=%s out=%s\n",
		*name, anchor, settings.Rotation, settings.Mirror, res.Variant, res.BlocksWritten, res.BlocksDropped, res.EntitiesPlaced, orNew(from), out)
}

// scatterCmd drops count copies of a blueprint on the surface around a center column,
// each with a random rotation.
func scatterCmd(args []string) {
	fs := flag.NewFlagSet("scatter", flag.ExitOnError)
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	name := fs.String("name", "", "blueprint name (required)")
	center := fs.String("center", "0,0,0", "center x,y,z (y is ignored)")
	radius := fs.Int("radius", 64, "scatter radius in blocks")
	count := fs.Int("count", 16, "number of placements")
	scatterSeed := fs.Int64("scatter_seed", 1, "seed for positions and rotations")
	snapPath := fs.String("snapshot", "", "snapshot to place into (optional; defaults to latest)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	pf := addPlaceFlags(fs)
	_ = fs.Parse(args)
	requireFlag("name", *name)
	if *radius < 0 || *count < 1 {
		fail(2, "need -radius >= 0 and -count >= 1")
	}

	c, err := geom.ParseBlockPos(*center)
	if err != nil {
		fail(2, "bad -center:", err)
	}
	e := openEnv(*tuningPath)
	bp, err := e.store.Load(context.Background(), *name)
	if err != nil {
		fail(1, "load:", err)
	}
	w, from := e.loadWorld(*snapPath)
	base := pf.settings(e)
	eng := placement.NewEngine(e.logger)
	flags := e.tune.Placement.Flags()
	rng := rand.New(rand.NewSource(*scatterSeed))

	var placed, written, skipped int
	bar := progressbar.Default(int64(*count), "placing "+*name)
	for i := 0; i < *count; i++ {
		x := c.X + rng.Intn(2**radius+1) - *radius
		z := c.Z + rng.Intn(2**radius+1) - *radius
		anchor := geom.BlockPos{X: x, Y: w.Height(level.WorldSurface, x, z), Z: z}
		settings := base.Clone()
		settings.Rotation = geom.NormalizeRotation(rng.Intn(4))
		settings.Pivot = geom.BlockPos{X: bp.Size().X / 2, Z: bp.Size().Z / 2}
		if !w.Contains(anchor) {
			skipped++
			_ = bar.Add(1)
			continue
		}
		res, err := eng.Place(w, anchor, anchor, bp, settings, nil, flags)
		if err != nil {
			_ = bar.Finish()
			fail(1, "place at", anchor, err)
		}
		if res.Placed {
			placed++
		}
		written += res.BlocksWritten
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	out := e.saveWorld(w, *outPath)
	fmt.Printf("\nscatter ok: blueprint=%s placed=%d skipped=%d written=%d from=%s out=%s\n",
		*name, placed, skipped, written, orNew(from), out)
}

func captureCmd(args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	name := fs.String("name", "", "blueprint name to save as (required)")
	from := fs.String("from", "", "origin x,y,z (required)")
	size := fs.String("size", "", "size x,y,z (required)")
	author := fs.String("author", "", "author recorded in the blueprint")
	entities := fs.Bool("entities", true, "capture entities inside the region")
	ignore := fs.String("ignore", "minecraft:structure_void", "block type left out of the capture")
	snapPath := fs.String("snapshot", "", "snapshot to capture from (optional; defaults to latest)")
	_ = fs.Parse(args)
	requireFlag("name", *name)
	requireFlag("from", *from)
	requireFlag("size", *size)

	origin, err := geom.ParseBlockPos(*from)
	if err != nil {
		fail(2, "bad -from:", err)
	}
	sz, err := geom.ParseBlockPos(*size)
	if err != nil {
		fail(2, "bad -size:", err)
	}
	ign, err := blockstate.Parse(*ignore)
	if err != nil {
		fail(2, "bad -ignore:", err)
	}
	e := openEnv(*tuningPath)
	w, src := e.loadWorld(*snapPath)
	bp, err := blueprint.Capture(w, origin, sz, *entities, ign, *author)
	if err != nil {
		fail(1, "capture:", err)
	}
	if err := e.store.Save(context.Background(), *name, bp); err != nil {
		fail(1, "save:", err)
	}
	fmt.Printf("capture ok: name=%s origin=%s size=%s blocks=%d entities=%d from=%s\n",
		*name, origin, sz, bp.BlockCount(), len(bp.Entities()), orNew(src))
}

func orNew(path string) string {
	if path == "" {
		return "(generated)"
	}
	return path
}
