package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"voxelstamp.ai/internal/persistence/indexdb"
	auditlog "voxelstamp.ai/internal/persistence/log"
	"voxelstamp.ai/internal/sim/tuning"
	"voxelstamp.ai/internal/structure/geom"
)

var catalogRows = []string{"blocks_palette", "blocks_defs", "entities", "processor_lists", "tuning"}

// dbCmd queries the index: blueprints (default), placements or catalogs.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to paths.index_db)")
	name := fs.String("blueprint", "", "blueprint filter (placements)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "blueprints"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			tune = tuning.Defaults()
		}
		path = tune.Paths.IndexDB
	}
	if *limit <= 0 {
		*limit = 20
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fail(1, "open:", err)
	}
	defer idx.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "blueprints":
		rows, err := idx.Blueprints(ctx)
		if err != nil {
			fail(1, "query:", err)
		}
		for i, r := range rows {
			if i >= *limit {
				break
			}
			printJSON(r)
		}
	case "placements":
		rows, err := idx.Placements(ctx, *name)
		if err != nil {
			fail(1, "query:", err)
		}
		// Newest last in storage; show the tail.
		if len(rows) > *limit {
			rows = rows[len(rows)-*limit:]
		}
		for _, r := range rows {
			printJSON(r)
		}
	case "catalogs":
		for _, n := range catalogRows {
			d, err := idx.CatalogDigest(ctx, n)
			if err != nil {
				fail(1, "query:", err)
			}
			fmt.Printf("%-16s %s\n", n, d)
		}
	default:
		fail(2, "unknown query:", q, "(want blueprints|placements|catalogs)")
	}
}

// auditCmd prints audit entries whose anchor falls in -aabb, optionally for one blueprint.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	dir := fs.String("dir", "", "audit directory (optional; defaults to paths.audit_dir)")
	name := fs.String("blueprint", "", "blueprint filter")
	aabb := fs.String("aabb", "", "anchor filter x1,y1,z1:x2,y2,z2 (optional)")
	failed := fs.Bool("failed", false, "only failed placements")
	_ = fs.Parse(args)

	d := strings.TrimSpace(*dir)
	if d == "" {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			tune = tuning.Defaults()
		}
		d = tune.Paths.AuditDir
	}
	var box *geom.Box
	if strings.TrimSpace(*aabb) != "" {
		b, err := parseAABB(*aabb)
		if err != nil {
			fail(2, "bad -aabb:", err)
		}
		box = &b
	}

	entries, err := auditlog.ReadPlacements(d)
	if err != nil {
		fail(1, "read audit:", err)
	}
	n := 0
	for _, e := range entries {
		if *name != "" && e.Blueprint != *name {
			continue
		}
		if *failed && e.Error == "" {
			continue
		}
		if box != nil && !box.Contains(geom.BlockPos{X: e.Anchor[0], Y: e.Anchor[1], Z: e.Anchor[2]}) {
			continue
		}
		printJSON(e)
		n++
	}
	fmt.Printf("%d of %d entries\n", n, len(entries))
}

func parseAABB(s string) (geom.Box, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return geom.Box{}, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := geom.ParseBlockPos(parts[0])
	if err != nil {
		return geom.Box{}, err
	}
	b, err := geom.ParseBlockPos(parts[1])
	if err != nil {
		return geom.Box{}, err
	}
	return geom.BoxFromCorners(a, b), nil
}
