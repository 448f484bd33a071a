package worldloop

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"voxelstamp.ai/internal/observerproto"
	"voxelstamp.ai/internal/persistence/blueprintstore"
	"voxelstamp.ai/internal/persistence/indexdb"
	auditlog "voxelstamp.ai/internal/persistence/log"
	"voxelstamp.ai/internal/protocol"
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/encoding"
	"voxelstamp.ai/internal/sim/tuning"
	"voxelstamp.ai/internal/sim/world"
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
)

type fakeSource map[string]*blueprint.Blueprint

func (f fakeSource) Load(_ context.Context, name string) (*blueprint.Blueprint, error) {
	bp, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blueprintstore.ErrNotFound, name)
	}
	return bp, nil
}

func (f fakeSource) List() ([]string, error) {
	return []string{"pillar", "wall"}, nil
}

type recorder struct {
	mu     sync.Mutex
	rows   []indexdb.PlacementRow
	audits []auditlog.PlacementAuditEntry
	events []observerproto.PlacementMsg
}

func (r *recorder) PublishPlacement(ev observerproto.PlacementMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) RecordPlacement(row indexdb.PlacementRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
}

func (r *recorder) WritePlacement(e auditlog.PlacementAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, e)
	return nil
}

type harness struct {
	loop *Loop
	w    *world.World
	rec  *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cats := catalogs.Default()
	gen := world.DefaultWorldGen()
	gen.Terrain = world.TerrainFlat
	gen.MinY, gen.MaxY, gen.SeaLevel = 0, 127, 64
	w := world.NewWorld(gen, cats, nil)

	entries := []blueprint.BlockEntry{
		{Pos: geom.BlockPos{}, State: blockstate.Of("stone")},
		{Pos: geom.BlockPos{X: 1}, State: blockstate.Of("stone_bricks")},
	}
	wall, err := blueprint.New(geom.BlockPos{X: 2, Y: 1, Z: 1}, "mason", [][]blueprint.BlockEntry{entries}, nil, &cats.Blocks)
	if err != nil {
		t.Fatalf("blueprint.New: %v", err)
	}

	rec := &recorder{}
	l := New(Config{
		World:      w,
		Blueprints: fakeSource{"wall": wall},
		Catalogs:   cats,
		Placement:  tuning.Defaults().Placement,
		Index:      rec,
		Audit:      rec,
		Events:     rec,
		QueueDepth: 4,
	})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return &harness{loop: l, w: w, rec: rec}
}

func (h *harness) submit(t *testing.T, msg any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.loop.Submit(ctx, "test", msg)
}

func wantError(t *testing.T, reply any, code string) {
	t.Helper()
	e, ok := reply.(protocol.ErrorMsg)
	if !ok {
		t.Fatalf("reply = %T %+v, want ERROR %s", reply, reply, code)
	}
	if e.Code != code {
		t.Fatalf("code = %s (%s), want %s", e.Code, e.Message, code)
	}
}

func TestPlace_WritesWorldAndRecords(t *testing.T) {
	h := newHarness(t)
	reply := h.submit(t, &protocol.PlaceMsg{
		ReqID:     "p1",
		Blueprint: "wall",
		Anchor:    [3]int{10, 100, 10},
		Rotation:  "cw_90",
	})
	res, ok := reply.(protocol.PlaceResultMsg)
	if !ok {
		t.Fatalf("reply = %T %+v", reply, reply)
	}
	if !res.Placed || res.BlocksWritten != 2 || res.ReqID != "p1" {
		t.Fatalf("result = %+v", res)
	}
	if !h.w.BlockAt(geom.BlockPos{X: 10, Y: 100, Z: 10}).Is("minecraft:stone") {
		t.Fatalf("origin block = %v", h.w.BlockAt(geom.BlockPos{X: 10, Y: 100, Z: 10}))
	}
	// A quarter turn clockwise moves +x to +z.
	if !h.w.BlockAt(geom.BlockPos{X: 10, Y: 100, Z: 11}).Is("minecraft:stone_bricks") {
		t.Fatalf("rotated block = %v", h.w.BlockAt(geom.BlockPos{X: 10, Y: 100, Z: 11}))
	}

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if len(h.rec.rows) != 1 || h.rec.rows[0].Rotation != "cw_90" || h.rec.rows[0].Blueprint != "wall" {
		t.Fatalf("rows = %+v", h.rec.rows)
	}
	if len(h.rec.audits) != 1 || h.rec.audits[0].Source != "test" || h.rec.audits[0].BlocksWritten != 2 {
		t.Fatalf("audits = %+v", h.rec.audits)
	}
	if len(h.rec.events) != 1 || h.rec.events[0].Touched == nil || h.rec.events[0].Touched[1] != [3]int{10, 100, 11} {
		t.Fatalf("events = %+v", h.rec.events)
	}
	if ext := h.rec.events[0].Extent; ext != [2][3]int{{10, 100, 10}, {10, 100, 11}} {
		t.Fatalf("event extent = %v", ext)
	}
}

func TestPlace_Errors(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		msg  *protocol.PlaceMsg
		code string
	}{
		{"missing blueprint", &protocol.PlaceMsg{Blueprint: "nope"}, protocol.ErrNotFound},
		{"bad rotation", &protocol.PlaceMsg{Blueprint: "wall", Anchor: [3]int{0, 100, 0}, Rotation: "sideways"}, protocol.ErrBadRequest},
		{"unknown processors", &protocol.PlaceMsg{Blueprint: "wall", Anchor: [3]int{0, 100, 0}, Processors: "nope"}, protocol.ErrNotFound},
		{"outside world", &protocol.PlaceMsg{Blueprint: "wall", Anchor: [3]int{0, 500, 0}}, protocol.ErrOutOfWorld},
		{"clip misses extent", &protocol.PlaceMsg{
			Blueprint: "wall",
			Anchor:    [3]int{0, 100, 0},
			Rotation:  "cw_90",
			Clip:      &protocol.Box{Min: [3]int{1, 100, 0}, Max: [3]int{5, 100, 0}},
		}, protocol.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wantError(t, h.submit(t, tc.msg), tc.code)
		})
	}
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if len(h.rec.rows) != 0 || len(h.rec.events) != 0 {
		t.Fatalf("failed placements recorded: %+v %+v", h.rec.rows, h.rec.events)
	}
	// Failures after the blueprint resolves are still audited.
	if len(h.rec.audits) != 4 || h.rec.audits[0].Error == "" {
		t.Fatalf("audits = %+v", h.rec.audits)
	}
}

func TestPlace_ClipDropsBlocks(t *testing.T) {
	h := newHarness(t)
	reply := h.submit(t, &protocol.PlaceMsg{
		Blueprint: "wall",
		Anchor:    [3]int{20, 100, 20},
		Clip:      &protocol.Box{Min: [3]int{20, 100, 20}, Max: [3]int{20, 100, 20}},
	})
	res, ok := reply.(protocol.PlaceResultMsg)
	if !ok {
		t.Fatalf("reply = %T %+v", reply, reply)
	}
	if res.BlocksWritten != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !h.w.BlockAt(geom.BlockPos{X: 21, Y: 100, Z: 20}).IsAir() {
		t.Fatalf("clipped block written")
	}
}

func TestFilter(t *testing.T) {
	h := newHarness(t)
	reply := h.submit(t, &protocol.FilterMsg{
		ReqID:       "f1",
		Blueprint:   "wall",
		Block:       "stone_bricks",
		Anchor:      [3]int{5, 70, 5},
		Transformed: true,
	})
	res, ok := reply.(protocol.FilterResultMsg)
	if !ok {
		t.Fatalf("reply = %T %+v", reply, reply)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].Pos != [3]int{6, 70, 5} || res.Blocks[0].State != "minecraft:stone_bricks" {
		t.Fatalf("blocks = %+v", res.Blocks)
	}
	// Filtering never writes.
	if !h.w.BlockAt(geom.BlockPos{X: 6, Y: 70, Z: 5}).IsAir() {
		t.Fatalf("filter wrote to the world")
	}
}

func TestScan(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.submit(t, &protocol.PlaceMsg{Blueprint: "wall", Anchor: [3]int{0, 90, 0}}).(protocol.PlaceResultMsg); !ok {
		t.Fatalf("place failed")
	}
	reply := h.submit(t, &protocol.ScanMsg{ReqID: "s1", Box: protocol.Box{Min: [3]int{0, 90, 0}, Max: [3]int{2, 91, 1}}})
	res, ok := reply.(protocol.ScanResultMsg)
	if !ok {
		t.Fatalf("reply = %T %+v", reply, reply)
	}
	if res.Size != [3]int{3, 2, 2} || res.Encoding != "RLE" {
		t.Fatalf("scan = %+v", res)
	}
	grid := encoding.Grid{Min: res.Min, Size: res.Size, Palette: res.Palette, Cells: res.Data}
	ids, err := grid.IDs()
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if s, _ := grid.StateAt(ids, geom.BlockPos{X: 1, Y: 90, Z: 0}); s != "minecraft:stone_bricks" {
		t.Fatalf("state at (1,90,0) = %q", s)
	}
	if s, _ := grid.StateAt(ids, geom.BlockPos{X: 2, Y: 91, Z: 1}); s != "minecraft:air" {
		t.Fatalf("state at (2,91,1) = %q", s)
	}

	wantError(t, h.submit(t, &protocol.ScanMsg{Box: protocol.Box{Max: [3]int{100, 100, 100}}}), protocol.ErrTooLarge)
}

func TestList(t *testing.T) {
	h := newHarness(t)
	reply := h.submit(t, &protocol.ListMsg{ReqID: "l1"})
	res, ok := reply.(protocol.ListResultMsg)
	if !ok {
		t.Fatalf("reply = %T %+v", reply, reply)
	}
	// "pillar" is listed but unreadable, so it is skipped.
	if len(res.Blueprints) != 1 || res.Blueprints[0].Name != "wall" || res.Blueprints[0].Blocks != 2 {
		t.Fatalf("list = %+v", res.Blueprints)
	}
}

func TestWelcome(t *testing.T) {
	h := newHarness(t)
	msg := h.loop.Welcome("sess-1", "abc")
	if msg.SessionID != "sess-1" || msg.WorldParams.Terrain != world.TerrainFlat || msg.Catalogs.TuningDigest != "abc" {
		t.Fatalf("welcome = %+v", msg)
	}
	if len(msg.Processors) == 0 || msg.Catalogs.BlockPalette.Count == 0 {
		t.Fatalf("welcome catalogs = %+v", msg.Catalogs)
	}
}

func TestSubmit_BusyWhenQueueFull(t *testing.T) {
	cats := catalogs.Default()
	gen := world.DefaultWorldGen()
	gen.Terrain = world.TerrainVoid
	l := New(Config{World: world.NewWorld(gen, cats, nil), Blueprints: fakeSource{}, QueueDepth: 1})
	// Not running: the queue fills and stays full.
	l.jobs <- job{resp: make(chan any, 1), msg: &protocol.ScanMsg{}}
	wantError(t, l.Submit(context.Background(), "test", &protocol.ScanMsg{ReqID: "s"}), protocol.ErrBusy)
	wantError(t, l.Submit(context.Background(), "test", "hello"), protocol.ErrBadRequest)
}

func TestSubmit_AfterStop(t *testing.T) {
	cats := catalogs.Default()
	gen := world.DefaultWorldGen()
	gen.Terrain = world.TerrainVoid
	l := New(Config{World: world.NewWorld(gen, cats, nil), Blueprints: fakeSource{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Run(ctx)
	wantError(t, l.Submit(context.Background(), "test", &protocol.ScanMsg{}), protocol.ErrBusy)
}

func TestSnapshot_SeesPlacedBlocks(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.submit(t, &protocol.PlaceMsg{Blueprint: "wall", Anchor: [3]int{40, 90, 40}}).(protocol.PlaceResultMsg); !ok {
		t.Fatalf("place failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := h.loop.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	restored, err := world.FromSnapshot(snap, catalogs.Default(), nil)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if !restored.BlockAt(geom.BlockPos{X: 41, Y: 90, Z: 40}).Is("minecraft:stone_bricks") {
		t.Fatalf("restored block = %v", restored.BlockAt(geom.BlockPos{X: 41, Y: 90, Z: 40}))
	}
	if m := h.loop.Metrics(); m.Placements != 1 || m.BlocksWritten != 2 || m.QueueDepth != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}
