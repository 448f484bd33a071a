package mcp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voxelstamp.ai/internal/persistence/blueprintstore"
	"voxelstamp.ai/internal/sidecar/bridge"
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/tuning"
	"voxelstamp.ai/internal/sim/world"
	"voxelstamp.ai/internal/sim/worldloop"
	"voxelstamp.ai/internal/structure/blockstate"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/transport/ws"
)

type memSource map[string]*blueprint.Blueprint

func (m memSource) Load(_ context.Context, name string) (*blueprint.Blueprint, error) {
	bp, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blueprintstore.ErrNotFound, name)
	}
	return bp, nil
}

func (m memSource) List() ([]string, error) {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out, nil
}

func TestMCP_Sidecar_EndToEnd_WS(t *testing.T) {
	cats := catalogs.Default()
	gen := world.DefaultWorldGen()
	gen.Terrain = world.TerrainFlat
	gen.MinY, gen.MaxY, gen.SeaLevel = 0, 127, 64
	w := world.NewWorld(gen, cats, nil)

	wall, err := blueprint.New(geom.BlockPos{X: 2, Y: 1, Z: 1}, "mason", [][]blueprint.BlockEntry{{
		{Pos: geom.BlockPos{}, State: blockstate.Of("stone")},
		{Pos: geom.BlockPos{X: 1}, State: blockstate.Of("stone_bricks")},
	}}, nil, &cats.Blocks)
	if err != nil {
		t.Fatalf("blueprint: %v", err)
	}

	loop := worldloop.New(worldloop.Config{
		World:      w,
		Blueprints: memSource{"wall": wall},
		Catalogs:   cats,
		Placement:  tuning.Defaults().Placement,
	})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	muxWorld := http.NewServeMux()
	muxWorld.HandleFunc("/v1/ws", ws.NewServer(loop, nil, ws.Options{TuningDigest: "t1"}).Handler())
	tsWorld := httptest.NewServer(muxWorld)
	defer tsWorld.Close()

	br, err := bridge.NewManager(bridge.Config{
		WorldWSURL:     "ws" + strings.TrimPrefix(tsWorld.URL, "http") + "/v1/ws",
		MaxSessions:    4,
		RequestTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	defer br.Close()

	mcpSrv, err := NewServer(Config{Bridge: br})
	if err != nil {
		t.Fatalf("mcp: %v", err)
	}
	tsMCP := httptest.NewServer(mcpSrv.Handler())
	defer tsMCP.Close()

	lr := callTool(t, tsMCP.URL, 1, "voxelstamp.list_blueprints", nil)
	if lr.Error != nil {
		t.Fatalf("list error: %+v", lr.Error)
	}
	list, _ := lr.Result.(map[string]any)
	bps, _ := list["blueprints"].([]any)
	if len(bps) != 1 {
		t.Fatalf("blueprints = %v", list["blueprints"])
	}

	pr := callTool(t, tsMCP.URL, 2, "voxelstamp.place", map[string]any{
		"blueprint": "wall",
		"anchor":    []int{10, 100, 10},
		"rotation":  "cw_90",
	})
	if pr.Error != nil {
		t.Fatalf("place error: %+v", pr.Error)
	}
	res, _ := pr.Result.(map[string]any)
	if res["type"] != "PLACE_RESULT" || res["blocks_written"] != float64(2) {
		t.Fatalf("place result = %v", res)
	}

	sr := callTool(t, tsMCP.URL, 3, "voxelstamp.scan", map[string]any{
		"box": map[string]any{"min": []int{10, 100, 10}, "max": []int{10, 100, 11}},
	})
	if sr.Error != nil {
		t.Fatalf("scan error: %+v", sr.Error)
	}
	scan, _ := sr.Result.(map[string]any)
	palette, _ := scan["palette"].([]any)
	joined := fmt.Sprint(palette)
	if !strings.Contains(joined, "stone_bricks") {
		t.Fatalf("scan palette = %v", palette)
	}

	er := callTool(t, tsMCP.URL, 4, "voxelstamp.place", map[string]any{"blueprint": "tower", "anchor": []int{0, 100, 0}})
	if er.Error == nil || er.Error.Code != -32000 {
		t.Fatalf("expected tool error, got %+v", er.Error)
	}

	st := callTool(t, tsMCP.URL, 5, "voxelstamp.get_status", nil)
	status, _ := st.Result.(map[string]any)
	if status["connected"] != true || status["session_id"] == "" {
		t.Fatalf("status = %v", status)
	}
}
