package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/observerproto"
	"voxelstamp.ai/internal/persistence/archive"
	"voxelstamp.ai/internal/persistence/blueprintstore"
	"voxelstamp.ai/internal/persistence/indexdb"
	auditlog "voxelstamp.ai/internal/persistence/log"
	"voxelstamp.ai/internal/persistence/snapshot"
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/tuning"
	"voxelstamp.ai/internal/sim/world"
	"voxelstamp.ai/internal/sim/worldloop"
	"voxelstamp.ai/internal/structure/codec"
	"voxelstamp.ai/internal/transport/observer"
	"voxelstamp.ai/internal/transport/ws"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (empty for built-in defaults)")
		addr       = flag.String("addr", "", "http listen address (overrides server.addr)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index of blueprints and placements")

		snapPath   = flag.String("snapshot", "", "world snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume from the newest snapshot when -snapshot is empty")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "server",
		ReportTimestamp: true,
		TimeFormat:      time.StampMicro,
	})

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatal("load tuning", "err", err)
		}
		logger.Warn("tuning not found; using defaults", "path", *tuningPath)
		tune = tuning.Defaults()
	}
	logger.SetLevel(tune.Server.Level())
	if strings.TrimSpace(*addr) != "" {
		tune.Server.Addr = *addr
	}

	cats, err := catalogs.Load(tune.Paths.Catalogs)
	if err != nil {
		logger.Fatal("load catalogs", "err", err)
	}

	idx, err := openIndex(tune.Paths.IndexDB, *disableDB)
	if err != nil {
		logger.Fatal("open index", "err", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Warn("index: upsert catalogs", "err", err)
		}
	}

	w, err := openWorld(tune, cats, *snapPath, *loadLatest, logger)
	if err != nil {
		logger.Fatal("world", "err", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	storeOpts := []blueprintstore.Option{
		blueprintstore.WithLogger(logger.WithPrefix("blueprints")),
		blueprintstore.WithConcurrency(tune.Placement.LoadConcurrency),
	}
	if idx != nil {
		storeOpts = append(storeOpts, blueprintstore.WithIndex(idx))
	}
	store, err := blueprintstore.Open(tune.Paths.Blueprints, codec.New(&cats.Blocks, nil), storeOpts...)
	if err != nil {
		logger.Fatal("open blueprint store", "err", err)
	}
	if _, err := store.LoadAll(ctx); err != nil {
		logger.Fatal("load blueprints", "err", err)
	}

	audit := auditlog.NewAuditLogger(tune.Paths.AuditDir)
	defer audit.Close()

	obs := observer.NewServer(observerproto.WorldParams{
		Seed:      w.Gen().Seed,
		Terrain:   w.Gen().Terrain,
		MinY:      w.Gen().MinY,
		MaxY:      w.Gen().MaxY,
		SeaLevel:  w.Gen().SeaLevel,
		BoundaryR: w.Gen().BoundaryR,
	}, store, logger.WithPrefix("observer"))

	cfg := worldloop.Config{
		World:      w,
		Blueprints: store,
		Catalogs:   cats,
		Placement:  tune.Placement,
		Audit:      audit,
		Events:     obs,
		QueueDepth: tune.Server.QueueDepth,
		Logger:     logger.WithPrefix("loop"),
	}
	if idx != nil {
		cfg.Index = idx
	}
	loop := worldloop.New(cfg)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("world loop stopped", "err", err)
		}
	}()

	if every := tune.World.SnapshotEvery(); every > 0 {
		go func() {
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					snap, err := loop.Snapshot(ctx)
					if err != nil {
						if ctx.Err() == nil {
							logger.Warn("snapshot", "err", err)
						}
						continue
					}
					writeSnapshot(tune.Paths.Snapshots, tune.World.SnapshotKeep, snap, logger)
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, loop.Metrics(), idx.Stats())
		fmt.Fprintf(rw, "# HELP voxelstamp_observers Connected observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE voxelstamp_observers gauge\n")
		fmt.Fprintf(rw, "voxelstamp_observers %d\n", obs.Subscribers())
		fmt.Fprintf(rw, "# HELP voxelstamp_observer_dropped_total Events dropped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE voxelstamp_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelstamp_observer_dropped_total %d\n", obs.Dropped())
	})

	if envBool("VS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			names, _ := store.List()
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(struct {
				Seed       int64             `json:"seed"`
				Terrain    string            `json:"terrain"`
				Blueprints []string          `json:"blueprints"`
				Metrics    worldloop.Metrics `json:"metrics"`
				Index      indexdb.Stats     `json:"index"`
			}{
				Seed:       tune.World.Seed,
				Terrain:    tune.World.Terrain,
				Blueprints: names,
				Metrics:    loop.Metrics(),
				Index:      idx.Stats(),
			})
		})
		mux.HandleFunc("/admin/v1/placements", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusServiceUnavailable)
				return
			}
			rows, err := idx.Placements(r.Context(), r.URL.Query().Get("blueprint"))
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(rows)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			snap, err := loop.Snapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			path := writeSnapshot(tune.Paths.Snapshots, tune.World.SnapshotKeep, snap, logger)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": path != "", "path": path, "chunks": snap.Header.Chunks})
		})
		mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())
	} else {
		logger.Info("admin endpoints disabled (VS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(loop, logger.WithPrefix("ws"), ws.Options{
		TuningDigest:    tune.Digest(),
		MaxMessageBytes: tune.Server.MaxMessageBytes,
		MaxInFlight:     tune.Server.QueueDepth,
	}).Handler())

	srv := &http.Server{
		Addr:              tune.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", "addr", tune.Server.Addr, "seed", tune.World.Seed, "terrain", tune.World.Terrain)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ListenAndServe", "err", err)
		cancel()
	}

	// The loop has exited, so the world is ours for the final snapshot.
	<-loopDone
	snap, err := w.ExportSnapshot(time.Now().UTC())
	if err != nil {
		logger.Error("final snapshot", "err", err)
		return
	}
	writeSnapshot(tune.Paths.Snapshots, tune.World.SnapshotKeep, snap, logger)
}

func openWorld(tune tuning.Tuning, cats *catalogs.Catalogs, snapPath string, loadLatest bool, logger *log.Logger) (*world.World, error) {
	path := strings.TrimSpace(snapPath)
	if path == "" && loadLatest {
		path = snapshot.Latest(tune.Paths.Snapshots)
	}
	wlog := logger.WithPrefix("world")
	if path == "" {
		return world.NewWorld(tune.World.Gen(), cats, wlog), nil
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Gen.Seed != tune.World.Seed || snap.Gen.Terrain != tune.World.Terrain {
		logger.Warn("snapshot world differs from tuning; snapshot wins",
			"snapshot_seed", snap.Gen.Seed, "snapshot_terrain", snap.Gen.Terrain,
			"tuning_seed", tune.World.Seed, "tuning_terrain", tune.World.Terrain)
	}
	w, err := world.FromSnapshot(snap, cats, wlog)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	logger.Info("resumed from snapshot", "path", filepath.Base(path), "chunks", snap.Header.Chunks)
	return w, nil
}

// writeSnapshot returns the written path, or "" after logging a failure.
// writeSnapshot saves snap, archives the first one of each day and prunes old ones.
func writeSnapshot(dir string, keep int, snap snapshot.WorldV1, logger *log.Logger) string {
	path := filepath.Join(dir, snapshot.FileName(time.Unix(snap.Header.SavedAt, 0)))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Error("snapshot write", "err", err)
		return ""
	}
	logger.Info("snapshot written", "path", path, "chunks", snap.Header.Chunks)
	if dst, ok, err := archive.ArchiveDailySnapshot(dir, path, snap); err != nil {
		logger.Warn("snapshot archive", "err", err)
	} else if ok {
		logger.Info("snapshot archived", "path", dst)
	}
	if removed, err := archive.Prune(dir, keep); err != nil {
		logger.Warn("snapshot prune", "err", err)
	} else if len(removed) > 0 {
		logger.Debug("snapshots pruned", "count", len(removed))
	}
	return path
}

func writeMetrics(rw http.ResponseWriter, m worldloop.Metrics, s indexdb.Stats) {
	fmt.Fprintf(rw, "# HELP voxelstamp_placements_total Placements that ran to completion.\n")
	fmt.Fprintf(rw, "# TYPE voxelstamp_placements_total counter\n")
	fmt.Fprintf(rw, "voxelstamp_placements_total %d\n", m.Placements)

	fmt.Fprintf(rw, "# HELP voxelstamp_placement_errors_total Placements rejected or failed.\n")
	fmt.Fprintf(rw, "# TYPE voxelstamp_placement_errors_total counter\n")
	fmt.Fprintf(rw, "voxelstamp_placement_errors_total %d\n", m.PlacementErrors)

	fmt.Fprintf(rw, "# HELP voxelstamp_blocks_written_total Blocks written by placements.\n")
	fmt.Fprintf(rw, "# TYPE voxelstamp_blocks_written_total counter\n")
	fmt.Fprintf(rw, "voxelstamp_blocks_written_total %d\n", m.BlocksWritten)

	fmt.Fprintf(rw, "# HELP voxelstamp_entities_placed_total Entities added by placements.\n")
	fmt.Fprintf(rw, "# TYPE voxelstamp_entities_placed_total counter\n")
	fmt.Fprintf(rw, "voxelstamp_entities_placed_total %d\n", m.EntitiesPlaced)

	fmt.Fprintf(rw, "# HELP voxelstamp_scans_total Scan requests served.\n")
	fmt.Fprintf(rw, "# TYPE voxelstamp_scans_total counter\n")
	fmt.Fprintf(rw, "voxelstamp_scans_total %d\n", m.Scans)

	fmt.Fprintf(rw, "# HELP voxelstamp_queue_depth Requests waiting for the world loop.\n")
	fmt.Fprintf(rw, "# TYPE voxelstamp_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelstamp_queue_depth{queue=%q} %d\n", "world", m.QueueDepth)
	fmt.Fprintf(rw, "voxelstamp_queue_depth{queue=%q} %d\n", "index", s.Queued)

	fmt.Fprintf(rw, "# HELP voxelstamp_index_dropped_total Index rows dropped because the writer fell behind.\n")
	fmt.Fprintf(rw, "# TYPE voxelstamp_index_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelstamp_index_dropped_total{table=%q} %d\n", "blueprints", s.DropBlueprintTotal)
	fmt.Fprintf(rw, "voxelstamp_index_dropped_total{table=%q} %d\n", "placements", s.DropPlacementTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
