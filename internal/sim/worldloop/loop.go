// Package worldloop owns the live world. Every request that reads or writes it runs on
// one goroutine, so a placement has exclusive use of its target volume.
package worldloop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/observerproto"
	"voxelstamp.ai/internal/persistence/blueprintstore"
	"voxelstamp.ai/internal/persistence/indexdb"
	auditlog "voxelstamp.ai/internal/persistence/log"
	"voxelstamp.ai/internal/persistence/snapshot"
	"voxelstamp.ai/internal/protocol"
	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/encoding"
	"voxelstamp.ai/internal/sim/tuning"
	"voxelstamp.ai/internal/sim/world"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/placement"
	"voxelstamp.ai/internal/structure/processor"
	"voxelstamp.ai/internal/structure/randx"
)

var (
	ErrBusy    = errors.New("world loop queue full")
	ErrStopped = errors.New("world loop stopped")
)

// BlueprintSource resolves blueprint names. *blueprintstore.Store satisfies it.
type BlueprintSource interface {
	Load(ctx context.Context, name string) (*blueprint.Blueprint, error)
	List() ([]string, error)
}

type PlacementRecorder interface {
	RecordPlacement(row indexdb.PlacementRow)
}

type AuditWriter interface {
	WritePlacement(e auditlog.PlacementAuditEntry) error
}

// EventSink receives placements that changed the world. It must not block.
type EventSink interface {
	PublishPlacement(ev observerproto.PlacementMsg)
}

type Config struct {
	World      *world.World
	Engine     *placement.Engine
	Blueprints BlueprintSource
	Catalogs   *catalogs.Catalogs
	Placement  tuning.Placement

	// Optional sinks.
	Index  PlacementRecorder
	Audit  AuditWriter
	Events EventSink

	QueueDepth    int
	MaxScanVolume int
	Logger        *log.Logger
}

type job struct {
	source string
	msg    any
	bp     *blueprint.Blueprint
	resp   chan any
}

type Loop struct {
	cfg  Config
	jobs chan job
	done chan struct{}

	placements      atomic.Uint64
	placementErrors atomic.Uint64
	blocksWritten   atomic.Uint64
	entitiesPlaced  atomic.Uint64
	scans           atomic.Uint64
}

// Metrics are running totals since start.
type Metrics struct {
	Placements      uint64 `json:"placements"`
	PlacementErrors uint64 `json:"placement_errors"`
	BlocksWritten   uint64 `json:"blocks_written"`
	EntitiesPlaced  uint64 `json:"entities_placed"`
	Scans           uint64 `json:"scans"`
	QueueDepth      int    `json:"queue_depth"`
}

func New(cfg Config) *Loop {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.MaxScanVolume <= 0 {
		cfg.MaxScanVolume = 64 * 64 * 64
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Engine == nil {
		cfg.Engine = placement.NewEngine(cfg.Logger)
	}
	return &Loop{
		cfg:  cfg,
		jobs: make(chan job, cfg.QueueDepth),
		done: make(chan struct{}),
	}
}

// Run serves queued requests until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	l.cfg.Logger.Info("world loop started", "seed", l.cfg.World.Gen().Seed, "terrain", l.cfg.World.Gen().Terrain)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-l.jobs:
			j.resp <- l.handle(j)
		}
	}
}

// Submit runs one request message and returns its reply. Blueprint loading and
// listing happen on the caller's goroutine; world access is queued to the loop.
func (l *Loop) Submit(ctx context.Context, source string, msg any) any {
	reqID := requestID(msg)
	j := job{source: source, msg: msg, resp: make(chan any, 1)}
	switch m := msg.(type) {
	case *protocol.ListMsg:
		return l.list(ctx, m)
	case *protocol.PlaceMsg:
		bp, err := l.cfg.Blueprints.Load(ctx, m.Blueprint)
		if err != nil {
			return errorReply(reqID, err)
		}
		j.bp = bp
	case *protocol.FilterMsg:
		bp, err := l.cfg.Blueprints.Load(ctx, m.Blueprint)
		if err != nil {
			return errorReply(reqID, err)
		}
		j.bp = bp
	case *protocol.ScanMsg:
	default:
		return protocol.NewError(reqID, protocol.ErrBadRequest, fmt.Sprintf("unsupported request %T", msg))
	}

	select {
	case l.jobs <- j:
	case <-l.done:
		return errorReply(reqID, ErrStopped)
	default:
		return errorReply(reqID, ErrBusy)
	}
	select {
	case r := <-j.resp:
		return r
	case <-l.done:
		return errorReply(reqID, ErrStopped)
	case <-ctx.Done():
		return errorReply(reqID, ctx.Err())
	}
}

type snapshotReq struct{ now time.Time }

type snapshotReply struct {
	snap snapshot.WorldV1
	err  error
}

// Snapshot captures the world between two requests.
func (l *Loop) Snapshot(ctx context.Context) (snapshot.WorldV1, error) {
	j := job{msg: snapshotReq{now: time.Now().UTC()}, resp: make(chan any, 1)}
	select {
	case l.jobs <- j:
	case <-l.done:
		return snapshot.WorldV1{}, ErrStopped
	case <-ctx.Done():
		return snapshot.WorldV1{}, ctx.Err()
	}
	select {
	case r := <-j.resp:
		rep := r.(snapshotReply)
		return rep.snap, rep.err
	case <-l.done:
		return snapshot.WorldV1{}, ErrStopped
	case <-ctx.Done():
		return snapshot.WorldV1{}, ctx.Err()
	}
}

// QueueDepth is the number of requests waiting for the loop.
func (l *Loop) QueueDepth() int { return len(l.jobs) }

// Metrics is safe to call from any goroutine.
func (l *Loop) Metrics() Metrics {
	return Metrics{
		Placements:      l.placements.Load(),
		PlacementErrors: l.placementErrors.Load(),
		BlocksWritten:   l.blocksWritten.Load(),
		EntitiesPlaced:  l.entitiesPlaced.Load(),
		Scans:           l.scans.Load(),
		QueueDepth:      len(l.jobs),
	}
}

func (l *Loop) handle(j job) any {
	switch m := j.msg.(type) {
	case snapshotReq:
		snap, err := l.cfg.World.ExportSnapshot(m.now)
		return snapshotReply{snap: snap, err: err}
	case *protocol.PlaceMsg:
		return l.place(j.source, m, j.bp)
	case *protocol.FilterMsg:
		return l.filter(m, j.bp)
	case *protocol.ScanMsg:
		return l.scan(m)
	}
	return protocol.NewError(requestID(j.msg), protocol.ErrInternal, "unroutable job")
}

// Welcome describes the world and catalogs to a new session.
func (l *Loop) Welcome(sessionID, tuningDigest string) protocol.WelcomeMsg {
	gen := l.cfg.World.Gen()
	cats := l.cfg.Catalogs
	msg := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldParams: protocol.WorldParams{
			Seed:     gen.Seed,
			Terrain:  gen.Terrain,
			MinY:     gen.MinY,
			MaxY:     gen.MaxY,
			SeaLevel: gen.SeaLevel,
		},
		Processors: []string{},
	}
	if cats != nil {
		msg.Catalogs = protocol.CatalogDigests{
			BlockPalette:     protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(cats.Blocks.Palette)},
			BlockDefsDigest:  cats.Blocks.DefsDigest,
			EntitiesDigest:   cats.Entities.Digest,
			ProcessorsDigest: cats.Processors.Digest,
			TuningDigest:     tuningDigest,
		}
		msg.Processors = cats.Processors.IDs()
	}
	return msg
}

func (l *Loop) list(ctx context.Context, m *protocol.ListMsg) any {
	names, err := l.cfg.Blueprints.List()
	if err != nil {
		return errorReply(m.ReqID, err)
	}
	out := protocol.ListResultMsg{
		Type:            protocol.TypeListResult,
		ProtocolVersion: protocol.Version,
		ReqID:           m.ReqID,
		Blueprints:      make([]protocol.BlueprintInfo, 0, len(names)),
	}
	for _, name := range names {
		bp, err := l.cfg.Blueprints.Load(ctx, name)
		if err != nil {
			l.cfg.Logger.Warn("list: blueprint unreadable", "name", name, "err", err)
			continue
		}
		out.Blueprints = append(out.Blueprints, protocol.BlueprintInfo{
			Name:     name,
			Size:     bp.Size().ToArray(),
			Palettes: bp.VariantCount(),
			Blocks:   bp.BlockCount(),
			Entities: len(bp.Entities()),
			Author:   bp.Author(),
		})
	}
	return out
}

func (l *Loop) place(source string, m *protocol.PlaceMsg, bp *blueprint.Blueprint) any {
	anchor := toPos(m.Anchor)
	audit := auditlog.PlacementAuditEntry{
		Source:    source,
		Blueprint: m.Blueprint,
		Anchor:    m.Anchor,
		Pivot:     m.Pivot,
		Processor: m.Processors,
		Seed:      m.Seed,
	}
	fail := func(code, msg string) any {
		l.placementErrors.Add(1)
		audit.Error = msg
		l.writeAudit(audit)
		return protocol.NewError(m.ReqID, code, msg)
	}

	settings, err := l.settingsFor(m.Rotation, m.Mirror, m.Pivot, m.Seed)
	if err != nil {
		return fail(protocol.ErrBadRequest, err.Error())
	}
	audit.Rotation, audit.Mirror = settings.Rotation.String(), settings.Mirror.String()
	if m.Processors != "" {
		var list []processor.Processor
		ok := false
		if l.cfg.Catalogs != nil {
			list, ok = l.cfg.Catalogs.Processors.ByID[m.Processors]
		}
		if !ok {
			return fail(protocol.ErrNotFound, fmt.Sprintf("unknown processor list %q", m.Processors))
		}
		settings.Processors = list
	}
	if m.Clip != nil {
		box := geom.BoxFromCorners(toPos(m.Clip.Min), toPos(m.Clip.Max))
		settings.BoundingBox = &box
		audit.Clip = &[2][3]int{box.Min.ToArray(), box.Max.ToArray()}
	}
	applyBool(&settings.IgnoreEntities, m.IgnoreEntities)
	applyBool(&settings.KeepLiquids, m.KeepLiquids)
	applyBool(&settings.KnownShape, m.KnownShape)
	applyBool(&settings.FinalizeEntities, m.FinalizeEntities)

	flags := l.cfg.Placement.Flags()
	if m.Flags != nil {
		p := tuning.Placement{UpdateFlags: m.Flags}
		flags = p.Flags()
	}
	if !l.cfg.World.Contains(anchor) {
		return fail(protocol.ErrOutOfWorld, fmt.Sprintf("anchor %v outside world", anchor))
	}
	extent := geom.BoundingBox(anchor, settings.Rotation, settings.Pivot, settings.Mirror, bp.Size())
	if settings.BoundingBox != nil && bp.BlockCount() > 0 && !settings.BoundingBox.Intersects(extent) {
		return fail(protocol.ErrBadRequest, fmt.Sprintf("clip %v..%v misses blueprint extent %v..%v",
			settings.BoundingBox.Min, settings.BoundingBox.Max, extent.Min, extent.Max))
	}

	res, err := l.cfg.Engine.Place(l.cfg.World, anchor, anchor, bp, settings, nil, flags)
	if err != nil {
		code := protocol.ErrInternal
		if errors.Is(err, processor.ErrMalformedFinalState) {
			code = protocol.ErrPlacement
		}
		l.cfg.Logger.Warn("placement failed", "blueprint", m.Blueprint, "anchor", anchor, "err", err)
		return fail(code, err.Error())
	}

	l.placements.Add(1)
	l.blocksWritten.Add(uint64(res.BlocksWritten))
	l.entitiesPlaced.Add(uint64(res.EntitiesPlaced))
	audit.Variant = res.Variant
	audit.Placed = res.Placed
	audit.BlocksWritten = res.BlocksWritten
	audit.BlocksDropped = res.BlocksDropped
	audit.EntitiesPlaced = res.EntitiesPlaced
	audit.EntitiesSkipped = res.EntitiesSkipped
	l.writeAudit(audit)
	if l.cfg.Index != nil {
		l.cfg.Index.RecordPlacement(indexdb.PlacementRow{
			Blueprint:      m.Blueprint,
			Anchor:         m.Anchor,
			Rotation:       audit.Rotation,
			Mirror:         audit.Mirror,
			Variant:        res.Variant,
			Placed:         res.Placed,
			BlocksWritten:  res.BlocksWritten,
			EntitiesPlaced: res.EntitiesPlaced,
			At:             time.Now().UTC(),
		})
	}

	if l.cfg.Events != nil && res.Placed {
		ev := observerproto.PlacementMsg{
			Source:         source,
			Blueprint:      m.Blueprint,
			Anchor:         m.Anchor,
			Rotation:       audit.Rotation,
			Mirror:         audit.Mirror,
			Variant:        res.Variant,
			BlocksWritten:  res.BlocksWritten,
			EntitiesPlaced: res.EntitiesPlaced,
			Extent:         [2][3]int{extent.Min.ToArray(), extent.Max.ToArray()},
		}
		if res.Touched != nil {
			ev.Touched = &[2][3]int{res.Touched.Min.ToArray(), res.Touched.Max.ToArray()}
		}
		l.cfg.Events.PublishPlacement(ev)
	}

	out := protocol.PlaceResultMsg{
		Type:            protocol.TypePlaceResult,
		ProtocolVersion: protocol.Version,
		ReqID:           m.ReqID,
		Placed:          res.Placed,
		Variant:         res.Variant,
		BlocksWritten:   res.BlocksWritten,
		BlocksDropped:   res.BlocksDropped,
		EntitiesPlaced:  res.EntitiesPlaced,
		EntitiesSkipped: res.EntitiesSkipped,
	}
	if res.Touched != nil {
		out.Touched = &protocol.Box{Min: res.Touched.Min.ToArray(), Max: res.Touched.Max.ToArray()}
	}
	return out
}

func (l *Loop) filter(m *protocol.FilterMsg, bp *blueprint.Blueprint) any {
	settings, err := l.settingsFor(m.Rotation, m.Mirror, m.Pivot, m.Seed)
	if err != nil {
		return protocol.NewError(m.ReqID, protocol.ErrBadRequest, err.Error())
	}
	entries := placement.FilterBlocks(toPos(m.Anchor), settings, bp, m.Block, m.Transformed)
	out := protocol.FilterResultMsg{
		Type:            protocol.TypeFilterResult,
		ProtocolVersion: protocol.Version,
		ReqID:           m.ReqID,
		Blocks:          make([]protocol.FilteredBlock, 0, len(entries)),
	}
	for _, e := range entries {
		out.Blocks = append(out.Blocks, protocol.FilteredBlock{
			Pos:     e.Pos.ToArray(),
			State:   e.State.String(),
			HasData: e.Data != nil,
		})
	}
	return out
}

func (l *Loop) scan(m *protocol.ScanMsg) any {
	box := geom.BoxFromCorners(toPos(m.Box.Min), toPos(m.Box.Max))
	if v := box.Volume(); v > l.cfg.MaxScanVolume {
		return protocol.NewError(m.ReqID, protocol.ErrTooLarge, fmt.Sprintf("scan volume %d exceeds %d", v, l.cfg.MaxScanVolume))
	}
	l.scans.Add(1)
	palette, ids := l.cfg.World.Scan(box)
	grid, err := encoding.NewGrid(box, palette, ids)
	if err != nil {
		return protocol.NewError(m.ReqID, protocol.ErrInternal, err.Error())
	}
	out := protocol.ScanResultMsg{
		Type:            protocol.TypeScanResult,
		ProtocolVersion: protocol.Version,
		ReqID:           m.ReqID,
		Min:             grid.Min,
		Size:            grid.Size,
		Palette:         grid.Palette,
		Encoding:        "RLE",
		Data:            grid.Cells,
	}
	if m.WithEntities {
		for _, e := range l.cfg.World.EntitiesIn(box) {
			out.Entities = append(out.Entities, entityObs(e))
		}
	}
	return out
}

func (l *Loop) settingsFor(rotation, mirror string, pivot [3]int, seed *int64) (placement.Settings, error) {
	s := l.cfg.Placement.Settings()
	r, err := geom.ParseRotation(rotation)
	if err != nil {
		return s, err
	}
	mi, err := geom.ParseMirror(mirror)
	if err != nil {
		return s, err
	}
	s.Rotation, s.Mirror, s.Pivot = r, mi, toPos(pivot)
	if seed != nil {
		s.Random = randx.FromSeed(*seed)
	}
	return s, nil
}

func (l *Loop) writeAudit(e auditlog.PlacementAuditEntry) {
	if l.cfg.Audit == nil {
		return
	}
	if err := l.cfg.Audit.WritePlacement(e); err != nil {
		l.cfg.Logger.Warn("audit write failed", "err", err)
	}
}

func errorReply(reqID string, err error) protocol.ErrorMsg {
	code := protocol.ErrInternal
	switch {
	case errors.Is(err, blueprintstore.ErrNotFound):
		code = protocol.ErrNotFound
	case errors.Is(err, blueprintstore.ErrInvalidName):
		code = protocol.ErrBadRequest
	case errors.Is(err, ErrBusy), errors.Is(err, ErrStopped):
		code = protocol.ErrBusy
	}
	return protocol.NewError(reqID, code, err.Error())
}

func requestID(msg any) string {
	switch m := msg.(type) {
	case *protocol.PlaceMsg:
		return m.ReqID
	case *protocol.FilterMsg:
		return m.ReqID
	case *protocol.ScanMsg:
		return m.ReqID
	case *protocol.ListMsg:
		return m.ReqID
	}
	return ""
}

func entityObs(e level.Entity) protocol.EntityObs {
	p := e.Pos()
	return protocol.EntityObs{ID: e.ID(), Type: e.Type(), Pos: [3]float64{p[0], p[1], p[2]}}
}

func applyBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func toPos(a [3]int) geom.BlockPos { return geom.BlockPos{X: a[0], Y: a[1], Z: a[2]} }
