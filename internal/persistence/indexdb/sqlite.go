package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/sim/tuning"
)

// SQLiteIndex is a secondary index of stored blueprints and placements. Writes are
// queued to a single writer goroutine; blueprint files and the audit log remain the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropBlueprints atomic.Uint64
	dropPlacements atomic.Uint64
}

type reqKind int

const (
	reqBlueprint reqKind = iota + 1
	reqDeleteBlueprint
	reqPlacement
	reqSync
)

type req struct {
	kind reqKind

	blueprint BlueprintRow
	name      string
	placement PlacementRow
	done      chan struct{}
}

// BlueprintRow summarizes one stored blueprint file.
type BlueprintRow struct {
	Name      string    `json:"name"`
	Digest    string    `json:"digest"`
	Size      [3]int    `json:"size"`
	Palettes  int       `json:"palettes"`
	Blocks    int       `json:"blocks"`
	Entities  int       `json:"entities"`
	Author    string    `json:"author"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlacementRow records one placement call.
type PlacementRow struct {
	Blueprint      string    `json:"blueprint"`
	Anchor         [3]int    `json:"anchor"`
	Rotation       string    `json:"rotation"`
	Mirror         string    `json:"mirror"`
	Variant        int       `json:"variant"`
	Placed         bool      `json:"placed"`
	BlocksWritten  int       `json:"blocks_written"`
	EntitiesPlaced int       `json:"entities_placed"`
	At             time.Time `json:"at"`
}

type Stats struct {
	Queued             int    `json:"queued"`
	DropBlueprintTotal uint64 `json:"drop_blueprint_total"`
	DropPlacementTotal uint64 `json:"drop_placement_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blueprints (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			size_x INTEGER NOT NULL,
			size_y INTEGER NOT NULL,
			size_z INTEGER NOT NULL,
			palettes INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			author TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			blueprint TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			rotation TEXT NOT NULL,
			mirror TEXT NOT NULL,
			variant INTEGER NOT NULL,
			placed INTEGER NOT NULL,
			blocks_written INTEGER NOT NULL,
			entities_placed INTEGER NOT NULL,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_blueprint_at ON placements(blueprint, at);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_pos ON placements(x, z, y);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Queued:             len(s.ch),
		DropBlueprintTotal: s.dropBlueprints.Load(),
		DropPlacementTotal: s.dropPlacements.Load(),
	}
}

// UpsertBlueprint queues a blueprint row. Rows are dropped when the writer falls behind.
func (s *SQLiteIndex) UpsertBlueprint(row BlueprintRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	select {
	case s.ch <- req{kind: reqBlueprint, blueprint: row}:
	default:
		s.dropBlueprints.Add(1)
	}
}

func (s *SQLiteIndex) DeleteBlueprint(name string) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqDeleteBlueprint, name: name}:
	default:
		s.dropBlueprints.Add(1)
	}
}

func (s *SQLiteIndex) RecordPlacement(row PlacementRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if row.At.IsZero() {
		row.At = time.Now().UTC()
	}
	select {
	case s.ch <- req{kind: reqPlacement, placement: row}:
	default:
		s.dropPlacements.Add(1)
	}
}

// Sync waits until every write queued before the call is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Blueprints lists indexed blueprints by name.
func (s *SQLiteIndex) Blueprints(ctx context.Context) ([]BlueprintRow, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name,digest,size_x,size_y,size_z,palettes,blocks,entities,author,updated_at FROM blueprints ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BlueprintRow
	for rows.Next() {
		var (
			r  BlueprintRow
			at string
		)
		if err := rows.Scan(&r.Name, &r.Digest, &r.Size[0], &r.Size[1], &r.Size[2], &r.Palettes, &r.Blocks, &r.Entities, &r.Author, &at); err != nil {
			return nil, err
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Placements lists placements of one blueprint, oldest first. An empty name lists all.
func (s *SQLiteIndex) Placements(ctx context.Context, name string) ([]PlacementRow, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	q := `SELECT raw_json FROM placements`
	var args []any
	if name != "" {
		q += ` WHERE blueprint=?`
		args = append(args, name)
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlacementRow
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r PlacementRow
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertCatalogs stores the catalog digests and tuning in effect, synchronously.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	if err := s.Sync(context.Background()); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		defs := make([]catalogs.BlockDef, 0, len(cats.Blocks.Defs))
		for _, d := range cats.Blocks.Defs {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	{
		defs := make([]catalogs.EntityDef, 0, len(cats.Entities.Defs))
		for _, d := range cats.Entities.Defs {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "entities", digest: cats.Entities.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Processors.IDs()); len(b) > 0 {
		rows = append(rows, kv{name: "processor_lists", digest: cats.Processors.Digest, json: b})
	}
	if b, _ := json.Marshal(tune); len(b) > 0 {
		rows = append(rows, kv{name: "tuning", digest: tune.Digest(), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest of one catalog row.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertBlueprint, _ := s.db.Prepare(`INSERT OR REPLACE INTO blueprints(name,digest,size_x,size_y,size_z,palettes,blocks,entities,author,updated_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	deleteBlueprint, _ := s.db.Prepare(`DELETE FROM blueprints WHERE name=?`)
	insertPlacement, _ := s.db.Prepare(`INSERT INTO placements(blueprint,x,y,z,rotation,mirror,variant,placed,blocks_written,entities_placed,at,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertBlueprint, deleteBlueprint, insertPlacement} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 500
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		switch r.kind {
		case reqSync:
			commit()
			close(r.done)
			continue

		case reqBlueprint:
			begin()
			b := r.blueprint
			exec(upsertBlueprint, b.Name, b.Digest, b.Size[0], b.Size[1], b.Size[2], b.Palettes, b.Blocks, b.Entities, b.Author, b.UpdatedAt.UTC().Format(time.RFC3339Nano))

		case reqDeleteBlueprint:
			begin()
			exec(deleteBlueprint, r.name)

		case reqPlacement:
			begin()
			p := r.placement
			raw, _ := json.Marshal(p)
			exec(insertPlacement, p.Blueprint, p.Anchor[0], p.Anchor[1], p.Anchor[2], p.Rotation, p.Mirror, p.Variant, p.Placed, p.BlocksWritten, p.EntitiesPlaced, p.At.UTC().Format(time.RFC3339Nano), string(raw))
		}
		// Batch only while requests are backed up; an idle writer holds no open tx.
		if len(s.ch) == 0 || opCount >= commitEvery {
			commit()
		}
	}

	commit()
}
