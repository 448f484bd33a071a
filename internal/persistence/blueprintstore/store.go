// Package blueprintstore keeps named blueprints as gzip framed .nbt files in a directory.
package blueprintstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"voxelstamp.ai/internal/persistence/indexdb"
	"voxelstamp.ai/internal/structure/blueprint"
	"voxelstamp.ai/internal/structure/codec"
)

const ext = ".nbt"

var (
	ErrNotFound    = errors.New("blueprint not found")
	ErrInvalidName = errors.New("invalid blueprint name")
)

// Names are slash separated lowercase segments, e.g. "village/plains/house_1".
var namePattern = regexp.MustCompile(`^[a-z0-9_.-]+(/[a-z0-9_.-]+)*$`)

// Indexer receives a row for every saved blueprint. *indexdb.SQLiteIndex satisfies it.
type Indexer interface {
	UpsertBlueprint(row indexdb.BlueprintRow)
	DeleteBlueprint(name string)
}

type cached struct {
	bp     *blueprint.Blueprint
	digest string
}

type Store struct {
	dir         string
	codec       *codec.Codec
	index       Indexer
	logger      *log.Logger
	concurrency int

	mu    sync.RWMutex
	cache map[string]cached
}

type Option func(*Store)

func WithIndex(idx Indexer) Option    { return func(s *Store) { s.index = idx } }
func WithLogger(l *log.Logger) Option { return func(s *Store) { s.logger = l } }
func WithConcurrency(n int) Option    { return func(s *Store) { s.concurrency = n } }

func Open(dir string, c *codec.Codec, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty blueprint dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{dir: dir, codec: c, concurrency: 4, cache: map[string]cached{}}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) (string, error) {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)+ext), nil
}

// Load returns the named blueprint, reading it from disk on first use.
func (s *Store) Load(ctx context.Context, name string) (*blueprint.Blueprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	c, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return c.bp, nil
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	bp, err := s.codec.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.mu.Lock()
	s.cache[name] = cached{bp: bp, digest: digest(raw)}
	s.mu.Unlock()
	return bp, nil
}

// Save writes bp under name, replacing any previous file.
func (s *Store) Save(ctx context.Context, name string, bp *blueprint.Blueprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.codec.Write(&buf, bp); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := writeFileAtomic(p, buf.Bytes()); err != nil {
		return err
	}
	d := digest(buf.Bytes())
	s.mu.Lock()
	s.cache[name] = cached{bp: bp, digest: d}
	s.mu.Unlock()
	if s.index != nil {
		s.index.UpsertBlueprint(RowFor(name, d, bp))
	}
	s.logger.Debug("blueprint saved", "name", name, "blocks", bp.BlockCount(), "digest", d[:12])
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	} else if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
	if s.index != nil {
		s.index.DeleteBlueprint(name)
	}
	return nil
}

// Digest is the sha256 of the stored file, or "" when name has not been loaded or saved.
func (s *Store) Digest(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[name].digest
}

// List returns the stored blueprint names, sorted.
func (s *Store) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ext)
		if namePattern.MatchString(name) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// LoadAll loads every stored blueprint with bounded concurrency and indexes them.
// The first failure cancels the rest.
func (s *Store) LoadAll(ctx context.Context) (map[string]*blueprint.Blueprint, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]*blueprint.Blueprint, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			bp, err := s.Load(gctx, name)
			if err != nil {
				return err
			}
			out[i] = bp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	all := make(map[string]*blueprint.Blueprint, len(names))
	for i, name := range names {
		all[name] = out[i]
		if s.index != nil {
			s.index.UpsertBlueprint(RowFor(name, s.Digest(name), out[i]))
		}
	}
	s.logger.Info("blueprints loaded", "count", len(all), "dir", s.dir)
	return all, nil
}

// RowFor summarizes bp for the index.
func RowFor(name, digest string, bp *blueprint.Blueprint) indexdb.BlueprintRow {
	size := bp.Size()
	return indexdb.BlueprintRow{
		Name:     name,
		Digest:   digest,
		Size:     size.ToArray(),
		Palettes: bp.VariantCount(),
		Blocks:   bp.BlockCount(),
		Entities: len(bp.Entities()),
		Author:   bp.Author(),
	}
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
