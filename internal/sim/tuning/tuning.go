package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"voxelstamp.ai/internal/sim/world"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/placement"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Server    Server    `yaml:"server"`
	Paths     Paths     `yaml:"paths"`
	World     World     `yaml:"world"`
	Placement Placement `yaml:"placement"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`
	// MaxMessageBytes bounds one inbound websocket frame.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`
	QueueDepth      int   `yaml:"queue_depth"`
}

type Paths struct {
	Blueprints string `yaml:"blueprints"`
	Catalogs   string `yaml:"catalogs"`
	IndexDB    string `yaml:"index_db"`
	AuditDir   string `yaml:"audit_dir"`
	Snapshots  string `yaml:"snapshots"`
}

type World struct {
	Seed      int64  `yaml:"seed"`
	Terrain   string `yaml:"terrain"`
	MinY      int    `yaml:"min_y"`
	MaxY      int    `yaml:"max_y"`
	SeaLevel  int    `yaml:"sea_level"`
	BoundaryR int    `yaml:"boundary_r"`
	// SnapshotEverySeconds schedules world snapshots; 0 saves only on shutdown.
	SnapshotEverySeconds int `yaml:"snapshot_every_seconds"`
	// SnapshotKeep bounds the rotating snapshots; daily archives are kept regardless. 0 keeps all.
	SnapshotKeep int `yaml:"snapshot_keep"`
}

type Placement struct {
	UpdateFlags      []string `yaml:"update_flags"`
	KeepLiquids      bool     `yaml:"keep_liquids"`
	KnownShape       bool     `yaml:"known_shape"`
	FinalizeEntities bool     `yaml:"finalize_entities"`
	IgnoreEntities   bool     `yaml:"ignore_entities"`
	SeedSalt         int64    `yaml:"seed_salt"`
	LoadConcurrency  int      `yaml:"load_concurrency"`
}

var flagNames = map[string]level.UpdateFlags{
	"neighbors":   level.UpdateNeighbors,
	"clients":     level.UpdateClients,
	"invisible":   level.UpdateInvisible,
	"known_shape": level.UpdateKnownShape,
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Server: Server{
			Addr:            ":8080",
			LogLevel:        "info",
			MaxMessageBytes: 1 << 20,
			QueueDepth:      64,
		},
		Paths: Paths{
			Blueprints: "./data/blueprints",
			Catalogs:   "./configs",
			IndexDB:    "./data/index/voxelstamp.sqlite",
			AuditDir:   "./data/audit",
			Snapshots:  "./data/snapshots",
		},
		World: World{
			Seed:     1,
			Terrain:  world.TerrainNoise,
			MinY:     -64,
			MaxY:     319,
			SeaLevel: 62,

			SnapshotEverySeconds: 300,
			SnapshotKeep:         48,
		},
		Placement: Placement{
			UpdateFlags:      []string{"neighbors", "clients"},
			KeepLiquids:      true,
			FinalizeEntities: true,
			LoadConcurrency:  4,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	if strings.TrimSpace(t.Server.Addr) == "" {
		t.Server.Addr = d.Server.Addr
	}
	t.Server.LogLevel = strings.ToLower(strings.TrimSpace(t.Server.LogLevel))
	if t.Server.LogLevel == "" {
		t.Server.LogLevel = d.Server.LogLevel
	}
	if t.Server.MaxMessageBytes <= 0 {
		t.Server.MaxMessageBytes = d.Server.MaxMessageBytes
	}
	if t.Server.QueueDepth <= 0 {
		t.Server.QueueDepth = d.Server.QueueDepth
	}
	t.World.Terrain = strings.ToLower(strings.TrimSpace(t.World.Terrain))
	if t.World.Terrain == "" {
		t.World.Terrain = d.World.Terrain
	}
	for i, f := range t.Placement.UpdateFlags {
		t.Placement.UpdateFlags[i] = strings.ToLower(strings.TrimSpace(f))
	}
	if t.Placement.LoadConcurrency <= 0 {
		t.Placement.LoadConcurrency = d.Placement.LoadConcurrency
	}
}

func (t Tuning) Validate() error {
	if _, err := log.ParseLevel(t.Server.LogLevel); err != nil {
		return fmt.Errorf("server.log_level: %w", err)
	}
	switch t.World.Terrain {
	case world.TerrainNoise, world.TerrainFlat, world.TerrainVoid:
	default:
		return fmt.Errorf("world.terrain must be noise, flat or void: %q", t.World.Terrain)
	}
	if t.World.MaxY <= t.World.MinY {
		return fmt.Errorf("world.max_y must be > min_y")
	}
	if t.World.SeaLevel < t.World.MinY || t.World.SeaLevel > t.World.MaxY {
		return fmt.Errorf("world.sea_level must be within [min_y, max_y]")
	}
	if t.World.BoundaryR < 0 {
		return fmt.Errorf("world.boundary_r must be >= 0")
	}
	if t.World.SnapshotEverySeconds < 0 {
		return fmt.Errorf("world.snapshot_every_seconds must be >= 0")
	}
	if t.World.SnapshotKeep < 0 {
		return fmt.Errorf("world.snapshot_keep must be >= 0")
	}
	for _, f := range t.Placement.UpdateFlags {
		if _, ok := flagNames[f]; !ok {
			return fmt.Errorf("placement.update_flags: unknown flag %q", f)
		}
	}
	return nil
}

// Digest identifies the effective tuning to clients and the index.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Flags folds the configured flag names into update flags.
func (p Placement) Flags() level.UpdateFlags {
	var f level.UpdateFlags
	for _, name := range p.UpdateFlags {
		f |= flagNames[name]
	}
	return f
}

// Settings returns placement settings carrying the configured defaults.
func (p Placement) Settings() placement.Settings {
	s := placement.DefaultSettings()
	s.KeepLiquids = p.KeepLiquids
	s.KnownShape = p.KnownShape
	s.FinalizeEntities = p.FinalizeEntities
	s.IgnoreEntities = p.IgnoreEntities
	s.Salt = p.SeedSalt
	return s
}

func (w World) Gen() world.WorldGen {
	g := world.DefaultWorldGen()
	g.Seed = w.Seed
	g.Terrain = w.Terrain
	g.MinY = w.MinY
	g.MaxY = w.MaxY
	g.SeaLevel = w.SeaLevel
	g.BoundaryR = w.BoundaryR
	return g
}

func (w World) SnapshotEvery() time.Duration {
	return time.Duration(w.SnapshotEverySeconds) * time.Second
}

func (s Server) Level() log.Level {
	l, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}
