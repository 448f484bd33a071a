package world

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"voxelstamp.ai/internal/sim/catalogs"
	"voxelstamp.ai/internal/structure/geom"
	"voxelstamp.ai/internal/structure/level"
	"voxelstamp.ai/internal/structure/nbtdoc"
)

var (
	ErrUnknownEntity  = errors.New("unknown entity type")
	ErrEntityExists   = errors.New("entity already in world")
	ErrOutsideWorld   = errors.New("entity outside world")
	ErrPlayerNotSpawn = errors.New("players cannot be spawned")
)

// Entity is a live entity. Its serialized form carries id, Pos and UUID.
type Entity struct {
	id   uuid.UUID
	def  catalogs.EntityDef
	data nbtdoc.Compound
}

func (e *Entity) ID() string     { return e.id.String() }
func (e *Entity) Type() string   { return e.def.ID }
func (e *Entity) IsPlayer() bool { return e.def.Kind == catalogs.KindPlayer }
func (e *Entity) IsMob() bool    { return e.def.Kind == catalogs.KindMob }

func (e *Entity) Pos() geom.Vec3 {
	v, _ := e.data.Vec("Pos")
	return v
}

func (e *Entity) Data() nbtdoc.Compound { return e.data.Clone() }

// CreateEntity builds an entity from its serialized form. A fresh identity is assigned;
// the entity is not in the world until AddEntity.
func (w *World) CreateEntity(data nbtdoc.Compound) (level.Entity, error) {
	typ, ok := data.Str("id")
	if !ok {
		return nil, fmt.Errorf("%w: missing id", ErrUnknownEntity)
	}
	def, ok := w.entTypes.Def(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, typ)
	}
	if def.Kind == catalogs.KindPlayer {
		return nil, ErrPlayerNotSpawn
	}
	if _, ok := data.Vec("Pos"); !ok {
		return nil, fmt.Errorf("%s: missing Pos", typ)
	}
	e := &Entity{id: uuid.New(), def: def, data: data.Clone()}
	e.data["id"] = def.ID
	e.data["UUID"] = uuidInts(e.id)
	return e, nil
}

// FinalizeSpawn marks a freshly spawned mob persistent so it is not despawned.
func (w *World) FinalizeSpawn(le level.Entity) {
	e, ok := le.(*Entity)
	if !ok || !e.IsMob() {
		return
	}
	e.data["PersistenceRequired"] = int8(1)
	if !e.data.Has("Health") {
		e.data["Health"] = float32(20)
	}
}

func (w *World) AddEntity(le level.Entity) error {
	e, ok := le.(*Entity)
	if !ok {
		return fmt.Errorf("foreign entity %T", le)
	}
	if _, dup := w.entities[e.ID()]; dup {
		return fmt.Errorf("%w: %s", ErrEntityExists, e.ID())
	}
	p := e.Pos()
	if !w.store.inBounds(geom.BlockPos{X: floorF(p[0]), Y: floorF(p[1]), Z: floorF(p[2])}) {
		return fmt.Errorf("%w: %s at %v", ErrOutsideWorld, e.def.ID, p)
	}
	w.entities[e.ID()] = e
	w.stats.EntitiesAdded++
	w.logger.Debug("entity added", "id", e.ID(), "type", e.def.ID, "pos", p)
	return nil
}

func (w *World) RemoveEntity(id string) bool {
	if _, ok := w.entities[id]; !ok {
		return false
	}
	delete(w.entities, id)
	return true
}

// EntitiesIn returns entities whose block position lies in box, ordered by id.
func (w *World) EntitiesIn(box geom.Box) []level.Entity {
	var found []*Entity
	for _, e := range w.entities {
		p := e.Pos()
		if box.Contains(geom.BlockPos{X: floorF(p[0]), Y: floorF(p[1]), Z: floorF(p[2])}) {
			found = append(found, e)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID() < found[j].ID() })
	out := make([]level.Entity, len(found))
	for i, e := range found {
		out[i] = e
	}
	return out
}

func (w *World) EntityCount() int { return len(w.entities) }

// uuidInts is the four big-endian int32 words entity documents store UUIDs as.
func uuidInts(id uuid.UUID) []int32 {
	out := make([]int32, 4)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(id[i*4:]))
	}
	return out
}

func floorF(v float64) int {
	i := int(v)
	if v < 0 && float64(i) != v {
		i--
	}
	return i
}
