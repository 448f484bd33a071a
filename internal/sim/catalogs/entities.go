package catalogs

import "voxelstamp.ai/internal/structure/blockstate"

// Def looks up an entity type. Unknown types are not spawnable.
func (c *EntityCatalog) Def(id string) (EntityDef, bool) {
	d, ok := c.Defs[blockstate.Of(id).Name()]
	return d, ok
}

func (c *EntityCatalog) IsMob(id string) bool {
	d, ok := c.Def(id)
	return ok && d.Kind == KindMob
}

func (c *EntityCatalog) IsHanging(id string) bool {
	d, ok := c.Def(id)
	return ok && d.Kind == KindHanging
}
