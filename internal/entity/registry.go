// Package entity is the entity lifecycle service: an arena of entities with
// kinds, transforms and a parent/child hierarchy used for despawn cascades.
package entity

import (
	"github.com/rotisserie/eris"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"

	"github.com/slimedodge/server/internal/tilemap"
)

// ErrStale reports an operation on a handle that no longer exists
var ErrStale = eris.New("stale entity handle")

// Registry owns the entity arena
type Registry struct {
	world   donburi.World
	byKind  *donburi.Query
	spawned uint64
	removed uint64
}

// NewRegistry creates an empty arena
func NewRegistry() *Registry {
	return &Registry{
		world:  donburi.NewWorld(),
		byKind: donburi.NewQuery(filter.Contains(kindComponent)),
	}
}

// World exposes the arena for event delivery
func (r *Registry) World() donburi.World {
	return r.world
}

// Spawn creates an entity of kind at pos. A non-null parent that is still
// alive adopts the new entity.
func (r *Registry) Spawn(kind Kind, pos tilemap.Vec2, parent Handle) Handle {
	components := []donburi.IComponentType{kindComponent, transformComponent, hierarchyComponent}
	switch kind {
	case KindTile:
		components = append(components, tileComponent)
	case KindChunk:
		components = append(components, chunkComponent)
	}
	h := r.world.Create(components...)
	entry := r.world.Entry(h)
	kindComponent.SetValue(entry, kind)
	transformComponent.SetValue(entry, TransformData{Position: pos})
	r.spawned++

	if parent != Null {
		_ = r.Reparent(h, parent)
	}
	return h
}

// Exists reports whether h refers to a live entity
func (r *Registry) Exists(h Handle) bool {
	return h != Null && r.world.Valid(h)
}

// Destroy removes h and, recursively, all of its children. It returns false
// when h was already gone.
func (r *Registry) Destroy(h Handle) bool {
	if !r.Exists(h) {
		return false
	}
	hier := hierarchyComponent.Get(r.world.Entry(h))
	children, parent := hier.Children, hier.Parent
	hier.Children = nil
	for _, child := range children {
		r.Destroy(child)
	}
	if parent != Null {
		r.detach(parent, h)
	}
	r.world.Remove(h)
	r.removed++
	return true
}

// Reparent moves child under parent. Passing Null detaches child.
func (r *Registry) Reparent(child, parent Handle) error {
	if !r.Exists(child) {
		return eris.Wrapf(ErrStale, "child %v", child)
	}
	if parent != Null && !r.Exists(parent) {
		return eris.Wrapf(ErrStale, "parent %v", parent)
	}
	for p := parent; p != Null; p = r.parentOf(p) {
		if p == child {
			return eris.Errorf("reparent %v under its own descendant %v", child, parent)
		}
	}

	hier := hierarchyComponent.Get(r.world.Entry(child))
	if hier.Parent != Null {
		r.detach(hier.Parent, child)
	}
	hier.Parent = parent
	if parent != Null {
		ph := hierarchyComponent.Get(r.world.Entry(parent))
		ph.Children = append(ph.Children, child)
	}
	return nil
}

func (r *Registry) parentOf(h Handle) Handle {
	if !r.Exists(h) {
		return Null
	}
	return hierarchyComponent.Get(r.world.Entry(h)).Parent
}

func (r *Registry) detach(parent, child Handle) {
	if !r.Exists(parent) {
		return
	}
	ph := hierarchyComponent.Get(r.world.Entry(parent))
	for i, c := range ph.Children {
		if c == child {
			ph.Children = append(ph.Children[:i], ph.Children[i+1:]...)
			return
		}
	}
}

// Parent returns the parent of h
func (r *Registry) Parent(h Handle) (Handle, bool) {
	if !r.Exists(h) {
		return Null, false
	}
	return r.parentOf(h), true
}

// Children returns a copy of h's child list
func (r *Registry) Children(h Handle) []Handle {
	if !r.Exists(h) {
		return nil
	}
	children := hierarchyComponent.Get(r.world.Entry(h)).Children
	return append([]Handle(nil), children...)
}

// Kind returns the kind of h
func (r *Registry) Kind(h Handle) (Kind, bool) {
	if !r.Exists(h) {
		return 0, false
	}
	return kindComponent.GetValue(r.world.Entry(h)), true
}

// Position returns the world position of h
func (r *Registry) Position(h Handle) (tilemap.Vec2, bool) {
	if !r.Exists(h) {
		return tilemap.Vec2{}, false
	}
	return transformComponent.Get(r.world.Entry(h)).Position, true
}

// SetPosition moves h. It returns false when h is gone.
func (r *Registry) SetPosition(h Handle, pos tilemap.Vec2) bool {
	if !r.Exists(h) {
		return false
	}
	transformComponent.Get(r.world.Entry(h)).Position = pos
	return true
}

// SetTile stores tile data on a tile entity
func (r *Registry) SetTile(h Handle, tile TileData) bool {
	if !r.Exists(h) {
		return false
	}
	entry := r.world.Entry(h)
	if !entry.HasComponent(tileComponent) {
		return false
	}
	tileComponent.SetValue(entry, tile)
	return true
}

// Tile returns the tile data of a tile entity
func (r *Registry) Tile(h Handle) (TileData, bool) {
	if !r.Exists(h) {
		return TileData{}, false
	}
	entry := r.world.Entry(h)
	if !entry.HasComponent(tileComponent) {
		return TileData{}, false
	}
	return tileComponent.GetValue(entry), true
}

// SetChunk stores the lattice coordinate on a chunk entity
func (r *Registry) SetChunk(h Handle, coord tilemap.ChunkCoord) bool {
	if !r.Exists(h) {
		return false
	}
	entry := r.world.Entry(h)
	if !entry.HasComponent(chunkComponent) {
		return false
	}
	chunkComponent.SetValue(entry, coord)
	return true
}

// Chunk returns the lattice coordinate of a chunk entity
func (r *Registry) Chunk(h Handle) (tilemap.ChunkCoord, bool) {
	if !r.Exists(h) {
		return tilemap.ChunkCoord{}, false
	}
	entry := r.world.Entry(h)
	if !entry.HasComponent(chunkComponent) {
		return tilemap.ChunkCoord{}, false
	}
	return chunkComponent.GetValue(entry), true
}

// OfKind returns the live entities of kind. Order is unspecified.
func (r *Registry) OfKind(kind Kind) []Handle {
	var out []Handle
	r.byKind.Each(r.world, func(entry *donburi.Entry) {
		if kindComponent.GetValue(entry) == kind {
			out = append(out, entry.Entity())
		}
	})
	return out
}

// Count returns the number of live entities
func (r *Registry) Count() int {
	return r.world.Len()
}

// Stats returns lifetime spawn and removal counters
func (r *Registry) Stats() (spawned, removed uint64) {
	return r.spawned, r.removed
}
