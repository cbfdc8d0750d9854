package entity

import (
	"github.com/yohamta/donburi"

	"github.com/slimedodge/server/internal/tilemap"
)

// Handle identifies a live entity. Destroyed handles never become valid again.
type Handle = donburi.Entity

// Null is the absent handle
var Null Handle = donburi.Null

// Kind tags what an entity represents
type Kind uint8

const (
	KindChunk Kind = iota + 1
	KindTile
	KindCharacter
	KindProp
	KindGoal
)

func (k Kind) String() string {
	switch k {
	case KindChunk:
		return "chunk"
	case KindTile:
		return "tile"
	case KindCharacter:
		return "character"
	case KindProp:
		return "prop"
	case KindGoal:
		return "goal"
	default:
		return "unknown"
	}
}

// TransformData is the world-space placement of an entity
type TransformData struct {
	Position tilemap.Vec2
}

// HierarchyData links an entity to its parent and children. The parent owns
// the child list; a child only remembers its parent.
type HierarchyData struct {
	Parent   Handle
	Children []Handle
}

// TileData records a tile's sprite index and lattice position
type TileData struct {
	Index int
	Tile  tilemap.TilePos
}

var (
	kindComponent      = donburi.NewComponentType[Kind]()
	transformComponent = donburi.NewComponentType[TransformData]()
	hierarchyComponent = donburi.NewComponentType[HierarchyData]()
	tileComponent      = donburi.NewComponentType[TileData]()
	chunkComponent     = donburi.NewComponentType[tilemap.ChunkCoord]()
)
