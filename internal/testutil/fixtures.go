package testutil

import (
	"math/rand"
	"time"

	"github.com/slimedodge/server/internal/tilemap"
)

// TileDataYAML is a small tile data document: 16px tiles, 8x8 chunks
const TileDataYAML = `tile_width: 16
tile_height: 16
chunk_width: 8
chunk_height: 8
placeholder: 8
palette: [8, 9, 10]
`

// TestTileData returns the tile data described by TileDataYAML
func TestTileData() *tilemap.TileData {
	return &tilemap.TileData{
		Dimensions:  tilemap.Dimensions{TileWidth: 16, TileHeight: 16, ChunkWidth: 8, ChunkHeight: 8},
		Placeholder: tilemap.PlaceholderTile,
		Palette:     []int{8, 9, 10},
	}
}

var fixtureRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[fixtureRand.Intn(len(charset))]
	}
	return string(b)
}

// RandomObserverID generates a random observer name
func RandomObserverID() string {
	return "observer_" + RandomString(8)
}

// TestObserver holds credentials for a test observer
type TestObserver struct {
	ID       string
	Password string
}

// NewTestObserver creates test observer credentials
func NewTestObserver() TestObserver {
	return TestObserver{
		ID:       RandomObserverID(),
		Password: "observerpassword123",
	}
}
