package streaming

import (
	"iter"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/tilemap"
)

var (
	// ErrChunkExists is returned when a coordinate is inserted twice
	ErrChunkExists = eris.New("chunk already generated")
	// ErrChunkMissing is returned when removing a coordinate that is not live
	ErrChunkMissing = eris.New("chunk not generated")
)

// ChunkRecord describes one live chunk
type ChunkRecord struct {
	Coord         tilemap.ChunkCoord `json:"coord"`
	Entity        entity.Handle      `json:"-"`
	GeneratedTick uint64             `json:"generated_tick"`
}

// ChunkIndex is the set of generated chunks keyed by coordinate
type ChunkIndex struct {
	records map[tilemap.ChunkCoord]ChunkRecord
}

// NewChunkIndex creates an empty index
func NewChunkIndex() *ChunkIndex {
	return &ChunkIndex{records: make(map[tilemap.ChunkCoord]ChunkRecord)}
}

// Contains reports whether coord is live
func (ix *ChunkIndex) Contains(coord tilemap.ChunkCoord) bool {
	_, ok := ix.records[coord]
	return ok
}

// Get returns the record for coord
func (ix *ChunkIndex) Get(coord tilemap.ChunkCoord) (ChunkRecord, bool) {
	rec, ok := ix.records[coord]
	return rec, ok
}

// Insert adds a record. Inserting a live coordinate is a programming error.
func (ix *ChunkIndex) Insert(rec ChunkRecord) error {
	if _, ok := ix.records[rec.Coord]; ok {
		return eris.Wrapf(ErrChunkExists, "chunk %s", rec.Coord)
	}
	ix.records[rec.Coord] = rec
	return nil
}

// Remove deletes and returns the record for coord
func (ix *ChunkIndex) Remove(coord tilemap.ChunkCoord) (ChunkRecord, error) {
	rec, ok := ix.records[coord]
	if !ok {
		return ChunkRecord{}, eris.Wrapf(ErrChunkMissing, "chunk %s", coord)
	}
	delete(ix.records, coord)
	return rec, nil
}

// All iterates live chunks in row-major coordinate order
func (ix *ChunkIndex) All() iter.Seq2[tilemap.ChunkCoord, ChunkRecord] {
	coords := ix.Coords()
	return func(yield func(tilemap.ChunkCoord, ChunkRecord) bool) {
		for _, c := range coords {
			rec, ok := ix.records[c]
			if !ok {
				continue
			}
			if !yield(c, rec) {
				return
			}
		}
	}
}

// Coords returns the live coordinates in row-major order
func (ix *ChunkIndex) Coords() []tilemap.ChunkCoord {
	coords := make([]tilemap.ChunkCoord, 0, len(ix.records))
	for c := range ix.records {
		coords = append(coords, c)
	}
	slices.SortFunc(coords, tilemap.ChunkCoord.Compare)
	return coords
}

// Len returns the number of live chunks
func (ix *ChunkIndex) Len() int {
	return len(ix.records)
}

// Bounds returns the minimum and maximum live coordinates per axis
func (ix *ChunkIndex) Bounds() (minC, maxC tilemap.ChunkCoord, ok bool) {
	first := true
	for c := range ix.records {
		if first {
			minC, maxC, first = c, c, false
			continue
		}
		minC.X, minC.Y = min(minC.X, c.X), min(minC.Y, c.Y)
		maxC.X, maxC.Y = max(maxC.X, c.X), max(maxC.Y, c.Y)
	}
	return minC, maxC, !first
}
