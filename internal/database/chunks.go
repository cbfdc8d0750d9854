package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rotisserie/eris"

	"github.com/slimedodge/server/internal/tilemap"
)

const chunkRecordsSchema = `
	CREATE TABLE IF NOT EXISTS chunk_records (
		chunk_x          INTEGER     NOT NULL,
		chunk_y          INTEGER     NOT NULL,
		world_seed       TEXT        NOT NULL,
		strategy         TEXT        NOT NULL,
		tile_indices     INTEGER[]   NOT NULL,
		characters       INTEGER     NOT NULL DEFAULT 0,
		props            INTEGER     NOT NULL DEFAULT 0,
		visits           INTEGER     NOT NULL DEFAULT 1,
		first_tick       BIGINT      NOT NULL,
		last_tick        BIGINT      NOT NULL,
		first_generated  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_generated   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chunk_x, chunk_y)
	)
`

// StoredChunk is one row of the chunk journal
type StoredChunk struct {
	Coord          tilemap.ChunkCoord
	WorldSeed      string
	Strategy       string
	TileIndices    []int64
	Characters     int
	Props          int
	Visits         int
	FirstTick      uint64
	LastTick       uint64
	FirstGenerated time.Time
	LastGenerated  time.Time
}

// ChunkStorage handles chunk journal storage and retrieval
type ChunkStorage struct {
	db *sql.DB
}

// NewChunkStorage creates a new chunk storage instance
func NewChunkStorage(db *sql.DB) *ChunkStorage {
	return &ChunkStorage{db: db}
}

// EnsureSchema creates the journal table if it does not exist
func (s *ChunkStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, chunkRecordsSchema); err != nil {
		return eris.Wrap(err, "failed to create chunk_records")
	}
	return nil
}

// UpsertChunk records a generation. A chunk generated again after being
// streamed out keeps its first tick and increments its visit count.
func (s *ChunkStorage) UpsertChunk(ctx context.Context, c StoredChunk) error {
	query := `
		INSERT INTO chunk_records (chunk_x, chunk_y, world_seed, strategy, tile_indices, characters, props, first_tick, last_tick)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (chunk_x, chunk_y)
		DO UPDATE SET
			world_seed = $3,
			strategy = $4,
			tile_indices = $5,
			characters = $6,
			props = $7,
			visits = chunk_records.visits + 1,
			last_tick = $8,
			last_generated = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query,
		c.Coord.X, c.Coord.Y, c.WorldSeed, c.Strategy, pq.Array(c.TileIndices),
		c.Characters, c.Props, int64(c.LastTick),
	)
	if err != nil {
		return eris.Wrapf(err, "failed to upsert chunk %s", c.Coord)
	}
	return nil
}

// GetChunk retrieves a journal row, or nil when the chunk was never generated
func (s *ChunkStorage) GetChunk(ctx context.Context, coord tilemap.ChunkCoord) (*StoredChunk, error) {
	query := `
		SELECT chunk_x, chunk_y, world_seed, strategy, tile_indices, characters, props,
		       visits, first_tick, last_tick, first_generated, last_generated
		FROM chunk_records
		WHERE chunk_x = $1 AND chunk_y = $2
	`
	c, err := scanChunk(s.db.QueryRowContext(ctx, query, coord.X, coord.Y))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query chunk %s", coord)
	}
	return c, nil
}

// ListChunks returns the most recently generated chunks first
func (s *ChunkStorage) ListChunks(ctx context.Context, limit int) ([]StoredChunk, error) {
	query := `
		SELECT chunk_x, chunk_y, world_seed, strategy, tile_indices, characters, props,
		       visits, first_tick, last_tick, first_generated, last_generated
		FROM chunk_records
		ORDER BY last_tick DESC, chunk_y, chunk_x
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list chunks")
	}
	defer rows.Close()

	var out []StoredChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan chunk")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "failed to iterate chunks")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*StoredChunk, error) {
	var c StoredChunk
	var firstTick, lastTick int64
	err := row.Scan(
		&c.Coord.X,
		&c.Coord.Y,
		&c.WorldSeed,
		&c.Strategy,
		pq.Array(&c.TileIndices),
		&c.Characters,
		&c.Props,
		&c.Visits,
		&firstTick,
		&lastTick,
		&c.FirstGenerated,
		&c.LastGenerated,
	)
	if err != nil {
		return nil, err
	}
	c.FirstTick = uint64(firstTick)
	c.LastTick = uint64(lastTick)
	return &c, nil
}
