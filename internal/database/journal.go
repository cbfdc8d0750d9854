package database

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/procedural"
)

// ChunkStore persists journal rows
type ChunkStore interface {
	UpsertChunk(ctx context.Context, c StoredChunk) error
}

// ChunkJournal writes generated chunks to the store off the tick goroutine.
// Record never blocks; rows are dropped when the queue is full.
type ChunkJournal struct {
	store        ChunkStore
	worldSeed    string
	strategy     string
	writeTimeout time.Duration
	log          zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan StoredChunk

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewChunkJournal creates a journal buffering up to buffer rows
func NewChunkJournal(store ChunkStore, worldSeed, strategy string, buffer int, logger zerolog.Logger) *ChunkJournal {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChunkJournal{
		store:        store,
		worldSeed:    worldSeed,
		strategy:     strategy,
		writeTimeout: 5 * time.Second,
		log:          logger,
		queue:        make(chan StoredChunk, buffer),
	}
}

// Record queues a row. It reports false when the row was dropped.
func (j *ChunkJournal) Record(c StoredChunk) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		j.dropped.Add(1)
		return false
	}
	select {
	case j.queue <- c:
		return true
	default:
		if j.dropped.Add(1) == 1 {
			j.log.Warn().Stringer("chunk", c.Coord).Msg("chunk journal full, dropping rows")
		}
		return false
	}
}

// RecordResult queues a generated chunk
func (j *ChunkJournal) RecordResult(res *procedural.Result) bool {
	tiles := make([]int64, len(res.TileIndices))
	for i, idx := range res.TileIndices {
		tiles[i] = int64(idx)
	}
	return j.Record(StoredChunk{
		Coord:       res.Coord,
		WorldSeed:   j.worldSeed,
		Strategy:    j.strategy,
		TileIndices: tiles,
		Characters:  len(res.Characters),
		Props:       len(res.Props),
		FirstTick:   res.Tick,
		LastTick:    res.Tick,
	})
}

// Run writes queued rows until the journal is closed and drained or ctx
// is cancelled
func (j *ChunkJournal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-j.queue:
			if !ok {
				j.log.Info().
					Int64("written", j.written.Load()).
					Int64("dropped", j.dropped.Load()).
					Int64("failed", j.failed.Load()).
					Msg("chunk journal drained")
				return nil
			}
			j.write(ctx, c)
		}
	}
}

func (j *ChunkJournal) write(ctx context.Context, c StoredChunk) {
	wctx, cancel := context.WithTimeout(ctx, j.writeTimeout)
	defer cancel()
	if err := j.store.UpsertChunk(wctx, c); err != nil {
		j.failed.Add(1)
		j.log.Error().Str("error", eris.ToString(err, false)).Stringer("chunk", c.Coord).Msg("chunk journal write failed")
		return
	}
	j.written.Add(1)
}

// Close stops accepting rows. Run returns once the queue is drained.
func (j *ChunkJournal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.closed = true
	close(j.queue)
}

// Stats returns the number of written, dropped and failed rows
func (j *ChunkJournal) Stats() (written, dropped, failed int64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}
