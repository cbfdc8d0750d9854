// Command slimedodge-server runs the headless world simulation and serves
// observers over HTTP and websockets.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/slimedodge/server/internal/api"
	"github.com/slimedodge/server/internal/config"
	"github.com/slimedodge/server/internal/database"
	"github.com/slimedodge/server/internal/logging"
	"github.com/slimedodge/server/internal/performance"
	"github.com/slimedodge/server/internal/procedural"
	"github.com/slimedodge/server/internal/streaming"
	"github.com/slimedodge/server/internal/tilemap"
	"github.com/slimedodge/server/internal/world"
)

const (
	shutdownTimeout  = 10 * time.Second
	journalBuffer    = 1024
	profileLogPeriod = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Str("error", eris.ToString(err, false)).Msg("failed to load configuration")
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		zlog.Fatal().Str("error", eris.ToString(err, false)).Msg("failed to build logger")
	}
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Str("error", eris.ToString(err, true)).Msg("server stopped with error")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiler := performance.NewProfiler(true, cfg.Server.TickInterval())
	sim, err := world.New(world.OptionsFromConfig(cfg), tilemap.NewFileSource(cfg.World.TileDataPath), profiler, logger)
	if err != nil {
		return eris.Wrap(err, "create simulation")
	}

	var journal *database.ChunkJournal
	journalDone := make(chan error, 1)
	if cfg.Database.Enabled {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		storage := database.NewChunkStorage(db)
		if err := storage.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = database.NewChunkJournal(storage, cfg.World.Seed, cfg.World.TileStrategy, journalBuffer, logging.Component(logger, "journal"))
		sim.OnChunkGenerated(func(res *procedural.Result) { journal.RecordResult(res) })

		// the journal outlives the signal so queued rows are drained
		go func() { journalDone <- journal.Run(context.WithoutCancel(ctx)) }()
		logger.Info().Str("database", cfg.Database.Database).Msg("chunk journal enabled")
	}

	server := api.NewServer(cfg, sim, streaming.NewManager(cfg.World.RetainRadius), profiler, api.DefaultRateLimitConfig(), logger)
	go server.Hub().Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("environment", cfg.Server.Environment).Msg("slimedodge server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	loopErr := tickLoop(ctx, sim, server, profiler, cfg.Server.TickInterval(), serveErr, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if journal != nil {
		journal.Close()
		if err := <-journalDone; err != nil {
			logger.Warn().Err(err).Msg("chunk journal stopped early")
		}
	}
	profiler.LogReport(logger)
	logger.Info().Msg("slimedodge server stopped")
	return loopErr
}

// tickLoop steps the simulation at a fixed rate until ctx is cancelled, the
// HTTP server fails, or a step reports an invariant violation
func tickLoop(ctx context.Context, sim *world.Simulation, server *api.Server, profiler *performance.Profiler, interval time.Duration, serveErr <-chan error, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	report := time.NewTicker(profileLogPeriod)
	defer report.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown signal received")
			return nil
		case err := <-serveErr:
			return eris.Wrap(err, "http server")
		case <-report.C:
			profiler.LogReport(logger)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := sim.Step(dt); err != nil {
				return eris.Wrap(err, "simulation step")
			}
			server.Publish(sim.Snapshot())
		}
	}
}
