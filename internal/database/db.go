// Package database persists a journal of generated chunks to PostgreSQL.
package database

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"

	"github.com/slimedodge/server/internal/config"
)

// Open connects to PostgreSQL and applies pool settings
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, eris.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "failed to connect to %s:%d", cfg.Host, cfg.Port)
	}
	return db, nil
}
