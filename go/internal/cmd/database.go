package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/dbconfig"
	"github.com/mcdev12/votingwar/go/internal/match"
)

// setupStore returns a Postgres store when DB_HOST is set, falling back to
// memory when Postgres is not configured or not reachable. The returned
// func releases the pool.
func setupStore(ctx context.Context) (match.ScoreStore, func()) {
	if !dbconfig.Enabled() {
		return match.NewMemoryStore(), func() {}
	}

	store, pool, err := connectPostgres(ctx, dbconfig.NewConfigFromEnv())
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to Postgres, falling back to memory store")
		return match.NewMemoryStore(), func() {}
	}
	return store, pool.Close
}

func connectPostgres(ctx context.Context, cfg dbconfig.Config) (*match.PostgresStore, *pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := match.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info().Str("database", cfg.String()).Msg("connected to database")
	return store, pool, nil
}
