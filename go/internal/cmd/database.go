package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planning-poker/go/internal/config"
	"github.com/mcdev12/planning-poker/go/internal/session"
	"github.com/mcdev12/planning-poker/go/internal/session/repository"
)

// setupStore opens the configured session store. The returned func releases it.
func setupStore(ctx context.Context, cfg config.StoreConfig) (session.SessionStore, func(), error) {
	switch cfg.Driver {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("connected to redis")
		return repository.NewRedisStore(client, cfg.SessionTTL), func() { client.Close() }, nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store, err := repository.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().Str("dsn", cfg.Postgres.Redacted()).Msg("connected to database")
		return store, pool.Close, nil

	case config.StoreSQLite:
		store, err := repository.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite database")
		return store, func() { store.Close() }, nil

	default:
		log.Info().Msg("using in-memory session store")
		return repository.NewMemoryStore(), func() {}, nil
	}
}
