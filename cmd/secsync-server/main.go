// Command secsync-server runs secsync's server core: a websocket endpoint
// per document backed by Postgres for durable state and Redis for
// cross-replica fan-out, connecting to both before starting its HTTP
// server.
package main

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/secsync/secsync/internal/config"
	"github.com/secsync/secsync/internal/logging"
	"github.com/secsync/secsync/server/conn"
	"github.com/secsync/secsync/server/fanout"
	"github.com/secsync/secsync/server/httpapi"
	"github.com/secsync/secsync/server/store"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.LogJSON)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Postgres and Redis may still be starting up alongside this process
	// (e.g. under docker-compose); retry the initial connection with
	// exponential backoff rather than failing fast.
	var dbpool *pgxpool.Pool
	err = backoff.Retry(func() error {
		var err error
		dbpool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		return err
	}, backoff.NewExponentialBackOff())
	if err != nil {
		logger.Fatalw("secsync-server: connect to postgres", "error", err)
	}
	defer dbpool.Close()

	pg := store.NewPostgres(dbpool)
	if err := pg.Migrate(ctx); err != nil {
		logger.Fatalw("secsync-server: migrate", "error", err)
	}
	logger.Info("secsync-server: connected to postgres")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	err = backoff.Retry(func() error {
		_, err := rdb.Ping(ctx).Result()
		return err
	}, backoff.NewExponentialBackOff())
	if err != nil {
		logger.Fatalw("secsync-server: connect to redis", "error", err)
	}
	logger.Info("secsync-server: connected to redis")

	hub := fanout.NewHub(rdb, logger)
	manager := conn.New(pg, hub, logger)
	server := httpapi.New(manager, nil, logger)

	logger.Infow("secsync-server: listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.Router()); err != nil {
		logger.Fatalw("secsync-server: serve", "error", err)
	}
}
