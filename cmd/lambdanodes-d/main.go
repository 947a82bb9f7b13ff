package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/lambdanodes/pkg/api"
	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/store"
	"github.com/rmax-ai/lambdanodes/pkg/store/redis"
)

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// catalogSeeder is satisfied by both the SQLite repo and the Redis cache.
type catalogSeeder interface {
	catalog.Catalog
	catalog.Seeder
}

func seedCatalog(ctx context.Context, defs catalog.Seeder, seedPath string) error {
	drafts, err := catalog.Builtins()
	if err != nil {
		return err
	}
	if seedPath != "" {
		extra, err := catalog.LoadSeed(seedPath)
		if err != nil {
			return err
		}
		drafts = append(drafts, extra...)
	}
	seeded, err := defs.SeedInternal(ctx, drafts)
	if err != nil {
		return err
	}
	slog.Info("catalog_seeded", "internal_nodes", len(seeded))
	return nil
}

func main() {
	// Missing .env is fine.
	_ = godotenv.Load()

	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("invalid_config", "error", err)
		os.Exit(2)
	}

	slog.SetDefault(newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))
	slog.Info("system_started", "component", "lambdanodes-d", "version", api.Version)

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		slog.Error("failed_to_init_store", "error", err)
		os.Exit(1)
	}
	slog.Info("store_initialized", "path", cfg.DBPath)

	var defs catalogSeeder = st.Nodes()
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// The cache falls back to SQLite on every Redis error.
			slog.Warn("redis_unreachable", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		defs = redis.NewCachedCatalog(rdb, st.Nodes(), cfg.RedisTTL)
		slog.Info("catalog_cache_enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL.String())
	}

	if err := seedCatalog(context.Background(), defs, cfg.SeedPath); err != nil {
		slog.Error("failed_to_seed_catalog", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(st, defs, cfg.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigs:
		slog.Info("shutdown_initiated", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slog.Error("server_failed", "error", err)
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Stop(ctx); err != nil {
		slog.Error("failed_to_stop_server", "error", err)
	}
	cancel()
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			slog.Error("failed_to_close_redis", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		slog.Error("failed_to_close_store", "error", err)
	} else {
		slog.Info("store_closed")
	}

	slog.Info("shutdown_complete")
	os.Exit(exitCode)
}
