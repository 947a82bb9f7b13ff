package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr      = "127.0.0.1:3000"
	defaultRedisTTL  = 5 * time.Minute
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
)

type Config struct {
	DBPath    string
	Addr      string
	RedisAddr string
	RedisTTL  time.Duration
	SeedPath  string
	LogLevel  slog.Level
	LogFormat string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	dbPath := envOrDefault("LAMBDANODES_DB_PATH", filepath.Join(cwd, "lambdanodes.db"))
	addr := addrFromEnv(defaultAddr)
	redisAddr := os.Getenv("LAMBDANODES_REDIS_ADDR")
	redisTTL := defaultRedisTTL
	if v := os.Getenv("LAMBDANODES_REDIS_TTL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LAMBDANODES_REDIS_TTL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("LAMBDANODES_REDIS_TTL must be positive")
		}
		redisTTL = parsed
	}
	seedPath := os.Getenv("LAMBDANODES_SEED_PATH")
	logLevel := envOrDefault("LOG_LEVEL", defaultLogLevel)
	logFormat := envOrDefault("LAMBDANODES_LOG_FORMAT", defaultLogFormat)

	flagSet := flag.NewFlagSet("lambdanodes-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagRedis := flagSet.String("redis-addr", redisAddr, "Redis address for the catalog cache (empty disables it)")
	flagRedisTTL := flagSet.String("redis-ttl", redisTTL.String(), "catalog cache entry lifetime")
	flagSeed := flagSet.String("seed", seedPath, "extra HCL node seed file or directory")
	flagLogLevel := flagSet.String("log-level", logLevel, "log level: debug|info|warn|error")
	flagLogFormat := flagSet.String("log-format", logFormat, "log format: json|text")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	ttl, err := time.ParseDuration(*flagRedisTTL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid redis ttl: %w", err)
	}
	if ttl <= 0 {
		return Config{}, errors.New("redis ttl must be positive")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(*flagLogLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}

	config := Config{
		DBPath:    resolvePath(*flagDB, cwd),
		Addr:      strings.TrimSpace(*flagAddr),
		RedisAddr: strings.TrimSpace(*flagRedis),
		RedisTTL:  ttl,
		SeedPath:  resolvePath(*flagSeed, cwd),
		LogLevel:  level,
		LogFormat: strings.ToLower(strings.TrimSpace(*flagLogFormat)),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.LogFormat != "json" && config.LogFormat != "text" {
		return Config{}, fmt.Errorf("unsupported log format: %s", config.LogFormat)
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("LAMBDANODES_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("LAMBDANODES_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
