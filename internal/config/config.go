// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - Errors are classified by this package's sentinels.
package config

import (
	"context"
	"time"
)

// Backends selectable for the leaderboard store and the directory.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the leaderboard store backend: memory or postgres.
	Store string `koanf:"store"`
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `koanf:"database_url"`
	// RunMigrations applies embedded migrations at startup.
	RunMigrations bool `koanf:"run_migrations"`
	// Directory selects the game/user directory backend: memory or postgres.
	Directory string `koanf:"directory"`

	// RedisAddr enables the global ranking cache when set.
	RedisAddr      string        `koanf:"redis_addr"`
	RedisPassword  string        `koanf:"redis_password"`
	RedisDB        int           `koanf:"redis_db"`
	GlobalCacheTTL time.Duration `koanf:"global_cache_ttl"`

	// Page sizes for leaderboard and global ranking reads.
	DefaultLeaderboardLimit int `koanf:"default_leaderboard_limit"`
	MaxLeaderboardLimit     int `koanf:"max_leaderboard_limit"`
	DefaultGlobalLimit      int `koanf:"default_global_limit"`
	MaxGlobalLimit          int `koanf:"max_global_limit"`

	// SubmitStrategy is upsert or optimistic.
	SubmitStrategy    string        `koanf:"submit_strategy"`
	SubmitMaxAttempts int           `koanf:"submit_max_attempts"`
	SubmitRetryBase   time.Duration `koanf:"submit_retry_base"`

	// NegativeScorePolicy is clamp or reject.
	NegativeScorePolicy string `koanf:"negative_score_policy"`

	// DedupeSize sets the size of the submission id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// NotifyMode is sync or async. Async uses the queue and workers below.
	NotifyMode      string        `koanf:"notify_mode"`
	NotifyQueueSize int           `koanf:"notify_queue_size"`
	NotifyWorkers   int           `koanf:"notify_workers"`
	GatewayTimeout  time.Duration `koanf:"gateway_timeout"`

	// CORSAllowedOrigins lists origins allowed by the CORS middleware.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// DemoGames and DemoUsers generate placeholder directory records for the
	// in-memory directory.
	DemoGames int `koanf:"demo_games"`
	DemoUsers int `koanf:"demo_users"`

	// Seed lists explicit in-memory directory records.
	Seed Seed `koanf:"seed"`
}

// Seed holds directory records loaded into the in-memory directory.
type Seed struct {
	Games []SeedGame `koanf:"games"`
	Users []SeedUser `koanf:"users"`
}

// SeedGame is one catalog record.
type SeedGame struct {
	ID        string `koanf:"id"`
	Title     string `koanf:"title"`
	Thumbnail string `koanf:"thumbnail"`
	Category  string `koanf:"category"`
}

// SeedUser is one identity record.
type SeedUser struct {
	ID       string `koanf:"id"`
	Username string `koanf:"username"`
	FullName string `koanf:"full_name"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":8080",
		Store:                   BackendMemory,
		RunMigrations:           true,
		Directory:               BackendMemory,
		GlobalCacheTTL:          30 * time.Second,
		DefaultLeaderboardLimit: 10,
		MaxLeaderboardLimit:     100,
		DefaultGlobalLimit:      10,
		MaxGlobalLimit:          100,
		SubmitStrategy:          "upsert",
		SubmitMaxAttempts:       5,
		SubmitRetryBase:         5 * time.Millisecond,
		NegativeScorePolicy:     "clamp",
		DedupeSize:              50_000,
		NotifyMode:              "sync",
		NotifyQueueSize:         10_000,
		NotifyWorkers:           4,
		GatewayTimeout:          2 * time.Second,
		CORSAllowedOrigins:      []string{"*"},
		DemoGames:               5,
		DemoUsers:               100,
	}
}
