package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix     = "PLAYRANK_"
	EnvConfigFile = "PLAYRANK_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PLAYRANK_CONFIG is set
//  3. env (prefix PLAYRANK_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// PLAYRANK_DATABASE_URL -> database_url. Keys stay flat so underscores
	// match the koanf tags; the config file variable itself is skipped.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(k, v string) (string, any) {
		if k == EnvConfigFile {
			return "", nil
		}
		key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
		if _, ok := listKeys[key]; ok {
			return key, splitList(v)
		}
		return key, v
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are env keys holding comma-separated lists.
var listKeys = map[string]struct{}{
	"cors_allowed_origins": {},
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks enums, ranges and dependent fields.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	if !oneOf(c.LogFormat, "text", "json") {
		add("log_format must be text or json, got %q", c.LogFormat)
	}
	if !oneOf(c.Store, BackendMemory, BackendPostgres) {
		add("store must be memory or postgres, got %q", c.Store)
	}
	if !oneOf(c.Directory, BackendMemory, BackendPostgres) {
		add("directory must be memory or postgres, got %q", c.Directory)
	}
	if (c.Store == BackendPostgres || c.Directory == BackendPostgres) && strings.TrimSpace(c.DatabaseURL) == "" {
		add("database_url is required when store or directory is postgres")
	}
	if !oneOf(c.SubmitStrategy, "upsert", "optimistic") {
		add("submit_strategy must be upsert or optimistic, got %q", c.SubmitStrategy)
	}
	if c.SubmitMaxAttempts < 1 {
		add("submit_max_attempts must be at least 1")
	}
	if !oneOf(c.NegativeScorePolicy, "clamp", "reject") {
		add("negative_score_policy must be clamp or reject, got %q", c.NegativeScorePolicy)
	}
	if !oneOf(c.NotifyMode, "sync", "async") {
		add("notify_mode must be sync or async, got %q", c.NotifyMode)
	}
	if c.NotifyMode == "async" && (c.NotifyQueueSize < 1 || c.NotifyWorkers < 1) {
		add("notify_queue_size and notify_workers must be positive in async mode")
	}
	if c.MaxLeaderboardLimit < 1 || c.DefaultLeaderboardLimit < 1 || c.DefaultLeaderboardLimit > c.MaxLeaderboardLimit {
		add("leaderboard limits must satisfy 1 <= default <= max")
	}
	if c.MaxGlobalLimit < 1 || c.DefaultGlobalLimit < 1 || c.DefaultGlobalLimit > c.MaxGlobalLimit {
		add("global limits must satisfy 1 <= default <= max")
	}
	if c.GlobalCacheTTL < 0 || c.GatewayTimeout < 0 || c.SubmitRetryBase < 0 {
		add("durations must not be negative")
	}
	if c.RedisDB < 0 {
		add("redis_db must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
