package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/okian/playrank/internal/adapters/cache"
	"github.com/okian/playrank/internal/adapters/gateway"
	"github.com/okian/playrank/internal/adapters/http/api"
	"github.com/okian/playrank/internal/adapters/http/swagger"
	"github.com/okian/playrank/internal/adapters/repository"
	"github.com/okian/playrank/internal/adapters/repository/postgres"
	service "github.com/okian/playrank/internal/app"
	"github.com/okian/playrank/internal/config"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/scoring"
	"github.com/okian/playrank/pkg/logger"
	"github.com/okian/playrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	startupTimeout            = 15 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	if err := logger.InitWithOptions(os.Stdout, cfg.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "playrank exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the collaborators, serves HTTP until ctx is cancelled and then
// shuts everything down in reverse order.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	res, err := buildResources(startCtx, cfg)
	if err != nil {
		return err
	}
	defer res.close()

	svc, err := newService(cfg, res, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			_ = svc.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// resources holds the external collaborators selected by configuration.
type resources struct {
	store     repository.Store
	directory directory
	cache     *cache.RankingCache
	conn      *postgres.Connection
}

type directory interface {
	gateway.Catalog
	gateway.Identity
	gateway.Seeder
}

func (r *resources) close() {
	if r.cache != nil {
		_ = r.cache.Close()
	}
	// The store owns the connection when it is postgres-backed; Close is
	// idempotent so the directory-only case is covered too.
	if r.conn != nil {
		r.conn.Close()
	}
}

func buildResources(ctx context.Context, cfg *config.Config) (*resources, error) {
	log := logger.Get()
	res := &resources{}

	if cfg.Store == config.BackendPostgres || cfg.Directory == config.BackendPostgres {
		conn, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		res.conn = conn
		if cfg.RunMigrations {
			if err := postgres.Migrate(ctx, conn); err != nil {
				res.close()
				return nil, err
			}
		}
	}

	switch cfg.Store {
	case config.BackendPostgres:
		res.store = postgres.NewStore(res.conn)
		log.Info(ctx, "using postgres store")
	default:
		res.store = repository.NewMemoryStore()
		log.Info(ctx, "using in-memory store")
	}

	switch cfg.Directory {
	case config.BackendPostgres:
		res.directory = gateway.NewPostgresDirectory(res.conn)
	default:
		res.directory = gateway.NewDirectory()
	}
	if err := seedDirectory(ctx, cfg, res.directory); err != nil {
		res.close()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		c, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cache.WithTTL(cfg.GlobalCacheTTL))
		if err != nil {
			// Global rankings still work uncached.
			log.Warn(ctx, "redis unavailable, global ranking cache disabled", logger.String("addr", cfg.RedisAddr), logger.Error(err))
		} else {
			res.cache = c
			log.Info(ctx, "global ranking cache enabled", logger.String("addr", cfg.RedisAddr), logger.Duration("ttl", cfg.GlobalCacheTTL))
		}
	}
	return res, nil
}

// seedDirectory loads the configured seed records followed by the generated
// demo games and users.
func seedDirectory(ctx context.Context, cfg *config.Config, s gateway.Seeder) error {
	games := make([]model.GameSummary, 0, len(cfg.Seed.Games)+cfg.DemoGames)
	for _, g := range cfg.Seed.Games {
		games = append(games, model.GameSummary{ID: g.ID, Title: g.Title, Thumbnail: g.Thumbnail, Category: g.Category})
	}
	games = append(games, gateway.DemoGames(cfg.DemoGames)...)

	users := make([]model.UserSummary, 0, len(cfg.Seed.Users)+cfg.DemoUsers)
	for _, u := range cfg.Seed.Users {
		users = append(users, model.UserSummary{ID: u.ID, Username: u.Username, FullName: u.FullName})
	}
	users = append(users, gateway.DemoUsers(cfg.DemoUsers)...)

	if err := gateway.Seed(ctx, s, games, users); err != nil {
		return err
	}
	logger.Get().Info(ctx, "directory seeded", logger.Int("games", len(games)), logger.Int("users", len(users)))
	return nil
}

func newService(cfg *config.Config, res *resources, log logger.Logger) (*service.Service, error) {
	strategy, err := service.ParseStrategy(cfg.SubmitStrategy)
	if err != nil {
		return nil, err
	}
	mode, err := service.ParseNotifyMode(cfg.NotifyMode)
	if err != nil {
		return nil, err
	}
	policy, err := scoring.ParseNegativePolicy(cfg.NegativeScorePolicy)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithStore(res.store),
		service.WithCatalog(res.directory),
		service.WithIdentity(res.directory),
		service.WithSubmitStrategy(strategy),
		service.WithSubmitRetry(cfg.SubmitMaxAttempts, cfg.SubmitRetryBase),
		service.WithNegativeScorePolicy(policy),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithNotifyMode(mode),
		service.WithNotifyQueue(cfg.NotifyQueueSize, cfg.NotifyWorkers),
		service.WithGatewayTimeout(cfg.GatewayTimeout),
		service.WithLimits(service.Limits{
			DefaultLeaderboard: cfg.DefaultLeaderboardLimit,
			MaxLeaderboard:     cfg.MaxLeaderboardLimit,
			DefaultGlobal:      cfg.DefaultGlobalLimit,
			MaxGlobal:          cfg.MaxGlobalLimit,
		}),
	}
	if res.cache != nil {
		opts = append(opts, service.WithRankingCache(res.cache))
	}
	return service.New(opts...), nil
}

// newHandler builds the router and wraps it with CORS.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service) http.Handler {
	r := mux.NewRouter()

	// Register the API reference under /api-docs
	swagger.Register(ctx, r)

	// Register business API routes with the service dependency.
	api.NewServer(svc, svc).Register(ctx, r)

	return cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", api.HeaderUserID, api.HeaderUserRole, api.HeaderRequestID},
		ExposedHeaders: []string{api.HeaderRequestID},
	}).Handler(r)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes table and entry gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics. GetStats already sets
// the table gauges; the notify queue is reported here.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats := svc.GetStats(ctx)

	if queueLen, ok := stats["notifyQueueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
}
