// Package service composes the leaderboard use cases behind one facade that
// satisfies the HTTP API's dependencies.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/playrank/internal/adapters/gateway"
	"github.com/okian/playrank/internal/adapters/repository"
	"github.com/okian/playrank/internal/domain/dedupe"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/scoring"
	"github.com/okian/playrank/pkg/logger"
	"github.com/okian/playrank/pkg/metrics"
)

// NotifyMode selects how post-commit activity reaches the identity
// collaborator.
type NotifyMode string

// Supported notify modes.
const (
	NotifySync  NotifyMode = "sync"
	NotifyAsync NotifyMode = "async"
)

// ParseNotifyMode validates s. An empty value selects NotifySync.
func ParseNotifyMode(s string) (NotifyMode, error) {
	switch NotifyMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", NotifySync:
		return NotifySync, nil
	case NotifyAsync:
		return NotifyAsync, nil
	default:
		return "", fmt.Errorf("unknown notify mode: %s", s)
	}
}

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

const shutdownTimeout = 10 * time.Second

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	// Collaborators; defaults are created in Start when unset.
	store    repository.Store
	catalog  gateway.Catalog
	identity gateway.Identity
	cache    RankingCache

	// Configuration
	strategy       Strategy
	maxAttempts    int
	retryBase      time.Duration
	negative       scoring.NegativePolicy
	dedupeSize     int
	notifyMode     NotifyMode
	queueSize      int
	workerCount    int
	gatewayTimeout time.Duration
	limits         Limits
	now            func() time.Time

	// Components
	submissions *SubmissionService
	queries     *QueryService
	admin       *AdminService
	deduper     dedupe.Deduper
	queued      *QueuedNotifier

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the leaderboard store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCatalog sets the game catalog collaborator.
func WithCatalog(c gateway.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithIdentity sets the user identity collaborator.
func WithIdentity(i gateway.Identity) Option {
	return func(s *Service) {
		s.identity = i
	}
}

// WithRankingCache enables caching of global rankings.
func WithRankingCache(c RankingCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithSubmitStrategy selects upsert or optimistic commits.
func WithSubmitStrategy(st Strategy) Option {
	return func(s *Service) {
		if st != "" {
			s.strategy = st
		}
	}
}

// WithSubmitRetry bounds optimistic retries.
func WithSubmitRetry(maxAttempts int, base time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithNegativeScorePolicy chooses between clamping and rejecting negatives.
func WithNegativeScorePolicy(p scoring.NegativePolicy) Option {
	return func(s *Service) {
		if p != "" {
			s.negative = p
		}
	}
}

// WithDedupeSize sets the size of the submission id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithNotifyMode selects inline or queued activity delivery.
func WithNotifyMode(m NotifyMode) Option {
	return func(s *Service) {
		if m != "" {
			s.notifyMode = m
		}
	}
}

// WithNotifyQueue sizes the async notifier.
func WithNotifyQueue(size, workers int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
		if workers > 0 {
			s.workerCount = workers
		}
	}
}

// WithGatewayTimeout bounds each post-commit collaborator call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// WithLimits sets default and maximum page sizes.
func WithLimits(l Limits) Option {
	return func(s *Service) {
		s.limits = l
	}
}

// WithClock overrides the submission time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		strategy:       StrategyUpsert,
		maxAttempts:    defaultMaxAttempts,
		retryBase:      defaultRetryBase,
		negative:       scoring.ClampNegative,
		dedupeSize:     50_000,
		notifyMode:     NotifySync,
		queueSize:      10_000,
		workerCount:    4,
		gatewayTimeout: defaultGatewayTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting leaderboard service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.catalog == nil || s.identity == nil {
		dir := gateway.NewDirectory()
		if s.catalog == nil {
			s.catalog = dir
		}
		if s.identity == nil {
			s.identity = dir
		}
		s.logger.Warn(ctx, "no directory configured, using an empty in-memory directory")
	}

	deliverer := NewActivityDeliverer(s.identity, s.gatewayTimeout)
	var notifier Notifier
	switch s.notifyMode {
	case NotifyAsync:
		s.queued = NewQueuedNotifier(deliverer, s.queueSize, s.workerCount)
		s.queued.Start(context.WithoutCancel(ctx))
		notifier = s.queued
	default:
		notifier = NewSyncNotifier(deliverer)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.submissions = NewSubmissionService(s.store, s.catalog, s.identity, notifier,
		WithStrategy(s.strategy),
		WithRetry(s.maxAttempts, s.retryBase),
		WithDeduper(s.deduper),
		WithNormalizer(scoring.NewNormalizer(scoring.WithNegativePolicy(s.negative))),
		WithSubmissionClock(s.now),
	)
	s.queries = NewQueryService(s.store, s.catalog, s.identity, s.cache, s.limits)
	s.admin = NewAdminService(s.store, s.cache)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.String("strategy", string(s.strategy)),
		logger.String("notifyMode", string(s.notifyMode)),
		logger.String("negativeScores", string(s.negative)),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued notifications and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	var errs []error
	if s.queued != nil {
		drainCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := s.queued.Shutdown(drainCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
	return errors.Join(errs...)
}

func (s *Service) components() (*SubmissionService, *QueryService, *AdminService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.submissions, s.queries, s.admin, nil
}

// Submit records a score.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (model.SubmitResult, error) {
	submissions, _, _, err := s.components()
	if err != nil {
		return model.SubmitResult{}, err
	}
	return submissions.Submit(ctx, sub)
}

// Leaderboard returns one table's top entries.
func (s *Service) Leaderboard(ctx context.Context, q model.LeaderboardQuery) (model.LeaderboardView, error) {
	_, queries, _, err := s.components()
	if err != nil {
		return model.LeaderboardView{}, err
	}
	return queries.Leaderboard(ctx, q)
}

// RanksForUser returns a user's standings across tables.
func (s *Service) RanksForUser(ctx context.Context, userID string) ([]model.UserRank, error) {
	_, queries, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return queries.RanksForUser(ctx, userID)
}

// GlobalRankings returns cross-table totals.
func (s *Service) GlobalRankings(ctx context.Context, limit int) ([]model.GlobalRanking, error) {
	_, queries, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return queries.GlobalRankings(ctx, limit)
}

// Reset clears a table.
func (s *Service) Reset(ctx context.Context, gameID, timeframe string) (model.Table, error) {
	_, _, admin, err := s.components()
	if err != nil {
		return model.Table{}, err
	}
	return admin.Reset(ctx, gameID, timeframe)
}

// RemoveUser removes one entry from a table.
func (s *Service) RemoveUser(ctx context.Context, gameID, timeframe, userID string) (model.Table, error) {
	_, _, admin, err := s.components()
	if err != nil {
		return model.Table{}, err
	}
	return admin.RemoveUser(ctx, gameID, timeframe, userID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"submitStrategy": string(s.strategy),
		"notifyMode":     string(s.notifyMode),
		"negativeScores": string(s.negative),
		"dedupeSize":     s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	tables, entries, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to read store stats", logger.Error(err))
	} else {
		stats["tables"] = tables
		stats["entries"] = entries
		metrics.UpdateTablesTotal(tables)
		metrics.UpdateEntriesTotal(entries)
	}
	stats["dedupeEntries"] = s.deduper.Size()
	if s.queued != nil {
		stats["notifyQueueLength"] = s.queued.Len()
	}
	return stats
}
