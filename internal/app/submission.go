package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/okian/playrank/internal/adapters/gateway"
	"github.com/okian/playrank/internal/adapters/repository"
	"github.com/okian/playrank/internal/domain/dedupe"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/ranking"
	"github.com/okian/playrank/internal/domain/scoring"
	"github.com/okian/playrank/pkg/logger"
	"github.com/okian/playrank/pkg/metrics"
)

// Strategy selects how a submission is committed.
type Strategy string

// Supported submit strategies.
const (
	// StrategyUpsert delegates insert-or-raise to the store in one atomic step.
	StrategyUpsert Strategy = "upsert"
	// StrategyOptimistic reads, applies in memory and writes back guarded by
	// the table version, retrying on conflict.
	StrategyOptimistic Strategy = "optimistic"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = 5 * time.Millisecond
	maxBackoffFactor   = 64
)

// ParseStrategy validates s. An empty value selects StrategyUpsert.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyUpsert:
		return StrategyUpsert, nil
	case StrategyOptimistic:
		return StrategyOptimistic, nil
	default:
		return "", fmt.Errorf("unknown submit strategy: %s", s)
	}
}

// SubmissionService records scores.
type SubmissionService struct {
	store      repository.Store
	catalog    gateway.Catalog
	identity   gateway.Identity
	notifier   Notifier
	deduper    dedupe.Deduper
	normalizer *scoring.Normalizer
	flights    singleflight.Group

	strategy    Strategy
	maxAttempts int
	retryBase   time.Duration
	now         func() time.Time
	logger      logger.Logger
}

// SubmissionOption configures a SubmissionService.
type SubmissionOption func(*SubmissionService)

// WithStrategy selects the commit strategy.
func WithStrategy(st Strategy) SubmissionOption {
	return func(s *SubmissionService) {
		if st != "" {
			s.strategy = st
		}
	}
}

// WithRetry bounds the optimistic strategy: total attempts and the first
// backoff delay.
func WithRetry(maxAttempts int, base time.Duration) SubmissionOption {
	return func(s *SubmissionService) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithDeduper enables submissionId idempotency.
func WithDeduper(d dedupe.Deduper) SubmissionOption {
	return func(s *SubmissionService) {
		s.deduper = d
	}
}

// WithNormalizer overrides the score normalizer.
func WithNormalizer(n *scoring.Normalizer) SubmissionOption {
	return func(s *SubmissionService) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// WithSubmissionClock overrides the time source for achievedAt.
func WithSubmissionClock(now func() time.Time) SubmissionOption {
	return func(s *SubmissionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSubmissionService wires a submission service. notifier may be nil.
func NewSubmissionService(store repository.Store, catalog gateway.Catalog, identity gateway.Identity, notifier Notifier, opts ...SubmissionOption) *SubmissionService {
	s := &SubmissionService{
		store:       store,
		catalog:     catalog,
		identity:    identity,
		notifier:    notifier,
		normalizer:  scoring.NewNormalizer(),
		strategy:    StrategyUpsert,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.Get().Named("submission"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates sub, resolves its game and user, commits the score and
// then notifies the identity collaborator. A score that does not beat the
// existing entry returns Applied=false without error.
func (s *SubmissionService) Submit(ctx context.Context, sub model.Submission) (model.SubmitResult, error) {
	const op = "submit"
	start := time.Now()
	defer func() {
		metrics.RecordSubmitLatency(float64(time.Since(start).Milliseconds()))
	}()

	key, score, err := s.validate(sub)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return model.SubmitResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.catalog.GetGame(ctx, sub.GameID); err != nil {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return model.SubmitResult{}, fmt.Errorf("%s: %w", op, collaboratorError("get_game", err))
	}
	user, err := s.identity.GetUser(ctx, sub.UserID)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return model.SubmitResult{}, fmt.Errorf("%s: %w", op, collaboratorError("get_user", err))
	}

	username := strings.TrimSpace(sub.Username)
	if username == "" {
		username = user.Username
	}

	entry := model.Entry{UserID: sub.UserID, Username: username, Score: score, AchievedAt: s.now()}

	var (
		table   model.Table
		applied bool
	)
	if sub.SubmissionID != "" && s.deduper != nil {
		id := key.String() + "/" + sub.UserID + "/" + sub.SubmissionID
		var replay bool
		table, applied, replay, err = s.commitOnce(ctx, id, key, entry)
		if err == nil && replay {
			return s.replayed(ctx, key, sub, score)
		}
	} else {
		table, applied, err = s.commit(ctx, key, entry)
	}
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeFailed)
		return model.SubmitResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if applied {
		metrics.RecordSubmission(metrics.OutcomeApplied)
	} else {
		metrics.RecordSubmission(metrics.OutcomeUnchanged)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, model.ActivityEvent{
			UserID:       sub.UserID,
			Score:        score,
			RaiseHighest: applied && score > user.HighestScore,
			At:           entry.AchievedAt,
		})
	}

	return model.SubmitResult{Applied: applied, Table: table}, nil
}

type commitResult struct {
	table   model.Table
	applied bool
}

// commitOnce commits entry at most once per id. Concurrent calls for the same
// id share a single commit and its error; the id is recorded only after the
// commit succeeds so a failed attempt can be retried. replay is true when
// this caller did not perform the commit itself.
func (s *SubmissionService) commitOnce(ctx context.Context, id string, key model.TableKey, entry model.Entry) (model.Table, bool, bool, error) {
	if s.deduper.Seen(ctx, id) {
		return model.Table{}, false, true, nil
	}
	committed := false
	v, err, _ := s.flights.Do(id, func() (any, error) {
		if s.deduper.Seen(ctx, id) {
			return nil, nil
		}
		table, applied, err := s.commit(ctx, key, entry)
		if err != nil {
			return nil, err
		}
		s.deduper.SeenAndRecord(ctx, id)
		committed = true
		return commitResult{table: table, applied: applied}, nil
	})
	if err != nil {
		return model.Table{}, false, false, err
	}
	if !committed {
		return model.Table{}, false, true, nil
	}
	r := v.(commitResult)
	return r.table, r.applied, false, nil
}

// replayed answers a repeated submission id with the table as it stands. The
// user's activity is still refreshed.
func (s *SubmissionService) replayed(ctx context.Context, key model.TableKey, sub model.Submission, score int64) (model.SubmitResult, error) {
	table, err := s.store.Get(ctx, key)
	if errors.Is(err, repository.ErrTableNotFound) {
		table, err = model.Table{Key: key}, nil
	}
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeFailed)
		return model.SubmitResult{}, fmt.Errorf("submit: %w", err)
	}

	metrics.RecordSubmission(metrics.OutcomeDuplicate)
	s.logger.Debug(ctx, "duplicate submission ignored",
		logger.String("submissionId", sub.SubmissionID),
		logger.String("table", key.String()),
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, model.ActivityEvent{
			UserID: sub.UserID,
			Score:  score,
			At:     s.now(),
		})
	}
	return model.SubmitResult{Duplicate: true, Table: table}, nil
}

func (s *SubmissionService) validate(sub model.Submission) (model.TableKey, int64, error) {
	if strings.TrimSpace(sub.GameID) == "" {
		return model.TableKey{}, 0, fmt.Errorf("%w: gameId is required", model.ErrValidation)
	}
	if strings.TrimSpace(sub.UserID) == "" {
		return model.TableKey{}, 0, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	tf, err := model.ParseTimeframe(sub.Timeframe)
	if err != nil {
		return model.TableKey{}, 0, err
	}
	score, err := s.normalizer.Normalize(sub.Score)
	if err != nil {
		return model.TableKey{}, 0, err
	}
	return model.TableKey{GameID: sub.GameID, Timeframe: tf}, score, nil
}

func (s *SubmissionService) commit(ctx context.Context, key model.TableKey, entry model.Entry) (model.Table, bool, error) {
	if s.strategy == StrategyOptimistic {
		return s.commitOptimistic(ctx, key, entry)
	}
	return s.store.UpsertBest(ctx, key, entry)
}

// commitOptimistic retries the read-apply-write cycle with exponential
// backoff while the table version keeps moving underneath it.
func (s *SubmissionService) commitOptimistic(ctx context.Context, key model.TableKey, entry model.Entry) (model.Table, bool, error) {
	var (
		table   model.Table
		applied bool
		attempt int
	)
	backoff := retry.NewExponential(s.retryBase)
	backoff = retry.WithCappedDuration(s.retryBase*maxBackoffFactor, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(uint64(s.maxAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.RecordSubmitRetry()
		}

		current, err := s.store.GetOrCreate(ctx, key)
		if err != nil {
			return err
		}
		next, changed := ranking.Apply(current.Entries, entry)
		if !changed {
			table, applied = current, false
			return nil
		}
		updated, err := s.store.ReplaceEntries(ctx, key, next, current.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.RecordVersionConflict()
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		table, applied = updated, true
		return nil
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		s.logger.Warn(ctx, "submission gave up after repeated version conflicts",
			logger.String("table", key.String()),
			logger.String("userId", entry.UserID),
			logger.Int("attempts", attempt),
		)
		return model.Table{}, false, fmt.Errorf("%w: %s after %d attempts", model.ErrConflict, key, attempt)
	}
	if err != nil {
		return model.Table{}, false, err
	}
	return table, applied, nil
}

// collaboratorError keeps not-found results as they are and marks anything
// else as a collaborator failure.
func collaboratorError(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrCollaborator) {
		return err
	}
	metrics.RecordGatewayError(op)
	return fmt.Errorf("%w: %s: %v", model.ErrCollaborator, op, err)
}
