package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/okian/playrank/internal/adapters/gateway"
	"github.com/okian/playrank/internal/adapters/repository"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/ranking"
	"github.com/okian/playrank/pkg/logger"
	"github.com/okian/playrank/pkg/metrics"
)

const (
	defaultLimit      = 10
	defaultMaxLimit   = 100
	enrichConcurrency = 16

	// UnknownFullName stands in for users the identity collaborator cannot
	// resolve.
	UnknownFullName = "Unknown"
)

// RankingCache stores computed global rankings per limit.
type RankingCache interface {
	Get(ctx context.Context, limit int) ([]model.GlobalRanking, bool, error)
	Set(ctx context.Context, limit int, rows []model.GlobalRanking) error
	Invalidate(ctx context.Context) error
}

// Limits bounds the page sizes callers may request.
type Limits struct {
	DefaultLeaderboard int
	MaxLeaderboard     int
	DefaultGlobal      int
	MaxGlobal          int
}

func (l Limits) withDefaults() Limits {
	if l.DefaultLeaderboard < 1 {
		l.DefaultLeaderboard = defaultLimit
	}
	if l.MaxLeaderboard < 1 {
		l.MaxLeaderboard = defaultMaxLimit
	}
	if l.DefaultGlobal < 1 {
		l.DefaultGlobal = defaultLimit
	}
	if l.MaxGlobal < 1 {
		l.MaxGlobal = defaultMaxLimit
	}
	l.DefaultLeaderboard = min(l.DefaultLeaderboard, l.MaxLeaderboard)
	l.DefaultGlobal = min(l.DefaultGlobal, l.MaxGlobal)
	return l
}

// resolveLimit maps 0 to def, rejects negatives and caps at max.
func resolveLimit(limit, def, max int) (int, error) {
	switch {
	case limit == 0:
		return def, nil
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must be at least 1", model.ErrInvalidLimit)
	case limit > max:
		return max, nil
	default:
		return limit, nil
	}
}

// QueryService answers read-only leaderboard questions.
type QueryService struct {
	store    repository.Store
	catalog  gateway.Catalog
	identity gateway.Identity
	cache    RankingCache
	limits   Limits
	group    singleflight.Group
	logger   logger.Logger
}

// NewQueryService wires a query service. cache may be nil.
func NewQueryService(store repository.Store, catalog gateway.Catalog, identity gateway.Identity, cache RankingCache, limits Limits) *QueryService {
	return &QueryService{
		store:    store,
		catalog:  catalog,
		identity: identity,
		cache:    cache,
		limits:   limits.withDefaults(),
		logger:   logger.Get().Named("query"),
	}
}

// Leaderboard returns the top of one table. A table nobody has submitted to
// yet yields an empty view, not an error; an unknown game is an error.
func (q *QueryService) Leaderboard(ctx context.Context, query model.LeaderboardQuery) (model.LeaderboardView, error) {
	const op = "leaderboard"

	tf, err := model.ParseTimeframe(query.Timeframe)
	if err != nil {
		return model.LeaderboardView{}, fmt.Errorf("%s: %w", op, err)
	}
	limit, err := resolveLimit(query.Limit, q.limits.DefaultLeaderboard, q.limits.MaxLeaderboard)
	if err != nil {
		return model.LeaderboardView{}, fmt.Errorf("%s: %w", op, err)
	}
	game, err := q.catalog.GetGame(ctx, query.GameID)
	if err != nil {
		return model.LeaderboardView{}, fmt.Errorf("%s: %w", op, collaboratorError("get_game", err))
	}

	view := model.LeaderboardView{Game: game, Timeframe: tf, Entries: []model.RankedEntry{}}
	key := model.TableKey{GameID: query.GameID, Timeframe: tf}

	table, total, err := q.store.Top(ctx, key, limit)
	if errors.Is(err, repository.ErrTableNotFound) {
		return view, nil
	}
	if err != nil {
		return model.LeaderboardView{}, fmt.Errorf("%s: %w", op, err)
	}

	lastUpdated := table.LastUpdated
	view.LastUpdated = &lastUpdated
	view.Entries = ranking.Rank(table.Entries)
	view.TotalEntries = total

	if query.RequesterID != "" {
		st, err := q.store.Position(ctx, key, query.RequesterID)
		switch {
		case err == nil:
			view.UserRank = &model.RequesterRank{Position: st.Rank, Score: st.Entry.Score, AchievedAt: st.Entry.AchievedAt}
		case errors.Is(err, repository.ErrEntryNotFound), errors.Is(err, repository.ErrTableNotFound):
		default:
			return model.LeaderboardView{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	return view, nil
}

// RanksForUser lists every table the user appears in, strongest relative
// placement first.
func (q *QueryService) RanksForUser(ctx context.Context, userID string) ([]model.UserRank, error) {
	const op = "ranks_for_user"
	if userID == "" {
		return nil, fmt.Errorf("%s: %w: userId is required", op, model.ErrValidation)
	}

	standings, err := q.store.StandingsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	games, err := q.resolveGames(ctx, standings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ranks := make([]model.UserRank, 0, len(standings))
	for _, st := range standings {
		ranks = append(ranks, model.UserRank{
			Game:              games[st.Key.GameID],
			Timeframe:         st.Key.Timeframe,
			Rank:              st.Rank,
			Score:             st.Entry.Score,
			AchievedAt:        st.Entry.AchievedAt,
			TotalParticipants: st.Total,
			Percentile:        st.Percentile(),
		})
	}
	ranking.SortUserRanks(ranks)
	return ranks, nil
}

// resolveGames looks up each distinct game once, concurrently. Unknown games
// keep only their id.
func (q *QueryService) resolveGames(ctx context.Context, standings []model.Standing) (map[string]model.GameSummary, error) {
	ids := make([]string, 0, len(standings))
	seen := make(map[string]struct{}, len(standings))
	for _, st := range standings {
		if _, ok := seen[st.Key.GameID]; !ok {
			seen[st.Key.GameID] = struct{}{}
			ids = append(ids, st.Key.GameID)
		}
	}

	summaries := make([]model.GameSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			game, err := q.catalog.GetGame(gctx, id)
			switch {
			case err == nil:
				summaries[i] = game
			case errors.Is(err, model.ErrGameNotFound):
				summaries[i] = model.GameSummary{ID: id}
			default:
				return collaboratorError("get_game", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]model.GameSummary, len(ids))
	for i, id := range ids {
		out[id] = summaries[i]
	}
	return out, nil
}

// GlobalRankings sums every user's scores across all tables. Identical
// concurrent requests share one computation; results may be served from the
// ranking cache until it expires or an admin mutation invalidates it.
func (q *QueryService) GlobalRankings(ctx context.Context, limit int) ([]model.GlobalRanking, error) {
	const op = "global_rankings"
	limit, err := resolveLimit(limit, q.limits.DefaultGlobal, q.limits.MaxGlobal)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if q.cache != nil {
		rows, ok, err := q.cache.Get(ctx, limit)
		if err != nil {
			q.logger.Warn(ctx, "global ranking cache read failed", logger.Error(err))
		} else if ok {
			return rows, nil
		}
	}

	v, err, _ := q.group.Do(strconv.Itoa(limit), func() (any, error) {
		return q.computeGlobal(context.WithoutCancel(ctx), limit)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows := v.([]model.GlobalRanking)

	out := make([]model.GlobalRanking, len(rows))
	copy(out, rows)
	return out, nil
}

func (q *QueryService) computeGlobal(ctx context.Context, limit int) ([]model.GlobalRanking, error) {
	start := time.Now()
	defer func() {
		metrics.RecordGlobalRankingDuration(float64(time.Since(start).Milliseconds()))
	}()

	rows, err := q.store.Totals(ctx, limit)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range rows {
		g.Go(func() error {
			user, err := q.identity.GetUser(gctx, rows[i].UserID)
			switch {
			case err == nil:
				rows[i].FullName = user.FullName
				if rows[i].FullName == "" {
					rows[i].FullName = user.Username
				}
			case errors.Is(err, model.ErrUserNotFound):
				rows[i].FullName = UnknownFullName
			default:
				metrics.RecordGatewayError("get_user")
				q.logger.Warn(gctx, "user lookup failed during global ranking",
					logger.String("userId", rows[i].UserID),
					logger.Error(err),
				)
				rows[i].FullName = UnknownFullName
			}
			return nil
		})
	}
	_ = g.Wait()

	if q.cache != nil {
		if err := q.cache.Set(ctx, limit, rows); err != nil {
			q.logger.Warn(ctx, "global ranking cache write failed", logger.Error(err))
		}
	}
	return rows, nil
}
