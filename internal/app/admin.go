package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/playrank/internal/adapters/repository"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/logger"
	"github.com/okian/playrank/pkg/metrics"
)

// AdminService performs privileged table mutations. Callers must have
// checked privilege already.
type AdminService struct {
	store  repository.Store
	cache  RankingCache
	logger logger.Logger
}

// NewAdminService wires an admin service. cache may be nil.
func NewAdminService(store repository.Store, cache RankingCache) *AdminService {
	return &AdminService{store: store, cache: cache, logger: logger.Get().Named("admin")}
}

func parseKey(gameID, timeframe string) (model.TableKey, error) {
	if strings.TrimSpace(gameID) == "" {
		return model.TableKey{}, fmt.Errorf("%w: gameId is required", model.ErrValidation)
	}
	tf, err := model.ParseTimeframe(timeframe)
	if err != nil {
		return model.TableKey{}, err
	}
	return model.TableKey{GameID: gameID, Timeframe: tf}, nil
}

// Reset empties a table. The table itself survives with a fresh lastUpdated.
func (a *AdminService) Reset(ctx context.Context, gameID, timeframe string) (model.Table, error) {
	const op = "reset"
	key, err := parseKey(gameID, timeframe)
	if err != nil {
		return model.Table{}, fmt.Errorf("%s: %w", op, err)
	}
	table, err := a.store.Clear(ctx, key)
	if err != nil {
		return model.Table{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordAdminAction(op)
	a.invalidate(ctx)
	a.logger.Info(ctx, "leaderboard reset", logger.String("table", key.String()))
	return table, nil
}

// RemoveUser deletes one user's entry from a table.
func (a *AdminService) RemoveUser(ctx context.Context, gameID, timeframe, userID string) (model.Table, error) {
	const op = "remove_user"
	key, err := parseKey(gameID, timeframe)
	if err != nil {
		return model.Table{}, fmt.Errorf("%s: %w", op, err)
	}
	if strings.TrimSpace(userID) == "" {
		return model.Table{}, fmt.Errorf("%s: %w: userId is required", op, model.ErrValidation)
	}
	table, err := a.store.RemoveEntry(ctx, key, userID)
	if err != nil {
		return model.Table{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordAdminAction(op)
	a.invalidate(ctx)
	a.logger.Info(ctx, "user removed from leaderboard",
		logger.String("table", key.String()),
		logger.String("userId", userID),
	)
	return table, nil
}

func (a *AdminService) invalidate(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Warn(ctx, "global ranking cache invalidation failed", logger.Error(err))
	}
}
