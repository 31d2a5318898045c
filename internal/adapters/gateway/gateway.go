// Package gateway provides the game catalog and user identity collaborators
// the leaderboard depends on.
package gateway

import (
	"context"
	"time"

	"github.com/okian/playrank/internal/domain/model"
)

// Catalog resolves game details. GetGame returns model.ErrGameNotFound for
// unknown ids.
type Catalog interface {
	GetGame(ctx context.Context, gameID string) (model.GameSummary, error)
}

// Identity resolves users and records their activity. GetUser returns
// model.ErrUserNotFound for unknown ids.
type Identity interface {
	GetUser(ctx context.Context, userID string) (model.UserSummary, error)

	// SetUserHighestScore raises the stored highest score; lower values are
	// ignored.
	SetUserHighestScore(ctx context.Context, userID string, score int64) error

	// TouchUserActivity sets the user's last active time.
	TouchUserActivity(ctx context.Context, userID string, at time.Time) error
}
