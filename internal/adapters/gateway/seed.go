package gateway

import (
	"context"
	"fmt"

	"github.com/okian/playrank/internal/domain/model"
)

// Seeder stores directory records. Existing records are left untouched.
type Seeder interface {
	PutGame(ctx context.Context, g model.GameSummary) error
	PutUser(ctx context.Context, u model.UserSummary) error
}

// Seed writes games then users into s. The first failure stops the run.
func Seed(ctx context.Context, s Seeder, games []model.GameSummary, users []model.UserSummary) error {
	for _, g := range games {
		if g.ID == "" {
			return fmt.Errorf("seed game: %w: empty id", model.ErrValidation)
		}
		if err := s.PutGame(ctx, g); err != nil {
			return fmt.Errorf("seed game %s: %w", g.ID, err)
		}
	}
	for _, u := range users {
		if u.ID == "" {
			return fmt.Errorf("seed user: %w: empty id", model.ErrValidation)
		}
		if u.Username == "" {
			u.Username = u.ID
		}
		if err := s.PutUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	return nil
}

// DemoGames returns n generated games with ids game-1..game-n.
func DemoGames(n int) []model.GameSummary {
	categories := []string{"arcade", "puzzle", "racing", "strategy"}
	games := make([]model.GameSummary, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		games = append(games, model.GameSummary{
			ID:       fmt.Sprintf("game-%d", i),
			Title:    fmt.Sprintf("Demo Game %d", i),
			Category: categories[(i-1)%len(categories)],
		})
	}
	return games
}

// DemoUsers returns n generated users with ids user-001..user-n.
func DemoUsers(n int) []model.UserSummary {
	users := make([]model.UserSummary, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("user-%03d", i)
		users = append(users, model.UserSummary{
			ID:       id,
			Username: id,
			FullName: fmt.Sprintf("Demo Player %d", i),
		})
	}
	return users
}
