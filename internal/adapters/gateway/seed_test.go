package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/playrank/internal/domain/model"
)

type failingSeeder struct {
	*Directory
}

func (failingSeeder) PutUser(context.Context, model.UserSummary) error {
	return errors.New("boom")
}

func TestSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("fills an empty directory", func(t *testing.T) {
		d := NewDirectory()
		require.NoError(t, Seed(ctx, d, DemoGames(3), DemoUsers(12)))

		g, err := d.GetGame(ctx, "game-3")
		require.NoError(t, err)
		assert.Equal(t, "Demo Game 3", g.Title)
		assert.Equal(t, "racing", g.Category)

		u, err := d.GetUser(ctx, "user-012")
		require.NoError(t, err)
		assert.Equal(t, "user-012", u.Username)

		_, err = d.GetGame(ctx, "game-4")
		assert.ErrorIs(t, err, model.ErrGameNotFound)
	})

	t.Run("keeps existing records", func(t *testing.T) {
		d := NewDirectory()
		d.AddUser(model.UserSummary{ID: "alice", Username: "alice", HighestScore: 90})
		require.NoError(t, Seed(ctx, d, nil, []model.UserSummary{{ID: "alice", FullName: "Other"}, {ID: "bob"}}))

		u, err := d.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(90), u.HighestScore)
		assert.Empty(t, u.FullName)

		u, err = d.GetUser(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "bob", u.Username)
	})

	t.Run("rejects empty ids", func(t *testing.T) {
		err := Seed(ctx, NewDirectory(), []model.GameSummary{{Title: "no id"}}, nil)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		s := failingSeeder{NewDirectory()}
		err := Seed(ctx, s, DemoGames(1), DemoUsers(1))
		assert.ErrorContains(t, err, "seed user user-001")
	})

	t.Run("non-positive counts yield nothing", func(t *testing.T) {
		assert.Empty(t, DemoGames(0))
		assert.Empty(t, DemoUsers(-1))
	})
}
