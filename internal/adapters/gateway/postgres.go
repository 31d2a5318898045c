package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/playrank/internal/adapters/repository/postgres"
	"github.com/okian/playrank/internal/domain/model"
)

// PostgresDirectory reads games and users from the games and users tables.
type PostgresDirectory struct {
	conn *postgres.Connection
}

var (
	_ Catalog  = (*PostgresDirectory)(nil)
	_ Identity = (*PostgresDirectory)(nil)
	_ Seeder   = (*PostgresDirectory)(nil)
)

func NewPostgresDirectory(conn *postgres.Connection) *PostgresDirectory {
	return &PostgresDirectory{conn: conn}
}

func (d *PostgresDirectory) PutGame(ctx context.Context, g model.GameSummary) error {
	_, err := d.conn.Pool().Exec(ctx, `
		INSERT INTO games (id, title, thumbnail, category) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, g.ID, g.Title, g.Thumbnail, g.Category)
	if err != nil {
		return fmt.Errorf("%w: put game %s: %v", model.ErrCollaborator, g.ID, err)
	}
	return nil
}

func (d *PostgresDirectory) PutUser(ctx context.Context, u model.UserSummary) error {
	_, err := d.conn.Pool().Exec(ctx, `
		INSERT INTO users (id, username, full_name, highest_score) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.Username, u.FullName, u.HighestScore)
	if err != nil {
		return fmt.Errorf("%w: put user %s: %v", model.ErrCollaborator, u.ID, err)
	}
	return nil
}

func (d *PostgresDirectory) GetGame(ctx context.Context, gameID string) (model.GameSummary, error) {
	g := model.GameSummary{ID: gameID}
	err := d.conn.Pool().QueryRow(ctx, `
		SELECT title, thumbnail, category FROM games WHERE id = $1
	`, gameID).Scan(&g.Title, &g.Thumbnail, &g.Category)
	if postgres.IsNoRows(err) {
		return model.GameSummary{}, model.ErrGameNotFound
	}
	if err != nil {
		return model.GameSummary{}, fmt.Errorf("%w: get game %s: %v", model.ErrCollaborator, gameID, err)
	}
	return g, nil
}

func (d *PostgresDirectory) GetUser(ctx context.Context, userID string) (model.UserSummary, error) {
	u := model.UserSummary{ID: userID}
	var lastActive *time.Time
	err := d.conn.Pool().QueryRow(ctx, `
		SELECT username, full_name, highest_score, last_active FROM users WHERE id = $1
	`, userID).Scan(&u.Username, &u.FullName, &u.HighestScore, &lastActive)
	if postgres.IsNoRows(err) {
		return model.UserSummary{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.UserSummary{}, fmt.Errorf("%w: get user %s: %v", model.ErrCollaborator, userID, err)
	}
	if lastActive != nil {
		u.LastActive = lastActive.UTC()
	}
	return u, nil
}

func (d *PostgresDirectory) SetUserHighestScore(ctx context.Context, userID string, score int64) error {
	tag, err := d.conn.Pool().Exec(ctx, `
		UPDATE users SET highest_score = GREATEST(highest_score, $2) WHERE id = $1
	`, userID, score)
	if err != nil {
		return fmt.Errorf("%w: set highest score for %s: %v", model.ErrCollaborator, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (d *PostgresDirectory) TouchUserActivity(ctx context.Context, userID string, at time.Time) error {
	tag, err := d.conn.Pool().Exec(ctx, `
		UPDATE users SET last_active = $2 WHERE id = $1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("%w: touch activity for %s: %v", model.ErrCollaborator, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
