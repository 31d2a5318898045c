package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/okian/playrank/internal/domain/model"
)

// Directory is an in-process Catalog and Identity.
type Directory struct {
	mu    sync.RWMutex
	games map[string]model.GameSummary
	users map[string]model.UserSummary
}

var (
	_ Catalog  = (*Directory)(nil)
	_ Identity = (*Directory)(nil)
	_ Seeder   = (*Directory)(nil)
)

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		games: make(map[string]model.GameSummary),
		users: make(map[string]model.UserSummary),
	}
}

// AddGame registers or replaces a game.
func (d *Directory) AddGame(g model.GameSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.games[g.ID] = g
}

// AddUser registers or replaces a user.
func (d *Directory) AddUser(u model.UserSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// PutGame adds g unless a game with the same id exists.
func (d *Directory) PutGame(_ context.Context, g model.GameSummary) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.games[g.ID]; !ok {
		d.games[g.ID] = g
	}
	return nil
}

// PutUser adds u unless a user with the same id exists.
func (d *Directory) PutUser(_ context.Context, u model.UserSummary) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.ID]; !ok {
		d.users[u.ID] = u
	}
	return nil
}

func (d *Directory) GetGame(_ context.Context, gameID string) (model.GameSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.games[gameID]
	if !ok {
		return model.GameSummary{}, model.ErrGameNotFound
	}
	return g, nil
}

func (d *Directory) GetUser(_ context.Context, userID string) (model.UserSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return model.UserSummary{}, model.ErrUserNotFound
	}
	return u, nil
}

func (d *Directory) SetUserHighestScore(_ context.Context, userID string, score int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	if score > u.HighestScore {
		u.HighestScore = score
		d.users[userID] = u
	}
	return nil
}

func (d *Directory) TouchUserActivity(_ context.Context, userID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.LastActive = at
	d.users[userID] = u
	return nil
}
