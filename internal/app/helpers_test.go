package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/playrank/internal/adapters/gateway"
	"github.com/okian/playrank/internal/adapters/repository"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var errBoom = errors.New("boom")

// tickingClock returns a strictly increasing time on each call.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *tickingClock {
	return &tickingClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func seededDirectory() *gateway.Directory {
	d := gateway.NewDirectory()
	d.AddGame(model.GameSummary{ID: "g1", Title: "Space Race", Category: "arcade"})
	d.AddGame(model.GameSummary{ID: "g2", Title: "Word Hunt", Category: "puzzle"})
	d.AddUser(model.UserSummary{ID: "alice", Username: "alice", FullName: "Alice Adams"})
	d.AddUser(model.UserSummary{ID: "bob", Username: "bob", FullName: "Bob Brown"})
	d.AddUser(model.UserSummary{ID: "carol", Username: "carol"})
	return d
}

// spyIdentity records post-commit calls and can be told to fail.
type spyIdentity struct {
	*gateway.Directory
	mu       sync.Mutex
	highest  []int64
	touched  int
	failNext int
}

func (s *spyIdentity) SetUserHighestScore(ctx context.Context, userID string, score int64) error {
	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return errBoom
	}
	s.highest = append(s.highest, score)
	s.mu.Unlock()
	return s.Directory.SetUserHighestScore(ctx, userID, score)
}

func (s *spyIdentity) TouchUserActivity(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return errBoom
	}
	s.touched++
	s.mu.Unlock()
	return s.Directory.TouchUserActivity(ctx, userID, at)
}

func (s *spyIdentity) calls() ([]int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.highest...), s.touched
}

// failingCatalog reports every lookup as a transport failure.
type failingCatalog struct{}

func (failingCatalog) GetGame(context.Context, string) (model.GameSummary, error) {
	return model.GameSummary{}, errBoom
}

// conflictStore loses every optimistic write.
type conflictStore struct {
	*repository.MemoryStore
	attempts int
	mu       sync.Mutex
}

func (c *conflictStore) ReplaceEntries(context.Context, model.TableKey, []model.Entry, uint64) (model.Table, error) {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
	return model.Table{}, repository.ErrVersionConflict
}

// gatedStore holds UpsertBest until release is closed and fails it while
// failing is set.
type gatedStore struct {
	*repository.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	failing atomic.Bool
}

func newGatedStore() *gatedStore {
	g := &gatedStore{
		MemoryStore: repository.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	g.failing.Store(true)
	return g
}

func (g *gatedStore) UpsertBest(ctx context.Context, key model.TableKey, e model.Entry) (model.Table, bool, error) {
	if !g.failing.Load() {
		return g.MemoryStore.UpsertBest(ctx, key, e)
	}
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return model.Table{}, false, errBoom
}

// memCache is an in-process RankingCache.
type memCache struct {
	mu          sync.Mutex
	rows        map[int][]model.GlobalRanking
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{rows: make(map[int][]model.GlobalRanking)}
}

func (c *memCache) Get(_ context.Context, limit int) ([]model.GlobalRanking, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.rows[limit]
	return rows, ok, nil
}

func (c *memCache) Set(_ context.Context, limit int, rows []model.GlobalRanking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[limit] = append([]model.GlobalRanking(nil), rows...)
	return nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = make(map[int][]model.GlobalRanking)
	c.invalidated++
	return nil
}

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
