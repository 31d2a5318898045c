package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/ranking"
	"github.com/okian/playrank/pkg/metrics"
)

// table is one (game, timeframe) leaderboard. Its lock guards every field.
type table struct {
	mu          sync.RWMutex
	key         model.TableKey
	root        *node
	byUser      map[string]model.Entry
	version     uint64
	lastUpdated time.Time
	createdAt   time.Time
}

// snapshot copies the table; limit < 0 copies every entry.
func (t *table) snapshot(limit int) model.Table {
	n := len(t.byUser)
	if limit >= 0 && limit < n {
		n = limit
	}
	entries := make([]model.Entry, 0, n)
	collect(t.root, limit, &entries)
	return model.Table{
		Key:         t.key,
		Entries:     entries,
		Version:     t.version,
		LastUpdated: t.lastUpdated,
		CreatedAt:   t.createdAt,
	}
}

func (t *table) touch(now time.Time) {
	t.version++
	t.lastUpdated = now
}

// MemoryStore keeps every table in process memory. Tables lock
// independently, so writers to different games never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[model.TableKey]*table
	entries atomic.Int64
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		tables: make(map[model.TableKey]*table),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) lookup(key model.TableKey) (*table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[key]
	return t, ok
}

// acquire returns the table for key, creating it under the registry lock if
// it does not exist yet.
func (s *MemoryStore) acquire(key model.TableKey) *table {
	if t, ok := s.lookup(key); ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[key]; ok {
		return t
	}
	now := s.now()
	t := &table{
		key:         key,
		byUser:      make(map[string]model.Entry),
		lastUpdated: now,
		createdAt:   now,
	}
	s.tables[key] = t
	metrics.UpdateTablesTotal(len(s.tables))
	return t
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
}

func (s *MemoryStore) Get(_ context.Context, key model.TableKey) (model.Table, error) {
	defer observeQuery(time.Now())

	t, ok := s.lookup(key)
	if !ok {
		return model.Table{}, ErrTableNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot(-1), nil
}

func (s *MemoryStore) GetOrCreate(_ context.Context, key model.TableKey) (model.Table, error) {
	t := s.acquire(key)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot(-1), nil
}

func (s *MemoryStore) Top(_ context.Context, key model.TableKey, n int) (model.Table, int, error) {
	defer observeQuery(time.Now())

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return model.Table{}, 0, ErrInvalidLimit
	}
	t, ok := s.lookup(key)
	if !ok {
		return model.Table{}, 0, ErrTableNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot(n), len(t.byUser), nil
}

func (s *MemoryStore) Position(_ context.Context, key model.TableKey, userID string) (model.Standing, error) {
	defer observeQuery(time.Now())

	t, ok := s.lookup(key)
	if !ok {
		return model.Standing{}, ErrTableNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byUser[userID]
	if !ok {
		return model.Standing{}, ErrEntryNotFound
	}
	return model.Standing{Key: key, Entry: e, Rank: rankOf(t.root, e), Total: len(t.byUser)}, nil
}

func (s *MemoryStore) UpsertBest(_ context.Context, key model.TableKey, entry model.Entry) (model.Table, bool, error) {
	defer observeUpdate(time.Now())

	if entry.UserID == "" || entry.Score < 0 {
		return model.Table{}, false, fmt.Errorf("%w: user %q score %d", ErrInvalidEntry, entry.UserID, entry.Score)
	}

	t := s.acquire(key)
	t.mu.Lock()
	defer t.mu.Unlock()

	old, exists := t.byUser[entry.UserID]
	if exists {
		if entry.Score <= old.Score {
			return t.snapshot(-1), false, nil
		}
		t.root = remove(t.root, old)
		old.Score = entry.Score
		old.AchievedAt = entry.AchievedAt
		entry = old
	} else {
		metrics.UpdateEntriesTotal(int(s.entries.Add(1)))
	}
	t.byUser[entry.UserID] = entry
	t.root = insert(t.root, entry, rand.Uint64())
	t.touch(s.now())
	return t.snapshot(-1), true, nil
}

func (s *MemoryStore) ReplaceEntries(_ context.Context, key model.TableKey, entries []model.Entry, expectedVersion uint64) (model.Table, error) {
	defer observeUpdate(time.Now())

	t, ok := s.lookup(key)
	if !ok {
		return model.Table{}, ErrTableNotFound
	}

	byUser := make(map[string]model.Entry, len(entries))
	for _, e := range entries {
		if e.UserID == "" || e.Score < 0 {
			return model.Table{}, fmt.Errorf("%w: user %q score %d", ErrInvalidEntry, e.UserID, e.Score)
		}
		if _, dup := byUser[e.UserID]; dup {
			return model.Table{}, fmt.Errorf("%w: %s", ErrDuplicateUser, e.UserID)
		}
		byUser[e.UserID] = e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.version != expectedVersion {
		metrics.RecordErrorByComponent("repository", "version_conflict")
		return model.Table{}, fmt.Errorf("%w: %s at %d, expected %d", ErrVersionConflict, key, t.version, expectedVersion)
	}

	var root *node
	for _, e := range byUser {
		root = insert(root, e, rand.Uint64())
	}
	metrics.UpdateEntriesTotal(int(s.entries.Add(int64(len(byUser) - len(t.byUser)))))
	t.root = root
	t.byUser = byUser
	t.touch(s.now())
	return t.snapshot(-1), nil
}

func (s *MemoryStore) Clear(_ context.Context, key model.TableKey) (model.Table, error) {
	defer observeUpdate(time.Now())

	t, ok := s.lookup(key)
	if !ok {
		return model.Table{}, ErrTableNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	metrics.UpdateEntriesTotal(int(s.entries.Add(int64(-len(t.byUser)))))
	t.root = nil
	t.byUser = make(map[string]model.Entry)
	t.touch(s.now())
	return t.snapshot(-1), nil
}

func (s *MemoryStore) RemoveEntry(_ context.Context, key model.TableKey, userID string) (model.Table, error) {
	defer observeUpdate(time.Now())

	t, ok := s.lookup(key)
	if !ok {
		return model.Table{}, ErrTableNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byUser[userID]
	if !ok {
		return model.Table{}, ErrEntryNotFound
	}
	t.root = remove(t.root, e)
	delete(t.byUser, userID)
	metrics.UpdateEntriesTotal(int(s.entries.Add(-1)))
	t.touch(s.now())
	return t.snapshot(-1), nil
}

// all returns every table sorted by key so results are deterministic.
func (s *MemoryStore) all() []*table {
	s.mu.RLock()
	out := make([]*table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].key.GameID != out[j].key.GameID {
			return out[i].key.GameID < out[j].key.GameID
		}
		return out[i].key.Timeframe < out[j].key.Timeframe
	})
	return out
}

func (s *MemoryStore) StandingsForUser(ctx context.Context, userID string) ([]model.Standing, error) {
	defer observeQuery(time.Now())

	var out []model.Standing
	for _, t := range s.all() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.mu.RLock()
		if e, ok := t.byUser[userID]; ok {
			out = append(out, model.Standing{Key: t.key, Entry: e, Rank: rankOf(t.root, e), Total: len(t.byUser)})
		}
		t.mu.RUnlock()
	}
	return out, nil
}

// Totals reads each table under its own lock; the result is consistent per
// table, not across tables.
func (s *MemoryStore) Totals(ctx context.Context, limit int) ([]model.GlobalRanking, error) {
	defer observeQuery(time.Now())

	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	agg := ranking.NewAggregator()
	for _, t := range s.all() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.mu.RLock()
		snap := t.snapshot(-1)
		t.mu.RUnlock()
		agg.Add(snap)
	}
	return agg.Top(limit), nil
}

func (s *MemoryStore) Stats(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables), int(s.entries.Load()), nil
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}
