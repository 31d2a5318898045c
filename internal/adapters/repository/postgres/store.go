package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okian/playrank/internal/adapters/repository"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/metrics"
)

// Leaderboard order. COLLATE "C" keeps the user id tiebreak bytewise, matching
// the in-memory store.
const orderBy = `score DESC, achieved_at ASC, user_id COLLATE "C" ASC`

// Store implements repository.Store on PostgreSQL. Every mutation runs in a
// single transaction that also bumps the table version.
type Store struct {
	conn *Connection
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for lastUpdated and createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps an open connection. Run Migrate first.
func NewStore(conn *Connection, opts ...Option) *Store {
	s := &Store{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
}

// load reads the table header and up to limit entries (limit < 0 means all).
func load(ctx context.Context, q Querier, key model.TableKey, limit int) (model.Table, int, error) {
	t := model.Table{Key: key}
	var total int
	err := q.QueryRow(ctx, `
		SELECT t.version, t.last_updated, t.created_at,
		       (SELECT COUNT(*) FROM leaderboard_entries e
		         WHERE e.game_id = t.game_id AND e.timeframe = t.timeframe)
		FROM leaderboard_tables t
		WHERE t.game_id = $1 AND t.timeframe = $2
	`, key.GameID, string(key.Timeframe)).Scan(&t.Version, &t.LastUpdated, &t.CreatedAt, &total)
	if IsNoRows(err) {
		return model.Table{}, 0, repository.ErrTableNotFound
	}
	if err != nil {
		return model.Table{}, 0, fmt.Errorf("failed to load table %s: %w", key, err)
	}
	t.LastUpdated = t.LastUpdated.UTC()
	t.CreatedAt = t.CreatedAt.UTC()

	var lim any
	if limit >= 0 {
		lim = limit
	}
	rows, err := q.Query(ctx, `
		SELECT user_id, username, score, achieved_at
		FROM leaderboard_entries
		WHERE game_id = $1 AND timeframe = $2
		ORDER BY `+orderBy+`
		LIMIT $3
	`, key.GameID, string(key.Timeframe), lim)
	if err != nil {
		return model.Table{}, 0, fmt.Errorf("failed to load entries %s: %w", key, err)
	}
	defer rows.Close()

	capacity := total
	if limit >= 0 {
		capacity = min(total, limit)
	}
	t.Entries = make([]model.Entry, 0, capacity)
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Score, &e.AchievedAt); err != nil {
			return model.Table{}, 0, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.AchievedAt = e.AchievedAt.UTC()
		t.Entries = append(t.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return model.Table{}, 0, err
	}
	return t, total, nil
}

func ensureTable(ctx context.Context, q Querier, key model.TableKey, now time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO leaderboard_tables (game_id, timeframe, version, last_updated, created_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (game_id, timeframe) DO NOTHING
	`, key.GameID, string(key.Timeframe), now)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", key, err)
	}
	return nil
}

// bump increments the version and reports false if the table does not exist.
func bump(ctx context.Context, q Querier, key model.TableKey, now time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE leaderboard_tables SET version = version + 1, last_updated = $3
		WHERE game_id = $1 AND timeframe = $2
	`, key.GameID, string(key.Timeframe), now)
	if err != nil {
		return false, fmt.Errorf("failed to bump table %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func tableExists(ctx context.Context, q Querier, key model.TableKey) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM leaderboard_tables WHERE game_id = $1 AND timeframe = $2)
	`, key.GameID, string(key.Timeframe)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", key, err)
	}
	return exists, nil
}

func validEntry(e model.Entry) error {
	if e.UserID == "" || e.Score < 0 {
		return fmt.Errorf("%w: user %q score %d", repository.ErrInvalidEntry, e.UserID, e.Score)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key model.TableKey) (model.Table, error) {
	defer observeQuery(time.Now())
	q, err := s.conn.querier()
	if err != nil {
		return model.Table{}, err
	}
	t, _, err := load(ctx, q, key, -1)
	return t, err
}

func (s *Store) GetOrCreate(ctx context.Context, key model.TableKey) (model.Table, error) {
	q, err := s.conn.querier()
	if err != nil {
		return model.Table{}, err
	}
	if err := ensureTable(ctx, q, key, s.now()); err != nil {
		return model.Table{}, err
	}
	t, _, err := load(ctx, q, key, -1)
	return t, err
}

func (s *Store) Top(ctx context.Context, key model.TableKey, n int) (model.Table, int, error) {
	defer observeQuery(time.Now())
	if n < 1 {
		return model.Table{}, 0, repository.ErrInvalidLimit
	}
	q, err := s.conn.querier()
	if err != nil {
		return model.Table{}, 0, err
	}
	return load(ctx, q, key, n)
}

func (s *Store) Position(ctx context.Context, key model.TableKey, userID string) (model.Standing, error) {
	defer observeQuery(time.Now())
	q, err := s.conn.querier()
	if err != nil {
		return model.Standing{}, err
	}

	st := model.Standing{Key: key, Entry: model.Entry{UserID: userID}}
	err = q.QueryRow(ctx, `
		SELECT username, score, achieved_at, rank, total FROM (
			SELECT user_id, username, score, achieved_at,
			       ROW_NUMBER() OVER (ORDER BY `+orderBy+`) AS rank,
			       COUNT(*) OVER () AS total
			FROM leaderboard_entries
			WHERE game_id = $1 AND timeframe = $2
		) ranked
		WHERE user_id = $3
	`, key.GameID, string(key.Timeframe), userID).Scan(&st.Entry.Username, &st.Entry.Score, &st.Entry.AchievedAt, &st.Rank, &st.Total)
	if IsNoRows(err) {
		exists, err := tableExists(ctx, q, key)
		if err != nil {
			return model.Standing{}, err
		}
		if !exists {
			return model.Standing{}, repository.ErrTableNotFound
		}
		return model.Standing{}, repository.ErrEntryNotFound
	}
	if err != nil {
		return model.Standing{}, fmt.Errorf("failed to rank %s in %s: %w", userID, key, err)
	}
	st.Entry.AchievedAt = st.Entry.AchievedAt.UTC()
	return st, nil
}

func (s *Store) UpsertBest(ctx context.Context, key model.TableKey, entry model.Entry) (model.Table, bool, error) {
	defer observeUpdate(time.Now())
	if err := validEntry(entry); err != nil {
		return model.Table{}, false, err
	}

	var (
		out     model.Table
		applied bool
	)
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		now := s.now()
		if err := ensureTable(ctx, tx, key, now); err != nil {
			return err
		}
		// Row locking under ON CONFLICT makes the strictly-greater check
		// atomic against concurrent writers for the same user.
		tag, err := tx.Exec(ctx, `
			INSERT INTO leaderboard_entries (game_id, timeframe, user_id, username, score, achieved_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (game_id, timeframe, user_id) DO UPDATE
			SET score = EXCLUDED.score, achieved_at = EXCLUDED.achieved_at
			WHERE leaderboard_entries.score < EXCLUDED.score
		`, key.GameID, string(key.Timeframe), entry.UserID, entry.Username, entry.Score, entry.AchievedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert %s in %s: %w", entry.UserID, key, err)
		}
		applied = tag.RowsAffected() == 1
		if applied {
			if _, err := bump(ctx, tx, key, now); err != nil {
				return err
			}
		}
		out, _, err = load(ctx, tx, key, -1)
		return err
	})
	if err != nil {
		return model.Table{}, false, err
	}
	return out, applied, nil
}

func (s *Store) ReplaceEntries(ctx context.Context, key model.TableKey, entries []model.Entry, expectedVersion uint64) (model.Table, error) {
	defer observeUpdate(time.Now())

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := validEntry(e); err != nil {
			return model.Table{}, err
		}
		if _, dup := seen[e.UserID]; dup {
			return model.Table{}, fmt.Errorf("%w: %s", repository.ErrDuplicateUser, e.UserID)
		}
		seen[e.UserID] = struct{}{}
	}

	var out model.Table
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE leaderboard_tables SET version = version + 1, last_updated = $4
			WHERE game_id = $1 AND timeframe = $2 AND version = $3
		`, key.GameID, string(key.Timeframe), expectedVersion, s.now())
		if err != nil {
			return fmt.Errorf("failed to bump table %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			exists, err := tableExists(ctx, tx, key)
			if err != nil {
				return err
			}
			if !exists {
				return repository.ErrTableNotFound
			}
			metrics.RecordErrorByComponent("repository", "version_conflict")
			return fmt.Errorf("%w: %s expected %d", repository.ErrVersionConflict, key, expectedVersion)
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM leaderboard_entries WHERE game_id = $1 AND timeframe = $2
		`, key.GameID, string(key.Timeframe)); err != nil {
			return fmt.Errorf("failed to clear entries %s: %w", key, err)
		}

		if len(entries) > 0 {
			batch := &pgx.Batch{}
			for _, e := range entries {
				batch.Queue(`
					INSERT INTO leaderboard_entries (game_id, timeframe, user_id, username, score, achieved_at)
					VALUES ($1, $2, $3, $4, $5, $6)
				`, key.GameID, string(key.Timeframe), e.UserID, e.Username, e.Score, e.AchievedAt)
			}
			br := tx.SendBatch(ctx, batch)
			for range entries {
				if _, err := br.Exec(); err != nil {
					_ = br.Close()
					return fmt.Errorf("failed to insert entry: %w", err)
				}
			}
			if err := br.Close(); err != nil {
				return err
			}
		}

		out, _, err = load(ctx, tx, key, -1)
		return err
	})
	return out, err
}

func (s *Store) Clear(ctx context.Context, key model.TableKey) (model.Table, error) {
	defer observeUpdate(time.Now())

	var out model.Table
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		ok, err := bump(ctx, tx, key, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrTableNotFound
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM leaderboard_entries WHERE game_id = $1 AND timeframe = $2
		`, key.GameID, string(key.Timeframe)); err != nil {
			return fmt.Errorf("failed to clear entries %s: %w", key, err)
		}
		out, _, err = load(ctx, tx, key, -1)
		return err
	})
	return out, err
}

func (s *Store) RemoveEntry(ctx context.Context, key model.TableKey, userID string) (model.Table, error) {
	defer observeUpdate(time.Now())

	var out model.Table
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM leaderboard_entries WHERE game_id = $1 AND timeframe = $2 AND user_id = $3
		`, key.GameID, string(key.Timeframe), userID)
		if err != nil {
			return fmt.Errorf("failed to remove %s from %s: %w", userID, key, err)
		}
		if tag.RowsAffected() == 0 {
			exists, err := tableExists(ctx, tx, key)
			if err != nil {
				return err
			}
			if !exists {
				return repository.ErrTableNotFound
			}
			return repository.ErrEntryNotFound
		}
		if _, err := bump(ctx, tx, key, s.now()); err != nil {
			return err
		}
		out, _, err = load(ctx, tx, key, -1)
		return err
	})
	return out, err
}

func (s *Store) StandingsForUser(ctx context.Context, userID string) ([]model.Standing, error) {
	defer observeQuery(time.Now())
	q, err := s.conn.querier()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT game_id, timeframe, username, score, achieved_at, rank, total FROM (
			SELECT e.game_id, e.timeframe, e.user_id, e.username, e.score, e.achieved_at,
			       ROW_NUMBER() OVER (PARTITION BY e.game_id, e.timeframe ORDER BY `+orderBy+`) AS rank,
			       COUNT(*) OVER (PARTITION BY e.game_id, e.timeframe) AS total
			FROM leaderboard_entries e
			WHERE (e.game_id, e.timeframe) IN (
				SELECT game_id, timeframe FROM leaderboard_entries WHERE user_id = $1
			)
		) ranked
		WHERE user_id = $1
		ORDER BY game_id, timeframe
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.Standing
	for rows.Next() {
		var (
			st model.Standing
			tf string
		)
		st.Entry.UserID = userID
		if err := rows.Scan(&st.Key.GameID, &tf, &st.Entry.Username, &st.Entry.Score, &st.Entry.AchievedAt, &st.Rank, &st.Total); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		st.Key.Timeframe = model.Timeframe(tf)
		st.Entry.AchievedAt = st.Entry.AchievedAt.UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) Totals(ctx context.Context, limit int) ([]model.GlobalRanking, error) {
	defer observeQuery(time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	q, err := s.conn.querier()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT user_id,
		       (ARRAY_AGG(username ORDER BY game_id, timeframe))[1],
		       SUM(score)::BIGINT,
		       COUNT(DISTINCT game_id),
		       MAX(score)
		FROM leaderboard_entries
		GROUP BY user_id
		ORDER BY 3 DESC, 5 DESC, user_id COLLATE "C" ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate totals: %w", err)
	}
	defer rows.Close()

	out := make([]model.GlobalRanking, 0, limit)
	for rows.Next() {
		var r model.GlobalRanking
		if err := rows.Scan(&r.UserID, &r.Username, &r.TotalScore, &r.GamesRanked, &r.HighestScore); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (int, int, error) {
	q, err := s.conn.querier()
	if err != nil {
		return 0, 0, err
	}
	var tables, entries int
	err = q.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM leaderboard_tables), (SELECT COUNT(*) FROM leaderboard_entries)
	`).Scan(&tables, &entries)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read stats: %w", err)
	}
	metrics.UpdateTablesTotal(tables)
	metrics.UpdateEntriesTotal(entries)
	return tables, entries, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
