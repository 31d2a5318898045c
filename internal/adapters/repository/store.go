// Package repository defines the leaderboard store contract and its
// in-memory implementation.
package repository

import (
	"context"

	"github.com/okian/playrank/internal/domain/model"
)

// Store owns leaderboard tables and their entries. Every mutation bumps the
// table version and lastUpdated atomically with the change; no caller can
// observe an unsorted table.
type Store interface {
	// Get returns a full table. ErrTableNotFound if it was never created.
	Get(ctx context.Context, key model.TableKey) (model.Table, error)

	// GetOrCreate returns the table, creating an empty one if absent.
	// Concurrent callers for the same key observe the same table.
	GetOrCreate(ctx context.Context, key model.TableKey) (model.Table, error)

	// Top returns the table with only its first n entries, plus the total
	// entry count.
	Top(ctx context.Context, key model.TableKey, n int) (model.Table, int, error)

	// Position returns a user's standing. ErrTableNotFound or ErrEntryNotFound.
	Position(ctx context.Context, key model.TableKey, userID string) (model.Standing, error)

	// UpsertBest inserts entry or raises an existing entry's score if the new
	// score is strictly greater, creating the table if needed. It reports
	// whether anything changed. A no-op leaves version and lastUpdated alone.
	UpsertBest(ctx context.Context, key model.TableKey, entry model.Entry) (model.Table, bool, error)

	// ReplaceEntries overwrites the entries of a table if its version still
	// equals expectedVersion. ErrVersionConflict otherwise.
	ReplaceEntries(ctx context.Context, key model.TableKey, entries []model.Entry, expectedVersion uint64) (model.Table, error)

	// Clear removes every entry of an existing table.
	Clear(ctx context.Context, key model.TableKey) (model.Table, error)

	// RemoveEntry removes one user's entry from an existing table.
	RemoveEntry(ctx context.Context, key model.TableKey, userID string) (model.Table, error)

	// StandingsForUser returns the user's standing in every table they appear in.
	StandingsForUser(ctx context.Context, userID string) ([]model.Standing, error)

	// Totals sums scores per user across all tables and returns the best
	// limit rows, ranked. FullName is left empty.
	Totals(ctx context.Context, limit int) ([]model.GlobalRanking, error)

	// Stats returns the number of tables and entries.
	Stats(ctx context.Context) (tables int, entries int, err error)

	Close() error
}
