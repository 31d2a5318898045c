// Package ranking holds the pure ordering and aggregation rules shared by
// every store implementation.
//
// Ordering: score DESC, then achievedAt ASC (first to reach a score ranks
// higher), then userID ASC so that the order is total.
package ranking

import (
	"slices"
	"sort"

	"github.com/okian/playrank/internal/domain/model"
)

// Less reports whether a ranks before b.
func Less(a, b model.Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.AchievedAt.Equal(b.AchievedAt) {
		return a.AchievedAt.Before(b.AchievedAt)
	}
	return a.UserID < b.UserID
}

// Compare is Less as a three-way comparison, for slices.SortFunc.
func Compare(a, b model.Entry) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}

// Sort orders entries best first in place.
func Sort(entries []model.Entry) {
	slices.SortFunc(entries, Compare)
}

// IsSorted reports whether entries are in ranking order.
func IsSorted(entries []model.Entry) bool {
	return slices.IsSortedFunc(entries, Compare)
}

// Apply returns the entries that result from submitting candidate under the
// monotonic best-score rule, and whether anything changed. The input slice is
// never modified. A score lower than or equal to the stored best is a no-op.
func Apply(entries []model.Entry, candidate model.Entry) ([]model.Entry, bool) {
	out := make([]model.Entry, 0, len(entries)+1)
	found := false
	for _, e := range entries {
		if e.UserID != candidate.UserID {
			out = append(out, e)
			continue
		}
		found = true
		if candidate.Score <= e.Score {
			return entries, false
		}
		e.Score = candidate.Score
		e.AchievedAt = candidate.AchievedAt
		out = append(out, e)
	}
	if !found {
		out = append(out, candidate)
	}
	Sort(out)
	return out, true
}

// Rank assigns 1-based ranks to already sorted entries.
func Rank(entries []model.Entry) []model.RankedEntry {
	out := make([]model.RankedEntry, len(entries))
	for i, e := range entries {
		out[i] = model.RankedEntry{Rank: i + 1, Entry: e}
	}
	return out
}

// StandingOf locates userID in a sorted table.
func StandingOf(t model.Table, userID string) (model.Standing, bool) {
	e, idx, ok := t.Find(userID)
	if !ok {
		return model.Standing{}, false
	}
	return model.Standing{Key: t.Key, Entry: e, Rank: idx + 1, Total: len(t.Entries)}, true
}

// SortUserRanks orders ranks by ascending percentile. Ties keep their input
// order.
func SortUserRanks(ranks []model.UserRank) {
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Percentile < ranks[j].Percentile
	})
}

// Aggregator accumulates per-user totals across tables.
type Aggregator struct {
	rows  map[string]*model.GlobalRanking
	games map[string]map[string]struct{}
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		rows:  make(map[string]*model.GlobalRanking),
		games: make(map[string]map[string]struct{}),
	}
}

// Add folds every entry of t into the totals. The first username seen for a
// user wins.
func (a *Aggregator) Add(t model.Table) {
	for _, e := range t.Entries {
		row, ok := a.rows[e.UserID]
		if !ok {
			row = &model.GlobalRanking{UserID: e.UserID, Username: e.Username}
			a.rows[e.UserID] = row
			a.games[e.UserID] = make(map[string]struct{})
		}
		row.TotalScore += e.Score
		if e.Score > row.HighestScore {
			row.HighestScore = e.Score
		}
		a.games[e.UserID][t.Key.GameID] = struct{}{}
	}
}

// Top returns the best limit rows, ranked. Rows are ordered by total score
// desc, then highest single score desc, then userID asc.
func (a *Aggregator) Top(limit int) []model.GlobalRanking {
	out := make([]model.GlobalRanking, 0, len(a.rows))
	for id, row := range a.rows {
		r := *row
		r.GamesRanked = len(a.games[id])
		out = append(out, r)
	}
	SortGlobal(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// SortGlobal orders global rows in place.
func SortGlobal(rows []model.GlobalRanking) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalScore != rows[j].TotalScore {
			return rows[i].TotalScore > rows[j].TotalScore
		}
		if rows[i].HighestScore != rows[j].HighestScore {
			return rows[i].HighestScore > rows[j].HighestScore
		}
		return rows[i].UserID < rows[j].UserID
	})
}
