package ranking

import (
	"testing"
	"time"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entry(user string, score int64, offset time.Duration) model.Entry {
	return model.Entry{UserID: user, Username: "name-" + user, Score: score, AchievedAt: t0.Add(offset)}
}

func TestLess(t *testing.T) {
	assert.True(t, Less(entry("a", 10, 0), entry("b", 5, 0)), "higher score first")
	assert.True(t, Less(entry("b", 10, 0), entry("a", 10, time.Second)), "earlier achievedAt wins a tie")
	assert.True(t, Less(entry("a", 10, 0), entry("b", 10, 0)), "userID breaks identical timestamps")
	assert.False(t, Less(entry("a", 10, 0), entry("a", 10, 0)))
	assert.Equal(t, 0, Compare(entry("a", 10, 0), entry("a", 10, 0)))
}

func TestApply(t *testing.T) {
	t.Run("new user is inserted in order", func(t *testing.T) {
		base := []model.Entry{entry("u1", 100, 0), entry("u2", 50, 0)}
		out, changed := Apply(base, entry("u3", 70, time.Minute))

		require.True(t, changed)
		require.Len(t, out, 3)
		assert.Equal(t, []string{"u1", "u3", "u2"}, userIDs(out))
		assert.Len(t, base, 2, "input must not be modified")
	})

	t.Run("higher score replaces score and achievedAt, keeps username", func(t *testing.T) {
		base := []model.Entry{entry("u1", 100, 0), entry("u2", 50, 0)}
		candidate := entry("u2", 150, time.Hour)
		candidate.Username = "renamed"
		out, changed := Apply(base, candidate)

		require.True(t, changed)
		assert.Equal(t, []string{"u2", "u1"}, userIDs(out))
		assert.Equal(t, int64(150), out[0].Score)
		assert.Equal(t, t0.Add(time.Hour), out[0].AchievedAt)
		assert.Equal(t, "name-u2", out[0].Username)
		assert.Equal(t, int64(50), base[1].Score)
	})

	t.Run("lower or equal score is a no-op", func(t *testing.T) {
		base := []model.Entry{entry("u1", 100, 0)}
		for _, s := range []int64{100, 99, 0} {
			out, changed := Apply(base, entry("u1", s, time.Hour))
			assert.False(t, changed)
			assert.Equal(t, base, out)
		}
	})

	t.Run("ties rank the earlier achiever first", func(t *testing.T) {
		out, _ := Apply([]model.Entry{entry("late", 80, time.Hour)}, entry("early", 80, 0))
		assert.Equal(t, []string{"early", "late"}, userIDs(out))
	})
}

func TestSortAndRank(t *testing.T) {
	entries := []model.Entry{entry("c", 10, 0), entry("a", 30, 0), entry("b", 20, 0), entry("d", 20, -time.Second)}
	Sort(entries)
	require.True(t, IsSorted(entries))
	assert.Equal(t, []string{"a", "d", "b", "c"}, userIDs(entries))

	ranked := Rank(entries)
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, entries[i].UserID, r.UserID)
	}
}

func TestStandingOf(t *testing.T) {
	table := model.Table{
		Key:     model.TableKey{GameID: "g", Timeframe: model.AllTime},
		Entries: []model.Entry{entry("a", 30, 0), entry("b", 20, 0), entry("c", 10, 0), entry("d", 5, 0)},
	}

	s, ok := StandingOf(table, "b")
	require.True(t, ok)
	assert.Equal(t, 2, s.Rank)
	assert.Equal(t, 4, s.Total)
	assert.InDelta(t, 0.5, s.Percentile(), 1e-9)

	_, ok = StandingOf(table, "zz")
	assert.False(t, ok)
}

func TestSortUserRanksIsStable(t *testing.T) {
	ranks := []model.UserRank{
		{Game: model.GameSummary{ID: "g1"}, Percentile: 0.5},
		{Game: model.GameSummary{ID: "g2"}, Percentile: 0.25},
		{Game: model.GameSummary{ID: "g3"}, Percentile: 0.5},
		{Game: model.GameSummary{ID: "g4"}, Percentile: 1},
	}
	SortUserRanks(ranks)

	ids := make([]string, len(ranks))
	for i, r := range ranks {
		ids[i] = r.Game.ID
	}
	assert.Equal(t, []string{"g2", "g1", "g3", "g4"}, ids)
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator()
	agg.Add(model.Table{
		Key:     model.TableKey{GameID: "g1", Timeframe: model.AllTime},
		Entries: []model.Entry{entry("u1", 100, 0), entry("u2", 80, 0)},
	})
	agg.Add(model.Table{
		Key:     model.TableKey{GameID: "g1", Timeframe: model.Daily},
		Entries: []model.Entry{entry("u1", 40, 0)},
	})
	agg.Add(model.Table{
		Key:     model.TableKey{GameID: "g2", Timeframe: model.AllTime},
		Entries: []model.Entry{entry("u2", 90, 0), entry("u3", 10, 0)},
	})

	rows := agg.Top(10)
	require.Len(t, rows, 3)

	assert.Equal(t, "u2", rows[0].UserID)
	assert.Equal(t, int64(170), rows[0].TotalScore)
	assert.Equal(t, 2, rows[0].GamesRanked)
	assert.Equal(t, int64(90), rows[0].HighestScore)
	assert.Equal(t, 1, rows[0].Rank)

	assert.Equal(t, "u1", rows[1].UserID)
	assert.Equal(t, int64(140), rows[1].TotalScore)
	assert.Equal(t, 1, rows[1].GamesRanked, "two timeframes of one game count once")
	assert.Equal(t, "name-u1", rows[1].Username)

	assert.Equal(t, 3, rows[2].Rank)

	limited := agg.Top(1)
	require.Len(t, limited, 1)
	assert.Equal(t, "u2", limited[0].UserID)
}

func TestSortGlobalTieBreaks(t *testing.T) {
	rows := []model.GlobalRanking{
		{UserID: "b", TotalScore: 100, HighestScore: 60},
		{UserID: "a", TotalScore: 100, HighestScore: 60},
		{UserID: "c", TotalScore: 100, HighestScore: 90},
	}
	SortGlobal(rows)
	assert.Equal(t, "c", rows[0].UserID)
	assert.Equal(t, "a", rows[1].UserID)
	assert.Equal(t, "b", rows[2].UserID)
}

func userIDs(entries []model.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.UserID
	}
	return out
}
