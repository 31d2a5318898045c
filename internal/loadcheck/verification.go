package loadcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/ranking"
	"github.com/okian/playrank/pkg/logger"
)

var errMismatch = errors.New("leaderboard mismatch")

// fetchLeaderboard reads the top cfg.TopN entries.
func fetchLeaderboard(ctx context.Context, cfg *Config, client *HTTPClient) (model.LeaderboardView, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(cfg.TopN))
	q.Set("timeframe", cfg.Timeframe)
	var view model.LeaderboardView
	_, err := client.do(ctx, http.MethodGet, leaderboardPath(cfg.GameID)+"?"+q.Encode(), "", false, nil, &view)
	return view, err
}

// verifyLeaderboard checks the returned page against the locally computed
// best scores: ranks are 1..n, ordering holds, every score is the user's
// best and the score sequence equals the expected top n.
func verifyLeaderboard(view model.LeaderboardView, best map[string]int64) error {
	if view.TotalEntries != len(best) {
		return fmt.Errorf("%w: %d entries, expected %d", errMismatch, view.TotalEntries, len(best))
	}

	expected := make([]int64, 0, len(best))
	for _, s := range best {
		expected = append(expected, s)
	}
	sort.Slice(expected, func(i, j int) bool { return expected[i] > expected[j] })
	if len(view.Entries) > len(expected) {
		return fmt.Errorf("%w: page has %d entries, only %d users", errMismatch, len(view.Entries), len(expected))
	}

	for i, e := range view.Entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", errMismatch, i+1, e.Rank)
		}
		if want, ok := best[e.UserID]; !ok || e.Score != want {
			return fmt.Errorf("%w: %s has score %d, expected %d", errMismatch, e.UserID, e.Score, want)
		}
		if e.Score != expected[i] {
			return fmt.Errorf("%w: rank %d has score %d, expected %d", errMismatch, i+1, e.Score, expected[i])
		}
		if i > 0 && ranking.Less(e.Entry, view.Entries[i-1].Entry) {
			return fmt.Errorf("%w: rank %d outranks rank %d", errMismatch, i+1, i)
		}
	}
	return nil
}

// verifyUserRanks reads the rank summaries of up to rankSampleSize users
// and checks their score for the game equals the expected best.
func verifyUserRanks(ctx context.Context, cfg *Config, client *HTTPClient, best map[string]int64) (int, error) {
	users := make([]string, 0, len(best))
	for u := range best {
		users = append(users, u)
	}
	sort.Strings(users)
	if len(users) > rankSampleSize {
		users = users[:rankSampleSize]
	}

	for _, u := range users {
		var ranks []model.UserRank
		if _, err := client.do(ctx, http.MethodGet, "/leaderboard/users/"+url.PathEscape(u)+"/ranks", u, false, nil, &ranks); err != nil {
			return 0, fmt.Errorf("ranks for %s: %w", u, err)
		}
		found := false
		for _, r := range ranks {
			if r.Game.ID != cfg.GameID || string(r.Timeframe) != cfg.Timeframe {
				continue
			}
			found = true
			if r.Score != best[u] {
				return 0, fmt.Errorf("%w: %s rank summary has score %d, expected %d", errMismatch, u, r.Score, best[u])
			}
			if r.TotalParticipants != len(best) {
				return 0, fmt.Errorf("%w: %s sees %d players, expected %d", errMismatch, u, r.TotalParticipants, len(best))
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %s has no rank in %s", errMismatch, u, cfg.GameID)
		}
	}
	logger.Get().Info(ctx, "user ranks verified", logger.Int("users", len(users)))
	return len(users), nil
}
