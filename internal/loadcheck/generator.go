package loadcheck

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/playrank/pkg/logger"
)

// UserID returns the demo user id for 1-based index i.
func UserID(i int) string {
	return fmt.Sprintf("user-%03d", i)
}

// randomScore returns a score in [0, limit] using crypto/rand.
func randomScore(limit int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(limit+1))
	if err != nil {
		return 0
	}
	return n.Int64()
}

// generateSubmissions spreads cfg.Submissions scores round-robin over the
// demo users. Every DuplicateRate-th submission reuses the id of the one
// before it so the service must drop it. Replays do not take a slot in the
// rotation.
func generateSubmissions(ctx context.Context, cfg *Config) ([]Submission, error) {
	if cfg.Users < 1 {
		return nil, fmt.Errorf("users must be positive, got %d", cfg.Users)
	}
	logger.Get().Info(ctx, "generating submissions",
		logger.Int("submissions", cfg.Submissions),
		logger.Int("users", cfg.Users))

	subs := make([]Submission, 0, cfg.Submissions)
	originals := 0
	for i := 0; i < cfg.Submissions; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		if cfg.DuplicateRate > 0 && i > 0 && i%cfg.DuplicateRate == 0 {
			subs = append(subs, subs[i-1])
			continue
		}
		subs = append(subs, Submission{
			SubmissionID: uuid.NewString(),
			UserID:       UserID(originals%cfg.Users + 1),
			Score:        float64(randomScore(cfg.MaxScore)),
			Timeframe:    cfg.Timeframe,
		})
		originals++
	}
	return subs, nil
}

// expectedBest returns the highest score per user, counting each
// submission id once.
func expectedBest(subs []Submission) map[string]int64 {
	seen := make(map[string]struct{}, len(subs))
	best := make(map[string]int64)
	for _, s := range subs {
		if _, dup := seen[s.SubmissionID]; dup {
			continue
		}
		seen[s.SubmissionID] = struct{}{}
		score := int64(s.Score)
		if cur, ok := best[s.UserID]; !ok || score > cur {
			best[s.UserID] = score
		}
	}
	return best
}
