package loadcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run resets the target leaderboard, submits generated scores concurrently
// and verifies the resulting ordering and best-score invariants.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Timeframe == "" {
		cfg.Timeframe = string(model.AllTime)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting playrank load check",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("game", cfg.GameID),
		logger.String("timeframe", cfg.Timeframe),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("users", cfg.Users),
		logger.Int("workers", cfg.Workers),
		logger.Int("topN", cfg.TopN))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Start from an empty table
	if err := resetLeaderboard(ctx, cfg, client); err != nil {
		return stats, fmt.Errorf("leaderboard reset failed: %w", err)
	}

	// Step 3: Generate submissions
	subs, err := generateSubmissions(ctx, cfg)
	if err != nil {
		return stats, fmt.Errorf("generation failed: %w", err)
	}
	stats.Generated = len(subs)
	stats.Submissions = subs

	// Step 4: Submit concurrently
	if err := submitAll(ctx, cfg, client, subs, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%d submissions failed", stats.Failed)
	}

	// Step 5: Verify the leaderboard and user ranks
	best := expectedBest(subs)
	view, err := fetchLeaderboard(ctx, cfg, client)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.TopEntries = len(view.Entries)
	if err := verifyLeaderboard(view, best); err != nil {
		return stats, err
	}
	if stats.Verified, err = verifyUserRanks(ctx, cfg, client, best); err != nil {
		return stats, err
	}

	// Step 6: Save submissions to file
	if cfg.OutputFile != "" {
		if err := saveSubmissions(ctx, cfg.OutputFile, subs); err != nil {
			log.Warn(ctx, "failed to save submissions", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	log.Info(ctx, "load check completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running. Any 200 from /healthz
// counts; the body is Prometheus text.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := client.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// resetLeaderboard clears the table as an admin. A table that does not exist
// yet is already empty.
func resetLeaderboard(ctx context.Context, cfg *Config, client *HTTPClient) error {
	path := leaderboardPath(cfg.GameID) + "?timeframe=" + url.QueryEscape(cfg.Timeframe)
	status, err := client.do(ctx, http.MethodDelete, path, "loadcheck", true, nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// saveSubmissions writes the generated submissions as a JSON array.
func saveSubmissions(ctx context.Context, filename string, subs []Submission) error {
	if len(subs) == 0 {
		return errors.New("no submissions to save")
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	type record struct {
		Submission
		UserID string `json:"userId"`
	}
	records := make([]record, len(subs))
	for i, s := range subs {
		records[i] = record{Submission: s, UserID: s.UserID}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal submissions: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var appliedRate, perSecond float64
	if stats.Generated > 0 {
		appliedRate = float64(stats.Applied) / float64(stats.Generated) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Generated) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("applied", stats.Applied),
		logger.Int("unchanged", stats.Unchanged),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("ranksVerified", stats.Verified),
		logger.Int("topEntries", stats.TopEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("appliedRate", appliedRate),
		logger.Float64("submissionsPerSecond", perSecond))
}
