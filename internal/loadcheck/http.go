package loadcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/playrank/pkg/logger"
)

// Headers understood by the service.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// HTTPClient wraps http.Client with a timeout and caller identity.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends a request as userID (admin when asAdmin) and decodes a 2xx JSON
// body into out. Non-2xx responses are returned as errors with their body.
func (c *HTTPClient) do(ctx context.Context, method, path, userID string, asAdmin bool, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	if asAdmin {
		req.Header.Set(headerUserRole, "admin")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func leaderboardPath(gameID string) string {
	return "/leaderboard/games/" + url.PathEscape(gameID) + "/leaderboard"
}

type submitAck struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// submitAll sends subs with cfg.Workers concurrent workers.
func submitAll(ctx context.Context, cfg *Config, client *HTTPClient, subs []Submission, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "submitting scores", logger.Int("submissions", len(subs)), logger.Int("workers", cfg.Workers))

	var applied, unchanged, duplicate, failed, done atomic.Int64
	jobs := make(chan Submission, cfg.Workers*WorkerChannelMultiplier)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for _, s := range subs {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobs <- s:
			}
		}
		return nil
	})
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			for s := range jobs {
				switch submitOne(gctx, client, cfg.GameID, s) {
				case outcomeApplied:
					applied.Add(1)
				case outcomeUnchanged:
					unchanged.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
				}
				if n := done.Add(1); cfg.Verbose && n%1000 == 0 {
					log.Debug(gctx, "submission progress", logger.Int64("done", n), logger.Int("total", len(subs)))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats.Applied = int(applied.Load())
	stats.Unchanged = int(unchanged.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	log.Info(ctx, "submission completed",
		logger.Int("applied", stats.Applied),
		logger.Int("unchanged", stats.Unchanged),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed))
	return nil
}

func submitOne(ctx context.Context, client *HTTPClient, gameID string, s Submission) string {
	var ack submitAck
	if _, err := client.do(ctx, http.MethodPost, leaderboardPath(gameID), s.UserID, false, s, &ack); err != nil {
		logger.Get().Debug(ctx, "submission failed", logger.String("user", s.UserID), logger.Error(err))
		return outcomeFailed
	}
	switch ack.Status {
	case outcomeApplied, outcomeUnchanged, outcomeDuplicate:
		return ack.Status
	default:
		return outcomeFailed
	}
}
