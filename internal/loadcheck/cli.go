package loadcheck

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/playrank/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the logger to write to stdout and, when logFile is
// set, to that file as well. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { _ = file.Close() }
	}
	if err := logger.InitWithOptions(w, "text"); err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the load check tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`playrank load check
===================

Submits scores concurrently to a running playrank service and verifies that
the leaderboard keeps each user's best score in rank order.

The target game and the demo users (user-001, user-002, ...) must exist in
the service directory; the default demo seed provides game-1 and 100 users.

Usage:
  go run ./cmd/loadcheck [options]

Options:
  -url string          Base URL of the service (default "http://localhost:8080")
  -game string         Game id to exercise (default "game-1")
  -timeframe string    Leaderboard timeframe (default "allTime")
  -users int           Number of demo users (default 100)
  -submissions int     Number of submissions (default 10000)
  -duplicate-every int Replay every Nth submission id, 0 disables (default 20)
  -max-score int       Highest generated score (default 100000)
  -top int             Leaderboard page size to verify (default 50)
  -workers int         Concurrent workers (default CPU cores * 2)
  -timeout duration    HTTP request timeout (default 30s)
  -output string       Write generated submissions to this JSON file
  -log string          Also write logs to this file
  -verbose             Enable debug logging
  -help                Show this help message

Example:
  go run ./cmd/loadcheck -submissions 50000 -workers 16 -game game-2
`)
}
