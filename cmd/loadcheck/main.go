package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/playrank/internal/loadcheck"
	"github.com/okian/playrank/pkg/logger"
)

// Default configuration constants.
const (
	defaultSubmissions   = 10000
	defaultUsers         = 100
	defaultDuplicateRate = 20
	defaultMaxScore      = 100000
	defaultTopN          = 50
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultRunTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "Base URL of the service")
		gameID      = flag.String("game", "game-1", "Game id to exercise")
		timeframe   = flag.String("timeframe", "allTime", "Leaderboard timeframe")
		users       = flag.Int("users", defaultUsers, "Number of demo users")
		submissions = flag.Int("submissions", defaultSubmissions, "Number of submissions")
		dupEvery    = flag.Int("duplicate-every", defaultDuplicateRate, "Replay every Nth submission id, 0 disables")
		maxScore    = flag.Int64("max-score", defaultMaxScore, "Highest generated score")
		topN        = flag.Int("top", defaultTopN, "Leaderboard page size to verify")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile  = flag.String("output", "", "Output file for generated submissions")
		logFile     = flag.String("log", "", "Log file for run output")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadcheck.ShowHelp()
		return
	}

	closeLog, err := loadcheck.SetupLogging(*logFile, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logging:", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &loadcheck.Config{
		BaseURL:       *baseURL,
		GameID:        *gameID,
		Timeframe:     *timeframe,
		Users:         *users,
		Submissions:   *submissions,
		DuplicateRate: *dupEvery,
		MaxScore:      *maxScore,
		TopN:          *topN,
		Workers:       *workers,
		Timeout:       *timeout,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if _, err := loadcheck.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "load check failed", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
}
