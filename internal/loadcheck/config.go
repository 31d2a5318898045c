package loadcheck

import "time"

// Config holds configuration for a load check run.
type Config struct {
	BaseURL       string        // Base URL of the service
	GameID        string        // Game whose leaderboard is exercised
	Timeframe     string        // Leaderboard timeframe
	Users         int           // Number of demo users (user-001..) to spread scores over
	Submissions   int           // Number of score submissions to send
	DuplicateRate int           // Every Nth submission replays the previous submission id; 0 disables
	MaxScore      int64         // Scores are drawn from [0, MaxScore]
	TopN          int           // Leaderboard page size to verify
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	OutputFile    string        // Output file for generated submissions
	Verbose       bool          // Enable verbose logging
}

// Submission is one score report sent to the service.
type Submission struct {
	SubmissionID string  `json:"submissionId"`
	UserID       string  `json:"-"`
	Score        float64 `json:"score"`
	Timeframe    string  `json:"timeframe,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	Generated   int
	Applied     int
	Unchanged   int
	Duplicate   int
	Failed      int
	Verified    int
	TopEntries  int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Submissions []Submission
}
