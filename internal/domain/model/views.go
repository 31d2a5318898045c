package model

import "time"

// GameSummary is the catalog view of a game.
type GameSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Category  string `json:"category,omitempty"`
}

// UserSummary is the identity view of a user.
type UserSummary struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName,omitempty"`
	HighestScore int64     `json:"highestScore"`
	LastActive   time.Time `json:"lastActive,omitempty"`
}

// Submission is a score report for one user in one table.
type Submission struct {
	GameID       string
	UserID       string
	Username     string
	Score        float64
	Timeframe    string
	SubmissionID string // optional idempotency key
}

// SubmitResult reports what a submission did to its table.
type SubmitResult struct {
	Applied   bool
	Duplicate bool
	Table     Table
}

// LeaderboardQuery selects a window of a table.
type LeaderboardQuery struct {
	GameID      string
	Timeframe   string
	Limit       int
	RequesterID string
}

// RankedEntry is an entry with its 1-based rank.
type RankedEntry struct {
	Rank int `json:"rank"`
	Entry
}

// RequesterRank is the caller's own position in a leaderboard view.
type RequesterRank struct {
	Position   int       `json:"position"`
	Score      int64     `json:"score"`
	AchievedAt time.Time `json:"achievedAt"`
}

// LeaderboardView is the read model returned for one table.
type LeaderboardView struct {
	Game         GameSummary    `json:"game"`
	Timeframe    Timeframe      `json:"timeframe"`
	LastUpdated  *time.Time     `json:"lastUpdated"`
	Entries      []RankedEntry  `json:"entries"`
	TotalEntries int            `json:"totalEntries"`
	UserRank     *RequesterRank `json:"userRank"`
}

// UserRank is a user's standing in one table, enriched with game details.
type UserRank struct {
	Game              GameSummary `json:"game"`
	Timeframe         Timeframe   `json:"timeframe"`
	Rank              int         `json:"rank"`
	Score             int64       `json:"score"`
	AchievedAt        time.Time   `json:"achievedAt"`
	TotalParticipants int         `json:"totalPlayers"`
	Percentile        float64     `json:"percentile"`
}

// GlobalRanking is one row of the cross-game ranking.
type GlobalRanking struct {
	Rank         int    `json:"rank"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	FullName     string `json:"fullName"`
	TotalScore   int64  `json:"totalScore"`
	GamesRanked  int    `json:"gamesRanked"`
	HighestScore int64  `json:"highestScore"`
}

// ActivityEvent asks the identity collaborator to refresh a user's
// denormalized activity fields after a committed submission.
type ActivityEvent struct {
	UserID       string
	Score        int64
	RaiseHighest bool
	At           time.Time
}
