// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe names the window a leaderboard table ranks over.
type Timeframe string

// Supported timeframes.
const (
	Daily   Timeframe = "daily"
	Weekly  Timeframe = "weekly"
	Monthly Timeframe = "monthly"
	AllTime Timeframe = "allTime"
)

// Timeframes lists every supported timeframe in display order.
var Timeframes = []Timeframe{Daily, Weekly, Monthly, AllTime}

// ParseTimeframe validates s. An empty value selects AllTime.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllTime, nil
	}
	for _, tf := range Timeframes {
		if string(tf) == s {
			return tf, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, err := ParseTimeframe(string(tf))
	return err == nil && tf != ""
}

// TableKey identifies a leaderboard table.
type TableKey struct {
	GameID    string
	Timeframe Timeframe
}

func (k TableKey) String() string {
	return k.GameID + "/" + string(k.Timeframe)
}

// Entry is one user's best result within a table. Username is captured on
// first write and is not re-synced afterwards.
type Entry struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Score      int64     `json:"score"`
	AchievedAt time.Time `json:"achievedAt"`
}

// Table is a ranked leaderboard for one (game, timeframe) pair. Entries hold
// at most one row per user and are always sorted best first.
type Table struct {
	Key         TableKey
	Entries     []Entry
	Version     uint64
	LastUpdated time.Time
	CreatedAt   time.Time
}

// Len returns the number of entries.
func (t Table) Len() int { return len(t.Entries) }

// Find returns the entry for userID and its zero-based index.
func (t Table) Find(userID string) (Entry, int, bool) {
	for i, e := range t.Entries {
		if e.UserID == userID {
			return e, i, true
		}
	}
	return Entry{}, -1, false
}

// Standing is a user's position inside one table.
type Standing struct {
	Key   TableKey
	Entry Entry
	Rank  int // 1-based
	Total int
}

// Percentile returns rank/total in (0, 1]; lower is better.
func (s Standing) Percentile() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Rank) / float64(s.Total)
}
