// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/playrank/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitDependencies
	LeaderboardDependencies
	RankDependencies
	GlobalDependencies
	AdminDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	globalHandler      *GlobalHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		leaderboardHandler: NewLeaderboardHandler(deps, deps),
		rankHandler:        NewRankHandler(deps),
		globalHandler:      NewGlobalHandler(deps),
		adminHandler:       NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.Use(RequestIDMiddleware)

	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	lb := r.PathPrefix("/leaderboard").Subrouter()
	lb.HandleFunc("/games/{gameId}/leaderboard",
		MetricsMiddleware(s.leaderboardHandler.HandleSubmitScore, "submit_score")).Methods(http.MethodPost)
	lb.HandleFunc("/games/{gameId}/leaderboard",
		MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard")).Methods(http.MethodGet)
	lb.HandleFunc("/games/{gameId}/leaderboard",
		MetricsMiddleware(s.adminHandler.HandleReset, "reset_leaderboard")).Methods(http.MethodDelete)
	lb.HandleFunc("/games/{gameId}/leaderboard/{userId}",
		MetricsMiddleware(s.adminHandler.HandleRemoveUser, "remove_entry")).Methods(http.MethodDelete)
	lb.HandleFunc("/users/ranks",
		MetricsMiddleware(s.rankHandler.HandleGetOwnRanks, "own_ranks")).Methods(http.MethodGet)
	lb.HandleFunc("/users/{userId}/ranks",
		MetricsMiddleware(s.rankHandler.HandleGetUserRanks, "user_ranks")).Methods(http.MethodGet)
	lb.HandleFunc("/global",
		MetricsMiddleware(s.globalHandler.HandleGetGlobal, "global")).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})
}

// tableResponse is the wire shape of a leaderboard table after a mutation.
type tableResponse struct {
	GameID      string              `json:"gameId"`
	Timeframe   model.Timeframe     `json:"timeframe"`
	Entries     []model.RankedEntry `json:"entries"`
	Version     uint64              `json:"version"`
	LastUpdated string              `json:"lastUpdated,omitempty"`
}

func newTableResponse(t model.Table) tableResponse {
	resp := tableResponse{
		GameID:    t.Key.GameID,
		Timeframe: t.Key.Timeframe,
		Entries:   rankEntries(t.Entries),
		Version:   t.Version,
	}
	if !t.LastUpdated.IsZero() {
		resp.LastUpdated = t.LastUpdated.UTC().Format(timeFormat)
	}
	return resp
}

type messageResponse struct {
	Message     string        `json:"message"`
	Leaderboard tableResponse `json:"leaderboard"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
