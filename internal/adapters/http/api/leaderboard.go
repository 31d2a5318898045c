package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/ranking"
)

const timeFormat = time.RFC3339Nano

// SubmitDependencies defines the interface for score submission.
type SubmitDependencies interface {
	Submit(ctx context.Context, sub model.Submission) (model.SubmitResult, error)
}

// LeaderboardDependencies defines the interface for leaderboard reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, q model.LeaderboardQuery) (model.LeaderboardView, error)
}

// LeaderboardHandler handles per-game leaderboard requests.
type LeaderboardHandler struct {
	submitter SubmitDependencies
	reader    LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(submitter SubmitDependencies, reader LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{submitter: submitter, reader: reader}
}

// submitRequest mirrors the OpenAPI schema for POST .../leaderboard.
type submitRequest struct {
	Score        *float64 `json:"score"`
	Timeframe    string   `json:"timeframe"`
	Username     string   `json:"username"`
	SubmissionID string   `json:"submissionId"`
}

func (s submitRequest) validate() error {
	if s.Score == nil {
		return errors.New("missing score")
	}
	return nil
}

// Submission outcomes reported in the response status field.
const (
	statusApplied   = "applied"
	statusUnchanged = "unchanged"
	statusDuplicate = "duplicate"
)

type submitResponse struct {
	Status      string        `json:"status"`
	Duplicate   bool          `json:"duplicate"`
	Message     string        `json:"message"`
	Leaderboard tableResponse `json:"leaderboard"`
}

// HandleSubmitScore handles POST /leaderboard/games/{gameId}/leaderboard.
// 201 when the score changed the table, 200 otherwise.
func (h *LeaderboardHandler) HandleSubmitScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	caller, err := requireUser(r, op)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.submitter.Submit(r.Context(), model.Submission{
		GameID:       mux.Vars(r)["gameId"],
		UserID:       caller.UserID,
		Username:     req.Username,
		Score:        *req.Score,
		Timeframe:    req.Timeframe,
		SubmissionID: req.SubmissionID,
	})
	if err != nil {
		writeDomainError(w, r, Wrap(op, err))
		return
	}

	resp := submitResponse{Leaderboard: newTableResponse(res.Table)}
	switch {
	case res.Duplicate:
		resp.Status, resp.Duplicate, resp.Message = statusDuplicate, true, "Submission already processed"
		writeJSON(w, http.StatusOK, resp)
	case res.Applied:
		resp.Status, resp.Message = statusApplied, "Score recorded"
		writeJSON(w, http.StatusCreated, resp)
	default:
		resp.Status, resp.Message = statusUnchanged, "Existing score is higher, leaderboard not updated"
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleGetLeaderboard handles GET /leaderboard/games/{gameId}/leaderboard
// with optional timeframe and limit query parameters. Identity is optional;
// when present the caller's own rank is included.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	limit, err := parseLimit(r)
	if err != nil {
		writeDomainError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	q := model.LeaderboardQuery{
		GameID:    mux.Vars(r)["gameId"],
		Timeframe: r.URL.Query().Get("timeframe"),
		Limit:     limit,
	}
	if caller, ok := callerFrom(r); ok {
		q.RequesterID = caller.UserID
	}

	view, err := h.reader.Leaderboard(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// parseLimit reads the limit query parameter. Absent means 0, which callers
// resolve to their default; a supplied value must be a positive integer.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

func rankEntries(entries []model.Entry) []model.RankedEntry {
	ranked := ranking.Rank(entries)
	if ranked == nil {
		return []model.RankedEntry{}
	}
	return ranked
}
