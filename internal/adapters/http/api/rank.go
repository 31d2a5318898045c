package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/playrank/internal/domain/model"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	RanksForUser(ctx context.Context, userID string) ([]model.UserRank, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetOwnRanks handles GET /leaderboard/users/ranks.
func (h *RankHandler) HandleGetOwnRanks(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_own_ranks"
	caller, err := requireUser(r, op)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeRanks(w, r, op, caller.UserID)
}

// HandleGetUserRanks handles GET /leaderboard/users/{userId}/ranks. Only the
// user themselves or an admin may read them.
func (h *RankHandler) HandleGetUserRanks(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_user_ranks"
	userID := mux.Vars(r)["userId"]
	if _, err := requireSelfOrAdmin(r, op, userID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeRanks(w, r, op, userID)
}

func (h *RankHandler) writeRanks(w http.ResponseWriter, r *http.Request, op, userID string) {
	ranks, err := h.deps.RanksForUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, Wrap(op, err))
		return
	}
	if ranks == nil {
		ranks = []model.UserRank{}
	}
	writeJSON(w, http.StatusOK, ranks)
}
