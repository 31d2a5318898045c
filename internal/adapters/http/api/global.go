package api

import (
	"context"
	"net/http"

	"github.com/okian/playrank/internal/domain/model"
)

// GlobalDependencies defines the interface for cross-game rankings.
type GlobalDependencies interface {
	GlobalRankings(ctx context.Context, limit int) ([]model.GlobalRanking, error)
}

// GlobalHandler handles global ranking requests.
type GlobalHandler struct {
	deps GlobalDependencies
}

// NewGlobalHandler creates a new global ranking handler.
func NewGlobalHandler(deps GlobalDependencies) *GlobalHandler {
	return &GlobalHandler{deps: deps}
}

// HandleGetGlobal handles GET /leaderboard/global?limit=N.
func (h *GlobalHandler) HandleGetGlobal(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_global"
	limit, err := parseLimit(r)
	if err != nil {
		writeDomainError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	rows, err := h.deps.GlobalRankings(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, Wrap(op, err))
		return
	}
	if rows == nil {
		rows = []model.GlobalRanking{}
	}
	writeJSON(w, http.StatusOK, rows)
}
