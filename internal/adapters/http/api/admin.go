package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/logger"
)

// AdminDependencies defines the interface for privileged table mutations.
type AdminDependencies interface {
	Reset(ctx context.Context, gameID, timeframe string) (model.Table, error)
	RemoveUser(ctx context.Context, gameID, timeframe, userID string) (model.Table, error)
}

// AdminHandler handles admin-only leaderboard requests.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps, logger: logger.Get().Named("api.admin")}
}

// HandleReset handles DELETE /leaderboard/games/{gameId}/leaderboard.
func (h *AdminHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	const op = "api.reset_leaderboard"
	caller, err := requireAdmin(r, op)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	table, err := h.deps.Reset(r.Context(), mux.Vars(r)["gameId"], r.URL.Query().Get("timeframe"))
	if err != nil {
		writeDomainError(w, r, Wrap(op, err))
		return
	}
	h.logger.Info(r.Context(), "admin reset leaderboard",
		logger.String("admin", caller.UserID),
		logger.String("table", table.Key.String()),
	)
	writeJSON(w, http.StatusOK, messageResponse{
		Message:     "Leaderboard reset successfully",
		Leaderboard: newTableResponse(table),
	})
}

// HandleRemoveUser handles DELETE /leaderboard/games/{gameId}/leaderboard/{userId}.
func (h *AdminHandler) HandleRemoveUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_entry"
	caller, err := requireAdmin(r, op)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	table, err := h.deps.RemoveUser(r.Context(), vars["gameId"], r.URL.Query().Get("timeframe"), vars["userId"])
	if err != nil {
		writeDomainError(w, r, Wrap(op, err))
		return
	}
	h.logger.Info(r.Context(), "admin removed leaderboard entry",
		logger.String("admin", caller.UserID),
		logger.String("table", table.Key.String()),
		logger.String("userId", vars["userId"]),
	)
	writeJSON(w, http.StatusOK, messageResponse{
		Message:     "User removed from leaderboard successfully",
		Leaderboard: newTableResponse(table),
	})
}
