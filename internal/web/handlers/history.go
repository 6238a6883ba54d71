package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/strandhq/strand/internal/auth"
	"github.com/strandhq/strand/internal/history"
)

// Pager serves chat history pages. Implemented by history.Paginator.
type Pager interface {
	PageAt(ctx context.Context, workspaceID string, pageIndex int) (*history.Page, error)
}

// HistoryConfig wires the history handler.
type HistoryConfig struct {
	Logger   *slog.Logger
	Pager    Pager
	Resolver auth.Resolver
}

// History serves the workspace chat list.
type History struct {
	logger   *slog.Logger
	pager    Pager
	resolver auth.Resolver
}

// NewHistory creates the history handler.
func NewHistory(cfg HistoryConfig) *History {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &History{logger: cfg.Logger, pager: cfg.Pager, resolver: cfg.Resolver}
}

// List returns one page of the workspace's chats, most recent first.
//
// GET /api/history?workspaceId=<id>&page=<n>
func (h *History) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		http.Error(w, "workspaceId is required", http.StatusBadRequest)
		return
	}

	pageIndex := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "malformed page index", http.StatusBadRequest)
			return
		}
		pageIndex = n
	}

	if _, err := h.resolver.ResolveCurrentUser(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	page, err := h.pager.PageAt(r.Context(), workspaceID, pageIndex)
	if err != nil {
		h.logger.Error("history page load failed",
			"workspace_id", workspaceID, "page", pageIndex, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(page); err != nil {
		h.logger.Warn("history encode failed", "error", err)
	}
}
