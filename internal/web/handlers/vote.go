package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/strandhq/strand/internal/auth"
	"github.com/strandhq/strand/internal/metrics"
	"github.com/strandhq/strand/internal/vote"
)

// VoteConfig wires the vote handler.
type VoteConfig struct {
	Logger    *slog.Logger
	Cache     *vote.Cache
	Resolver  auth.Resolver
	Ownership auth.Ownership
}

// Votes serves the vote query and mutation endpoints.
type Votes struct {
	logger    *slog.Logger
	cache     *vote.Cache
	resolver  auth.Resolver
	ownership auth.Ownership
}

// NewVotes creates the vote handler.
func NewVotes(cfg VoteConfig) *Votes {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Votes{
		logger:    cfg.Logger,
		cache:     cfg.Cache,
		resolver:  cfg.Resolver,
		ownership: cfg.Ownership,
	}
}

// List returns the chat's votes.
//
// GET /vote?chatId=<id>
// 400 when chatId is missing or malformed, 404 when the chat does not
// resolve for the caller, else 200 with the vote records. A chat with
// zero votes yields an empty list.
func (h *Votes) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("chatId")
	if raw == "" {
		http.Error(w, "chatId is required", http.StatusBadRequest)
		return
	}
	chatID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "malformed chatId", http.StatusBadRequest)
		return
	}

	user, err := h.resolver.ResolveCurrentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.chatResolves(w, r, chatID, user.ID) {
		return
	}

	votes, err := h.cache.Snapshot(r.Context(), chatID)
	if err != nil {
		h.logger.Error("vote snapshot failed", "chat_id", chatID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(votes); err != nil {
		h.logger.Warn("vote list encode failed", "error", err)
	}
}

type voteRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Type      string `json:"type"`
}

// Mutate upserts a vote on the natural key (chatId, messageId).
//
// PATCH /vote
// 400 when any field is missing or malformed, 404 when the chat does
// not resolve for the caller, else 200 with a plain status body.
func (h *Votes) Mutate(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.ChatID == "" || req.MessageID == "" || req.Type == "" {
		http.Error(w, "chatId, messageId and type are required", http.StatusBadRequest)
		return
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		http.Error(w, "malformed chatId", http.StatusBadRequest)
		return
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		http.Error(w, "malformed messageId", http.StatusBadRequest)
		return
	}
	dir, err := vote.ParseDirection(req.Type)
	if err != nil {
		http.Error(w, "type must be up or down", http.StatusBadRequest)
		return
	}

	user, err := h.resolver.ResolveCurrentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.chatResolves(w, r, chatID, user.ID) {
		return
	}

	m := h.cache.Vote(r.Context(), chatID, messageID, dir)
	state, err := m.Wait(r.Context())
	if err != nil || state == vote.StateFailed {
		metrics.VoteWrites.WithLabelValues("failed").Inc()
		h.logger.Warn("vote mutation failed",
			"chat_id", chatID, "message_id", messageID, "error", err)
		http.Error(w, "vote write failed", http.StatusInternalServerError)
		return
	}
	metrics.VoteWrites.WithLabelValues("confirmed").Inc()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("voted")); err != nil {
		h.logger.Warn("vote response write failed", "error", err)
	}
}

// chatResolves writes 404 and returns false when the chat does not
// exist or is not owned by the caller. Unknown and unauthorized chats
// are indistinguishable on the wire.
func (h *Votes) chatResolves(w http.ResponseWriter, r *http.Request, chatID uuid.UUID, userID string) bool {
	owned, err := h.ownership.IsOwnedBy(r.Context(), chatID, userID)
	if err != nil {
		h.logger.Error("ownership lookup failed", "chat_id", chatID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return false
	}
	if !owned {
		http.Error(w, "chat not found", http.StatusNotFound)
		return false
	}
	return true
}
