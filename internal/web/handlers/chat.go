package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/strandhq/strand/internal/auth"
	"github.com/strandhq/strand/internal/chat"
	"github.com/strandhq/strand/internal/metrics"
	"github.com/strandhq/strand/internal/web/sse"
)

// ChatStore is the chat persistence surface the handler needs.
// Implemented by chat.Store.
type ChatStore interface {
	CreateChat(ctx context.Context, c *chat.Chat) error
	IsOwnedBy(ctx context.Context, chatID uuid.UUID, userID string) (bool, error)
}

// ChatConfig wires the chat handler.
type ChatConfig struct {
	Logger   *slog.Logger
	Sessions *Sessions
	Store    ChatStore
	Resolver auth.Resolver
}

// Chat serves chat submission and stop.
type Chat struct {
	logger   *slog.Logger
	sessions *Sessions
	store    ChatStore
	resolver auth.Resolver
}

// NewChat creates the chat handler.
func NewChat(cfg ChatConfig) *Chat {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Chat{
		logger:   cfg.Logger,
		sessions: cfg.Sessions,
		store:    cfg.Store,
		resolver: cfg.Resolver,
	}
}

type sendRequest struct {
	ChatID      string            `json:"chatId"`
	WorkspaceID string            `json:"workspaceId"`
	Model       string            `json:"model"`
	Message     string            `json:"message"`
	Attachments []chat.Attachment `json:"attachments"`
}

// Send runs one turn and streams its events as SSE.
//
// POST /api/chat
func (h *Chat) Send(w http.ResponseWriter, r *http.Request) {
	user, err := h.resolver.ResolveCurrentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.WorkspaceID == "" || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "workspaceId and message are required", http.StatusBadRequest)
		return
	}

	chatID, err := h.resolveChat(w, r, &req, user)
	if err != nil {
		return // response already written
	}

	ctrl, err := h.sessions.GetOrCreate(chatID, req.WorkspaceID, req.Model)
	if err != nil {
		h.logger.Error("controller setup failed", "chat_id", chatID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Reject a concurrent turn before committing to the SSE response.
	// Submit re-checks under its own lock; this only improves the
	// status code for the common case.
	if s := ctrl.Status(); s == chat.StatusSubmitted || s == chat.StatusStreaming {
		http.Error(w, "turn already in flight", http.StatusConflict)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	metrics.TurnsStarted.Inc()
	sealed, err := ctrl.Submit(r.Context(), req.Message, req.Attachments, func(ctx context.Context, ev chat.Event) error {
		metrics.StreamEvents.WithLabelValues(ev.Type.String()).Inc()
		return writeTurnEvent(ctx, writer, ev)
	})
	if err != nil {
		metrics.TurnsCompleted.WithLabelValues("error").Inc()
		h.logger.Warn("turn failed", "chat_id", chatID, "error", err)
		code := "transport"
		if errors.Is(err, chat.ErrTurnInFlight) {
			code = "turn-in-flight"
		} else if errors.Is(err, chat.ErrEmptyInput) {
			code = "empty-input"
		}
		_ = writer.WriteError(code, err.Error())
		return
	}

	metrics.TurnsCompleted.WithLabelValues("ready").Inc()
	_ = writer.WriteEvent(r.Context(), "sealed", map[string]any{
		"messageId": sealed.ID,
		"chatId":    chatID,
		"status":    string(ctrl.Status()),
	})
}

// resolveChat loads or creates the target chat. Writes the error
// response itself and returns a non-nil error when the turn must not
// proceed.
func (h *Chat) resolveChat(w http.ResponseWriter, r *http.Request, req *sendRequest, user auth.User) (uuid.UUID, error) {
	if req.ChatID == "" {
		c := &chat.Chat{
			ID:          uuid.New(),
			OwnerID:     user.ID,
			WorkspaceID: req.WorkspaceID,
			Title:       chat.TitleFromMessage(req.Message),
		}
		if err := h.store.CreateChat(r.Context(), c); err != nil {
			h.logger.Error("chat create failed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return uuid.Nil, err
		}
		return c.ID, nil
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		http.Error(w, "malformed chatId", http.StatusBadRequest)
		return uuid.Nil, err
	}

	owned, err := h.store.IsOwnedBy(r.Context(), chatID, user.ID)
	if err != nil {
		h.logger.Error("ownership lookup failed", "chat_id", chatID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return uuid.Nil, err
	}
	if !owned {
		http.Error(w, "chat not found", http.StatusNotFound)
		return uuid.Nil, errors.New("chat not owned by caller")
	}
	return chatID, nil
}

// Stop requests graceful cancellation of the chat's in-flight turn.
//
// POST /api/chat/{id}/stop
func (h *Chat) Stop(w http.ResponseWriter, r *http.Request) {
	user, err := h.resolver.ResolveCurrentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chatID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "malformed chat id", http.StatusBadRequest)
		return
	}

	owned, err := h.store.IsOwnedBy(r.Context(), chatID, user.ID)
	if err != nil {
		h.logger.Error("ownership lookup failed", "chat_id", chatID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !owned {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	ctrl, ok := h.sessions.Get(chatID)
	stopped := ok && ctrl.Stop()
	if stopped {
		metrics.TurnsCompleted.WithLabelValues("stopped").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"stopped": stopped})
}

// writeTurnEvent maps a stream event to an SSE frame.
func writeTurnEvent(ctx context.Context, w *sse.Writer, ev chat.Event) error {
	switch ev.Type {
	case chat.EventTextDelta:
		return w.WriteEvent(ctx, "text-delta", map[string]string{"text": ev.Text})
	case chat.EventArtifactDelta:
		return w.WriteEvent(ctx, "artifact-delta", ev.Artifact)
	case chat.EventToolCall:
		return w.WriteEvent(ctx, "tool-call", ev.Call)
	case chat.EventToolResult:
		return w.WriteEvent(ctx, "tool-result", ev.Result)
	case chat.EventFinish:
		return w.WriteEvent(ctx, "finish", map[string]string{})
	default:
		return nil
	}
}
