package handlers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/internal/chat"
)

// SessionsConfig carries the collaborators every session controller
// is wired with.
type SessionsConfig struct {
	Transport chat.Transport
	Persist   chat.MessageSealer      // optional durable message store
	Artifacts chat.ArtifactSink       // optional canvas version store
	History   chat.HistoryInvalidator // optional history cache
	Logger    *slog.Logger

	IdleTimeout   time.Duration
	FlushInterval time.Duration
}

// Sessions owns one chat.Controller per chat. A controller lives for
// the session's lifetime and is reused across turns, so its status
// machine and canvas artifact survive between requests.
type Sessions struct {
	cfg SessionsConfig

	mu          sync.Mutex
	controllers map[uuid.UUID]*chat.Controller
}

// NewSessions creates the session registry.
func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sessions{
		cfg:         cfg,
		controllers: make(map[uuid.UUID]*chat.Controller),
	}
}

// GetOrCreate returns the chat's controller, creating it on first
// use. workspaceID and model are fixed at creation and ignored on
// subsequent calls.
func (s *Sessions) GetOrCreate(chatID uuid.UUID, workspaceID, model string) (*chat.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctrl, ok := s.controllers[chatID]; ok {
		return ctrl, nil
	}

	ctrl, err := chat.NewController(chat.ControllerConfig{
		ChatID:        chatID,
		WorkspaceID:   workspaceID,
		Model:         model,
		Transport:     s.cfg.Transport,
		Log:           chat.NewMessageLog(),
		Persist:       s.cfg.Persist,
		Artifacts:     s.cfg.Artifacts,
		History:       s.cfg.History,
		Logger:        s.cfg.Logger,
		IdleTimeout:   s.cfg.IdleTimeout,
		FlushInterval: s.cfg.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("create controller for chat %s: %w", chatID, err)
	}

	s.controllers[chatID] = ctrl
	return ctrl, nil
}

// Get returns the chat's controller if one exists.
func (s *Sessions) Get(chatID uuid.UUID) (*chat.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.controllers[chatID]
	return ctrl, ok
}
