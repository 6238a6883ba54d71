package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the store needs. Defined on the
// consumer side so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store persists chats and sealed messages in PostgreSQL.
//
// Store is safe for concurrent use.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateChat inserts a chat row.
func (s *Store) CreateChat(ctx context.Context, chat *Chat) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO chats (id, owner_id, workspace_id, title)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		chat.ID, chat.OwnerID, chat.WorkspaceID, chat.Title,
	).Scan(&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create chat %s: %w", chat.ID, err)
	}

	s.logger.Debug("created chat", "chat_id", chat.ID, "workspace_id", chat.WorkspaceID)
	return nil
}

// GetChat loads a chat by id. Returns ErrChatNotFound if absent.
func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (*Chat, error) {
	var chat Chat
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, workspace_id, COALESCE(title, ''), created_at, updated_at
		 FROM chats WHERE id = $1`, id,
	).Scan(&chat.ID, &chat.OwnerID, &chat.WorkspaceID, &chat.Title,
		&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}
	return &chat, nil
}

// Append seals a message durably. The chat row is locked for the
// duration of the insert so concurrent writers cannot race on
// sequence numbers, and the chat's updated_at moves forward so
// history ordering reflects the latest activity.
func (s *Store) Append(ctx context.Context, msg *Message) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("rollback after append", "error", err)
		}
	}()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx,
		`SELECT id FROM chats WHERE id = $1 FOR UPDATE`, msg.ChatID,
	).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrChatNotFound
		}
		return fmt.Errorf("lock chat %s: %w", msg.ChatID, err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), -1) FROM messages WHERE chat_id = $1`,
		msg.ChatID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("max sequence for chat %s: %w", msg.ChatID, err)
	}
	msg.SequenceNumber = maxSeq + 1

	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}
	var attachments []byte
	if len(msg.Attachments) > 0 {
		if attachments, err = json.Marshal(msg.Attachments); err != nil {
			return fmt.Errorf("marshal attachments: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (id, chat_id, role, parts, attachments, sequence_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ChatID, msg.Role, parts, attachments,
		msg.SequenceNumber, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chats SET updated_at = now() WHERE id = $1`, msg.ChatID,
	); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("sealed message",
		"chat_id", msg.ChatID, "role", msg.Role, "seq", msg.SequenceNumber)
	return nil
}

// Messages loads a chat's messages in sequence order.
func (s *Store) Messages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, chat_id, role, parts, attachments, sequence_number, created_at
		 FROM messages WHERE chat_id = $1
		 ORDER BY sequence_number ASC
		 LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			msg         Message
			parts       []byte
			attachments []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &parts,
			&attachments, &msg.SequenceNumber, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(parts, &msg.Parts); err != nil {
			s.logger.Warn("skipping message with malformed parts",
				"message_id", msg.ID, "error", err)
			continue
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
				s.logger.Warn("dropping malformed attachments", "message_id", msg.ID)
			}
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return msgs, nil
}

// ListChats returns workspace chats ordered by most recent activity.
// Used by the history paginator.
func (s *Store) ListChats(ctx context.Context, workspaceID string, limit, offset int) ([]*Chat, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, workspace_id, COALESCE(title, ''), created_at, updated_at
		 FROM chats WHERE workspace_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		workspaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats for workspace %q: %w", workspaceID, err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.WorkspaceID, &c.Title,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	return chats, nil
}

// IsOwnedBy reports whether the chat exists and belongs to userID.
func (s *Store) IsOwnedBy(ctx context.Context, chatID uuid.UUID, userID string) (bool, error) {
	var owner string
	err := s.db.QueryRow(ctx,
		`SELECT owner_id FROM chats WHERE id = $1`, chatID,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup chat owner %s: %w", chatID, err)
	}
	return owner == userID, nil
}
