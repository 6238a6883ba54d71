package vote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Store is the authoritative vote store. Writes are upserts on the
// natural key (chat_id, message_id): a later vote replaces the row,
// never adds a second one.
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

var (
	_ Upserter = (*Store)(nil)
	_ Lister   = (*Store)(nil)
)

// UpsertVote writes v, replacing any existing vote for the message.
func (s *Store) UpsertVote(ctx context.Context, v Vote) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO votes (chat_id, message_id, is_upvoted)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id, message_id)
		 DO UPDATE SET is_upvoted = EXCLUDED.is_upvoted`,
		v.ChatID, v.MessageID, v.IsUpvoted,
	); err != nil {
		return fmt.Errorf("upsert vote %s/%s: %w", v.ChatID, v.MessageID, err)
	}

	s.logger.Debug("upserted vote",
		"chat_id", v.ChatID, "message_id", v.MessageID, "is_upvoted", v.IsUpvoted)
	return nil
}

// ListVotes returns all votes for a chat. A chat with no votes yields
// an empty list, not an error.
func (s *Store) ListVotes(ctx context.Context, chatID uuid.UUID) ([]Vote, error) {
	rows, err := s.db.Query(ctx,
		`SELECT chat_id, message_id, is_upvoted
		 FROM votes WHERE chat_id = $1`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("list votes for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	votes := make([]Vote, 0)
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.ChatID, &v.MessageID, &v.IsUpvoted); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}

	return votes, nil
}
