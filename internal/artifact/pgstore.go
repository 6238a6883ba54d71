package artifact

import (
	"context"
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

// PGStore persists artifacts and their versions in PostgreSQL.
//
// PGStore is safe for concurrent use. Version sequences are assigned
// under a row lock on the artifact, so concurrent appenders never
// collide and existing sequences are never renumbered.
type PGStore struct {
	db     DB
	logger *slog.Logger
}

// NewPGStore creates a PGStore. logger may be nil.
func NewPGStore(db DB, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{db: db, logger: logger}
}

// Create inserts an artifact row with zero versions.
func (s *PGStore) Create(ctx context.Context, chatID uuid.UUID, kind, title string) (uuid.UUID, error) {
	k := Kind(kind)
	if !k.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	id := uuid.New()
	if _, err := s.db.Exec(ctx,
		`INSERT INTO artifacts (id, chat_id, kind, title)
		 VALUES ($1, $2, $3, $4)`,
		id, chatID, string(k), title,
	); err != nil {
		return uuid.Nil, fmt.Errorf("create artifact for chat %s: %w", chatID, err)
	}

	s.logger.Debug("created artifact", "artifact_id", id, "chat_id", chatID, "kind", k)
	return id, nil
}

// Append stores content as the next version and returns its sequence.
func (s *PGStore) Append(ctx context.Context, artifactID uuid.UUID, content string) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("rollback after append", "error", err)
		}
	}()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx,
		`SELECT id FROM artifacts WHERE id = $1 FOR UPDATE`, artifactID,
	).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock artifact %s: %w", artifactID, err)
	}

	var seq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), -1) + 1 FROM artifact_versions WHERE artifact_id = $1`,
		artifactID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence for artifact %s: %w", artifactID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO artifact_versions (artifact_id, sequence, content)
		 VALUES ($1, $2, $3)`,
		artifactID, seq, content,
	); err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("appended artifact version", "artifact_id", artifactID, "sequence", seq)
	return seq, nil
}

// Describe returns the artifact metadata.
func (s *PGStore) Describe(ctx context.Context, artifactID uuid.UUID) (*Artifact, error) {
	var a Artifact
	var kind string
	err := s.db.QueryRow(ctx,
		`SELECT id, chat_id, kind, COALESCE(title, ''), created_at
		 FROM artifacts WHERE id = $1`, artifactID,
	).Scan(&a.ID, &a.ChatID, &kind, &a.Title, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get artifact %s: %w", artifactID, err)
	}
	a.Kind = Kind(kind)
	return &a, nil
}

// Get returns one version by sequence.
func (s *PGStore) Get(ctx context.Context, artifactID uuid.UUID, sequence int) (Version, error) {
	var v Version
	err := s.db.QueryRow(ctx,
		`SELECT artifact_id, sequence, content, created_at
		 FROM artifact_versions WHERE artifact_id = $1 AND sequence = $2`,
		artifactID, sequence,
	).Scan(&v.ArtifactID, &v.Sequence, &v.Content, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, s.missingVersion(ctx, artifactID, sequence)
		}
		return Version{}, fmt.Errorf("get version %d of artifact %s: %w", sequence, artifactID, err)
	}
	return v, nil
}

// Latest returns the maximum-sequence version.
func (s *PGStore) Latest(ctx context.Context, artifactID uuid.UUID) (Version, error) {
	var v Version
	err := s.db.QueryRow(ctx,
		`SELECT artifact_id, sequence, content, created_at
		 FROM artifact_versions WHERE artifact_id = $1
		 ORDER BY sequence DESC LIMIT 1`,
		artifactID,
	).Scan(&v.ArtifactID, &v.Sequence, &v.Content, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, s.missingVersion(ctx, artifactID, -1)
		}
		return Version{}, fmt.Errorf("latest version of artifact %s: %w", artifactID, err)
	}
	return v, nil
}

// DiffRange computes the line diff between two stored versions.
func (s *PGStore) DiffRange(ctx context.Context, artifactID uuid.UUID, from, to int) ([]DiffOp, error) {
	if from > to {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRange, from, to)
	}

	a, err := s.Get(ctx, artifactID, from)
	if err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, artifactID, to)
	if err != nil {
		return nil, err
	}
	return Diff(a.Content, b.Content), nil
}

// ListByChat returns every artifact created in a chat, in creation
// order.
func (s *PGStore) ListByChat(ctx context.Context, chatID uuid.UUID) ([]*Artifact, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, chat_id, kind, COALESCE(title, ''), created_at
		 FROM artifacts WHERE chat_id = $1
		 ORDER BY created_at ASC`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var a Artifact
		var kind string
		if err := rows.Scan(&a.ID, &a.ChatID, &kind, &a.Title, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Kind = Kind(kind)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}

	return out, nil
}

// missingVersion distinguishes a missing artifact from an
// out-of-range sequence.
func (s *PGStore) missingVersion(ctx context.Context, artifactID uuid.UUID, sequence int) error {
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM artifacts WHERE id = $1)`, artifactID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check artifact %s: %w", artifactID, err)
	}
	if !exists {
		return ErrNotFound
	}
	if sequence < 0 {
		return ErrVersionNotFound
	}
	return fmt.Errorf("%w: sequence %d", ErrVersionNotFound, sequence)
}
