package artifact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore keeps artifacts and their versions in memory. It backs
// single-process deployments and tests; PGStore is the durable
// implementation with the same surface.
type MemStore struct {
	mu        sync.RWMutex
	artifacts map[uuid.UUID]*Artifact
	versions  map[uuid.UUID][]Version
	byChat    map[uuid.UUID][]uuid.UUID
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		artifacts: make(map[uuid.UUID]*Artifact),
		versions:  make(map[uuid.UUID][]Version),
		byChat:    make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create registers a new artifact with zero versions.
func (s *MemStore) Create(_ context.Context, chatID uuid.UUID, kind, title string) (uuid.UUID, error) {
	k := Kind(kind)
	if !k.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	a := &Artifact{
		ID:        uuid.New(),
		ChatID:    chatID,
		Kind:      k,
		Title:     title,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.ID] = a
	s.byChat[chatID] = append(s.byChat[chatID], a.ID)
	return a.ID, nil
}

// Append stores content as the next version and returns its sequence.
// Sequences start at 0 and are never renumbered.
func (s *MemStore) Append(_ context.Context, artifactID uuid.UUID, content string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[artifactID]; !ok {
		return 0, ErrNotFound
	}

	seq := len(s.versions[artifactID])
	s.versions[artifactID] = append(s.versions[artifactID], Version{
		ArtifactID: artifactID,
		Sequence:   seq,
		Content:    content,
		CreatedAt:  time.Now(),
	})
	return seq, nil
}

// Describe returns the artifact metadata.
func (s *MemStore) Describe(_ context.Context, artifactID uuid.UUID) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[artifactID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Get returns one version by sequence.
func (s *MemStore) Get(_ context.Context, artifactID uuid.UUID, sequence int) (Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version(artifactID, sequence)
}

// Latest returns the maximum-sequence version. An artifact with zero
// versions is valid but has no latest: ErrVersionNotFound.
func (s *MemStore) Latest(_ context.Context, artifactID uuid.UUID) (Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.artifacts[artifactID]; !ok {
		return Version{}, ErrNotFound
	}
	vs := s.versions[artifactID]
	if len(vs) == 0 {
		return Version{}, ErrVersionNotFound
	}
	return vs[len(vs)-1], nil
}

// DiffRange computes the line diff between two stored versions. It is
// recomputed on every call: both inputs are immutable, so the result
// is a pure function of (artifactID, from, to).
func (s *MemStore) DiffRange(_ context.Context, artifactID uuid.UUID, from, to int) ([]DiffOp, error) {
	if from > to {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRange, from, to)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := s.version(artifactID, from)
	if err != nil {
		return nil, err
	}
	b, err := s.version(artifactID, to)
	if err != nil {
		return nil, err
	}
	return Diff(a.Content, b.Content), nil
}

// ListByChat returns every artifact created in a chat, in creation
// order.
func (s *MemStore) ListByChat(_ context.Context, chatID uuid.UUID) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byChat[chatID]
	out := make([]*Artifact, 0, len(ids))
	for _, id := range ids {
		cp := *s.artifacts[id]
		out = append(out, &cp)
	}
	return out, nil
}

// version requires s.mu held.
func (s *MemStore) version(artifactID uuid.UUID, sequence int) (Version, error) {
	if _, ok := s.artifacts[artifactID]; !ok {
		return Version{}, ErrNotFound
	}
	vs := s.versions[artifactID]
	if sequence < 0 || sequence >= len(vs) {
		return Version{}, fmt.Errorf("%w: sequence %d", ErrVersionNotFound, sequence)
	}
	return vs[sequence], nil
}
