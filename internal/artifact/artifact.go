package artifact

import (
	"time"

	"github.com/google/uuid"
)

// Kind represents the artifact content kind shown on the canvas.
type Kind string

const (
	KindText  Kind = "text"
	KindCode  Kind = "code"
	KindSheet Kind = "sheet"
	KindImage Kind = "image"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindCode, KindSheet, KindImage:
		return true
	}
	return false
}

// Artifact is a versioned side document co-produced with a chat.
// An artifact may exist with zero versions: it was created when the
// stream opened a canvas but no content has been flushed yet.
type Artifact struct {
	ID        uuid.UUID
	ChatID    uuid.UUID
	Kind      Kind
	Title     string
	CreatedAt time.Time
}

// Version is one immutable content snapshot. Versions for a given
// artifact are totally ordered by Sequence, append-only, never edited
// or deleted. The current version is the maximum-sequence entry.
type Version struct {
	ArtifactID uuid.UUID
	Sequence   int
	Content    string
	CreatedAt  time.Time
}
