// Package vote implements per-message feedback: an authoritative
// PostgreSQL store keyed by (chat, message), and an optimistic cache
// that reflects a vote locally before the write resolves.
package vote

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidDirection is returned for a direction other than
	// "up" or "down".
	ErrInvalidDirection = errors.New("invalid vote direction")
)

// Direction is the user-facing vote action.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection validates a wire-level direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp, DirectionDown:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Vote is one reviewer's verdict on a message. Natural key is
// (ChatID, MessageID): at most one vote per message, later actions
// overwrite in place.
type Vote struct {
	ChatID    uuid.UUID `json:"chatId"`
	MessageID uuid.UUID `json:"messageId"`
	IsUpvoted bool      `json:"isUpvoted"`
}

// Disabled reports whether the control for dir should be disabled
// given the current cached vote. Derived, never stored: the upvote
// control is off when the vote is already an upvote, and symmetrically
// for downvotes. A nil vote enables both controls.
func Disabled(v *Vote, dir Direction) bool {
	if v == nil {
		return false
	}
	return v.IsUpvoted == (dir == DirectionUp)
}
