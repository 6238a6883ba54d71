// Package auth resolves the calling user and checks chat ownership.
// The server is expected to sit behind an authenticating proxy; the
// header resolver trusts the identity headers that proxy injects.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// ErrUnauthorized is returned when no caller identity can be
// resolved.
var ErrUnauthorized = errors.New("unauthorized")

// Identity headers set by the fronting proxy.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
)

// User is the resolved caller.
type User struct {
	ID    string
	Email string
}

// Resolver extracts the caller from a request.
type Resolver interface {
	ResolveCurrentUser(r *http.Request) (User, error)
}

// Ownership answers whether a chat belongs to a user. Implemented by
// the chat store.
type Ownership interface {
	IsOwnedBy(ctx context.Context, chatID uuid.UUID, userID string) (bool, error)
}

// HeaderResolver reads the proxy-injected identity headers.
type HeaderResolver struct{}

func (HeaderResolver) ResolveCurrentUser(r *http.Request) (User, error) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return User{}, ErrUnauthorized
	}
	return User{ID: id, Email: r.Header.Get(HeaderUserEmail)}, nil
}

// StaticResolver always resolves the same user. Single-user and test
// deployments.
type StaticResolver struct {
	User User
}

func (s StaticResolver) ResolveCurrentUser(*http.Request) (User, error) {
	if s.User.ID == "" {
		return User{}, ErrUnauthorized
	}
	return s.User, nil
}
