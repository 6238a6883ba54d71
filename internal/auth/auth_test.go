package auth_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/internal/auth"
)

func TestHeaderResolver(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/vote", nil)
	r.Header.Set(auth.HeaderUserID, "u1")
	r.Header.Set(auth.HeaderUserEmail, "u1@example.com")

	user, err := auth.HeaderResolver{}.ResolveCurrentUser(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "u1@example.com", user.Email)
}

func TestHeaderResolver_MissingIdentity(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/vote", nil)
	_, err := auth.HeaderResolver{}.ResolveCurrentUser(r)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/vote", nil)

	user, err := auth.StaticResolver{User: auth.User{ID: "dev"}}.ResolveCurrentUser(r)
	require.NoError(t, err)
	assert.Equal(t, "dev", user.ID)

	_, err = auth.StaticResolver{}.ResolveCurrentUser(r)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
