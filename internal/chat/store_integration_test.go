//go:build integration

package chat_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/internal/chat"
	"github.com/strandhq/strand/internal/log"
	"github.com/strandhq/strand/internal/testutil"
)

func TestStore_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := chat.NewStore(db.Pool, log.NewNop())

	c := &chat.Chat{
		ID:          uuid.New(),
		OwnerID:     "u1",
		WorkspaceID: "ws1",
		Title:       "integration chat",
	}
	require.NoError(t, store.CreateChat(ctx, c))
	assert.False(t, c.CreatedAt.IsZero())

	t.Run("get chat", func(t *testing.T) {
		got, err := store.GetChat(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, "integration chat", got.Title)

		_, err = store.GetChat(ctx, uuid.New())
		assert.ErrorIs(t, err, chat.ErrChatNotFound)
	})

	t.Run("append assigns dense sequences", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			msg := chat.NewUserMessage(c.ID, "hello", nil)
			require.NoError(t, store.Append(ctx, msg))
			assert.Equal(t, i, msg.SequenceNumber)
		}

		msgs, err := store.Messages(ctx, c.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		for i, m := range msgs {
			assert.Equal(t, i, m.SequenceNumber)
			assert.Equal(t, "hello", m.Text())
		}
	})

	t.Run("append to unknown chat", func(t *testing.T) {
		msg := chat.NewUserMessage(uuid.New(), "orphan", nil)
		assert.ErrorIs(t, store.Append(ctx, msg), chat.ErrChatNotFound)
	})

	t.Run("attachments round-trip", func(t *testing.T) {
		att := []chat.Attachment{{URL: "https://x/a.png", Name: "a.png", ContentType: "image/png"}}
		msg := chat.NewUserMessage(c.ID, "with attachment", att)
		require.NoError(t, store.Append(ctx, msg))

		msgs, err := store.Messages(ctx, c.ID, 10, 0)
		require.NoError(t, err)
		last := msgs[len(msgs)-1]
		require.Len(t, last.Attachments, 1)
		assert.Equal(t, "a.png", last.Attachments[0].Name)
	})

	t.Run("list chats by workspace", func(t *testing.T) {
		other := &chat.Chat{ID: uuid.New(), OwnerID: "u2", WorkspaceID: "ws2", Title: "other"}
		require.NoError(t, store.CreateChat(ctx, other))

		chats, err := store.ListChats(ctx, "ws1", 10, 0)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		assert.Equal(t, c.ID, chats[0].ID)
	})

	t.Run("ownership", func(t *testing.T) {
		owned, err := store.IsOwnedBy(ctx, c.ID, "u1")
		require.NoError(t, err)
		assert.True(t, owned)

		owned, err = store.IsOwnedBy(ctx, c.ID, "intruder")
		require.NoError(t, err)
		assert.False(t, owned)

		owned, err = store.IsOwnedBy(ctx, uuid.New(), "u1")
		require.NoError(t, err)
		assert.False(t, owned)
	})
}
