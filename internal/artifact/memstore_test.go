package artifact_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/internal/artifact"
	"github.com/strandhq/strand/internal/chat"
)

// The in-memory store is the controller's canvas sink.
var _ chat.ArtifactSink = (*artifact.MemStore)(nil)

func TestMemStore_AppendAssignsDenseSequences(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := artifact.NewMemStore()

	id, err := store.Create(ctx, uuid.New(), "code", "main.go")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		seq, err := store.Append(ctx, id, fmt.Sprintf("draft %d", i))
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}

	latest, err := store.Latest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, latest.Sequence)
	assert.Equal(t, "draft 4", latest.Content)

	// Earlier versions keep their sequence and content.
	v1, err := store.Get(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "draft 1", v1.Content)
}

func TestMemStore_ZeroVersionsIsValid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := artifact.NewMemStore()

	id, err := store.Create(ctx, uuid.New(), "text", "Notes")
	require.NoError(t, err)

	meta, err := store.Describe(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, artifact.KindText, meta.Kind)
	assert.Equal(t, "Notes", meta.Title)

	_, err = store.Latest(ctx, id)
	assert.ErrorIs(t, err, artifact.ErrVersionNotFound)
}

func TestMemStore_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := artifact.NewMemStore()

	_, err := store.Append(ctx, uuid.New(), "content")
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	_, err = store.Latest(ctx, uuid.New())
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	id, err := store.Create(ctx, uuid.New(), "code", "")
	require.NoError(t, err)
	_, err = store.Append(ctx, id, "v0")
	require.NoError(t, err)

	_, err = store.Get(ctx, id, 7)
	assert.ErrorIs(t, err, artifact.ErrVersionNotFound)
	_, err = store.Get(ctx, id, -1)
	assert.ErrorIs(t, err, artifact.ErrVersionNotFound)
}

func TestMemStore_RejectsUnknownKind(t *testing.T) {
	t.Parallel()

	store := artifact.NewMemStore()
	_, err := store.Create(context.Background(), uuid.New(), "video", "clip")
	assert.ErrorIs(t, err, artifact.ErrInvalidKind)
}

func TestMemStore_DiffRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := artifact.NewMemStore()

	id, err := store.Create(ctx, uuid.New(), "code", "main.go")
	require.NoError(t, err)

	_, err = store.Append(ctx, id, "a\nb\nc\n")
	require.NoError(t, err)
	_, err = store.Append(ctx, id, "a\nx\nc\n")
	require.NoError(t, err)

	ops, err := store.DiffRange(ctx, id, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []artifact.DiffOp{
		{Kind: artifact.DiffEqual, Line: "a"},
		{Kind: artifact.DiffDelete, Line: "b"},
		{Kind: artifact.DiffInsert, Line: "x"},
		{Kind: artifact.DiffEqual, Line: "c"},
	}, ops)

	_, err = store.DiffRange(ctx, id, 1, 0)
	assert.ErrorIs(t, err, artifact.ErrInvalidRange)

	_, err = store.DiffRange(ctx, id, 0, 9)
	assert.ErrorIs(t, err, artifact.ErrVersionNotFound)
}

func TestMemStore_ListByChat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := artifact.NewMemStore()
	chatID := uuid.New()

	first, err := store.Create(ctx, chatID, "text", "Outline")
	require.NoError(t, err)
	second, err := store.Create(ctx, chatID, "sheet", "Budget")
	require.NoError(t, err)
	_, err = store.Create(ctx, uuid.New(), "text", "Other chat")
	require.NoError(t, err)

	got, err := store.ListByChat(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0].ID)
	assert.Equal(t, second, got[1].ID)
}
