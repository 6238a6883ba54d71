package vote_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/internal/log"
	"github.com/strandhq/strand/internal/vote"
)

// fakeServer records upserts and can be made to fail or stall.
type fakeServer struct {
	mu      sync.Mutex
	upserts []vote.Vote
	listed  []vote.Vote
	err     error
	gate    chan struct{} // when set, UpsertVote blocks until closed
}

func (f *fakeServer) UpsertVote(_ context.Context, v vote.Vote) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, v)
	return nil
}

func (f *fakeServer) ListVotes(context.Context, uuid.UUID) ([]vote.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed, nil
}

func (f *fakeServer) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func newCache(server *fakeServer, onFailure vote.FailureFunc) *vote.Cache {
	return vote.NewCache(server, server, onFailure, log.NewNop())
}

func TestCache_SameDirectionTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := &fakeServer{}
	c := newCache(server, nil)
	chatID, msgID := uuid.New(), uuid.New()

	m1 := c.Vote(ctx, chatID, msgID, vote.DirectionUp)
	m2 := c.Vote(ctx, chatID, msgID, vote.DirectionUp)

	state, err := m1.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, vote.StateConfirmed, state)
	_, err = m2.Wait(ctx)
	require.NoError(t, err)

	// Visible state unchanged, but both calls hit the server.
	got := c.Get(chatID, msgID)
	require.NotNil(t, got)
	assert.True(t, got.IsUpvoted)
	assert.Equal(t, 2, server.upsertCount())
}

func TestCache_ToggleIsInvertible(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := &fakeServer{}
	c := newCache(server, nil)
	chatID, msgID := uuid.New(), uuid.New()

	c.Vote(ctx, chatID, msgID, vote.DirectionUp)
	assert.True(t, c.Get(chatID, msgID).IsUpvoted)

	c.Vote(ctx, chatID, msgID, vote.DirectionDown)
	assert.False(t, c.Get(chatID, msgID).IsUpvoted)

	c.Vote(ctx, chatID, msgID, vote.DirectionUp)
	assert.True(t, c.Get(chatID, msgID).IsUpvoted)

	c.Wait()
	assert.Equal(t, 3, server.upsertCount())
}

func TestCache_OptimisticBeforeResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := make(chan struct{})
	server := &fakeServer{gate: gate}
	c := newCache(server, nil)
	chatID, msgID := uuid.New(), uuid.New()

	m := c.Vote(ctx, chatID, msgID, vote.DirectionUp)

	// Visible immediately, while the write is still in flight.
	got := c.Get(chatID, msgID)
	require.NotNil(t, got)
	assert.True(t, got.IsUpvoted)
	state, _ := m.State()
	assert.Equal(t, vote.StatePending, state)

	close(gate)
	state, err := m.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, vote.StateConfirmed, state)
}

func TestCache_FailureKeepsOptimisticValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := &fakeServer{err: errors.New("boom")}

	var (
		mu     sync.Mutex
		failed []*vote.Mutation
	)
	c := newCache(server, func(m *vote.Mutation) {
		mu.Lock()
		failed = append(failed, m)
		mu.Unlock()
	})

	chatID, msgID := uuid.New(), uuid.New()
	m := c.Vote(ctx, chatID, msgID, vote.DirectionUp)

	state, err := m.Wait(ctx)
	assert.Equal(t, vote.StateFailed, state)
	require.Error(t, err)

	// No rollback: the optimistic value stays until the user retries.
	got := c.Get(chatID, msgID)
	require.NotNil(t, got)
	assert.True(t, got.IsUpvoted)

	c.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.Nil(t, failed[0].Previous)
	assert.True(t, failed[0].Optimistic.IsUpvoted)
}

func TestCache_MutationRecordsPreviousValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := &fakeServer{}
	c := newCache(server, nil)
	chatID, msgID := uuid.New(), uuid.New()

	first := c.Vote(ctx, chatID, msgID, vote.DirectionUp)
	assert.Nil(t, first.Previous)

	second := c.Vote(ctx, chatID, msgID, vote.DirectionDown)
	require.NotNil(t, second.Previous)
	assert.True(t, second.Previous.IsUpvoted)
	c.Wait()
}

func TestCache_SnapshotMergesServerRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chatID := uuid.New()
	fetchedMsg, optimisticMsg := uuid.New(), uuid.New()

	server := &fakeServer{listed: []vote.Vote{
		{ChatID: chatID, MessageID: fetchedMsg, IsUpvoted: false},
		{ChatID: chatID, MessageID: optimisticMsg, IsUpvoted: false},
	}}
	c := newCache(server, nil)

	// Local vote placed before the first fetch wins over the row.
	m := c.Vote(ctx, chatID, optimisticMsg, vote.DirectionUp)
	_, err := m.Wait(ctx)
	require.NoError(t, err)

	votes, err := c.Snapshot(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, votes, 2)

	byMsg := make(map[uuid.UUID]vote.Vote)
	for _, v := range votes {
		byMsg[v.MessageID] = v
	}
	assert.False(t, byMsg[fetchedMsg].IsUpvoted)
	assert.True(t, byMsg[optimisticMsg].IsUpvoted)
}

func TestCache_SnapshotEmptyChat(t *testing.T) {
	t.Parallel()

	c := newCache(&fakeServer{}, nil)
	votes, err := c.Snapshot(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestDisabledRule(t *testing.T) {
	t.Parallel()

	up := &vote.Vote{IsUpvoted: true}
	down := &vote.Vote{IsUpvoted: false}

	assert.True(t, vote.Disabled(up, vote.DirectionUp))
	assert.False(t, vote.Disabled(up, vote.DirectionDown))
	assert.True(t, vote.Disabled(down, vote.DirectionDown))
	assert.False(t, vote.Disabled(down, vote.DirectionUp))
	assert.False(t, vote.Disabled(nil, vote.DirectionUp))
	assert.False(t, vote.Disabled(nil, vote.DirectionDown))
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	dir, err := vote.ParseDirection("up")
	require.NoError(t, err)
	assert.Equal(t, vote.DirectionUp, dir)

	dir, err = vote.ParseDirection("down")
	require.NoError(t, err)
	assert.Equal(t, vote.DirectionDown, dir)

	_, err = vote.ParseDirection("sideways")
	assert.ErrorIs(t, err, vote.ErrInvalidDirection)

	_, err = vote.ParseDirection("")
	assert.ErrorIs(t, err, vote.ErrInvalidDirection)
}

func TestCache_WaitDrainsInFlightWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := make(chan struct{})
	server := &fakeServer{gate: gate}
	c := newCache(server, nil)

	c.Vote(ctx, uuid.New(), uuid.New(), vote.DirectionUp)

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned with a write still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after writes resolved")
	}
}
