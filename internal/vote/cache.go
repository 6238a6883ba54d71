package vote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
)

// MutationState tracks one vote write against the server.
type MutationState string

const (
	// StatePending: optimistic value applied, write in flight.
	StatePending MutationState = "pending"
	// StateConfirmed: the server accepted the write; the optimistic
	// value is now authoritative.
	StateConfirmed MutationState = "confirmed"
	// StateFailed: the write was rejected. The optimistic value is
	// left in place; recovery is an explicit user retry.
	StateFailed MutationState = "failed"
)

// Mutation is the record of one optimistic vote. It carries both the
// optimistic value and the value it replaced, so callers can render
// either and reason about what a rollback would restore.
type Mutation struct {
	Optimistic Vote
	Previous   *Vote // nil when the message had no vote

	done  chan struct{}
	state MutationState
	err   error
}

// Resolved is closed once the authoritative write finishes.
func (m *Mutation) Resolved() <-chan struct{} { return m.done }

// State returns the current state, and the write error when failed.
func (m *Mutation) State() (MutationState, error) {
	select {
	case <-m.done:
		return m.state, m.err
	default:
		return StatePending, nil
	}
}

// Wait blocks until the write resolves or ctx expires.
func (m *Mutation) Wait(ctx context.Context) (MutationState, error) {
	select {
	case <-m.done:
		return m.state, m.err
	case <-ctx.Done():
		return StatePending, ctx.Err()
	}
}

// Upserter performs the authoritative vote write.
type Upserter interface {
	UpsertVote(ctx context.Context, v Vote) error
}

// Lister loads the authoritative vote rows for a chat.
type Lister interface {
	ListVotes(ctx context.Context, chatID uuid.UUID) ([]Vote, error)
}

// FailureFunc is invoked when a write fails, to raise a user-visible
// notice. Called from the mutation goroutine.
type FailureFunc func(m *Mutation)

// Cache mirrors server-side votes per chat and applies mutations
// optimistically: the local list reflects a vote before the network
// call resolves. The mirror is weak, never authoritative. A failed
// write leaves the optimistic value in place and raises a failure
// notice; there is no automatic rollback.
//
// Cache is safe for concurrent use. Rapid repeated votes on the same
// message are last-write-wins locally.
type Cache struct {
	server    Upserter
	lister    Lister
	onFailure FailureFunc
	logger    *slog.Logger

	mu      sync.Mutex
	votes   map[uuid.UUID]map[uuid.UUID]Vote // chat -> message -> vote
	fetched map[uuid.UUID]bool

	wg conc.WaitGroup
}

// NewCache creates a cache over the authoritative store. onFailure
// and logger may be nil.
func NewCache(server Upserter, lister Lister, onFailure FailureFunc, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		server:    server,
		lister:    lister,
		onFailure: onFailure,
		logger:    logger,
		votes:     make(map[uuid.UUID]map[uuid.UUID]Vote),
		fetched:   make(map[uuid.UUID]bool),
	}
}

// Vote applies dir optimistically and issues the authoritative write
// in the background. The returned mutation is already visible in
// Snapshot before the write resolves. Always hits the network, even
// when the direction matches the cached value.
func (c *Cache) Vote(ctx context.Context, chatID, messageID uuid.UUID, dir Direction) *Mutation {
	v := Vote{ChatID: chatID, MessageID: messageID, IsUpvoted: dir == DirectionUp}

	m := &Mutation{Optimistic: v, done: make(chan struct{})}

	c.mu.Lock()
	if prev, ok := c.votes[chatID][messageID]; ok {
		cp := prev
		m.Previous = &cp
	}
	if c.votes[chatID] == nil {
		c.votes[chatID] = make(map[uuid.UUID]Vote)
	}
	c.votes[chatID][messageID] = v
	c.mu.Unlock()

	// The write outlives the caller's request scope.
	writeCtx := context.WithoutCancel(ctx)
	c.wg.Go(func() {
		err := c.server.UpsertVote(writeCtx, v)
		if err != nil {
			m.state = StateFailed
			m.err = fmt.Errorf("upsert vote %s/%s: %w", chatID, messageID, err)
		} else {
			m.state = StateConfirmed
		}
		close(m.done)

		if err != nil {
			c.logger.Warn("vote write failed",
				"chat_id", chatID, "message_id", messageID, "error", err)
			if c.onFailure != nil {
				c.onFailure(m)
			}
		}
	})

	return m
}

// Snapshot returns the chat's votes, fetching the authoritative rows
// on first access. Optimistic entries win over fetched rows.
func (c *Cache) Snapshot(ctx context.Context, chatID uuid.UUID) ([]Vote, error) {
	c.mu.Lock()
	needFetch := !c.fetched[chatID]
	c.mu.Unlock()

	if needFetch {
		rows, err := c.lister.ListVotes(ctx, chatID)
		if err != nil {
			return nil, fmt.Errorf("list votes for chat %s: %w", chatID, err)
		}

		c.mu.Lock()
		if c.votes[chatID] == nil {
			c.votes[chatID] = make(map[uuid.UUID]Vote)
		}
		for _, row := range rows {
			// A vote placed while the fetch was in flight stays.
			if _, ok := c.votes[chatID][row.MessageID]; !ok {
				c.votes[chatID][row.MessageID] = row
			}
		}
		c.fetched[chatID] = true
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Vote, 0, len(c.votes[chatID]))
	for _, v := range c.votes[chatID] {
		out = append(out, v)
	}
	return out, nil
}

// Get returns the cached vote for one message, or nil.
func (c *Cache) Get(chatID, messageID uuid.UUID) *Vote {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.votes[chatID][messageID]; ok {
		cp := v
		return &cp
	}
	return nil
}

// IsDisabled applies the derived control rule to the cached state.
func (c *Cache) IsDisabled(chatID, messageID uuid.UUID, dir Direction) bool {
	return Disabled(c.Get(chatID, messageID), dir)
}

// Wait blocks until all in-flight writes resolve. Used at shutdown.
func (c *Cache) Wait() {
	c.wg.Wait()
}
