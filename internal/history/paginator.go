// Package history derives stable pagination keys for workspace chat
// lists and serves pages through an explicit cache, so a completed
// turn can invalidate exactly the keys it made stale.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/strandhq/strand/internal/cache"
	"github.com/strandhq/strand/internal/chat"
	"github.com/strandhq/strand/internal/metrics"
)

// DefaultTTL bounds how long a cached page can serve without a
// refresh, even if invalidation is missed.
const DefaultTTL = 5 * time.Minute

// Lister loads workspace chats ordered by most recent activity.
// Implemented by chat.Store.
type Lister interface {
	ListChats(ctx context.Context, workspaceID string, limit, offset int) ([]*chat.Chat, error)
}

// Page is one slice of a workspace's chat history.
type Page struct {
	Chats []*chat.Chat `json:"chats"`
	// HasMore reports whether a further page may exist. False once
	// this page came back shorter than the page size.
	HasMore bool `json:"hasMore"`
}

// Paginator serves chat history pages through the cache. It is the
// controller's HistoryInvalidator: sealing a turn drops every cached
// page for the workspace, so the next list reflects the new activity.
type Paginator struct {
	lister   Lister
	cache    cache.Cache
	pageSize int
	ttl      time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	keys map[string][]string // workspace -> cached page keys
}

// New creates a Paginator. logger may be nil; pageSize must be
// positive.
func New(lister Lister, c cache.Cache, pageSize int, logger *slog.Logger) (*Paginator, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		lister:   lister,
		cache:    c,
		pageSize: pageSize,
		ttl:      DefaultTTL,
		logger:   logger,
		keys:     make(map[string][]string),
	}, nil
}

var _ chat.HistoryInvalidator = (*Paginator)(nil)

// KeyFor derives the cache key for a page. Returns "" once
// previousPage indicates no further pages exist: the previous fetch
// came back shorter than the page size, so the chain terminates.
// The first page (pageIndex 0) always has a key. Deterministic: the
// same inputs always produce the same key.
func (p *Paginator) KeyFor(workspaceID string, pageIndex int, previousPage *Page) string {
	if pageIndex > 0 && (previousPage == nil || !previousPage.HasMore) {
		return ""
	}
	return p.key(workspaceID, pageIndex)
}

func (p *Paginator) key(workspaceID string, pageIndex int) string {
	return fmt.Sprintf("history:%s:size=%d:page=%d", workspaceID, p.pageSize, pageIndex)
}

// PageAt returns one page, reading through the cache.
func (p *Paginator) PageAt(ctx context.Context, workspaceID string, pageIndex int) (*Page, error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("page index must be non-negative, got %d", pageIndex)
	}

	key := p.key(workspaceID, pageIndex)
	if raw, err := p.cache.Get(ctx, key); err == nil {
		var page Page
		if err := json.Unmarshal(raw, &page); err == nil {
			return &page, nil
		}
		// Malformed entry: drop it and fall through to the lister.
		if err := p.cache.Delete(ctx, key); err != nil {
			p.logger.Warn("dropping malformed history page", "key", key, "error", err)
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		p.logger.Warn("history cache read failed", "key", key, "error", err)
	}

	chats, err := p.lister.ListChats(ctx, workspaceID, p.pageSize, pageIndex*p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("load history page %d for workspace %q: %w", pageIndex, workspaceID, err)
	}

	page := &Page{Chats: chats, HasMore: len(chats) == p.pageSize}
	if raw, err := json.Marshal(page); err == nil {
		if err := p.cache.Set(ctx, key, raw, p.ttl); err != nil {
			p.logger.Warn("history cache write failed", "key", key, "error", err)
		} else {
			p.track(workspaceID, key)
		}
	}
	return page, nil
}

// InvalidateWorkspace drops every cached page for the workspace.
// Called by the session controller after a turn seals.
func (p *Paginator) InvalidateWorkspace(ctx context.Context, workspaceID string) {
	p.mu.Lock()
	keys := p.keys[workspaceID]
	delete(p.keys, workspaceID)
	p.mu.Unlock()

	for _, key := range keys {
		if err := p.cache.Delete(ctx, key); err != nil {
			p.logger.Warn("history invalidation failed", "key", key, "error", err)
		}
	}
	metrics.HistoryInvalidations.Inc()
	p.logger.Debug("invalidated history", "workspace_id", workspaceID, "keys", len(keys))
}

func (p *Paginator) track(workspaceID, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.keys[workspaceID] {
		if k == key {
			return
		}
	}
	p.keys[workspaceID] = append(p.keys[workspaceID], key)
}
