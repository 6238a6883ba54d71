package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/strandhq/strand/internal/metrics"
)

// Status is the turn state of a session controller.
type Status string

const (
	// StatusIdle: no turn in flight; submissions accepted.
	StatusIdle Status = "idle"
	// StatusSubmitted: user message sent, waiting for the first event.
	StatusSubmitted Status = "submitted"
	// StatusStreaming: deltas are being applied to the buffer.
	StatusStreaming Status = "streaming"
	// StatusReady: last turn sealed successfully.
	StatusReady Status = "ready"
	// StatusError: last turn aborted; partial buffer was discarded.
	StatusError Status = "error"

	// ready and error are accepting states: like idle, they admit the
	// next submission. They differ only in what they report about the
	// previous turn.
)

// MessageSealer receives sealed messages for durable storage.
type MessageSealer interface {
	Append(ctx context.Context, msg *Message) error
}

// ArtifactSink receives coherent canvas updates detected while
// streaming. Implemented by the artifact version store.
type ArtifactSink interface {
	Create(ctx context.Context, chatID uuid.UUID, kind, title string) (uuid.UUID, error)
	Append(ctx context.Context, artifactID uuid.UUID, content string) (int, error)
}

// HistoryInvalidator drops cached history pages after a turn
// completes. Implemented by the history paginator.
type HistoryInvalidator interface {
	InvalidateWorkspace(ctx context.Context, workspaceID string)
}

// EventCallback observes turn events in receipt order. Returning an
// error aborts the stream (treated as a transport failure).
type EventCallback func(ctx context.Context, ev Event) error

// Defaults applied when ControllerConfig leaves them zero.
const (
	defaultIdleTimeout   = 120 * time.Second
	defaultFlushInterval = 2 * time.Second
)

// ControllerConfig wires one session controller.
type ControllerConfig struct {
	ChatID      uuid.UUID
	WorkspaceID string
	Model       string

	Transport Transport
	Log       *MessageLog // owned by this controller
	Persist   MessageSealer
	Artifacts ArtifactSink
	History   HistoryInvalidator
	Logger    *slog.Logger

	// IdleTimeout bounds each wait for the next stream event.
	IdleTimeout time.Duration
	// FlushInterval throttles artifact version appends.
	FlushInterval time.Duration
}

func (cfg ControllerConfig) validate() error {
	if cfg.ChatID == uuid.Nil {
		return errors.New("chat id is required")
	}
	if cfg.Transport == nil {
		return errors.New("transport is required")
	}
	if cfg.Log == nil {
		return errors.New("message log is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Controller orchestrates one conversation: it accepts user input,
// opens a stream against the generation service, applies deltas to the
// in-progress assistant buffer in strict receipt order, drives canvas
// version appends, and exposes the turn status machine
// idle → submitted → streaming → {ready, error}.
//
// A controller admits exactly one active turn at a time. Submit runs
// the turn to a terminal state on the calling goroutine; Stop may be
// called from any goroutine.
type Controller struct {
	chatID      uuid.UUID
	workspaceID string
	model       string

	transport Transport
	log       *MessageLog
	persist   MessageSealer
	artifacts ArtifactSink
	history   HistoryInvalidator
	logger    *slog.Logger

	idleTimeout time.Duration
	limiter     *rate.Limiter

	mu         sync.Mutex
	status     Status
	active     Stream
	stopped    bool
	artifactID uuid.UUID // active canvas artifact, uuid.Nil when none
}

// NewController creates a session controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}

	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	return &Controller{
		chatID:      cfg.ChatID,
		workspaceID: cfg.WorkspaceID,
		model:       cfg.Model,
		transport:   cfg.Transport,
		log:         cfg.Log,
		persist:     cfg.Persist,
		artifacts:   cfg.Artifacts,
		history:     cfg.History,
		logger:      cfg.Logger.With("component", "controller", "chat_id", cfg.ChatID),
		idleTimeout: idle,
		limiter:     rate.NewLimiter(rate.Every(flush), 1),
		status:      StatusIdle,
	}, nil
}

// Status returns the current turn status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ArtifactID returns the session's active canvas artifact, or uuid.Nil.
func (c *Controller) ArtifactID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifactID
}

// Stop requests graceful cancellation of the in-flight turn. The
// partial buffer is sealed as-is, not discarded. Returns false when no
// turn is in flight.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusSubmitted && c.status != StatusStreaming {
		return false
	}
	c.stopped = true
	if c.active != nil {
		c.active.Cancel()
	}
	return true
}

// Submit runs one turn: append the user message, stream the assistant
// response, seal the result. Returns the sealed assistant message on
// success (including graceful stops). Rejects with ErrTurnInFlight if
// a turn is already active.
func (c *Controller) Submit(ctx context.Context, text string, attachments []Attachment, onEvent EventCallback) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.status == StatusSubmitted || c.status == StatusStreaming {
		c.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	c.status = StatusSubmitted
	c.stopped = false
	c.active = nil
	c.mu.Unlock()

	userMsg := NewUserMessage(c.chatID, text, attachments)
	if err := c.log.Append(ctx, userMsg); err != nil {
		c.setStatus(StatusError)
		return nil, fmt.Errorf("append user message: %w", err)
	}
	c.sealDurably(ctx, userMsg)

	stream, err := c.transport.Open(ctx, Request{
		ChatID:      c.chatID,
		WorkspaceID: c.workspaceID,
		Model:       c.model,
		Messages:    c.log.Messages(),
	})
	if err != nil {
		c.setStatus(StatusError)
		c.logger.Warn("stream open failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	c.mu.Lock()
	c.active = stream
	stopRequested := c.stopped
	c.mu.Unlock()
	if stopRequested {
		// Stop raced with open; tear down and seal the empty turn.
		stream.Cancel()
	}

	sealed, err := c.consume(ctx, stream, onEvent)
	// Release the transport connection however the turn ended. Cancel
	// is idempotent, so the stop and error paths may have beaten us.
	stream.Cancel()
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
	return sealed, err
}

// consume drains the stream into the turn buffer until a terminal
// condition, then seals or discards.
func (c *Controller) consume(ctx context.Context, stream Stream, onEvent EventCallback) (*Message, error) {
	buf := &turnBuffer{}

	for {
		if c.stopRequested() {
			stream.Cancel()
			return c.seal(ctx, buf)
		}

		ev, err := c.nextEvent(ctx, stream)
		if err != nil {
			if c.stopRequested() {
				// Cancellation surfaces as a read error; the stop was
				// user-issued, so the partial buffer is kept.
				return c.seal(ctx, buf)
			}
			return nil, c.abort(buf, err)
		}

		switch ev.Type {
		case EventTextDelta:
			c.setStatus(StatusStreaming)
			buf.appendText(ev.Text)

		case EventArtifactDelta:
			c.setStatus(StatusStreaming)
			c.applyArtifactDelta(ctx, buf, ev.Artifact)

		case EventToolCall:
			c.setStatus(StatusStreaming)
			buf.appendPart(Part{Type: PartToolCall, ToolCall: ev.Call})

		case EventToolResult:
			c.setStatus(StatusStreaming)
			buf.appendPart(Part{Type: PartToolResult, ToolResult: ev.Result})

		case EventFinish:
			if onEvent != nil {
				if err := onEvent(ctx, ev); err != nil {
					return nil, c.abort(buf, err)
				}
			}
			return c.seal(ctx, buf)

		case EventError:
			return nil, c.abort(buf, ev.Err)
		}

		if onEvent != nil && ev.Type != EventFinish {
			if err := onEvent(ctx, ev); err != nil {
				stream.Cancel()
				return nil, c.abort(buf, err)
			}
		}
	}
}

// nextEvent pulls one event under the idle deadline.
func (c *Controller) nextEvent(ctx context.Context, stream Stream) (Event, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.idleTimeout)
	defer cancel()

	ev, err := stream.Next(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			stream.Cancel()
			return Event{}, ErrStreamIdle
		}
		return Event{}, err
	}
	return ev, nil
}

// applyArtifactDelta accumulates canvas content and appends a version
// at throttle boundaries. Sink failures are logged, never fatal to the
// turn.
func (c *Controller) applyArtifactDelta(ctx context.Context, buf *turnBuffer, delta *ArtifactDelta) {
	if delta == nil || c.artifacts == nil {
		return
	}

	if delta.Kind != "" && buf.artifactKind == "" {
		buf.artifactKind = delta.Kind
		buf.artifactTitle = delta.Title
	}
	buf.artifact.WriteString(delta.Content)
	buf.artifactDirty = true

	if c.ensureArtifact(ctx, buf) && c.limiter.Allow() {
		c.flushArtifact(ctx, buf)
	}
}

// ensureArtifact creates the session's canvas artifact on the first
// coherent update. Reused across turns afterwards.
func (c *Controller) ensureArtifact(ctx context.Context, buf *turnBuffer) bool {
	c.mu.Lock()
	id := c.artifactID
	c.mu.Unlock()
	if id != uuid.Nil {
		return true
	}

	kind := buf.artifactKind
	if kind == "" {
		kind = "text"
	}
	id, err := c.artifacts.Create(ctx, c.chatID, kind, buf.artifactTitle)
	if err != nil {
		c.logger.Warn("artifact create failed", "error", err)
		return false
	}

	c.mu.Lock()
	c.artifactID = id
	c.mu.Unlock()
	return true
}

// flushArtifact appends the accumulated canvas snapshot as a version.
func (c *Controller) flushArtifact(ctx context.Context, buf *turnBuffer) {
	c.mu.Lock()
	id := c.artifactID
	c.mu.Unlock()
	if id == uuid.Nil || !buf.artifactDirty {
		return
	}

	seq, err := c.artifacts.Append(ctx, id, buf.artifact.String())
	if err != nil {
		c.logger.Warn("artifact version append failed",
			"artifact_id", id, "error", err)
		return
	}
	buf.artifactDirty = false
	metrics.ArtifactVersions.Inc()
	c.logger.Debug("appended artifact version", "artifact_id", id, "seq", seq)
}

// seal turns the buffer into an immutable assistant message, appends
// it to the log, persists it, flushes the canvas and invalidates the
// cached history page. Terminal state: ready.
func (c *Controller) seal(ctx context.Context, buf *turnBuffer) (*Message, error) {
	if buf.artifactDirty {
		if c.ensureArtifact(ctx, buf) {
			c.flushArtifact(ctx, buf)
		}
	}

	msg := &Message{
		ID:        uuid.New(),
		ChatID:    c.chatID,
		Role:      RoleAssistant,
		Parts:     buf.parts,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.log.Append(ctx, msg); err != nil {
		c.setStatus(StatusError)
		return nil, fmt.Errorf("seal assistant message: %w", err)
	}
	c.sealDurably(ctx, msg)

	if c.history != nil {
		c.history.InvalidateWorkspace(ctx, c.workspaceID)
	}

	c.setStatus(StatusReady)
	c.logger.Debug("turn sealed", "parts", len(msg.Parts))
	return msg, nil
}

// abort discards the buffer and records the failure. The partial
// content is not trusted: it may be truncated mid-structure.
func (c *Controller) abort(buf *turnBuffer, cause error) error {
	buf.reset()
	c.setStatus(StatusError)
	c.logger.Warn("turn aborted", "error", cause)
	if cause == nil {
		cause = errors.New("stream reported failure")
	}
	if errors.Is(cause, ErrStreamIdle) {
		return fmt.Errorf("%w: %w", ErrTransport, cause)
	}
	return fmt.Errorf("%w: %v", ErrTransport, cause)
}

// sealDurably best-effort persists a sealed message. The in-memory
// log already holds the authoritative render order; durable store
// failures are logged and the turn continues.
func (c *Controller) sealDurably(ctx context.Context, msg *Message) {
	if c.persist == nil {
		return
	}
	if err := c.persist.Append(ctx, msg); err != nil {
		c.logger.Error("durable seal failed",
			"message_id", msg.ID, "error", err)
	}
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// turnBuffer is the mutable accumulation state for one in-flight
// assistant message. Owned exclusively by the controller until sealed.
type turnBuffer struct {
	parts []Part

	artifact      strings.Builder
	artifactKind  string
	artifactTitle string
	artifactDirty bool
}

// appendText extends the trailing text part, preserving receipt order.
func (b *turnBuffer) appendText(text string) {
	if n := len(b.parts); n > 0 && b.parts[n-1].Type == PartText {
		b.parts[n-1].Text += text
		return
	}
	b.parts = append(b.parts, Part{Type: PartText, Text: text})
}

func (b *turnBuffer) appendPart(p Part) {
	b.parts = append(b.parts, p)
}

func (b *turnBuffer) reset() {
	b.parts = nil
	b.artifact.Reset()
	b.artifactDirty = false
}
