package chat

import (
	"context"

	"github.com/google/uuid"
)

// EventType discriminates stream events.
type EventType int

const (
	EventTextDelta EventType = iota
	EventArtifactDelta
	EventToolCall
	EventToolResult
	EventFinish
	EventError
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventTextDelta:
		return "text-delta"
	case EventArtifactDelta:
		return "artifact-delta"
	case EventToolCall:
		return "tool-call"
	case EventToolResult:
		return "tool-result"
	case EventFinish:
		return "finish"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ArtifactDelta is one incremental canvas update. Kind and Title are
// set on the first delta of an artifact; later deltas carry content
// only.
type ArtifactDelta struct {
	Kind    string
	Title   string
	Content string
}

// Event is one unit of streamed output from the generation service.
// The payload field matching Type is set; the rest are zero.
type Event struct {
	Type     EventType
	Text     string
	Artifact *ArtifactDelta
	Call     *ToolCall
	Result   *ToolResult
	Err      error
}

// Request describes one streaming generation call.
type Request struct {
	ChatID      uuid.UUID
	WorkspaceID string
	Model       string
	Messages    []*Message
}

// Stream is a handle on one open generation stream. Events are
// delivered in send order; a dropped connection surfaces as an
// EventError (or a non-nil error from Next), never as silent
// truncation.
type Stream interface {
	// Next blocks until the next event or ctx expiry. After a finish
	// or error event the stream is exhausted.
	Next(ctx context.Context) (Event, error)

	// Cancel requests transport teardown. Safe to call concurrently
	// with Next and more than once.
	Cancel()
}

// Transport opens event streams against the generation service.
type Transport interface {
	Open(ctx context.Context, req Request) (Stream, error)
}
