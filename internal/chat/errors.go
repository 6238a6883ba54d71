package chat

import "errors"

// Sentinel errors for chat operations. Check with errors.Is().
var (
	// ErrChatNotFound indicates the requested chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrTurnInFlight indicates a submission arrived while a turn was
	// already in the submitted or streaming state.
	ErrTurnInFlight = errors.New("turn already in flight")

	// ErrEmptyInput indicates the submitted message had no content.
	ErrEmptyInput = errors.New("empty input")

	// ErrTransport indicates the event stream failed to open or broke
	// mid-turn. The turn is aborted and the partial buffer discarded.
	ErrTransport = errors.New("stream transport failure")

	// ErrStreamIdle indicates no event arrived within the idle timeout.
	// Surfaced as a transport failure per the error taxonomy.
	ErrStreamIdle = errors.New("stream idle timeout")
)
