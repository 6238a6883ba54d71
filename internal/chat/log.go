package chat

import (
	"context"
	"sync"
)

// MessageLog is the append-only, in-order message list for one chat
// session. It is the source of truth for render order: messages enter
// in the order their turns completed and are immutable afterwards.
//
// The log is owned by exactly one Controller for the session's
// lifetime; the mutex only guards readers on other goroutines (SSE
// handlers snapshotting history).
type MessageLog struct {
	mu   sync.RWMutex
	msgs []*Message
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append seals a message into the log, assigning its sequence number.
func (l *MessageLog) Append(_ context.Context, msg *Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg.SequenceNumber = len(l.msgs)
	l.msgs = append(l.msgs, msg)
	return nil
}

// Messages returns a snapshot of the log in append order.
func (l *MessageLog) Messages() []*Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of sealed messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
