package chat

import (
	"context"
	"strings"
)

// Artifact fence delimiters recognized in the text stream.
const (
	markerOpen  = "<strand:artifact"
	markerClose = "</strand:artifact>"
)

// MarkerStream decorates a Stream, converting fenced canvas content in
// text deltas into artifact deltas. Fences may be split across any
// number of deltas; partial delimiters are held back until they either
// complete or turn out to be plain text.
type MarkerStream struct {
	inner Stream

	queue  []Event
	held   string
	inside bool
	opened bool // first artifact delta of the current fence not yet emitted
	kind   string
	title  string
}

// NewMarkerStream wraps inner with artifact fence detection.
func NewMarkerStream(inner Stream) *MarkerStream {
	return &MarkerStream{inner: inner}
}

func (m *MarkerStream) Next(ctx context.Context) (Event, error) {
	for {
		if len(m.queue) > 0 {
			ev := m.queue[0]
			m.queue = m.queue[1:]
			return ev, nil
		}

		ev, err := m.inner.Next(ctx)
		if err != nil {
			return Event{}, err
		}

		switch ev.Type {
		case EventTextDelta:
			m.scan(ev.Text)
		case EventFinish:
			m.flush()
			m.queue = append(m.queue, ev)
		default:
			// Artifact deltas from a native transport, tool events and
			// errors pass through untouched. Held text is dropped on
			// error: a truncated fence is not trusted.
			m.queue = append(m.queue, ev)
		}
	}
}

func (m *MarkerStream) Cancel() {
	m.inner.Cancel()
}

// scan consumes one text delta, emitting completed segments into the
// queue and holding back anything that may still become a delimiter.
func (m *MarkerStream) scan(text string) {
	m.held += text

	for {
		if !m.inside {
			idx := strings.Index(m.held, markerOpen)
			if idx < 0 {
				keep := partialSuffix(m.held, markerOpen)
				m.emitText(m.held[:len(m.held)-keep])
				m.held = m.held[len(m.held)-keep:]
				return
			}

			gt := strings.Index(m.held[idx:], ">")
			if gt < 0 {
				// Opening tag not complete yet.
				m.emitText(m.held[:idx])
				m.held = m.held[idx:]
				return
			}

			m.emitText(m.held[:idx])
			attrs := m.held[idx+len(markerOpen) : idx+gt]
			m.kind = tagAttr(attrs, "kind")
			m.title = tagAttr(attrs, "title")
			m.inside = true
			m.opened = true
			m.held = strings.TrimPrefix(m.held[idx+gt+1:], "\n")
			continue
		}

		idx := strings.Index(m.held, markerClose)
		if idx < 0 {
			keep := partialSuffix(m.held, markerClose)
			m.emitArtifact(m.held[:len(m.held)-keep])
			m.held = m.held[len(m.held)-keep:]
			return
		}

		m.emitArtifact(strings.TrimSuffix(m.held[:idx], "\n"))
		m.inside = false
		m.held = m.held[idx+len(markerClose):]
	}
}

// flush releases held content at end of stream. A fence left open is
// flushed as artifact content as-is.
func (m *MarkerStream) flush() {
	if m.inside {
		m.emitArtifact(m.held)
	} else {
		m.emitText(m.held)
	}
	m.held = ""
}

func (m *MarkerStream) emitText(s string) {
	if s == "" {
		return
	}
	m.queue = append(m.queue, Event{Type: EventTextDelta, Text: s})
}

func (m *MarkerStream) emitArtifact(s string) {
	if s == "" && !m.opened {
		return
	}
	delta := &ArtifactDelta{Content: s}
	if m.opened {
		delta.Kind = m.kind
		delta.Title = m.title
		m.opened = false
	}
	m.queue = append(m.queue, Event{Type: EventArtifactDelta, Artifact: delta})
}

// partialSuffix returns the length of the longest suffix of s that is
// a proper prefix of delim.
func partialSuffix(s, delim string) int {
	max := len(delim) - 1
	if len(s) < max {
		max = len(s)
	}
	for l := max; l > 0; l-- {
		if strings.HasSuffix(s, delim[:l]) {
			return l
		}
	}
	return 0
}

// tagAttr extracts a double-quoted attribute value from the text
// between the tag name and the closing bracket.
func tagAttr(attrs, name string) string {
	idx := strings.Index(attrs, name+`="`)
	if idx < 0 {
		return ""
	}
	rest := attrs[idx+len(name)+2:]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
