package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// canvasInstruction tells the model how to address the side canvas.
// Content inside the fence becomes artifact deltas; everything else
// streams as chat text.
const canvasInstruction = `When the user asks for a document, code file or spreadsheet that should live on the side canvas, wrap that content in a fence of the exact form:
<strand:artifact kind="code" title="...">
...content...
</strand:artifact>
Valid kinds are text, code, sheet and image. Keep conversational prose outside the fence.`

// OpenAITransport streams generation output over the OpenAI-compatible
// chat completions API.
type OpenAITransport struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures the transport.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // Optional: override for compatible gateways
	Model   string // Default model when the request names none
}

// NewOpenAITransport creates a transport for the given credentials.
func NewOpenAITransport(cfg OpenAIConfig) (*OpenAITransport, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAITransport{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Open starts a streaming completion. The returned stream emits
// text deltas with canvas fences already converted to artifact deltas.
func (t *OpenAITransport) Open(ctx context.Context, req Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = t.model
	}

	history := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	history = append(history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: canvasInstruction,
	})
	for _, msg := range req.Messages {
		history = append(history, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
		})
	}

	cs, err := t.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: history,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}

	s := &openaiStream{
		inner:  cs,
		events: make(chan Event),
		closed: make(chan struct{}),
	}
	go s.pump()

	return NewMarkerStream(s), nil
}

// openaiStream adapts the SDK's Recv loop to the pull-based Stream
// contract. A single pump goroutine reads the connection; Next selects
// between its output and ctx expiry so a stalled stream cannot wedge
// the caller.
type openaiStream struct {
	inner  *openai.ChatCompletionStream
	events chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *openaiStream) pump() {
	// The SDK stream holds an open response body; close it as soon as
	// the read loop ends, whether by finish, error or cancellation.
	defer s.close()

	for {
		resp, err := s.inner.Recv()
		switch {
		case errors.Is(err, io.EOF):
			s.emit(Event{Type: EventFinish})
			return
		case err != nil:
			// Connection drops surface as an error event, never as
			// silent truncation.
			s.emit(Event{Type: EventError, Err: err})
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			if !s.emit(Event{Type: EventTextDelta, Text: delta}) {
				return
			}
		}
	}
}

// emit delivers an event unless the stream was cancelled.
func (s *openaiStream) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closed:
		return false
	}
}

func (s *openaiStream) Next(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return Event{}, io.EOF
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (s *openaiStream) Cancel() { s.close() }

func (s *openaiStream) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.inner.Close()
	})
}
