package conversation

import (
	"context"

	"github.com/papercomputeco/chatline/pkg/llm"
)

// Chatter is the stateless chat API. It receives the full prior history on
// every call and returns the next model turn. Failures are *llm.APIError.
type Chatter interface {
	Chat(ctx context.Context, history []llm.Message, message string) (string, error)
}

// StreamChatter is a Chatter that can also deliver the reply incrementally.
// It returns the complete reply once the stream ends.
type StreamChatter interface {
	Chatter
	ChatStream(ctx context.Context, history []llm.Message, message string, onChunk func(string)) (string, error)
}

// ChatterFunc adapts a function to the Chatter interface.
type ChatterFunc func(ctx context.Context, history []llm.Message, message string) (string, error)

func (f ChatterFunc) Chat(ctx context.Context, history []llm.Message, message string) (string, error) {
	return f(ctx, history, message)
}
