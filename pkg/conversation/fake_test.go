package conversation_test

import (
	"context"
	"strings"
	"sync"

	"github.com/papercomputeco/chatline/pkg/llm"
)

type call struct {
	History []llm.Message
	Message string
}

// fakeChatter answers from a queue of replies and remembers every call.
type fakeChatter struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []call

	// block, when set, holds Chat until it is closed
	block chan struct{}
}

func (f *fakeChatter) Chat(ctx context.Context, history []llm.Message, message string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{History: history, Message: message})
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeChatter) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// fakeStreamChatter splits each reply on spaces and streams the words.
type fakeStreamChatter struct {
	fakeChatter
	failAfter int
}

func (f *fakeStreamChatter) ChatStream(ctx context.Context, history []llm.Message, message string, onChunk func(string)) (string, error) {
	reply, err := f.Chat(ctx, history, message)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, word := range strings.SplitAfter(reply, " ") {
		if f.failAfter > 0 && i == f.failAfter {
			return "", llm.NewAPIError(llm.KindNetwork, "stream interrupted", nil)
		}
		onChunk(word)
		sb.WriteString(word)
	}
	return sb.String(), nil
}
