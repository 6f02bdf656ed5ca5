// Package conversation holds the turns of one chat session and replays them
// into a stateless chat API on every new user turn.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/logger"
)

var (
	// ErrEmptyInput is returned for blank submissions. Nothing is appended.
	ErrEmptyInput = errors.New("message is empty")

	// ErrSubmissionInFlight is returned when a submission arrives while the
	// previous one is still awaiting its reply.
	ErrSubmissionInFlight = errors.New("a message is already awaiting a reply")

	// ErrReservationUsed is returned when a reservation is submitted after it
	// was already submitted or released.
	ErrReservationUsed = errors.New("reservation already used")
)

// Conversation is the append-only turn history of a single session.
//
// Every successful submission appends a user turn followed by a model turn.
// A failed submission appends only the user turn, so the conversation stays
// usable for the next one.
type Conversation struct {
	chatter  Chatter
	recorder Recorder
	logger   *zap.Logger

	awaiting atomic.Bool

	mu    sync.RWMutex
	turns []llm.Turn
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithRecorder persists every appended turn through r.
func WithRecorder(r Recorder) Option {
	return func(c *Conversation) {
		c.recorder = r
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Conversation) {
		c.logger = l
	}
}

// withTurns seeds the conversation when resuming a recorded transcript.
func withTurns(turns []llm.Turn) Option {
	return func(c *Conversation) {
		c.turns = append([]llm.Turn(nil), turns...)
	}
}

// New creates an empty conversation backed by chatter.
func New(chatter Chatter, opts ...Option) *Conversation {
	c := &Conversation{
		chatter: chatter,
		logger:  zap.NewNop(),
		turns:   make([]llm.Turn, 0),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit sends text to the chat API along with all prior turns and returns
// the model's reply.
func (c *Conversation) Submit(ctx context.Context, text string) (string, error) {
	r, err := c.Reserve(text)
	if err != nil {
		return "", err
	}
	return r.Submit(ctx)
}

// SubmitStream behaves like Submit but hands the reply to onChunk piece by
// piece as it arrives. The model turn is appended once the stream completes.
// If the chat API cannot stream, the whole reply is delivered as one chunk.
func (c *Conversation) SubmitStream(ctx context.Context, text string, onChunk func(string)) (string, error) {
	r, err := c.Reserve(text)
	if err != nil {
		return "", err
	}
	return r.SubmitStream(ctx, onChunk)
}

// Reserve validates text and claims the conversation's single submission
// slot without sending anything yet. The slot is held until the reservation
// is submitted or released. Use it when the submission itself has to run
// later, for example inside a response stream, but a second submission must
// be refused right away.
func (c *Conversation) Reserve(text string) (*Reservation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	if !c.awaiting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}

	return &Reservation{conv: c, text: text}, nil
}

// Reservation is a claimed submission slot for one user turn.
type Reservation struct {
	conv *Conversation
	text string
	used atomic.Bool
}

// Submit sends the reserved text and releases the slot.
func (r *Reservation) Submit(ctx context.Context) (string, error) {
	chatter := r.conv.chatter
	return r.run(ctx, func(history []llm.Message) (string, error) {
		return chatter.Chat(ctx, history, r.text)
	})
}

// SubmitStream streams the reply to the reserved text and releases the slot.
func (r *Reservation) SubmitStream(ctx context.Context, onChunk func(string)) (string, error) {
	sc, ok := r.conv.chatter.(StreamChatter)
	if !ok {
		chatter := r.conv.chatter
		return r.run(ctx, func(history []llm.Message) (string, error) {
			reply, err := chatter.Chat(ctx, history, r.text)
			if err == nil {
				onChunk(reply)
			}
			return reply, err
		})
	}

	return r.run(ctx, func(history []llm.Message) (string, error) {
		return sc.ChatStream(ctx, history, r.text, onChunk)
	})
}

// Release gives the slot back without submitting. It is safe to call after
// Submit and more than once.
func (r *Reservation) Release() {
	if r.used.CompareAndSwap(false, true) {
		r.conv.awaiting.Store(false)
	}
}

func (r *Reservation) run(ctx context.Context, call func([]llm.Message) (string, error)) (string, error) {
	if r.used.Load() {
		return "", ErrReservationUsed
	}
	defer r.Release()

	c := r.conv
	history := c.appendTurn(ctx, llm.UserTurn(r.text))

	c.logger.Debug("submitting turn",
		zap.Int("history_len", len(history)),
		zap.String("content_preview", logger.Preview(r.text, 50)),
	)

	startTime := time.Now()
	reply, err := call(llm.Replay(history))
	if err != nil {
		err = classify(err)
		c.logger.Warn("chat API call failed",
			zap.Error(err),
			zap.String("kind", string(llm.KindOf(err))),
			zap.Duration("duration", time.Since(startTime)),
		)
		return "", err
	}

	c.appendTurn(ctx, llm.ModelTurn(reply))

	c.logger.Debug("received reply",
		zap.Int("turns", c.Len()),
		zap.String("content_preview", logger.Preview(reply, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return reply, nil
}

// appendTurn adds turn and returns the turns that preceded it.
func (c *Conversation) appendTurn(ctx context.Context, turn llm.Turn) []llm.Turn {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	prior := c.turns[:len(c.turns)-1:len(c.turns)-1]
	c.mu.Unlock()

	if c.recorder != nil {
		// A storage failure never fails the turn
		if err := c.recorder.Record(ctx, turn); err != nil {
			c.logger.Error("failed to record turn", zap.Error(err), zap.String("role", string(turn.Role)))
		}
	}

	return prior
}

// History returns a snapshot of all turns, oldest first.
func (c *Conversation) History() []llm.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]llm.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.turns)
}

// Awaiting reports whether a submission is waiting for its reply.
func (c *Conversation) Awaiting() bool {
	return c.awaiting.Load()
}

// classify makes sure every failure leaving the conversation is an *llm.APIError.
func classify(err error) error {
	if llm.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return llm.NewAPIError(llm.KindNetwork, err.Error(), err)
	}
	return llm.NewAPIError(llm.KindMalformedResponse, err.Error(), err)
}
