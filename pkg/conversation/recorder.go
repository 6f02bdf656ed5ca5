package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

// Recorder persists turns as they are appended to a conversation.
type Recorder interface {
	Record(ctx context.Context, turn llm.Turn) error
}

// DefaultPendingLimit is how many unstored nodes a DAGRecorder keeps for
// retry before it starts dropping the oldest.
const DefaultPendingLimit = 256

// DAGRecorder records a conversation as a chain of Merkle DAG nodes, each
// turn pointing at the one before it.
type DAGRecorder struct {
	storer merkle.Storer
	limit  int

	mu      sync.Mutex
	head    *merkle.Node
	pending []*merkle.Node
}

// RecorderOption configures a DAGRecorder.
type RecorderOption func(*DAGRecorder)

// WithPendingLimit caps the nodes kept for retry while the store is failing.
// Values below one are ignored.
func WithPendingLimit(n int) RecorderOption {
	return func(r *DAGRecorder) {
		if n > 0 {
			r.limit = n
		}
	}
}

// NewDAGRecorder starts a new chain in storer.
func NewDAGRecorder(storer merkle.Storer, opts ...RecorderOption) *DAGRecorder {
	r := &DAGRecorder{storer: storer, limit: DefaultPendingLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record chains turn onto the current head. Nodes that could not be stored
// are kept and written ahead of the next turn, so a short outage leaves no
// gaps. Past the pending limit the oldest unstored nodes are dropped.
func (r *DAGRecorder) Record(ctx context.Context, turn llm.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := merkle.NewNode(turn, r.head)
	r.head = node
	r.pending = append(r.pending, node)

	for len(r.pending) > 0 {
		if _, err := r.storer.Put(ctx, r.pending[0]); err != nil {
			if dropped := r.trimPending(); dropped > 0 {
				return fmt.Errorf("storing turn node: %w (dropped %d unstored nodes)", err, dropped)
			}
			return fmt.Errorf("storing turn node: %w", err)
		}
		r.pending[0] = nil
		r.pending = r.pending[1:]
	}
	r.pending = nil
	return nil
}

// trimPending drops the oldest pending nodes beyond the limit and returns
// how many were dropped.
func (r *DAGRecorder) trimPending() int {
	over := len(r.pending) - r.limit
	if over <= 0 {
		return 0
	}
	r.pending = append([]*merkle.Node(nil), r.pending[over:]...)
	return over
}

// Pending returns how many recorded nodes are still waiting to be stored.
func (r *DAGRecorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Head returns the hash of the newest recorded turn, or "" before the first one.
func (r *DAGRecorder) Head() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.head == nil {
		return ""
	}
	return r.head.Hash
}

// Resume rebuilds the conversation whose newest turn is head. New turns are
// recorded onto the same chain.
func Resume(ctx context.Context, storer merkle.Storer, head string, chatter Chatter, opts ...Option) (*Conversation, *DAGRecorder, error) {
	nodes, err := merkle.Chronological(ctx, storer, head)
	if err != nil {
		return nil, nil, fmt.Errorf("loading transcript %s: %w", head, err)
	}

	turns := make([]llm.Turn, 0, len(nodes))
	for _, n := range nodes {
		if !n.Turn.Role.Valid() {
			return nil, nil, fmt.Errorf("transcript node %s has unknown role %q", n.Hash, n.Turn.Role)
		}
		turns = append(turns, n.Turn)
	}

	recorder := NewDAGRecorder(storer)
	recorder.head = nodes[len(nodes)-1]
	opts = append(opts, withTurns(turns), WithRecorder(recorder))
	return New(chatter, opts...), recorder, nil
}
