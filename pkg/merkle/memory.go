package merkle

import (
	"context"
	"sync"
)

// MemoryStorer keeps nodes in process memory. It is used when no database
// path is configured and in tests.
type MemoryStorer struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
}

// Ensure MemoryStorer implements Storer.
var _ Storer = (*MemoryStorer)(nil)

// NewMemoryStorer creates an empty in-memory store.
func NewMemoryStorer() *MemoryStorer {
	return &MemoryStorer{
		nodes: make(map[string]*Node),
	}
}

func (m *MemoryStorer) Put(_ context.Context, node *Node) (bool, error) {
	if node == nil {
		return false, ErrNilNode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[node.Hash]; ok {
		return false, nil
	}

	m.nodes[node.Hash] = node
	m.order = append(m.order, node.Hash)
	return true, nil
}

func (m *MemoryStorer) Get(_ context.Context, hash string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	return node, nil
}

func (m *MemoryStorer) Has(_ context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.nodes[hash]
	return ok, nil
}

func (m *MemoryStorer) Children(_ context.Context, parentHash *string) ([]*Node, error) {
	return m.filter(func(n *Node) bool {
		if parentHash == nil {
			return n.ParentHash == nil
		}
		return n.ParentHash != nil && *n.ParentHash == *parentHash
	}), nil
}

func (m *MemoryStorer) List(_ context.Context) ([]*Node, error) {
	return m.filter(func(*Node) bool { return true }), nil
}

func (m *MemoryStorer) Roots(ctx context.Context) ([]*Node, error) {
	return m.Children(ctx, nil)
}

func (m *MemoryStorer) Leaves(_ context.Context) ([]*Node, error) {
	m.mu.RLock()
	parents := make(map[string]struct{}, len(m.nodes))
	for _, n := range m.nodes {
		if n.ParentHash != nil {
			parents[*n.ParentHash] = struct{}{}
		}
	}
	m.mu.RUnlock()

	return m.filter(func(n *Node) bool {
		_, hasChild := parents[n.Hash]
		return !hasChild
	}), nil
}

func (m *MemoryStorer) Ancestry(ctx context.Context, hash string) ([]*Node, error) {
	return ancestry(ctx, hash, m.Get)
}

func (m *MemoryStorer) Depth(ctx context.Context, hash string) (int, error) {
	path, err := m.Ancestry(ctx, hash)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

func (m *MemoryStorer) Close() error {
	return nil
}

func (m *MemoryStorer) filter(keep func(*Node) bool) []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Node, 0)
	for _, hash := range m.order {
		if n := m.nodes[hash]; keep(n) {
			out = append(out, n)
		}
	}
	return out
}
