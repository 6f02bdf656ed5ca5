package merkle

import (
	"context"
	"errors"
)

// Storer defines the interface for persisting and traversing turn nodes.
// De-duplication happens via content-addressing: the same turn following the
// same history produces the same hash and is stored once.
type Storer interface {
	// Put stores a node and reports whether it was new. Storing a node whose
	// hash already exists is a no-op.
	Put(ctx context.Context, node *Node) (bool, error)

	// Get retrieves a node by its hash. Returns ErrNotFound if the node doesn't exist.
	Get(ctx context.Context, hash string) (*Node, error)

	// Has checks if a node exists by its hash.
	Has(ctx context.Context, hash string) (bool, error)

	// Children retrieves all nodes that have the given parent hash.
	// Pass nil to get root nodes.
	Children(ctx context.Context, parentHash *string) ([]*Node, error)

	// List returns all nodes in insertion order.
	List(ctx context.Context) ([]*Node, error)

	// Roots returns all root nodes (nodes with no parent).
	Roots(ctx context.Context) ([]*Node, error)

	// Leaves returns all leaf nodes (nodes with no children). Each leaf is
	// the head of one recorded conversation.
	Leaves(ctx context.Context) ([]*Node, error)

	// Ancestry returns the path from a node back to its root (node first, root last).
	Ancestry(ctx context.Context, hash string) ([]*Node, error)

	// Depth returns the depth of a node (0 for roots).
	Depth(ctx context.Context, hash string) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}

// ErrNilNode is returned by Put when given a nil node.
var ErrNilNode = errors.New("cannot store nil node")

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}

	return "node not found: " + e.Hash
}

// Chronological returns the ancestry of hash ordered oldest first.
func Chronological(ctx context.Context, s Storer, hash string) ([]*Node, error) {
	ancestry, err := s.Ancestry(ctx, hash)
	if err != nil {
		return nil, err
	}

	out := make([]*Node, len(ancestry))
	for i, n := range ancestry {
		out[len(ancestry)-1-i] = n
	}
	return out, nil
}

// ancestry walks parent links using get. It is shared by the storers.
func ancestry(ctx context.Context, hash string, get func(context.Context, string) (*Node, error)) ([]*Node, error) {
	var path []*Node
	current := hash

	for {
		node, err := get(ctx, current)
		if err != nil {
			return nil, err
		}
		path = append(path, node)

		if node.ParentHash == nil {
			return path, nil
		}
		current = *node.ParentHash
	}
}
