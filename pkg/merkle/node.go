// Package merkle stores conversation turns as a content-addressed Merkle DAG.
// Each node holds one turn and links to the turn that preceded it, so a
// conversation is the ancestry of its newest node.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/chatline/pkg/llm"
)

// Node represents a single content-addressed turn in the DAG
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous turn's node hash.
	// This will be nil for the first turn of a conversation.
	ParentHash *string `json:"parent_hash"`

	// Turn is the hashed content of the node
	Turn llm.Turn `json:"turn"`
}

type input struct {
	Parent string   `json:"parent,omitempty"`
	Turn   llm.Turn `json:"turn"`
}

// NewNode creates a new node with the computed hash for the provided turn
func NewNode(turn llm.Turn, parent *Node) *Node {
	n := &Node{
		Turn: turn,
	}

	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}

	n.Hash = n.computeHash()
	return n
}

// IsRoot reports whether the node starts a conversation.
func (n *Node) IsRoot() bool {
	return n.ParentHash == nil
}

// Verify reports whether the node's hash matches its content. Nodes received
// from elsewhere are checked before they are stored.
func (n *Node) Verify() bool {
	return n != nil && n.Hash == n.computeHash()
}

func (n *Node) computeHash() string {
	i := &input{
		Turn: n.Turn,
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Struct field order makes this encoding canonical
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
