package merkle_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

// storerBehaviour runs the shared Storer contract against a backend.
func storerBehaviour(newStorer func() merkle.Storer) {
	var (
		storer merkle.Storer
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = newStorer()
	})

	AfterEach(func() {
		Expect(storer.Close()).To(Succeed())
	})

	put := func(nodes ...*merkle.Node) {
		for _, n := range nodes {
			_, err := storer.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	Describe("Put and Get", func() {
		It("stores and retrieves a node", func() {
			node := merkle.NewNode(llm.UserTurn("test content"), nil)

			isNew, err := storer.Put(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())

			retrieved, err := storer.Get(ctx, node.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.Hash).To(Equal(node.Hash))
			Expect(retrieved.Turn).To(Equal(node.Turn))
			Expect(retrieved.ParentHash).To(BeNil())
		})

		It("stores and retrieves a node with parent", func() {
			parent := merkle.NewNode(llm.UserTurn("parent"), nil)
			child := merkle.NewNode(llm.ModelTurn("child"), parent)
			put(parent, child)

			retrieved, err := storer.Get(ctx, child.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ParentHash).NotTo(BeNil())
			Expect(*retrieved.ParentHash).To(Equal(parent.Hash))
			Expect(retrieved.Turn.Role).To(Equal(llm.RoleModel))
		})

		It("returns ErrNotFound for non-existent hash", func() {
			_, err := storer.Get(ctx, "nonexistent")
			Expect(err).To(BeAssignableToTypeOf(merkle.ErrNotFound{}))
		})

		It("is idempotent for duplicate puts", func() {
			node := merkle.NewNode(llm.UserTurn("test"), nil)

			isNew, err := storer.Put(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())

			isNew, err = storer.Put(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeFalse())

			nodes, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
		})

		It("rejects nil nodes", func() {
			_, err := storer.Put(ctx, nil)
			Expect(err).To(MatchError(merkle.ErrNilNode))
		})
	})

	Describe("Has", func() {
		It("reports existing and missing nodes", func() {
			node := merkle.NewNode(llm.UserTurn("test"), nil)
			put(node)

			exists, err := storer.Has(ctx, node.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			exists, err = storer.Has(ctx, "nonexistent")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})

	Describe("Children, Roots and Leaves", func() {
		It("navigates a branching DAG", func() {
			root1 := merkle.NewNode(llm.UserTurn("What is 2+2?"), nil)
			root2 := merkle.NewNode(llm.UserTurn("What is Go?"), nil)
			branch1 := merkle.NewNode(llm.ModelTurn("4."), root1)
			branch2 := merkle.NewNode(llm.ModelTurn("Four!"), root1)
			put(root1, root2, branch1, branch2)

			children, err := storer.Children(ctx, &root1.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(children).To(HaveLen(2))

			roots, err := storer.Roots(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(roots).To(HaveLen(2))

			leaves, err := storer.Leaves(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(leaves).To(HaveLen(3))
		})

		It("returns empty slices for an empty store", func() {
			nodes, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(BeEmpty())

			leaves, err := storer.Leaves(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(leaves).To(BeEmpty())
		})
	})

	Describe("Ancestry and Depth", func() {
		var root, child, grandchild *merkle.Node

		BeforeEach(func() {
			root = merkle.NewNode(llm.UserTurn("Hello"), nil)
			child = merkle.NewNode(llm.ModelTurn("Hi there!"), root)
			grandchild = merkle.NewNode(llm.UserTurn("How are you?"), child)
			put(root, child, grandchild)
		})

		It("returns path from node to root", func() {
			ancestry, err := storer.Ancestry(ctx, grandchild.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(ancestry).To(HaveLen(3))
			Expect(ancestry[0].Turn.Content).To(Equal("How are you?"))
			Expect(ancestry[2].Turn.Content).To(Equal("Hello"))
		})

		It("returns the conversation oldest first", func() {
			history, err := merkle.Chronological(ctx, storer, grandchild.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(3))
			Expect(history[0].Turn).To(Equal(llm.UserTurn("Hello")))
			Expect(history[1].Turn).To(Equal(llm.ModelTurn("Hi there!")))
			Expect(history[2].Turn).To(Equal(llm.UserTurn("How are you?")))
		})

		It("computes depth", func() {
			depth, err := storer.Depth(ctx, root.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(depth).To(Equal(0))

			depth, err = storer.Depth(ctx, grandchild.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(depth).To(Equal(2))
		})

		It("fails for unknown heads", func() {
			_, err := storer.Ancestry(ctx, "nonexistent")
			Expect(err).To(BeAssignableToTypeOf(merkle.ErrNotFound{}))
		})
	})
}

var _ = Describe("MemoryStorer", func() {
	storerBehaviour(func() merkle.Storer {
		return merkle.NewMemoryStorer()
	})
})

var _ = Describe("SQLiteStorer", func() {
	storerBehaviour(func() merkle.Storer {
		s, err := merkle.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})

	It("creates and reopens a file database", func() {
		ctx := context.Background()
		dbPath := filepath.Join(GinkgoT().TempDir(), "transcripts.db")

		s, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		node := merkle.NewNode(llm.UserTurn("persisted"), nil)
		_, err = s.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())

		reopened, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		retrieved, err := reopened.Get(ctx, node.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(retrieved.Turn.Content).To(Equal("persisted"))
	})
})
