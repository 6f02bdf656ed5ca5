package pushcmder

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
	"github.com/papercomputeco/chatline/pkg/session"
	"github.com/papercomputeco/chatline/server"
)

var _ = Describe("Push Command", func() {
	var (
		ctx       context.Context
		tmpDir    string
		localPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "chatline-push-test-*")
		Expect(err).NotTo(HaveOccurred())
		localPath = filepath.Join(tmpDir, "local.sqlite")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	seed := func(nodes ...*merkle.Node) {
		local, err := merkle.NewSQLiteStorer(localPath)
		Expect(err).NotTo(HaveOccurred())
		defer local.Close()
		for _, n := range nodes {
			_, err := local.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	startServerWith := func(storer merkle.Storer) string {
		logger := zap.NewNop()

		unused := conversation.ChatterFunc(func(context.Context, []llm.Message, string) (string, error) {
			return "", nil
		})
		sessions := session.NewManager(unused, storer, 0, logger)
		srv := server.New(server.Config{}, sessions, storer, logger)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		srvCtx, cancel := context.WithCancel(ctx)
		go func() {
			_ = srv.RunWithListener(srvCtx, listener)
		}()
		DeferCleanup(cancel)

		return "http://" + listener.Addr().String()
	}

	startServer := func() (string, *merkle.MemoryStorer) {
		storer := merkle.NewMemoryStorer()
		return startServerWith(storer), storer
	}

	push := func(args ...string) string {
		out := &bytes.Buffer{}
		cmd := NewPushCmd()
		cmd.SetOut(out)
		cmd.SetArgs(append([]string{"--db", localPath}, args...))
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		return out.String()
	}

	It("pushes local turns to a remote server", func() {
		nodeA := merkle.NewNode(llm.UserTurn("hello from push test"), nil)
		nodeB := merkle.NewNode(llm.ModelTurn("hi back from push test"), nodeA)
		seed(nodeA, nodeB)

		addr, remote := startServer()
		output := push(addr)

		nodes, err := remote.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(2))
		Expect(output).To(ContainSubstring("Pushed 2 new turns (0 already existed, 0 errors)"))
	})

	It("deduplicates on double push", func() {
		seed(merkle.NewNode(llm.UserTurn("dedup push test"), nil))

		addr, remote := startServer()
		push(addr)
		output := push(addr)

		nodes, err := remote.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(output).To(ContainSubstring("Pushed 0 new turns (1 already existed, 0 errors)"))
	})

	It("pushes in batches", func() {
		root := merkle.NewNode(llm.UserTurn("one"), nil)
		second := merkle.NewNode(llm.ModelTurn("two"), root)
		third := merkle.NewNode(llm.UserTurn("three"), second)
		seed(root, second, third)

		addr, remote := startServer()
		push("--batch-size", "2", addr)

		nodes, err := remote.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(3))
	})

	It("reports turns the server rejects and fails", func() {
		good := merkle.NewNode(llm.UserTurn("fine"), nil)
		bad := merkle.NewNode(llm.UserTurn("original"), nil)
		bad.Turn.Content = "edited after hashing"
		seed(good, bad)

		addr, remote := startServer()
		out := &bytes.Buffer{}
		cmd := NewPushCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--db", localPath, "--batch-size", "1", addr})

		err := cmd.ExecuteContext(ctx)
		Expect(err).To(MatchError(ErrRejected))
		Expect(err.Error()).To(ContainSubstring("1 of 2"))

		Expect(out.String()).To(ContainSubstring("turns 0-0: 1 new, 0 already existed, 0 rejected"))
		Expect(out.String()).To(ContainSubstring("turns 1-1: 0 new, 0 already existed, 1 rejected"))
		Expect(out.String()).To(ContainSubstring("rejected " + bad.Hash))
		Expect(out.String()).To(ContainSubstring("Pushed 1 new turns (0 already existed, 1 errors)"))

		nodes, err := remote.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(nodes[0].Hash).To(Equal(good.Hash))
	})

	It("surfaces the server's error message", func() {
		seed(merkle.NewNode(llm.UserTurn("nowhere to go"), nil))
		addr := startServerWith(nil)

		cmd := NewPushCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db", localPath, addr})

		Expect(cmd.ExecuteContext(ctx)).To(MatchError(ContainSubstring("server returned 404: transcript store not configured")))
	})

	It("has nothing to do for an empty database", func() {
		seed()

		Expect(push("http://127.0.0.1:1")).To(ContainSubstring("No local turns to push."))
	})
})
