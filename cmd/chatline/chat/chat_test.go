package chatcmder

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

// setenv sets an environment variable until the current test ends.
func setenv(key, value string) {
	old, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

var _ = Describe("Chat Command", func() {
	var (
		ctx    context.Context
		tmpDir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "chatline-chat-test-*")
		Expect(err).NotTo(HaveOccurred())
		setenv("HOME", tmpDir)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	echo := conversation.ChatterFunc(func(_ context.Context, _ []llm.Message, message string) (string, error) {
		return "echo: " + message, nil
	})

	Describe("startup checks", func() {
		It("refuses to start without an API key", func() {
			setenv(config.APIKeyEnv, "")
			setenv(config.FallbackAPIKeyEnv, "")

			cmd := NewChatCmd()
			cmd.SetArgs([]string{})
			err := cmd.ExecuteContext(ctx)

			Expect(err).To(MatchError(llm.ErrMissingCredential))
			Expect(err.Error()).To(ContainSubstring(config.APIKeyEnv))
		})

		It("refuses --resume without a transcript database", func() {
			setenv(config.APIKeyEnv, "test-key")

			cmd := NewChatCmd()
			cmd.SetArgs([]string{"--resume", "abc123"})
			err := cmd.ExecuteContext(ctx)

			Expect(err).To(MatchError(ContainSubstring("--resume needs a transcript database")))
		})

		It("reports a broken config file", func() {
			setenv(config.APIKeyEnv, "test-key")
			path := filepath.Join(tmpDir, "bad.toml")
			Expect(os.WriteFile(path, []byte("[gemini]\nnot_a_key = 1\n"), 0o644)).To(Succeed())

			cmd := NewChatCmd()
			cmd.SetArgs([]string{"--config", path})
			err := cmd.ExecuteContext(ctx)

			Expect(err).To(MatchError(ContainSubstring("unknown keys")))
		})
	})

	Describe("conversation", func() {
		It("keeps an unrecorded conversation without a database", func() {
			cmder := &chatCommander{}
			conv, closeStore, err := cmder.conversation(ctx, echo, "", zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			defer closeStore()

			Expect(conv.Len()).To(Equal(0))
		})

		It("records turns to the database", func() {
			dbPath := filepath.Join(tmpDir, "chat.sqlite")
			cmder := &chatCommander{}

			conv, closeStore, err := cmder.conversation(ctx, echo, dbPath, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			_, err = conv.Submit(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(closeStore()).To(Succeed())

			storer, err := merkle.NewSQLiteStorer(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer storer.Close()

			nodes, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(2))
		})

		It("resumes a recorded conversation", func() {
			dbPath := filepath.Join(tmpDir, "chat.sqlite")
			storer, err := merkle.NewSQLiteStorer(dbPath)
			Expect(err).NotTo(HaveOccurred())
			root := merkle.NewNode(llm.UserTurn("Hello"), nil)
			reply := merkle.NewNode(llm.ModelTurn("Hi there!"), root)
			_, err = storer.Put(ctx, root)
			Expect(err).NotTo(HaveOccurred())
			_, err = storer.Put(ctx, reply)
			Expect(err).NotTo(HaveOccurred())
			Expect(storer.Close()).To(Succeed())

			cmder := &chatCommander{resume: reply.Hash}
			conv, closeStore, err := cmder.conversation(ctx, echo, dbPath, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			defer closeStore()

			Expect(conv.History()).To(Equal([]llm.Turn{
				llm.UserTurn("Hello"),
				llm.ModelTurn("Hi there!"),
			}))
		})

		It("fails to resume an unknown transcript", func() {
			dbPath := filepath.Join(tmpDir, "chat.sqlite")
			cmder := &chatCommander{resume: "missing"}

			_, _, err := cmder.conversation(ctx, echo, dbPath, zap.NewNop())
			Expect(err).To(HaveOccurred())
		})
	})
})
