package transcriptscmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

var _ = Describe("Transcripts Command", func() {
	var (
		ctx    context.Context
		tmpDir string
		dbPath string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "chatline-transcripts-test-*")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(tmpDir, "transcripts.sqlite")
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := NewTranscriptsCmd()
		cmd.SetOut(out)
		cmd.SetArgs(append(args, "--db", dbPath))
		return cmd.ExecuteContext(ctx)
	}

	// seed records two conversations that share their opening turn.
	seed := func() (*merkle.Node, *merkle.Node) {
		storer, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer storer.Close()

		hello := merkle.NewNode(llm.UserTurn("Hello"), nil)
		hi := merkle.NewNode(llm.ModelTurn("Hi there, how can I help?"), hello)
		goQ := merkle.NewNode(llm.UserTurn("What is Go?"), hi)
		goA := merkle.NewNode(llm.ModelTurn("A programming language."), goQ)
		rustQ := merkle.NewNode(llm.UserTurn("What is Rust?"), hi)

		for _, n := range []*merkle.Node{hello, hi, goQ, goA, rustQ} {
			_, err := storer.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
		return goA, rustQ
	}

	Describe("list", func() {
		It("reports an empty database", func() {
			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No recorded conversations."))
		})

		It("lists one line per conversation", func() {
			goA, rustQ := seed()

			Expect(execute("list")).To(Succeed())

			output := out.String()
			Expect(output).To(ContainSubstring(goA.Hash[:12]))
			Expect(output).To(ContainSubstring(rustQ.Hash[:12]))
			Expect(output).To(ContainSubstring("4 turns"))
			Expect(output).To(ContainSubstring("3 turns"))
			Expect(output).To(ContainSubstring("Hello"))
		})
	})

	Describe("show", func() {
		It("prints the conversation in order", func() {
			goA, _ := seed()

			Expect(execute("show", goA.Hash)).To(Succeed())

			Expect(out.String()).To(Equal("You:\nHello\n\n" +
				"Gemini:\nHi there, how can I help?\n\n" +
				"You:\nWhat is Go?\n\n" +
				"Gemini:\nA programming language.\n"))
		})

		It("accepts a hash prefix", func() {
			_, rustQ := seed()

			Expect(execute("show", rustQ.Hash[:16])).To(Succeed())
			Expect(out.String()).To(HaveSuffix("You:\nWhat is Rust?\n"))
		})

		It("fails for an unknown hash", func() {
			seed()

			err := execute("show", "ffffffffffffffff")
			Expect(err).To(MatchError(merkle.ErrNotFound{Hash: "ffffffffffffffff"}))
		})
	})
})
