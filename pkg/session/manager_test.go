package session

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

// echo replies with the message it was sent.
var echo = conversation.ChatterFunc(func(_ context.Context, _ []llm.Message, message string) (string, error) {
	return "echo: " + message, nil
})

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		manager *Manager
		clock   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		manager = NewManager(echo, nil, 10*time.Minute, zap.NewNop())
		manager.now = func() time.Time { return clock }
	})

	It("creates sessions with unique ids and empty conversations", func() {
		a := manager.Create()
		b := manager.Create()

		Expect(a.ID).NotTo(Equal(b.ID))
		Expect(a.Conversation.History()).To(BeEmpty())
		Expect(a.Recorder).To(BeNil())
		Expect(manager.Len()).To(Equal(2))
	})

	It("keeps each session's conversation isolated", func() {
		a := manager.Create()
		b := manager.Create()

		_, err := a.Conversation.Submit(ctx, "only for a")
		Expect(err).NotTo(HaveOccurred())

		Expect(a.Conversation.History()).To(HaveLen(2))
		Expect(b.Conversation.History()).To(BeEmpty())

		got, err := manager.Get(a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Conversation).To(BeIdenticalTo(a.Conversation))
	})

	It("returns ErrNotFound for unknown and ended sessions", func() {
		_, err := manager.Get("missing")
		Expect(err).To(MatchError(ErrNotFound))

		s := manager.Create()
		Expect(manager.End(s.ID)).To(Succeed())
		_, err = manager.Get(s.ID)
		Expect(err).To(MatchError(ErrNotFound))
		Expect(manager.End(s.ID)).To(MatchError(ErrNotFound))
	})

	Describe("Sweep", func() {
		It("removes only sessions idle past the ttl", func() {
			idle := manager.Create()
			clock = clock.Add(8 * time.Minute)
			active := manager.Create()

			clock = clock.Add(5 * time.Minute)
			Expect(manager.Sweep(clock)).To(Equal(1))

			_, err := manager.Get(idle.ID)
			Expect(err).To(MatchError(ErrNotFound))
			_, err = manager.Get(active.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refreshes the idle timer on lookup", func() {
			s := manager.Create()
			clock = clock.Add(9 * time.Minute)
			_, err := manager.Get(s.ID)
			Expect(err).NotTo(HaveOccurred())

			clock = clock.Add(9 * time.Minute)
			Expect(manager.Sweep(clock)).To(Equal(0))
		})

		It("never expires sessions with a zero ttl", func() {
			manager = NewManager(echo, nil, 0, zap.NewNop())
			manager.Create()

			Expect(manager.Sweep(time.Now().Add(24 * time.Hour))).To(Equal(0))
			Expect(manager.Len()).To(Equal(1))
		})

		It("keeps a session that is awaiting a reply past the ttl", func() {
			release := make(chan struct{})
			blocked := conversation.ChatterFunc(func(context.Context, []llm.Message, string) (string, error) {
				<-release
				return "finally", nil
			})
			manager = NewManager(blocked, nil, 10*time.Minute, zap.NewNop())
			manager.now = func() time.Time { return clock }

			s := manager.Create()
			done := make(chan error, 1)
			go func() {
				_, err := s.Conversation.Submit(ctx, "slow question")
				done <- err
			}()
			Eventually(s.Conversation.Awaiting).Should(BeTrue())

			Expect(manager.Sweep(clock.Add(20 * time.Minute))).To(Equal(0))
			got, err := manager.Get(s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeIdenticalTo(s))

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(s.Conversation.History()).To(Equal([]llm.Turn{
				llm.UserTurn("slow question"),
				llm.ModelTurn("finally"),
			}))

			// Once the reply is in, the idle session expires normally
			Expect(manager.Sweep(clock.Add(20 * time.Minute))).To(Equal(1))
		})
	})

	It("records transcripts when a store is configured", func() {
		storer := merkle.NewMemoryStorer()
		manager = NewManager(echo, storer, 0, zap.NewNop())

		s := manager.Create()
		Expect(s.Recorder).NotTo(BeNil())

		_, err := s.Conversation.Submit(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())

		nodes, err := merkle.Chronological(ctx, storer, s.Recorder.Head())
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(2))
		Expect(nodes[1].Turn).To(Equal(llm.ModelTurn("echo: hello")))
	})
})
