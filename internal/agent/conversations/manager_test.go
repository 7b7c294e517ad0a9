package conversations_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/agent/conversations"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/repo"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// gate blocks its first caller until released; later callers pass once released.
type gate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait() {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

// gatedTranscripts holds LoadHistory or ClearHistory at a gate.
type gatedTranscripts struct {
	*repo.MemoryTranscriptRepository
	load  *gate
	clear *gate
}

// LoadHistory reads first and then waits, so a released caller returns what
// was stored when it entered.
func (g *gatedTranscripts) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	history, err := g.MemoryTranscriptRepository.LoadHistory(ctx, conversationID)
	if g.load != nil {
		g.load.wait()
	}
	return history, err
}

func (g *gatedTranscripts) ClearHistory(ctx context.Context, conversationID string) error {
	if g.clear != nil {
		g.clear.wait()
	}
	return g.MemoryTranscriptRepository.ClearHistory(ctx, conversationID)
}

var _ = Describe("Manager", func() {
	var (
		ctx         context.Context
		transcripts *repo.MemoryTranscriptRepository
		clock       *testClock
		mgr         *conversations.Manager
		seq         int
	)

	newManager := func(limit int) *conversations.Manager {
		cfg := model.ConversationConfig{TTL: 30 * time.Minute, HistoryLimit: limit}
		m := conversations.NewManager(conversations.Config{
			Messages:     conversations.NewMessagesManager(transcripts, cfg),
			Conversation: cfg,
			Options:      []conversation.Option{conversation.WithDelayer(conversation.NoDelay{})},
			Clock:        clock.Now,
			NewID: func() string {
				seq++
				return fmt.Sprintf("conv-%d", seq)
			},
		})
		DeferCleanup(m.Shutdown)
		return m
	}

	exchange := func(c *conversation.Conversation, text string) {
		Expect(c.SubmitUtterance(text)).To(Succeed())
		Eventually(func() bool { return c.Snapshot().AwaitingReply }).Should(BeFalse())
	}

	BeforeEach(func() {
		ctx = context.Background()
		transcripts = repo.NewMemoryTranscriptRepository()
		clock = &testClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
		seq = 0
		mgr = newManager(0)
	})

	It("creates conversations with the greeting persisted", func() {
		c, err := mgr.Create(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ID()).To(Equal("conv-1"))
		Expect(mgr.Len()).To(Equal(1))

		n, err := transcripts.GetMessageCount(ctx, "conv-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("uses uuids by default", func() {
		m := conversations.NewManager(conversations.Config{})
		DeferCleanup(m.Shutdown)
		c, err := m.Create(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ID()).To(MatchRegexp(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`))
	})

	It("returns the live conversation on Get", func() {
		c, _ := mgr.Create(ctx)
		got, err := mgr.Get(ctx, c.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(c))
	})

	It("reports unknown conversations", func() {
		_, err := mgr.Get(ctx, "missing")
		Expect(err).To(MatchError(errx.ErrSessionNotFound))
		Expect(mgr.Close(ctx, "missing")).To(MatchError(errx.ErrSessionNotFound))
	})

	It("restores a transcript after a restart", func() {
		c, _ := mgr.Create(ctx)
		exchange(c, "Quel est le prix ?")
		before := c.Snapshot()
		mgr.Shutdown()

		restarted := newManager(0)
		got, err := restarted.Get(ctx, c.ID())
		Expect(err).NotTo(HaveOccurred())

		after := got.Snapshot()
		Expect(after.Transcript).To(Equal(before.Transcript))
		Expect(after.AwaitingReply).To(BeFalse())

		exchange(got, "merci")
		Expect(got.Snapshot().Transcript[len(after.Transcript)].ID).To(Equal(int64(4)))
	})

	It("keeps the greeting when restoring beyond the history limit", func() {
		c, _ := mgr.Create(ctx)
		for _, q := range []string{"prix", "site", "seo"} {
			exchange(c, q)
		}
		mgr.Shutdown()

		limited := newManager(3)
		got, err := limited.Get(ctx, c.ID())
		Expect(err).NotTo(HaveOccurred())

		ids := []int64{}
		for _, m := range got.Snapshot().Transcript {
			ids = append(ids, m.ID)
		}
		Expect(ids).To(Equal([]int64{1, 6, 7}))
	})

	It("closes and forgets a conversation", func() {
		c, _ := mgr.Create(ctx)
		Expect(mgr.Close(ctx, c.ID())).To(Succeed())
		Expect(mgr.Len()).To(Equal(0))
		Expect(c.SubmitUtterance("prix")).To(MatchError(errx.ErrClosed))

		_, err := mgr.Get(ctx, c.ID())
		Expect(err).To(MatchError(errx.ErrSessionNotFound))
	})

	Describe("closing while the conversation is requested", func() {
		var gated *gatedTranscripts

		managerOver := func(store model.TranscriptRepository) *conversations.Manager {
			cfg := model.ConversationConfig{TTL: 30 * time.Minute}
			m := conversations.NewManager(conversations.Config{
				Messages:     conversations.NewMessagesManager(store, cfg),
				Conversation: cfg,
				Options:      []conversation.Option{conversation.WithDelayer(conversation.NoDelay{})},
				Clock:        clock.Now,
			})
			DeferCleanup(m.Shutdown)
			return m
		}

		BeforeEach(func() {
			gated = &gatedTranscripts{MemoryTranscriptRepository: transcripts}
		})

		It("does not restore a conversation whose transcript is being forgotten", func() {
			gated.clear = newGate()
			m := managerOver(gated)
			c, err := m.Create(ctx)
			Expect(err).NotTo(HaveOccurred())
			exchange(c, "prix")

			done := make(chan error, 1)
			go func() { done <- m.Close(ctx, c.ID()) }()
			Eventually(gated.clear.entered).Should(BeClosed())

			_, err = m.Get(ctx, c.ID())
			Expect(err).To(MatchError(errx.ErrSessionNotFound))

			close(gated.clear.release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(m.Len()).To(Equal(0))
			n, err := transcripts.GetMessageCount(ctx, c.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("does not restore a conversation being swept", func() {
			gated.clear = newGate()
			m := managerOver(gated)
			c, err := m.Create(ctx)
			Expect(err).NotTo(HaveOccurred())
			clock.Advance(31 * time.Minute)

			swept := make(chan int, 1)
			go func() { swept <- m.Sweep(clock.Now()) }()
			Eventually(gated.clear.entered).Should(BeClosed())

			_, err = m.Get(ctx, c.ID())
			Expect(err).To(MatchError(errx.ErrSessionNotFound))

			close(gated.clear.release)
			Eventually(swept).Should(Receive(Equal(1)))
			Expect(m.Len()).To(Equal(0))
		})

		It("retries a restore that raced a close", func() {
			first := managerOver(transcripts)
			c, err := first.Create(ctx)
			Expect(err).NotTo(HaveOccurred())
			exchange(c, "site")
			id := c.ID()

			gated.load = newGate()
			restarted := managerOver(gated)

			type result struct {
				conv *conversation.Conversation
				err  error
			}
			got := make(chan result, 1)
			go func() {
				conv, err := restarted.Get(ctx, id)
				got <- result{conv, err}
			}()
			Eventually(gated.load.entered).Should(BeClosed())

			Expect(restarted.Close(ctx, id)).To(Succeed())
			close(gated.load.release)

			var r result
			Eventually(got).Should(Receive(&r))
			Expect(r.err).To(MatchError(errx.ErrSessionNotFound))
			Expect(r.conv).To(BeNil())
			Expect(restarted.Len()).To(Equal(0))
		})
	})

	It("sweeps idle conversations only", func() {
		idle, _ := mgr.Create(ctx)
		clock.Advance(20 * time.Minute)
		active, _ := mgr.Create(ctx)
		clock.Advance(11 * time.Minute)

		Expect(mgr.Sweep(clock.Now())).To(Equal(1))
		Expect(mgr.Len()).To(Equal(1))

		_, err := mgr.Get(ctx, idle.ID())
		Expect(err).To(MatchError(errx.ErrSessionNotFound))
		got, err := mgr.Get(ctx, active.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(active))
	})

	It("publishes conversation events to subscribers", func() {
		c, _ := mgr.Create(ctx)
		events, unsubscribe := mgr.Hub().Subscribe(c.ID(), 8)
		defer unsubscribe()

		Expect(c.SubmitUtterance("prix")).To(Succeed())

		var ev conversation.Event
		Eventually(events).Should(Receive(&ev))
		Expect(ev.Type).To(Equal(conversation.EventMessageAppended))
		Expect(ev.Message.Text).To(Equal("prix"))
		Eventually(events).Should(Receive(&ev))
		Expect(ev.Type).To(Equal(conversation.EventStateChanged))
		Expect(ev.State.AwaitingReply).To(BeTrue())
		Eventually(events).Should(Receive(&ev))
		Expect(ev.Message.Sender).To(Equal(model.SenderAgent))
	})

	It("stops the janitor with its context", func() {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- mgr.Run(runCtx) }()
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})
})

var _ = Describe("Hub", func() {
	It("drops events for slow subscribers instead of blocking", func() {
		hub := conversations.NewHub()
		ch, unsubscribe := hub.Subscribe("c", 1)

		hub.Publish(conversation.Event{ConversationID: "c", Type: conversation.EventStateChanged})
		hub.Publish(conversation.Event{ConversationID: "c", Type: conversation.EventMessageAppended})
		hub.Publish(conversation.Event{ConversationID: "other"})

		Expect(ch).To(HaveLen(1))
		Expect(hub.Subscribers("c")).To(Equal(1))

		unsubscribe()
		unsubscribe()
		Expect(hub.Subscribers("c")).To(Equal(0))
		Eventually(ch).Should(Receive())
		Eventually(ch).Should(BeClosed())
	})
})
