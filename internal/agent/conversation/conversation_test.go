package conversation_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/agent/graph"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
)

var validLead = model.LeadRecord{
	Name:    "Hugo",
	Email:   "hugo@example.fr",
	Message: "Je voudrais refaire mon site.",
}

var _ = Describe("Conversation", func() {
	var (
		script  *rules.Script
		delayer *conversation.ManualDelayer
		conv    *conversation.Conversation
	)

	newConversation := func(opts ...conversation.Option) *conversation.Conversation {
		base := []conversation.Option{
			conversation.WithScript(script),
			conversation.WithDelayer(delayer),
			conversation.WithSubmitter(conversation.DiscardSubmitter{}),
			conversation.WithClock(fixedClock()),
		}
		c := conversation.New("conv-1", script, append(base, opts...)...)
		DeferCleanup(c.Close)
		return c
	}

	awaiting := func() bool { return conv.Snapshot().AwaitingReply }
	transcriptLen := func() int { return len(conv.Snapshot().Transcript) }

	BeforeEach(func() {
		script = rules.Default()
		delayer = conversation.NewManualDelayer()
	})

	Describe("initial state", func() {
		BeforeEach(func() {
			conv = newConversation()
		})

		It("starts with exactly one greeting from the agent", func() {
			snap := conv.Snapshot()
			Expect(snap.ConversationID).To(Equal("conv-1"))
			Expect(snap.Transcript).To(HaveLen(1))

			greeting := snap.Transcript[0]
			Expect(greeting.ID).To(Equal(int64(1)))
			Expect(greeting.Sender).To(Equal(model.SenderAgent))
			Expect(greeting.Text).To(Equal("Bonjour ! Comment puis-je vous aider aujourd'hui ?"))
			Expect(greeting.SuggestedActions).To(HaveLen(3))
			Expect(snap.AwaitingReply).To(BeFalse())
			Expect(snap.FormVisible).To(BeFalse())
			Expect(snap.Submitting).To(BeFalse())
		})
	})

	Describe("SubmitUtterance", func() {
		BeforeEach(func() {
			conv = newConversation()
		})

		It("appends the user message at once and the reply after the delay", func() {
			Expect(conv.SubmitUtterance("Quel est le prix ?")).To(Succeed())

			Expect(awaiting()).To(BeTrue())
			Expect(transcriptLen()).To(Equal(2))
			user := conv.Snapshot().Transcript[1]
			Expect(user.Sender).To(Equal(model.SenderUser))
			Expect(user.Text).To(Equal("Quel est le prix ?"))
			Expect(user.ID).To(Equal(int64(2)))

			Consistently(transcriptLen, 50*time.Millisecond).Should(Equal(2))

			delayer.Release()
			Eventually(awaiting).Should(BeFalse())
			Expect(transcriptLen()).To(Equal(3))

			reply := conv.Snapshot().Transcript[2]
			Expect(reply.Sender).To(Equal(model.SenderAgent))
			Expect(reply.ID).To(Equal(int64(3)))
			Expect(reply.Text).To(Equal(script.Classify("Quel est le prix ?").Text))
			Expect(reply.SuggestedActions).To(Equal([]model.Action{
				model.InvokeForm("Remplir un formulaire rapide", model.FormTrigger),
				model.Navigate("Aller au formulaire complet", "#contact"),
			}))
		})

		It("trims the utterance", func() {
			Expect(conv.SubmitUtterance("  merci  ")).To(Succeed())
			Expect(conv.Snapshot().Transcript[1].Text).To(Equal("merci"))
		})

		DescribeTable("rejects blank input without touching state",
			func(text string) {
				err := conv.SubmitUtterance(text)
				Expect(err).To(MatchError(errx.ErrBlankUtterance))
				Expect(errx.StatusOf(err)).To(Equal(400))
				Expect(transcriptLen()).To(Equal(1))
				Expect(awaiting()).To(BeFalse())
			},
			Entry("empty", ""),
			Entry("spaces", "   "),
			Entry("tabs and newlines", "\t\n "),
		)

		It("rejects a second question while a reply is pending", func() {
			Expect(conv.SubmitUtterance("Bonjour")).To(Succeed())
			Expect(conv.SubmitUtterance("Encore là ?")).To(MatchError(errx.ErrAwaitingReply))
			Expect(transcriptLen()).To(Equal(2))

			delayer.Release()
			Eventually(awaiting).Should(BeFalse())
			Expect(conv.SubmitUtterance("Encore là ?")).To(Succeed())
		})

		It("keeps ids strictly increasing over several exchanges", func() {
			for _, q := range []string{"prix", "site", "seo", "contact", "merci", "bonjour"} {
				Expect(conv.SubmitUtterance(q)).To(Succeed())
				delayer.Release()
				Eventually(awaiting).Should(BeFalse())
			}
			snap := conv.Snapshot()
			Expect(snap.Transcript).To(HaveLen(13))
			for i, m := range snap.Transcript {
				Expect(m.ID).To(Equal(int64(i + 1)))
				if i > 0 {
					wantSender := model.SenderUser
					if i%2 == 0 {
						wantSender = model.SenderAgent
					}
					Expect(m.Sender).To(Equal(wantSender))
				}
			}
		})

		It("resolves overlapping keywords by priority every time", func() {
			for i := 0; i < 3; i++ {
				Expect(conv.SubmitUtterance("Je voudrais vous contacter, merci")).To(Succeed())
				delayer.Release()
				Eventually(awaiting).Should(BeFalse())
				last, _ := conv.Snapshot().LastAgent()
				Expect(last.Text).To(Equal(script.Classify("contact").Text))
			}
		})
	})

	Describe("responder failure", func() {
		It("appends the fallback so every question gets an answer", func() {
			conv = conversation.New("conv-err", failingResponder{},
				conversation.WithScript(script),
				conversation.WithDelayer(conversation.NoDelay{}),
			)
			DeferCleanup(conv.Close)

			Expect(conv.SubmitUtterance("prix")).To(Succeed())
			Eventually(awaiting).Should(BeFalse())

			last, ok := conv.Snapshot().LastAgent()
			Expect(ok).To(BeTrue())
			Expect(last.Text).To(Equal(script.Fallback().Text))
			Expect(last.SuggestedActions).To(HaveLen(3))
		})
	})

	Describe("InvokeAction", func() {
		var (
			mu      sync.Mutex
			targets []string
		)

		BeforeEach(func() {
			targets = nil
			conv = newConversation(conversation.WithNavigator(conversation.NavigatorFunc(
				func(_ context.Context, id, target string) {
					mu.Lock()
					defer mu.Unlock()
					targets = append(targets, id+" "+target)
				},
			)))
		})

		It("delegates navigation and leaves the transcript alone", func() {
			out, err := conv.InvokeAction(context.Background(), model.Navigate("Services", "#services"))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(conversation.Outcome{NavigateTo: "#services"}))
			Expect(transcriptLen()).To(Equal(1))

			mu.Lock()
			defer mu.Unlock()
			Expect(targets).To(Equal([]string{"conv-1 #services"}))
		})

		It("opens the form and suppresses text input until it closes", func() {
			out, err := conv.InvokeAction(context.Background(), model.InvokeForm("Remplir", model.FormTrigger))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.FormVisible).To(BeTrue())
			Expect(conv.Snapshot().FormVisible).To(BeTrue())

			Expect(conv.SubmitUtterance("prix")).To(MatchError(errx.ErrFormOpen))
			Expect(transcriptLen()).To(Equal(1))

			Expect(conv.CancelForm()).To(Succeed())
			Expect(conv.SubmitUtterance("prix")).To(Succeed())
		})

		It("is idempotent when the form is already open", func() {
			for i := 0; i < 2; i++ {
				_, err := conv.InvokeAction(context.Background(), model.InvokeForm("Remplir", model.FormTrigger))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(conv.Snapshot().FormVisible).To(BeTrue())
		})

		It("stays available while a reply is pending", func() {
			Expect(conv.SubmitUtterance("prix")).To(Succeed())

			_, err := conv.InvokeAction(context.Background(), model.Navigate("Contact", "#contact"))
			Expect(err).NotTo(HaveOccurred())
			_, err = conv.InvokeAction(context.Background(), model.InvokeForm("Remplir", model.FormTrigger))
			Expect(err).NotTo(HaveOccurred())

			delayer.Release()
			Eventually(awaiting).Should(BeFalse())
			snap := conv.Snapshot()
			Expect(snap.FormVisible).To(BeTrue())
			Expect(snap.Transcript).To(HaveLen(3))
		})

		DescribeTable("rejects unknown actions",
			func(a model.Action) {
				_, err := conv.InvokeAction(context.Background(), a)
				Expect(err).To(MatchError(errx.ErrUnknownAction))
				Expect(conv.Snapshot().FormVisible).To(BeFalse())
			},
			Entry("unknown kind", model.Action{Label: "x", Kind: "teleport", Target: "#x"}),
			Entry("unknown form", model.InvokeForm("x", "showNewsletterForm")),
			Entry("empty navigation target", model.Navigate("x", " ")),
		)
	})

	Describe("lead form", func() {
		openForm := func() {
			_, err := conv.InvokeAction(context.Background(), model.InvokeForm("Remplir", model.FormTrigger))
			Expect(err).NotTo(HaveOccurred())
		}

		It("confirms with the submitter's name and closes the form", func() {
			conv = newConversation()
			openForm()

			Expect(conv.SubmitForm(context.Background(), validLead)).To(Succeed())

			snap := conv.Snapshot()
			Expect(snap.FormVisible).To(BeFalse())
			Expect(snap.Submitting).To(BeFalse())
			Expect(snap.Transcript).To(HaveLen(2))
			confirmation := snap.Transcript[1]
			Expect(confirmation.Sender).To(Equal(model.SenderAgent))
			Expect(confirmation.Text).To(ContainSubstring("Hugo"))
			Expect(confirmation.Text).To(Equal("Merci Hugo ! Nous avons bien reçu votre demande et nous vous contacterons très rapidement."))
			Expect(confirmation.SuggestedActions).To(BeEmpty())
		})

		It("refuses a submission when the form is closed", func() {
			conv = newConversation()
			Expect(conv.SubmitForm(context.Background(), validLead)).To(MatchError(errx.ErrFormClosed))
		})

		It("reports every missing field and keeps the form open", func() {
			conv = newConversation()
			openForm()

			err := conv.SubmitForm(context.Background(), model.LeadRecord{Name: "  ", Email: "pas-un-email"})
			Expect(err).To(HaveOccurred())
			Expect(errx.FieldsOf(err)).To(Equal(map[string]string{
				"name":    "required",
				"email":   "invalid email address",
				"message": "required",
			}))
			snap := conv.Snapshot()
			Expect(snap.FormVisible).To(BeTrue())
			Expect(snap.Transcript).To(HaveLen(1))
		})

		It("keeps the form open with a retry message when delivery fails", func() {
			sub := &failingSubmitter{}
			conv = newConversation(conversation.WithSubmitter(sub))
			openForm()

			err := conv.SubmitForm(context.Background(), validLead)
			Expect(err).To(HaveOccurred())
			Expect(errx.MessageOf(err)).To(Equal("Une erreur est survenue. Veuillez réessayer."))
			Expect(sub.calls).To(Equal(1))

			snap := conv.Snapshot()
			Expect(snap.FormVisible).To(BeTrue())
			Expect(snap.Submitting).To(BeFalse())
			Expect(snap.Transcript).To(HaveLen(1))
		})

		It("locks the form while a submission is in flight", func() {
			submitGate := conversation.NewManualDelayer()
			conv = newConversation(conversation.WithSubmitter(conversation.DiscardSubmitter{Delayer: submitGate}))
			openForm()

			done := make(chan error, 1)
			go func() { done <- conv.SubmitForm(context.Background(), validLead) }()

			Eventually(func() bool { return conv.Snapshot().Submitting }).Should(BeTrue())
			Expect(conv.CancelForm()).To(MatchError(errx.ErrSubmitting))
			Expect(conv.SubmitForm(context.Background(), validLead)).To(MatchError(errx.ErrSubmitting))
			Expect(conv.SubmitUtterance("prix")).To(MatchError(errx.ErrFormOpen))

			submitGate.Release()
			Eventually(done).Should(Receive(BeNil()))
			Expect(conv.Snapshot().FormVisible).To(BeFalse())
		})

		It("cancels without touching the transcript", func() {
			conv = newConversation()
			Expect(conv.SubmitUtterance("prix")).To(Succeed())
			delayer.Release()
			Eventually(awaiting).Should(BeFalse())
			openForm()

			before := transcriptLen()
			Expect(conv.CancelForm()).To(Succeed())
			Expect(transcriptLen()).To(Equal(before))
			Expect(conv.Snapshot().FormVisible).To(BeFalse())

			Expect(conv.CancelForm()).To(Succeed())
		})
	})

	Describe("Close", func() {
		It("notifies observers once", func() {
			var (
				mu    sync.Mutex
				types []conversation.EventType
			)
			conv = newConversation(conversation.WithObserver(func(ev conversation.Event) {
				mu.Lock()
				defer mu.Unlock()
				types = append(types, ev.Type)
			}))

			conv.Close()
			conv.Close()

			mu.Lock()
			defer mu.Unlock()
			Expect(types).To(Equal([]conversation.EventType{
				conversation.EventMessageAppended,
				conversation.EventClosed,
			}))
		})

		It("drops the pending reply and rejects further input", func() {
			conv = newConversation()
			Expect(conv.SubmitUtterance("prix")).To(Succeed())
			Eventually(delayer.Waiting).Should(Equal(1))

			conv.Close()
			Expect(transcriptLen()).To(Equal(2))
			Expect(conv.SubmitUtterance("site")).To(MatchError(errx.ErrClosed))
			_, err := conv.InvokeAction(context.Background(), model.Navigate("x", "#x"))
			Expect(err).To(MatchError(errx.ErrClosed))
			Expect(conv.CancelForm()).To(MatchError(errx.ErrClosed))

			conv.Close()
		})

		It("aborts a lead submission in flight", func() {
			submitGate := conversation.NewManualDelayer()
			conv = newConversation(conversation.WithSubmitter(conversation.DiscardSubmitter{Delayer: submitGate}))
			_, err := conv.InvokeAction(context.Background(), model.InvokeForm("Remplir", model.FormTrigger))
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() { done <- conv.SubmitForm(context.Background(), validLead) }()
			Eventually(submitGate.Waiting).Should(Equal(1))

			conv.Close()
			Eventually(done).Should(Receive(MatchError(errx.ErrClosed)))
			Expect(transcriptLen()).To(Equal(1))
		})
	})

	Describe("history", func() {
		It("continues numbering after the restored transcript", func() {
			history := []model.Message{
				{ID: 1, Text: "Bonjour", Sender: model.SenderAgent},
				{ID: 2, Text: "prix", Sender: model.SenderUser},
				{ID: 3, Text: "réponse", Sender: model.SenderAgent},
			}
			conv = newConversation(conversation.WithHistory(history))

			Expect(transcriptLen()).To(Equal(3))
			Expect(awaiting()).To(BeFalse())
			Expect(conv.SubmitUtterance("merci")).To(Succeed())
			Expect(conv.Snapshot().Transcript[3].ID).To(Equal(int64(4)))
		})

		It("answers a question left unanswered", func() {
			history := []model.Message{
				{ID: 1, Text: "Bonjour", Sender: model.SenderAgent},
				{ID: 2, Text: "Vous faites du SEO ?", Sender: model.SenderUser},
			}
			conv = newConversation(conversation.WithHistory(history))
			Expect(awaiting()).To(BeTrue())

			delayer.Release()
			Eventually(awaiting).Should(BeFalse())
			last, _ := conv.Snapshot().LastAgent()
			Expect(last.ID).To(Equal(int64(3)))
			Expect(last.Text).To(Equal(script.Classify("seo").Text))
		})
	})

	Describe("observers and recorder", func() {
		It("see every message in append order", func() {
			rec := &memoryRecorder{}
			events := &eventLog{}
			conv = newConversation(
				conversation.WithRecorder(rec),
				conversation.WithObserver(func(ev conversation.Event) {
					events.mu.Lock()
					defer events.mu.Unlock()
					entry := string(ev.Type)
					if ev.Message != nil {
						entry = fmt.Sprintf("%s:%d", ev.Type, ev.Message.ID)
					}
					events.events = append(events.events, entry)
				}),
			)

			Expect(conv.SubmitUtterance("prix")).To(Succeed())
			delayer.Release()
			Eventually(awaiting).Should(BeFalse())
			_, _ = conv.InvokeAction(context.Background(), model.InvokeForm("Remplir", model.FormTrigger))
			Expect(conv.SubmitForm(context.Background(), validLead)).To(Succeed())

			Expect(rec.IDs()).To(Equal([]int64{1, 2, 3, 4}))
			Expect(events.Types()).To(Equal([]string{
				"message_appended:1",
				"message_appended:2",
				"state_changed",
				"message_appended:3",
				"state_changed",
				"state_changed",
				"message_appended:4",
			}))
		})
	})

	Describe("slow recorder", func() {
		It("keeps the render surface available while a message is recorded", func() {
			rec := newSlowRecorder(2)
			conv = conversation.New("conv-slow", script,
				conversation.WithScript(script),
				conversation.WithDelayer(conversation.NoDelay{}),
				conversation.WithSubmitter(conversation.DiscardSubmitter{}),
				conversation.WithRecorder(rec),
			)
			DeferCleanup(conv.Close)
			var releaseOnce sync.Once
			release := func() { releaseOnce.Do(func() { close(rec.release) }) }
			DeferCleanup(release)

			submitted := make(chan error, 1)
			go func() { submitted <- conv.SubmitUtterance("prix") }()
			Eventually(rec.entered).Should(BeClosed())

			snapshots := make(chan model.Snapshot, 1)
			outcomes := make(chan conversation.Outcome, 1)
			go func() {
				snapshots <- conv.Snapshot()
				out, _ := conv.InvokeAction(context.Background(), model.Navigate("Contact", "#contact"))
				outcomes <- out
			}()

			var snap model.Snapshot
			Eventually(snapshots).WithTimeout(500 * time.Millisecond).Should(Receive(&snap))
			Expect(len(snap.Transcript)).To(BeNumerically(">=", 2))
			Expect(snap.Transcript[1].Text).To(Equal("prix"))
			Eventually(outcomes).WithTimeout(500 * time.Millisecond).Should(Receive(Equal(conversation.Outcome{NavigateTo: "#contact"})))

			release()
			Eventually(submitted).Should(Receive(BeNil()))
			Eventually(rec.IDs).Should(Equal([]int64{1, 2, 3}))
		})
	})

	Describe("with the reply graph", func() {
		It("answers exactly like the script", func() {
			runner, err := graph.BuildReplyGraph(context.Background(), graph.Config{Script: script})
			Expect(err).NotTo(HaveOccurred())

			conv = conversation.New("conv-graph", runner,
				conversation.WithScript(script),
				conversation.WithDelayer(conversation.NoDelay{}),
			)
			DeferCleanup(conv.Close)

			for _, q := range []string{"Combien pour un site ?", "référencement google", "au revoir"} {
				Expect(conv.SubmitUtterance(q)).To(Succeed())
				Eventually(awaiting).Should(BeFalse())
				last, _ := conv.Snapshot().LastAgent()
				Expect(last.Text).To(Equal(script.Classify(q).Text))
			}
		})
	})
})
