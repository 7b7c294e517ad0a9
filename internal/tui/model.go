// Package tui is a terminal widget shell for a single conversation.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
)

const blankInputMessage = "Veuillez saisir un message."

type eventMsg conversation.Event

type eventsClosedMsg struct{}

type submitResultMsg struct{ err error }

// Model is the bubbletea model of the widget.
type Model struct {
	conv   *conversation.Conversation
	events <-chan conversation.Event

	snap     model.Snapshot
	input    textinput.Model
	form     leadForm
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	status   string
	inputErr string
	formErr  string
	formErrs map[string]string
}

// New builds the widget for conv. events should carry the conversation's
// observer events; it may be nil, in which case the view refreshes on input only.
func New(conv *conversation.Conversation, events <-chan conversation.Event) Model {
	in := textinput.New()
	in.Placeholder = "Écrivez votre message..."
	in.CharLimit = 1000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = DimStyle

	m := Model{
		conv:     conv,
		events:   events,
		input:    in,
		form:     newLeadForm(),
		spinner:  sp,
		viewport: viewport.New(80, 20),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(events <-chan conversation.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-12, 5)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case eventMsg:
		m.refresh()
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case submitResultMsg:
		m.refresh()
		if msg.err != nil {
			if fields := errx.FieldsOf(msg.err); fields != nil {
				m.formErrs = fields
			} else {
				m.formErr = errx.MessageOf(msg.err)
			}
			return m, nil
		}
		m.form.reset()
		m.formErr, m.formErrs = "", nil
		m.input.Focus()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.snap.FormVisible {
			return m.handleFormKey(msg)
		}
		return m.handleChatKey(msg)
	}
	return m, nil
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyEnter:
		if m.snap.AwaitingReply {
			return m, nil
		}
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			m.inputErr = blankInputMessage
			return m, nil
		}
		if err := m.conv.SubmitUtterance(text); err != nil {
			m.inputErr = errx.MessageOf(err)
			return m, nil
		}
		m.input.Reset()
		m.inputErr = ""
		m.status = ""
		m.refresh()
		return m, m.spinner.Tick
	}

	if idx, ok := actionIndex(msg); ok && m.input.Value() == "" {
		return m.invoke(idx)
	}

	if m.snap.AwaitingReply {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.inputErr = ""
	return m, cmd
}

// actionIndex maps keys 1 to 9 to a zero-based action index.
func actionIndex(msg tea.KeyMsg) (int, bool) {
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return 0, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '9' {
		return 0, false
	}
	return int(r - '1'), true
}

func (m Model) invoke(idx int) (tea.Model, tea.Cmd) {
	last, ok := m.snap.LastAgent()
	if !ok || idx >= len(last.SuggestedActions) {
		return m, nil
	}
	action := last.SuggestedActions[idx]

	out, err := m.conv.InvokeAction(context.Background(), action)
	if err != nil {
		m.status = errx.MessageOf(err)
		return m, nil
	}
	if out.NavigateTo != "" {
		m.status = "Navigation vers " + out.NavigateTo
	}
	if out.FormVisible && !m.snap.FormVisible {
		m.form.reset()
		m.formErr, m.formErrs = "", nil
		m.input.Blur()
	}
	m.refresh()
	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.snap.Submitting {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		if err := m.conv.CancelForm(); err != nil {
			m.formErr = errx.MessageOf(err)
			return m, nil
		}
		m.form.reset()
		m.formErr, m.formErrs = "", nil
		m.input.Focus()
		m.refresh()
		return m, nil

	case tea.KeyTab, tea.KeyDown:
		m.form.next()
		return m, nil

	case tea.KeyShiftTab, tea.KeyUp:
		m.form.prev()
		return m, nil

	case tea.KeyEnter:
		lead := m.form.record().Normalize()
		if err := lead.Validate(); err != nil {
			m.formErrs = errx.FieldsOf(err)
			return m, nil
		}
		m.formErr, m.formErrs = "", nil
		conv := m.conv
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			return submitResultMsg{err: conv.SubmitForm(context.Background(), lead)}
		})
	}

	return m, m.form.update(msg)
}

func (m *Model) refresh() {
	m.snap = m.conv.Snapshot()
	m.viewport.SetContent(renderTranscript(m.snap, m.viewport.Width))
	m.viewport.GotoBottom()
}
