package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Connecteur Digital · Assistant"))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.snap.AwaitingReply {
		b.WriteString(m.spinner.View() + DimStyle.Render(" L'agent écrit..."))
		b.WriteString("\n")
	}

	if m.snap.FormVisible {
		b.WriteString(m.form.view(m.formErrs, m.snap.Submitting))
		if m.formErr != "" {
			b.WriteString("\n" + ErrorStyle.Render(m.formErr))
		}
	} else {
		if m.snap.AwaitingReply {
			b.WriteString(DimStyle.Render("> " + m.input.Value()))
		} else {
			b.WriteString(m.input.View())
		}
		if m.inputErr != "" {
			b.WriteString("\n" + ErrorStyle.Render(m.inputErr))
		}
	}
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(DimStyle.Render(m.status) + "\n")
	}
	if !m.snap.FormVisible {
		b.WriteString(HelpStyle.Render(FormatFooter("Entrée", "Envoyer", "1-9", "Action", "Esc", "Quitter")))
	}
	return b.String()
}

// renderTranscript renders every message and numbers the actions of the latest agent message.
func renderTranscript(snap model.Snapshot, width int) string {
	last, hasAgent := snap.LastAgent()
	wrap := lipgloss.NewStyle()
	if width > 4 {
		wrap = wrap.Width(width - 2)
	}

	var b strings.Builder
	for _, msg := range snap.Transcript {
		if msg.IsAgent() {
			b.WriteString(AgentStyle.Render("Agent") + "\n")
		} else {
			b.WriteString(UserStyle.Render("Vous") + "\n")
		}
		b.WriteString(wrap.Render(msg.Text))
		b.WriteString("\n")

		if hasAgent && msg.ID == last.ID {
			for i, a := range msg.SuggestedActions {
				if i >= 9 {
					break
				}
				b.WriteString(ActionStyle.Render(fmt.Sprintf("  [%d] %s", i+1, a.Label)))
				if a.Kind == model.ActionNavigate {
					b.WriteString(DimStyle.Render(" → " + a.Target))
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
