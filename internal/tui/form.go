package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

const (
	fieldName = iota
	fieldEmail
	fieldPhone
	fieldMessage
	fieldCount
)

var fieldLabels = [fieldCount]string{"Nom *", "Email *", "Téléphone", "Message *"}

// leadForm is the quick contact form shown in place of the chat input.
type leadForm struct {
	inputs [fieldCount]textinput.Model
	focus  int
}

func newLeadForm() leadForm {
	var f leadForm
	placeholders := [fieldCount]string{"Votre nom", "vous@exemple.fr", "Optionnel", "Votre projet en quelques mots"}
	for i := range f.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.CharLimit = 500
		in.Prompt = ""
		f.inputs[i] = in
	}
	f.inputs[fieldName].Focus()
	return f
}

func (f *leadForm) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = (i + fieldCount) % fieldCount
	f.inputs[f.focus].Focus()
}

func (f *leadForm) next() { f.setFocus(f.focus + 1) }
func (f *leadForm) prev() { f.setFocus(f.focus - 1) }

// reset clears every field and focuses the first one.
func (f *leadForm) reset() {
	for i := range f.inputs {
		f.inputs[i].SetValue("")
	}
	f.setFocus(fieldName)
}

func (f *leadForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f leadForm) record() model.LeadRecord {
	return model.LeadRecord{
		Name:    f.inputs[fieldName].Value(),
		Email:   f.inputs[fieldEmail].Value(),
		Phone:   f.inputs[fieldPhone].Value(),
		Message: f.inputs[fieldMessage].Value(),
	}
}

func (f leadForm) view(fieldErrors map[string]string, submitting bool) string {
	keys := [fieldCount]string{"name", "email", "phone", "message"}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Formulaire rapide"))
	b.WriteString("\n")
	for i, in := range f.inputs {
		label := fieldLabels[i]
		if i == f.focus {
			label = ActionStyle.Render("> " + label)
		} else {
			label = "  " + label
		}
		b.WriteString(label + ": " + in.View())
		if problem := fieldErrors[keys[i]]; problem != "" {
			b.WriteString("  " + ErrorStyle.Render(problem))
		}
		b.WriteString("\n")
	}
	if submitting {
		b.WriteString(DimStyle.Render("Envoi en cours..."))
	} else {
		b.WriteString(HelpStyle.Render(FormatFooter("Tab", "Champ suivant", "Entrée", "Envoyer", "Esc", "Annuler")))
	}
	return FormStyle.Render(b.String())
}
