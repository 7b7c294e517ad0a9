package prompts

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

// ConfirmationRenderer builds the agent message appended after a lead was
// submitted successfully.
type ConfirmationRenderer struct {
	tpl prompt.ChatTemplate
}

// NewConfirmationRenderer compiles a Go template that may reference the
// lead fields (.Name, .Email, .Phone, .Message).
func NewConfirmationRenderer(template string) *ConfirmationRenderer {
	return &ConfirmationRenderer{
		tpl: prompt.FromMessages(
			schema.GoTemplate,
			schema.AssistantMessage(template, nil),
		),
	}
}

// Render formats the confirmation for lead.
func (r *ConfirmationRenderer) Render(ctx context.Context, lead model.LeadRecord) (string, error) {
	msgs, err := r.tpl.Format(ctx, map[string]any{
		"Name":    lead.Name,
		"Email":   lead.Email,
		"Phone":   lead.Phone,
		"Message": lead.Message,
	})
	if err != nil {
		return "", fmt.Errorf("confirmation render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("confirmation render: empty result")
	}
	return msgs[0].Content, nil
}
