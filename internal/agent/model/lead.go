package model

import (
	"net/mail"
	"strings"
	"time"

	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
)

// LeadRecord is the quick contact form submitted from inside the chat widget.
type LeadRecord struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
}

// Normalize trims every field.
func (l LeadRecord) Normalize() LeadRecord {
	return LeadRecord{
		Name:    strings.TrimSpace(l.Name),
		Email:   strings.TrimSpace(l.Email),
		Phone:   strings.TrimSpace(l.Phone),
		Message: strings.TrimSpace(l.Message),
	}
}

// Validate checks the required fields (name, email, message) of a normalized record.
func (l LeadRecord) Validate() error {
	v := &errx.ValidationError{}
	if l.Name == "" {
		v.Add("name", "required")
	}
	switch {
	case l.Email == "":
		v.Add("email", "required")
	case !isPlainAddress(l.Email):
		v.Add("email", "invalid email address")
	}
	if l.Message == "" {
		v.Add("message", "required")
	}
	return v.OrNil()
}

func isPlainAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Name == "" && strings.EqualFold(addr.Address, s)
}

// StoredLead is a lead as persisted by a LeadRepository.
type StoredLead struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	LeadRecord
	CreatedAt time.Time `json:"created_at"`
}
