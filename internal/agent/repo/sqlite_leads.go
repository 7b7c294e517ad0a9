package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// SQLiteLeadRepository stores leads captured by the chat form.
type SQLiteLeadRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteLeadRepository wraps an open database and creates the schema.
func NewSQLiteLeadRepository(ctx context.Context, db *sql.DB) (*SQLiteLeadRepository, error) {
	r := &SQLiteLeadRepository{db: db, now: time.Now}
	if err := r.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteLeadRepository) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leads_conversation ON leads(conversation_id, id);
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveLead inserts one lead row.
func (r *SQLiteLeadRepository) SaveLead(ctx context.Context, conversationID string, lead model.LeadRecord) error {
	query := `
	INSERT INTO leads (conversation_id, name, email, phone, message, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var phone any
	if lead.Phone != "" {
		phone = lead.Phone
	}

	_, err := r.db.ExecContext(ctx, query,
		conversationID, lead.Name, lead.Email, phone, lead.Message,
		r.now().UTC().UnixMilli(),
	)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to insert lead")
		return errx.WrapSQLite(err)
	}
	return nil
}

// ListLeads returns the leads of a conversation in insertion order.
func (r *SQLiteLeadRepository) ListLeads(ctx context.Context, conversationID string) ([]model.StoredLead, error) {
	query := `
		SELECT id, conversation_id, name, email, phone, message, created_at
		FROM leads WHERE conversation_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, errx.WrapSQLite(err)
	}
	defer rows.Close()

	out := make([]model.StoredLead, 0)
	for rows.Next() {
		var (
			l         model.StoredLead
			phone     sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&l.ID, &l.ConversationID, &l.Name, &l.Email, &phone, &l.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		l.Phone = phone.String
		l.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapSQLite(err)
	}
	return out, nil
}

var _ model.LeadRepository = (*SQLiteLeadRepository)(nil)
