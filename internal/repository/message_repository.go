package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
)

// MessageRepository manages ticket conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.Message, error)
}

type messageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository builds repository.
func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, sender_role, sender_name, sender_id, body)
        VALUES (:ticket_id, :sender_role, :sender_name, :sender_id, :body)`
	res, err := r.db.NamedExecContext(ctx, query, msg)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	const reload = `
        SELECT id, ticket_id, sender_role, sender_name, sender_id, body, created_at
        FROM ticket_messages WHERE id=?`
	return r.db.GetContext(ctx, msg, reload, id)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, sender_role, sender_name, sender_id, body, created_at
        FROM ticket_messages WHERE ticket_id=? ORDER BY created_at ASC, id ASC`
	var msgs []domain.Message
	if err := r.db.SelectContext(ctx, &msgs, query, ticketID); err != nil {
		return nil, err
	}
	return msgs, nil
}
