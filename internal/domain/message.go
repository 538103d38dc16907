package domain

import "time"

// SenderRole identifies who authored a ticket message.
type SenderRole string

const (
	SenderRoleClient SenderRole = "client"
	SenderRoleAI     SenderRole = "ai"
	SenderRoleAdmin  SenderRole = "admin"
	SenderRoleSystem SenderRole = "system"
)

// Valid reports whether the role is one of the four known senders.
func (r SenderRole) Valid() bool {
	switch r {
	case SenderRoleClient, SenderRoleAI, SenderRoleAdmin, SenderRoleSystem:
		return true
	}
	return false
}

// Message is one immutable entry in a ticket conversation. Messages are
// ordered by creation time within their ticket.
type Message struct {
	ID         int64      `db:"id"`
	TicketID   int64      `db:"ticket_id"`
	SenderRole SenderRole `db:"sender_role"`
	SenderName string     `db:"sender_name"`
	SenderID   *int64     `db:"sender_id"`
	Body       string     `db:"body"`
	CreatedAt  time.Time  `db:"created_at"`
}
