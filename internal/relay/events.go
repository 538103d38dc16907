package relay

import (
	"encoding/json"
	"time"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
)

// Inbound event names, as sent by browser clients and admin consoles.
const (
	EventIdentify          = "identify"
	EventClientMessage     = "client_message"
	EventAdminTakeTicket   = "admin_take_ticket"
	EventAdminMessage      = "admin_message"
	EventAdminCloseTicket  = "admin_close_ticket"
	EventAdminReopenTicket = "admin_reopen_ticket"
)

// Outbound event names.
const (
	EventTicketsList          = "tickets_list"
	EventNewTicket            = "new_ticket"
	EventTicketMessage        = "ticket_message"
	EventMessage              = "message"
	EventAgentConnected       = "agent_connected"
	EventTicketNeedsAttention = "ticket_needs_attention"
	EventTicketUpdated        = "ticket_updated"
	EventTicketClosed         = "ticket_closed"
	EventClientDisconnected   = "client_disconnected"
)

// Envelope frames every message on the real-time channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// IdentifyPayload classifies a fresh connection. Admin identification
// carries a console token; client identification carries the visitor
// profile.
type IdentifyPayload struct {
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	ClientID *int64 `json:"client_id,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ClientMessagePayload carries one chat message from a client.
type ClientMessagePayload struct {
	Text string `json:"text"`
}

// AdminTakePayload claims a ticket for the identified agent.
type AdminTakePayload struct {
	TicketID int64 `json:"ticket_id"`
}

// AdminMessagePayload carries one agent reply.
type AdminMessagePayload struct {
	TicketID int64  `json:"ticket_id"`
	Text     string `json:"text"`
}

// AdminClosePayload closes a ticket with a resolution text.
type AdminClosePayload struct {
	TicketID   int64  `json:"ticket_id"`
	Resolution string `json:"resolution"`
}

// AdminReopenPayload reopens a closed ticket.
type AdminReopenPayload struct {
	TicketID int64 `json:"ticket_id"`
}

// AgentConnectedPayload tells a client a human agent joined.
type AgentConnectedPayload struct {
	TicketID  int64  `json:"ticket_id"`
	AgentName string `json:"agent_name"`
}

// NeedsAttentionPayload tells admins a ticket escaped the assistant.
type NeedsAttentionPayload struct {
	TicketID int64  `json:"ticket_id"`
	Reason   string `json:"reason"`
}

// ClientDisconnectedPayload tells admins the ticket owner went away.
type ClientDisconnectedPayload struct {
	TicketID int64 `json:"ticket_id"`
}

type ticketView struct {
	ID          int64      `json:"id"`
	Protocol    string     `json:"protocol"`
	ClientName  string     `json:"client_name"`
	ClientEmail *string    `json:"client_email,omitempty"`
	Subject     *string    `json:"subject,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Status      string     `json:"status"`
	AgentName   *string    `json:"agent_name,omitempty"`
	Priority    string     `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func newTicketView(t *domain.Ticket) ticketView {
	return ticketView{
		ID:          t.ID,
		Protocol:    t.Protocol,
		ClientName:  t.ClientName,
		ClientEmail: t.ClientEmail,
		Subject:     t.Subject,
		Category:    t.Category,
		Status:      string(t.Status),
		AgentName:   t.AgentName,
		Priority:    t.Priority,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
	}
}

func newTicketViews(tickets []domain.Ticket) []ticketView {
	views := make([]ticketView, 0, len(tickets))
	for i := range tickets {
		views = append(views, newTicketView(&tickets[i]))
	}
	return views
}

type messageView struct {
	ID         int64     `json:"id"`
	TicketID   int64     `json:"ticket_id"`
	SenderRole string    `json:"sender_role"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func newMessageView(m *domain.Message) messageView {
	return messageView{
		ID:         m.ID,
		TicketID:   m.TicketID,
		SenderRole: string(m.SenderRole),
		SenderName: m.SenderName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}
