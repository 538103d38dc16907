package events

import (
	"time"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketMessageAdded  EventType = "ticket_message_added"
)

// Event represents a domain event emitted by the ticket service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Protocol    string  `json:"protocol"`
	ClientName  string  `json:"client_name"`
	ClientEmail *string `json:"client_email,omitempty"`
	Subject     *string `json:"subject,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentName string `json:"agent_name"`
	AgentID   *int64 `json:"agent_id,omitempty"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Resolution string `json:"resolution"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   int64             `json:"message_id"`
	SenderRole  domain.SenderRole `json:"sender_role"`
	SenderName  string            `json:"sender_name"`
	BodyPreview string            `json:"body_preview"`
}
