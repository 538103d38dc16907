package dto

import (
	"time"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
)

// CreateTicketRequest is the web-form ticket creation payload.
type CreateTicketRequest struct {
	ClientName  string  `json:"client_name"`
	ClientEmail *string `json:"client_email,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	Category    *string `json:"category,omitempty"`
	ClientID    *int64  `json:"client_id,omitempty"`
	Message     *string `json:"message,omitempty"`
}

// TicketResponse serializes a ticket.
type TicketResponse struct {
	ID          int64               `json:"id"`
	Protocol    string              `json:"protocol"`
	ClientName  string              `json:"client_name"`
	ClientEmail *string             `json:"client_email,omitempty"`
	Subject     *string             `json:"subject,omitempty"`
	Category    *string             `json:"category,omitempty"`
	Status      domain.TicketStatus `json:"status"`
	AgentID     *int64              `json:"agent_id,omitempty"`
	AgentName   *string             `json:"agent_name,omitempty"`
	Priority    string              `json:"priority"`
	Resolution  *string             `json:"resolution,omitempty"`
	Rating      *int                `json:"rating,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	ClosedAt    *time.Time          `json:"closed_at,omitempty"`
}

// MessageResponse serializes one conversation message.
type MessageResponse struct {
	ID         int64             `json:"id"`
	TicketID   int64             `json:"ticket_id"`
	SenderRole domain.SenderRole `json:"sender_role"`
	SenderName string            `json:"sender_name"`
	SenderID   *int64            `json:"sender_id,omitempty"`
	Body       string            `json:"body"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CreateKnowledgeRequest adds one knowledge base entry.
type CreateKnowledgeRequest struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Keywords string  `json:"keywords"`
	Category *string `json:"category,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

// KnowledgeResponse serializes a knowledge entry.
type KnowledgeResponse struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Keywords  string    `json:"keywords"`
	Category  *string   `json:"category,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
