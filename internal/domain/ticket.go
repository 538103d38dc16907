package domain

import "time"

// TicketStatus enumerates lifecycle states for support tickets.
type TicketStatus string

const (
	TicketStatusAIHandling    TicketStatus = "ai_handling"
	TicketStatusWaitingHuman  TicketStatus = "waiting_human"
	TicketStatusHumanHandling TicketStatus = "human_handling"
	TicketStatusClosed        TicketStatus = "closed"
)

// Valid reports whether the status is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusAIHandling, TicketStatusWaitingHuman, TicketStatusHumanHandling, TicketStatusClosed:
		return true
	}
	return false
}

// Active reports whether the ticket still needs attention.
func (s TicketStatus) Active() bool {
	return s.Valid() && s != TicketStatusClosed
}

// Ticket is the aggregate for a client support case.
type Ticket struct {
	ID           int64        `db:"id"`
	Protocol     string       `db:"protocol"`
	ClientName   string       `db:"client_name"`
	ClientEmail  *string      `db:"client_email"`
	Subject      *string      `db:"subject"`
	Category     *string      `db:"category"`
	Status       TicketStatus `db:"status"`
	AgentID      *int64       `db:"agent_id"`
	AgentName    *string      `db:"agent_name"`
	ConnectionID *string      `db:"connection_id"`
	ClientID     *int64       `db:"client_id"`
	Priority     string       `db:"priority"`
	Resolution   *string      `db:"resolution"`
	Rating       *int         `db:"rating"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
	ClosedAt     *time.Time   `db:"closed_at"`
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusAIHandling:    {TicketStatusWaitingHuman, TicketStatusHumanHandling, TicketStatusClosed},
	TicketStatusWaitingHuman:  {TicketStatusHumanHandling, TicketStatusClosed},
	TicketStatusHumanHandling: {TicketStatusWaitingHuman, TicketStatusClosed},
	TicketStatusClosed:        {TicketStatusWaitingHuman},
}

// IsValidTransition reports whether a ticket may move from current to next.
// Reopening a closed ticket lands on waiting_human, never back on ai_handling.
func IsValidTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
