package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
	"github.com/jovemegidio/sistemaerp-suporte/internal/events"
	"github.com/jovemegidio/sistemaerp-suporte/internal/repository"
)

// TicketService coordinates ticket workflows on top of the repositories.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	knowledge  repository.KnowledgeRepository
	dispatcher events.Dispatcher

	now     func() time.Time
	randInt func(n int) int
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	MessageRepo   repository.MessageRepository
	KnowledgeRepo repository.KnowledgeRepository
	Dispatcher    events.Dispatcher

	// Now and RandInt override the clock and the protocol suffix source.
	// Left nil outside tests.
	Now     func() time.Time
	RandInt func(n int) int
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	ClientName   string
	ClientEmail  *string
	Subject      *string
	Category     *string
	ConnectionID *string
	ClientID     *int64
	FirstMessage *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	svc := &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		knowledge:  deps.KnowledgeRepo,
		dispatcher: deps.Dispatcher,
		now:        deps.Now,
		randInt:    deps.RandInt,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.randInt == nil {
		svc.randInt = rand.Intn
	}
	return svc
}

// CreateTicket opens a ticket with a fresh protocol code and initial
// status ai_handling, optionally attaching a first client message.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	name := strings.TrimSpace(input.ClientName)
	if name == "" {
		return nil, errors.New("client name required")
	}

	ticket := &domain.Ticket{
		Protocol:     s.generateProtocol(),
		ClientName:   name,
		ClientEmail:  input.ClientEmail,
		Subject:      input.Subject,
		Category:     input.Category,
		Status:       domain.TicketStatusAIHandling,
		ConnectionID: input.ConnectionID,
		ClientID:     input.ClientID,
		Priority:     "normal",
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	if input.FirstMessage != nil && strings.TrimSpace(*input.FirstMessage) != "" {
		if _, err := s.AddMessage(ctx, ticket.ID, domain.SenderRoleClient, name, *input.FirstMessage, nil); err != nil {
			return nil, err
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			Protocol:    ticket.Protocol,
			ClientName:  ticket.ClientName,
			ClientEmail: ticket.ClientEmail,
			Subject:     ticket.Subject,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket. A missing id yields (nil, nil) so callers
// check for absence instead of unwrapping a sentinel error.
func (s *TicketService) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListAllTickets returns every ticket, newest first.
func (s *TicketService) ListAllTickets(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.ListAll(ctx)
}

// ListActiveTickets returns non-closed tickets, newest first.
func (s *TicketService) ListActiveTickets(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.ListActive(ctx)
}

// ListTicketsByStatus returns tickets in the given status, newest first.
func (s *TicketService) ListTicketsByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown ticket status %q", status)
	}
	return s.tickets.ListByStatus(ctx, status)
}

// UpdateStatus moves a ticket to the given status, enforcing the
// transition table, and returns the number of affected rows; zero means
// the id does not exist.
func (s *TicketService) UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus) (int64, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("unknown ticket status %q", status)
	}
	current, err := s.GetTicket(ctx, id)
	if err != nil {
		return 0, err
	}
	if current == nil {
		return 0, nil
	}
	if current.Status != status && !domain.IsValidTransition(current.Status, status) {
		return 0, fmt.Errorf("invalid status transition %q -> %q", current.Status, status)
	}

	affected, err := s.tickets.UpdateStatus(ctx, id, status)
	if err != nil {
		return 0, err
	}
	if affected > 0 && current.Status != status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: id,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: current.Status,
				NewStatus: status,
			},
		})
	}
	return affected, nil
}

// AssignTicket records the claiming agent and moves the ticket to
// human_handling.
func (s *TicketService) AssignTicket(ctx context.Context, id int64, agentName string, agentID *int64) (*domain.Ticket, error) {
	if strings.TrimSpace(agentName) == "" {
		return nil, errors.New("agent name required")
	}
	if err := s.tickets.Assign(ctx, id, agentName, agentID); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: id,
		Payload: events.TicketAssignedPayload{
			AgentName: agentName,
			AgentID:   agentID,
		},
	})
	return ticket, nil
}

// CloseTicket moves the ticket to closed, recording the resolution text
// and close timestamp.
func (s *TicketService) CloseTicket(ctx context.Context, id int64, resolution string) (*domain.Ticket, error) {
	if err := s.tickets.Close(ctx, id, resolution); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: id,
		Payload:  events.TicketClosedPayload{Resolution: resolution},
	})
	return ticket, nil
}

// ReopenTicket moves a closed ticket back to waiting_human.
func (s *TicketService) ReopenTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	affected, err := s.UpdateStatus(ctx, id, domain.TicketStatusWaitingHuman)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.tickets.GetByID(ctx, id)
}

// AddMessage appends an immutable message to a ticket conversation.
func (s *TicketService) AddMessage(ctx context.Context, ticketID int64, role domain.SenderRole, senderName, body string, senderID *int64) (*domain.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown sender role %q", role)
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("message body required")
	}

	msg := &domain.Message{
		TicketID:   ticketID,
		SenderRole: role,
		SenderName: senderName,
		SenderID:   senderID,
		Body:       body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticketID,
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderRole:  msg.SenderRole,
			SenderName:  msg.SenderName,
			BodyPreview: stringPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

// ListMessages returns a ticket conversation in ascending time order.
func (s *TicketService) ListMessages(ctx context.Context, ticketID int64) ([]domain.Message, error) {
	return s.messages.ListByTicket(ctx, ticketID)
}

// SearchKnowledge delegates to the knowledge repository.
func (s *TicketService) SearchKnowledge(ctx context.Context, query string) ([]domain.KnowledgeEntry, error) {
	return s.knowledge.Search(ctx, query)
}

// ListKnowledge returns every knowledge entry.
func (s *TicketService) ListKnowledge(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	return s.knowledge.ListAll(ctx)
}

// AddKnowledgeEntry inserts a new knowledge base entry.
func (s *TicketService) AddKnowledgeEntry(ctx context.Context, entry *domain.KnowledgeEntry) error {
	if strings.TrimSpace(entry.Question) == "" || strings.TrimSpace(entry.Answer) == "" {
		return errors.New("question and answer required")
	}
	return s.knowledge.Create(ctx, entry)
}

// Stats returns ticket counts per status for the admin dashboard.
func (s *TicketService) Stats(ctx context.Context) (map[domain.TicketStatus]int64, error) {
	return s.tickets.CountsByStatus(ctx)
}

// generateProtocol builds the human-facing ticket code: SUP + YYMMDD +
// four random digits. Collisions are tolerated; there is no uniqueness
// constraint on the column.
func (s *TicketService) generateProtocol() string {
	return fmt.Sprintf("SUP%s%04d", s.now().Format("060102"), s.randInt(10000))
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
