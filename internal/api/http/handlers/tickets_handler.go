package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jovemegidio/sistemaerp-suporte/internal/api/dto"
	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
	"github.com/jovemegidio/sistemaerp-suporte/internal/service"
	apperrors "github.com/jovemegidio/sistemaerp-suporte/pkg/util"
)

// TicketsHandler manages the ticket trigger endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.ClientName) == "" {
		return apperrors.NewValidationError("client_name required", nil)
	}

	input := service.TicketCreateInput{
		ClientName:   req.ClientName,
		ClientEmail:  req.ClientEmail,
		Subject:      req.Subject,
		Category:     req.Category,
		ClientID:     req.ClientID,
		FirstMessage: req.Message,
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets. Accepts ?status=<status> or ?active=true.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	var (
		tickets []domain.Ticket
		err     error
	)
	switch {
	case c.Query("status") != "":
		tickets, err = h.service.ListTicketsByStatus(c.UserContext(), domain.TicketStatus(c.Query("status")))
	case c.Query("active") == "true":
		tickets, err = h.service.ListActiveTickets(c.UserContext())
	default:
		tickets, err = h.service.ListAllTickets(c.UserContext())
	}
	if err != nil {
		return err
	}

	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return apperrors.NewValidationError("invalid ticket id", nil)
	}
	ticket, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	if ticket == nil {
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListMessages GET /tickets/:id/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return apperrors.NewValidationError("invalid ticket id", nil)
	}
	msgs, err := h.service.ListMessages(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, messageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": counts})
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:          ticket.ID,
		Protocol:    ticket.Protocol,
		ClientName:  ticket.ClientName,
		ClientEmail: ticket.ClientEmail,
		Subject:     ticket.Subject,
		Category:    ticket.Category,
		Status:      ticket.Status,
		AgentID:     ticket.AgentID,
		AgentName:   ticket.AgentName,
		Priority:    ticket.Priority,
		Resolution:  ticket.Resolution,
		Rating:      ticket.Rating,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:         msg.ID,
		TicketID:   msg.TicketID,
		SenderRole: msg.SenderRole,
		SenderName: msg.SenderName,
		SenderID:   msg.SenderID,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
}
