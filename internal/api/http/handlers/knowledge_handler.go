package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jovemegidio/sistemaerp-suporte/internal/api/dto"
	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
	"github.com/jovemegidio/sistemaerp-suporte/internal/service"
	apperrors "github.com/jovemegidio/sistemaerp-suporte/pkg/util"
)

// KnowledgeHandler manages knowledge base endpoints.
type KnowledgeHandler struct {
	service *service.TicketService
}

// NewKnowledgeHandler constructs handler.
func NewKnowledgeHandler(ticketService *service.TicketService) *KnowledgeHandler {
	return &KnowledgeHandler{service: ticketService}
}

// List GET /tickets/knowledge/all.
func (h *KnowledgeHandler) List(c *fiber.Ctx) error {
	entries, err := h.service.ListKnowledge(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.KnowledgeResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, knowledgeResponse(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /tickets/knowledge.
func (h *KnowledgeHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateKnowledgeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		return apperrors.NewValidationError("question and answer required", nil)
	}

	entry := &domain.KnowledgeEntry{
		Question: req.Question,
		Answer:   req.Answer,
		Keywords: req.Keywords,
		Category: req.Category,
		Active:   true,
	}
	if req.Active != nil {
		entry.Active = *req.Active
	}
	if err := h.service.AddKnowledgeEntry(c.UserContext(), entry); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": knowledgeResponse(*entry)})
}

func knowledgeResponse(entry domain.KnowledgeEntry) dto.KnowledgeResponse {
	return dto.KnowledgeResponse{
		ID:        entry.ID,
		Question:  entry.Question,
		Answer:    entry.Answer,
		Keywords:  entry.Keywords,
		Category:  entry.Category,
		Active:    entry.Active,
		CreatedAt: entry.CreatedAt,
	}
}
