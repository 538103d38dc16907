package triage

import (
	"context"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
)

// Decision is the outcome of evaluating one inbound client message.
type Decision struct {
	Escalate bool
	Reason   string
	Response string
}

// Escalation reasons surfaced to administrators.
const (
	ReasonAgentRequested    = "client requested agent or has a complex issue"
	ReasonAttemptsExhausted = "automated assistant could not resolve after multiple attempts"
)

// KnowledgeSearcher is the knowledge-base lookup triage depends on.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string) ([]domain.KnowledgeEntry, error)
}

// MessageLister is the message-history lookup triage depends on.
type MessageLister interface {
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.Message, error)
}

// escalationTriggers are phrases signaling frustration or an explicit
// request for a human. Static configuration, not logic.
var escalationTriggers = []string{
	"atendente",
	"humano",
	"pessoa real",
	"falar com alguém",
	"falar com alguem",
	"urgente",
	"urgência",
	"urgencia",
	"reclamação",
	"reclamacao",
	"reclamar",
	"péssimo",
	"pessimo",
	"horrível",
	"horrivel",
	"não funciona",
	"nao funciona",
	"problema grave",
	"cancelar",
	"reembolso",
	"estorno",
	"procon",
	"advogado",
	"insatisfeito",
	"absurdo",
}

var fallbackResponses = []string{
	"Poderia me dar mais detalhes sobre o problema? Assim consigo ajudar melhor.",
	"Entendi. Pode me explicar melhor o que está acontecendo?",
	"Certo! Me conte um pouco mais sobre a sua dúvida para que eu possa ajudar.",
}

// maxAIAttempts is how many client messages the assistant tries to handle
// before giving up and escalating.
const maxAIAttempts = 3

// Service decides the automated response, or escalation, for one inbound
// client message. It performs no persistence; the caller writes the
// resulting message and status change.
type Service struct {
	knowledge KnowledgeSearcher
	messages  MessageLister
	logger    *zap.Logger

	// pick selects the fallback response index. Overridable in tests.
	pick func(n int) int
}

// NewService constructs the triage service.
func NewService(knowledge KnowledgeSearcher, messages MessageLister, logger *zap.Logger) *Service {
	return &Service{
		knowledge: knowledge,
		messages:  messages,
		logger:    logger,
		pick:      rand.Intn,
	}
}

// Evaluate runs the rule chain, first match wins:
// trigger phrase, knowledge match, exhaustion, generic fallback.
// The message under evaluation is expected to be already persisted on the
// ticket when the exhaustion rule counts client messages.
func (s *Service) Evaluate(ctx context.Context, messageText string, ticket *domain.Ticket) (Decision, error) {
	lower := strings.ToLower(messageText)
	for _, trigger := range escalationTriggers {
		if strings.Contains(lower, trigger) {
			return Decision{Escalate: true, Reason: ReasonAgentRequested}, nil
		}
	}

	entries, err := s.knowledge.Search(ctx, messageText)
	if err != nil {
		return Decision{}, err
	}
	if len(entries) > 0 {
		return Decision{Response: entries[0].Answer}, nil
	}

	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return Decision{}, err
	}
	clientCount := 0
	for _, msg := range msgs {
		if msg.SenderRole == domain.SenderRoleClient {
			clientCount++
		}
	}
	// The current message is among those counted; prior attempts are one
	// fewer.
	if clientCount-1 >= maxAIAttempts {
		return Decision{Escalate: true, Reason: ReasonAttemptsExhausted}, nil
	}

	return Decision{Response: fallbackResponses[s.pick(len(fallbackResponses))]}, nil
}
