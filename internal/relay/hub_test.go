package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jovemegidio/sistemaerp-suporte/internal/auth"
	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
	"github.com/jovemegidio/sistemaerp-suporte/internal/observability"
	"github.com/jovemegidio/sistemaerp-suporte/internal/service"
	"github.com/jovemegidio/sistemaerp-suporte/internal/triage"
)

const testConsoleToken = "console-token"

// fakeWorkflow is an in-memory ticket store standing in for the real
// service behind the hub.
type fakeWorkflow struct {
	nextTicketID   int64
	nextMessageID  int64
	tickets        map[int64]*domain.Ticket
	messages       map[int64][]domain.Message
	failAddMessage bool
}

func newFakeWorkflow() *fakeWorkflow {
	return &fakeWorkflow{
		tickets:  make(map[int64]*domain.Ticket),
		messages: make(map[int64][]domain.Message),
	}
}

func (f *fakeWorkflow) CreateTicket(_ context.Context, input service.TicketCreateInput) (*domain.Ticket, error) {
	f.nextTicketID++
	now := time.Now()
	ticket := &domain.Ticket{
		ID:           f.nextTicketID,
		Protocol:     fmt.Sprintf("SUP260831%04d", f.nextTicketID),
		ClientName:   input.ClientName,
		ClientEmail:  input.ClientEmail,
		Status:       domain.TicketStatusAIHandling,
		ConnectionID: input.ConnectionID,
		ClientID:     input.ClientID,
		Priority:     "normal",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.tickets[ticket.ID] = ticket
	return ticket, nil
}

func (f *fakeWorkflow) GetTicket(_ context.Context, id int64) (*domain.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, nil
	}
	return ticket, nil
}

func (f *fakeWorkflow) ListActiveTickets(_ context.Context) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range f.tickets {
		if t.Status != domain.TicketStatusClosed {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeWorkflow) AddMessage(_ context.Context, ticketID int64, role domain.SenderRole, senderName, body string, senderID *int64) (*domain.Message, error) {
	if f.failAddMessage {
		return nil, errors.New("store unavailable")
	}
	f.nextMessageID++
	msg := domain.Message{
		ID:         f.nextMessageID,
		TicketID:   ticketID,
		SenderRole: role,
		SenderName: senderName,
		SenderID:   senderID,
		Body:       body,
		CreatedAt:  time.Now(),
	}
	f.messages[ticketID] = append(f.messages[ticketID], msg)
	return &msg, nil
}

func (f *fakeWorkflow) UpdateStatus(_ context.Context, id int64, status domain.TicketStatus) (int64, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return 0, nil
	}
	ticket.Status = status
	return 1, nil
}

func (f *fakeWorkflow) AssignTicket(_ context.Context, id int64, agentName string, agentID *int64) (*domain.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	ticket.Status = domain.TicketStatusHumanHandling
	ticket.AgentName = &agentName
	ticket.AgentID = agentID
	return ticket, nil
}

func (f *fakeWorkflow) CloseTicket(_ context.Context, id int64, resolution string) (*domain.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.Resolution = &resolution
	ticket.ClosedAt = &now
	return ticket, nil
}

func (f *fakeWorkflow) ReopenTicket(_ context.Context, id int64) (*domain.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, nil
	}
	ticket.Status = domain.TicketStatusWaitingHuman
	return ticket, nil
}

// ListByTicket lets the fake double as the triage message history source.
func (f *fakeWorkflow) ListByTicket(_ context.Context, ticketID int64) ([]domain.Message, error) {
	return f.messages[ticketID], nil
}

type emptyKnowledge struct{}

func (emptyKnowledge) Search(context.Context, string) ([]domain.KnowledgeEntry, error) {
	return nil, nil
}

type fakeEvaluator struct {
	decisions []triage.Decision
	err       error
	calls     int
}

func (f *fakeEvaluator) Evaluate(context.Context, string, *domain.Ticket) (triage.Decision, error) {
	if f.err != nil {
		return triage.Decision{}, f.err
	}
	idx := f.calls
	if idx >= len(f.decisions) {
		idx = len(f.decisions) - 1
	}
	f.calls++
	return f.decisions[idx], nil
}

type fakeVerifier struct{}

func (fakeVerifier) ParseAdminToken(token string) (*auth.AdminClaims, error) {
	if token != testConsoleToken {
		return nil, errors.New("signature is invalid")
	}
	return &auth.AdminClaims{AgentID: 9, AgentName: "Carlos"}, nil
}

func newTestHub(wf TicketWorkflow, ev Evaluator) *Hub {
	return NewHub(Dependencies{
		Tickets:        wf,
		Triage:         ev,
		Tokens:         fakeVerifier{},
		Logger:         zap.NewNop(),
		Metrics:        observability.NewMetrics(),
		SendBufferSize: 16,
	})
}

func envelope(t *testing.T, event string, payload any) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{Event: event, Data: raw}
}

// drain empties a session's outbound queue without blocking.
func drain(sess *session) []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-sess.send:
			out = append(out, env)
		default:
			return out
		}
	}
}

func eventNames(envs []Envelope) []string {
	names := make([]string, 0, len(envs))
	for _, env := range envs {
		names = append(names, env.Event)
	}
	return names
}

func decodeData(t *testing.T, env Envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func joinClient(t *testing.T, h *Hub, id, name string) *session {
	t.Helper()
	sess := newSession(id, nil, 16)
	h.register(sess)
	h.Dispatch(context.Background(), sess, envelope(t, EventIdentify, IdentifyPayload{Role: "client", Name: name}))
	return sess
}

func joinAdmin(t *testing.T, h *Hub, id string) *session {
	t.Helper()
	sess := newSession(id, nil, 16)
	h.register(sess)
	h.Dispatch(context.Background(), sess, envelope(t, EventIdentify, IdentifyPayload{Role: "admin", Token: testConsoleToken}))
	return sess
}

func TestIdentifyAdminReceivesActiveTicketsList(t *testing.T) {
	wf := newFakeWorkflow()
	_, err := wf.CreateTicket(context.Background(), service.TicketCreateInput{ClientName: "Maria"})
	require.NoError(t, err)
	closed, err := wf.CreateTicket(context.Background(), service.TicketCreateInput{ClientName: "José"})
	require.NoError(t, err)
	_, err = wf.CloseTicket(context.Background(), closed.ID, "resolvido")
	require.NoError(t, err)

	h := newTestHub(wf, &fakeEvaluator{decisions: []triage.Decision{{}}})
	admin := joinAdmin(t, h, "admin-1")

	envs := drain(admin)
	require.Len(t, envs, 1)
	assert.Equal(t, EventTicketsList, envs[0].Event)

	var views []ticketView
	decodeData(t, envs[0], &views)
	require.Len(t, views, 1, "closed tickets stay off the console list")
	assert.Equal(t, "Maria", views[0].ClientName)
}

func TestIdentifyAdminRejectsBadToken(t *testing.T) {
	wf := newFakeWorkflow()
	h := newTestHub(wf, &fakeEvaluator{decisions: []triage.Decision{{}}})

	sess := newSession("admin-1", nil, 16)
	h.register(sess)
	h.Dispatch(context.Background(), sess, envelope(t, EventIdentify, IdentifyPayload{Role: "admin", Token: "forged"}))
	assert.Empty(t, drain(sess))

	// Admin-only events from the rejected connection are ignored.
	h.Dispatch(context.Background(), sess, envelope(t, EventAdminTakeTicket, AdminTakePayload{TicketID: 1}))
	assert.Empty(t, drain(sess))
}

func TestClientFirstMessageOpensTicketAndFansOut(t *testing.T) {
	wf := newFakeWorkflow()
	ev := &fakeEvaluator{decisions: []triage.Decision{{Response: "Pode detalhar o problema?"}}}
	h := newTestHub(wf, ev)

	client := joinClient(t, h, "client-1", "Maria")
	admin := joinAdmin(t, h, "admin-1")
	drain(admin)

	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "preciso de ajuda"}))

	clientEnvs := drain(client)
	require.Len(t, clientEnvs, 1, "client receives exactly one assistant reply")
	assert.Equal(t, EventMessage, clientEnvs[0].Event)
	var reply messageView
	decodeData(t, clientEnvs[0], &reply)
	assert.Equal(t, "ai", reply.SenderRole)
	assert.Equal(t, "Assistente Virtual", reply.SenderName)
	assert.Equal(t, "Pode detalhar o problema?", reply.Body)

	adminEnvs := drain(admin)
	assert.Equal(t, []string{EventNewTicket, EventTicketMessage, EventTicketMessage}, eventNames(adminEnvs))
	var mirrored messageView
	decodeData(t, adminEnvs[2], &mirrored)
	assert.Equal(t, reply.Body, mirrored.Body, "admins see the same assistant reply the client got")

	// A second message reuses the open ticket instead of creating another.
	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "continuo esperando"}))
	adminEnvs = drain(admin)
	assert.NotContains(t, eventNames(adminEnvs), EventNewTicket)
	assert.Len(t, wf.tickets, 1)
}

func TestEscalationFlow(t *testing.T) {
	wf := newFakeWorkflow()
	triageSvc := triage.NewService(emptyKnowledge{}, wf, zap.NewNop())
	h := newTestHub(wf, triageSvc)

	client := joinClient(t, h, "client-1", "Maria")
	admin := joinAdmin(t, h, "admin-1")
	drain(admin)

	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "não funciona o sistema"}))

	ticket := wf.tickets[1]
	require.NotNil(t, ticket)
	assert.Equal(t, domain.TicketStatusWaitingHuman, ticket.Status)

	clientEnvs := drain(client)
	require.Len(t, clientEnvs, 1)
	assert.Equal(t, EventMessage, clientEnvs[0].Event)
	var notice messageView
	decodeData(t, clientEnvs[0], &notice)
	assert.Equal(t, "system", notice.SenderRole)
	assert.Contains(t, notice.Body, "Transferindo seu atendimento")
	assert.Contains(t, notice.Body, triage.ReasonAgentRequested)

	adminEnvs := drain(admin)
	require.Equal(t, []string{EventNewTicket, EventTicketMessage, EventTicketNeedsAttention, EventTicketUpdated}, eventNames(adminEnvs))
	var attention NeedsAttentionPayload
	decodeData(t, adminEnvs[2], &attention)
	assert.Equal(t, ticket.ID, attention.TicketID)
	assert.Equal(t, triage.ReasonAgentRequested, attention.Reason)
	var updated ticketView
	decodeData(t, adminEnvs[3], &updated)
	assert.Equal(t, string(domain.TicketStatusWaitingHuman), updated.Status)

	// Conversation holds the client message and the system notice; the
	// assistant produced no answer of its own.
	msgs := wf.messages[ticket.ID]
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SenderRoleClient, msgs[0].SenderRole)
	assert.Equal(t, domain.SenderRoleSystem, msgs[1].SenderRole)
}

func TestAdminTakeNotifiesClientAndConsoles(t *testing.T) {
	wf := newFakeWorkflow()
	ev := &fakeEvaluator{decisions: []triage.Decision{{Response: "ok"}}}
	h := newTestHub(wf, ev)

	client := joinClient(t, h, "client-1", "Maria")
	admin := joinAdmin(t, h, "admin-1")
	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "preciso de ajuda"}))
	drain(client)
	drain(admin)

	h.Dispatch(context.Background(), admin, envelope(t, EventAdminTakeTicket, AdminTakePayload{TicketID: 1}))

	clientEnvs := drain(client)
	require.Len(t, clientEnvs, 1)
	assert.Equal(t, EventAgentConnected, clientEnvs[0].Event)
	var joined AgentConnectedPayload
	decodeData(t, clientEnvs[0], &joined)
	assert.Equal(t, "Carlos", joined.AgentName)

	adminEnvs := drain(admin)
	require.Len(t, adminEnvs, 1)
	assert.Equal(t, EventTicketUpdated, adminEnvs[0].Event)

	ticket := wf.tickets[1]
	assert.Equal(t, domain.TicketStatusHumanHandling, ticket.Status)
	require.NotNil(t, ticket.AgentName)
	assert.Equal(t, "Carlos", *ticket.AgentName)
	require.NotNil(t, ticket.AgentID)
	assert.Equal(t, int64(9), *ticket.AgentID)
}

func TestAdminMessageReachesClient(t *testing.T) {
	wf := newFakeWorkflow()
	ev := &fakeEvaluator{decisions: []triage.Decision{{Response: "ok"}}}
	h := newTestHub(wf, ev)

	client := joinClient(t, h, "client-1", "Maria")
	admin := joinAdmin(t, h, "admin-1")
	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "preciso de ajuda"}))
	drain(client)
	drain(admin)

	h.Dispatch(context.Background(), admin, envelope(t, EventAdminMessage, AdminMessagePayload{TicketID: 1, Text: "Olá, em que posso ajudar?"}))

	clientEnvs := drain(client)
	require.Len(t, clientEnvs, 1)
	assert.Equal(t, EventMessage, clientEnvs[0].Event)
	var msg messageView
	decodeData(t, clientEnvs[0], &msg)
	assert.Equal(t, "admin", msg.SenderRole)
	assert.Equal(t, "Carlos", msg.SenderName)
	assert.Equal(t, "Olá, em que posso ajudar?", msg.Body)

	adminEnvs := drain(admin)
	require.Len(t, adminEnvs, 1)
	assert.Equal(t, EventTicketMessage, adminEnvs[0].Event)
}

func TestAdminCloseAndReopen(t *testing.T) {
	wf := newFakeWorkflow()
	ev := &fakeEvaluator{decisions: []triage.Decision{{Response: "ok"}}}
	h := newTestHub(wf, ev)

	client := joinClient(t, h, "client-1", "Maria")
	admin := joinAdmin(t, h, "admin-1")
	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "preciso de ajuda"}))
	drain(client)
	drain(admin)

	h.Dispatch(context.Background(), admin, envelope(t, EventAdminCloseTicket, AdminClosePayload{TicketID: 1, Resolution: "orientado"}))

	clientEnvs := drain(client)
	require.Len(t, clientEnvs, 1)
	assert.Equal(t, EventTicketClosed, clientEnvs[0].Event)
	var closedView ticketView
	decodeData(t, clientEnvs[0], &closedView)
	assert.Equal(t, string(domain.TicketStatusClosed), closedView.Status)

	adminEnvs := drain(admin)
	require.Len(t, adminEnvs, 1)
	assert.Equal(t, EventTicketUpdated, adminEnvs[0].Event)

	h.Dispatch(context.Background(), admin, envelope(t, EventAdminReopenTicket, AdminReopenPayload{TicketID: 1}))
	adminEnvs = drain(admin)
	require.Len(t, adminEnvs, 1)
	var reopened ticketView
	decodeData(t, adminEnvs[0], &reopened)
	assert.Equal(t, string(domain.TicketStatusWaitingHuman), reopened.Status)

	// Reopening an unknown id is a no-op on the wire.
	h.Dispatch(context.Background(), admin, envelope(t, EventAdminReopenTicket, AdminReopenPayload{TicketID: 404}))
	assert.Empty(t, drain(admin))
}

func TestClientDisconnectLeavesSystemNote(t *testing.T) {
	wf := newFakeWorkflow()
	ev := &fakeEvaluator{decisions: []triage.Decision{{Response: "ok"}}}
	h := newTestHub(wf, ev)

	client := joinClient(t, h, "client-1", "Maria")
	admin := joinAdmin(t, h, "admin-1")
	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "preciso de ajuda"}))
	drain(client)
	drain(admin)

	h.disconnect(client)

	adminEnvs := drain(admin)
	require.Len(t, adminEnvs, 1)
	assert.Equal(t, EventClientDisconnected, adminEnvs[0].Event)
	var gone ClientDisconnectedPayload
	decodeData(t, adminEnvs[0], &gone)
	assert.Equal(t, int64(1), gone.TicketID)

	msgs := wf.messages[1]
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, domain.SenderRoleSystem, last.SenderRole)
	assert.Equal(t, "Cliente desconectou do chat.", last.Body)
}

func TestAdminDisconnectIsSilent(t *testing.T) {
	wf := newFakeWorkflow()
	h := newTestHub(wf, &fakeEvaluator{decisions: []triage.Decision{{}}})

	admin := joinAdmin(t, h, "admin-1")
	other := joinAdmin(t, h, "admin-2")
	drain(admin)
	drain(other)

	h.disconnect(admin)
	assert.Empty(t, drain(other))
	assert.Empty(t, wf.messages)
}

func TestStoreFailureDropsEventWithoutRetry(t *testing.T) {
	wf := newFakeWorkflow()
	ev := &fakeEvaluator{decisions: []triage.Decision{{Response: "ok"}}}
	h := newTestHub(wf, ev)

	client := joinClient(t, h, "client-1", "Maria")
	admin := joinAdmin(t, h, "admin-1")
	drain(admin)

	wf.failAddMessage = true
	h.Dispatch(context.Background(), client, envelope(t, EventClientMessage, ClientMessagePayload{Text: "preciso de ajuda"}))

	// The ticket was opened before the store failed; the message itself
	// is gone and nothing reaches the client.
	assert.Equal(t, []string{EventNewTicket}, eventNames(drain(admin)))
	assert.Empty(t, drain(client))
	assert.Equal(t, int64(1), h.metrics.RelayDropped(EventClientMessage))
}

func TestUnidentifiedConnectionCannotMessage(t *testing.T) {
	wf := newFakeWorkflow()
	h := newTestHub(wf, &fakeEvaluator{decisions: []triage.Decision{{}}})

	sess := newSession("ghost", nil, 16)
	h.register(sess)
	h.Dispatch(context.Background(), sess, envelope(t, EventClientMessage, ClientMessagePayload{Text: "oi"}))

	assert.Empty(t, wf.tickets)
	assert.Empty(t, drain(sess))
}
