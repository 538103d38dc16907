package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jovemegidio/sistemaerp-suporte/internal/auth"
	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
	"github.com/jovemegidio/sistemaerp-suporte/internal/observability"
	"github.com/jovemegidio/sistemaerp-suporte/internal/service"
	"github.com/jovemegidio/sistemaerp-suporte/internal/triage"
)

// TicketWorkflow is the subset of the ticket service the relay drives.
type TicketWorkflow interface {
	CreateTicket(ctx context.Context, input service.TicketCreateInput) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id int64) (*domain.Ticket, error)
	ListActiveTickets(ctx context.Context) ([]domain.Ticket, error)
	AddMessage(ctx context.Context, ticketID int64, role domain.SenderRole, senderName, body string, senderID *int64) (*domain.Message, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus) (int64, error)
	AssignTicket(ctx context.Context, id int64, agentName string, agentID *int64) (*domain.Ticket, error)
	CloseTicket(ctx context.Context, id int64, resolution string) (*domain.Ticket, error)
	ReopenTicket(ctx context.Context, id int64) (*domain.Ticket, error)
}

// Evaluator decides the automated response for one client message.
type Evaluator interface {
	Evaluate(ctx context.Context, messageText string, ticket *domain.Ticket) (triage.Decision, error)
}

// AdminTokenVerifier validates admin console tokens on identify.
type AdminTokenVerifier interface {
	ParseAdminToken(token string) (*auth.AdminClaims, error)
}

// clientState is the transient, non-authoritative record the relay keeps
// for one identified client connection. Discarded on disconnect; the
// ticket store remains the durable source of truth.
type clientState struct {
	Name     string
	Email    *string
	ClientID *int64
	TicketID int64 // zero until the first message opens a ticket
}

type adminIdentity struct {
	AgentID   int64
	AgentName string
}

// Dependencies bundles collaborators for the hub.
type Dependencies struct {
	Tickets TicketWorkflow
	Triage  Evaluator
	Tokens  AdminTokenVerifier
	Logger  *zap.Logger
	Metrics *observability.Metrics

	SendBufferSize int
}

// Hub owns all live connection state and fans ticket events out to the
// originating client and the admin broadcast group. All maps are guarded
// by one mutex; event handlers run on the per-connection read goroutine
// and issue their store writes sequentially.
type Hub struct {
	tickets TicketWorkflow
	triage  Evaluator
	tokens  AdminTokenVerifier
	logger  *zap.Logger
	metrics *observability.Metrics
	sendBuf int

	mu       sync.RWMutex
	sessions map[string]*session
	clients  map[string]*clientState
	admins   map[string]*session
	idents   map[string]adminIdentity
}

// NewHub constructs the relay hub.
func NewHub(deps Dependencies) *Hub {
	return &Hub{
		tickets:  deps.Tickets,
		triage:   deps.Triage,
		tokens:   deps.Tokens,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		sendBuf:  deps.SendBufferSize,
		sessions: make(map[string]*session),
		clients:  make(map[string]*clientState),
		admins:   make(map[string]*session),
		idents:   make(map[string]adminIdentity),
	}
}

// Serve runs one connection to completion: registers a session, starts
// its writer, then reads events until the socket dies.
func (h *Hub) Serve(conn wsConn) {
	sess := newSession(uuid.NewString(), conn, h.sendBuf)
	h.register(sess)
	go sess.writePump()
	defer h.disconnect(sess)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.logger.Warn("discarding malformed envelope", zap.String("connection", sess.id), zap.Error(err))
			continue
		}
		h.Dispatch(context.Background(), sess, env)
	}
}

// Dispatch routes one inbound envelope to its handler. Store failures
// inside handlers are logged and the event is dropped; nothing propagates
// back over the socket.
func (h *Hub) Dispatch(ctx context.Context, sess *session, env Envelope) {
	switch env.Event {
	case EventIdentify:
		h.handleIdentify(ctx, sess, env.Data)
	case EventClientMessage:
		h.handleClientMessage(ctx, sess, env.Data)
	case EventAdminTakeTicket:
		h.handleAdminTake(ctx, sess, env.Data)
	case EventAdminMessage:
		h.handleAdminMessage(ctx, sess, env.Data)
	case EventAdminCloseTicket:
		h.handleAdminClose(ctx, sess, env.Data)
	case EventAdminReopenTicket:
		h.handleAdminReopen(ctx, sess, env.Data)
	default:
		h.logger.Warn("unknown relay event", zap.String("event", env.Event), zap.String("connection", sess.id))
	}
}

func (h *Hub) register(sess *session) {
	h.mu.Lock()
	h.sessions[sess.id] = sess
	h.mu.Unlock()
	h.logger.Debug("connection registered", zap.String("connection", sess.id))
}

func (h *Hub) handleIdentify(ctx context.Context, sess *session, raw json.RawMessage) {
	var payload IdentifyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.dropEvent(EventIdentify, sess.id, err)
		return
	}

	if payload.Role == "admin" {
		claims, err := h.tokens.ParseAdminToken(payload.Token)
		if err != nil {
			h.logger.Warn("rejecting admin identify", zap.String("connection", sess.id), zap.Error(err))
			return
		}
		h.mu.Lock()
		h.admins[sess.id] = sess
		h.idents[sess.id] = adminIdentity{AgentID: claims.AgentID, AgentName: claims.AgentName}
		h.mu.Unlock()

		tickets, err := h.tickets.ListActiveTickets(ctx)
		if err != nil {
			h.dropEvent(EventTicketsList, sess.id, err)
			return
		}
		h.deliver(sess, EventTicketsList, newTicketViews(tickets))
		h.logger.Info("admin console connected", zap.String("connection", sess.id), zap.String("agent", claims.AgentName))
		return
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		name = "Visitante"
	}
	state := &clientState{Name: name, ClientID: payload.ClientID}
	if payload.Email != "" {
		email := payload.Email
		state.Email = &email
	}
	h.mu.Lock()
	h.clients[sess.id] = state
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("connection", sess.id), zap.String("name", name))
}

func (h *Hub) handleClientMessage(ctx context.Context, sess *session, raw json.RawMessage) {
	var payload ClientMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.dropEvent(EventClientMessage, sess.id, err)
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return
	}

	h.mu.RLock()
	state, identified := h.clients[sess.id]
	h.mu.RUnlock()
	if !identified {
		h.logger.Warn("message from unidentified connection", zap.String("connection", sess.id))
		return
	}

	ticket, created, err := h.ticketForClient(ctx, sess.id, state)
	if err != nil {
		h.dropEvent(EventClientMessage, sess.id, err)
		return
	}
	if created {
		h.broadcastAdmins(EventNewTicket, newTicketView(ticket))
	}

	msg, err := h.tickets.AddMessage(ctx, ticket.ID, domain.SenderRoleClient, state.Name, text, nil)
	if err != nil {
		h.dropEvent(EventClientMessage, sess.id, err)
		return
	}
	h.broadcastAdmins(EventTicketMessage, newMessageView(msg))

	if ticket.Status != domain.TicketStatusAIHandling {
		return
	}
	h.runTriage(ctx, sess, text, ticket)
}

// runTriage evaluates one client message on an ai_handling ticket and
// applies the decision: an AI reply to both audiences, or escalation to
// the human queue.
func (h *Hub) runTriage(ctx context.Context, sess *session, text string, ticket *domain.Ticket) {
	decision, err := h.triage.Evaluate(ctx, text, ticket)
	if err != nil {
		h.dropEvent(EventClientMessage, sess.id, err)
		return
	}

	if !decision.Escalate {
		aiMsg, err := h.tickets.AddMessage(ctx, ticket.ID, domain.SenderRoleAI, "Assistente Virtual", decision.Response, nil)
		if err != nil {
			h.dropEvent(EventClientMessage, sess.id, err)
			return
		}
		h.deliver(sess, EventMessage, newMessageView(aiMsg))
		h.broadcastAdmins(EventTicketMessage, newMessageView(aiMsg))
		return
	}

	notice := "Transferindo seu atendimento para um de nossos atendentes. Motivo: " + decision.Reason
	sysMsg, err := h.tickets.AddMessage(ctx, ticket.ID, domain.SenderRoleSystem, "Sistema", notice, nil)
	if err != nil {
		h.dropEvent(EventClientMessage, sess.id, err)
		return
	}
	if _, err := h.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusWaitingHuman); err != nil {
		h.dropEvent(EventClientMessage, sess.id, err)
		return
	}

	h.deliver(sess, EventMessage, newMessageView(sysMsg))
	h.broadcastAdmins(EventTicketNeedsAttention, NeedsAttentionPayload{TicketID: ticket.ID, Reason: decision.Reason})
	if updated, err := h.tickets.GetTicket(ctx, ticket.ID); err == nil && updated != nil {
		h.broadcastAdmins(EventTicketUpdated, newTicketView(updated))
	}
}

// ticketForClient reuses the connection's in-progress ticket or opens a
// fresh one on the first message.
func (h *Hub) ticketForClient(ctx context.Context, connID string, state *clientState) (*domain.Ticket, bool, error) {
	h.mu.RLock()
	ticketID := state.TicketID
	h.mu.RUnlock()

	if ticketID != 0 {
		ticket, err := h.tickets.GetTicket(ctx, ticketID)
		if err != nil {
			return nil, false, err
		}
		if ticket != nil {
			return ticket, false, nil
		}
		// Cached id points nowhere; fall through and open a new ticket.
	}

	input := service.TicketCreateInput{
		ClientName:   state.Name,
		ClientEmail:  state.Email,
		ConnectionID: &connID,
		ClientID:     state.ClientID,
	}
	ticket, err := h.tickets.CreateTicket(ctx, input)
	if err != nil {
		return nil, false, err
	}
	h.mu.Lock()
	state.TicketID = ticket.ID
	h.mu.Unlock()
	return ticket, true, nil
}

func (h *Hub) handleAdminTake(ctx context.Context, sess *session, raw json.RawMessage) {
	ident, ok := h.adminIdentity(sess.id)
	if !ok {
		return
	}
	var payload AdminTakePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.dropEvent(EventAdminTakeTicket, sess.id, err)
		return
	}

	agentID := ident.AgentID
	ticket, err := h.tickets.AssignTicket(ctx, payload.TicketID, ident.AgentName, &agentID)
	if err != nil {
		h.dropEvent(EventAdminTakeTicket, sess.id, err)
		return
	}

	if clientSess := h.clientSessionForTicket(ticket.ID); clientSess != nil {
		h.deliver(clientSess, EventAgentConnected, AgentConnectedPayload{TicketID: ticket.ID, AgentName: ident.AgentName})
	}
	h.broadcastAdmins(EventTicketUpdated, newTicketView(ticket))
}

func (h *Hub) handleAdminMessage(ctx context.Context, sess *session, raw json.RawMessage) {
	ident, ok := h.adminIdentity(sess.id)
	if !ok {
		return
	}
	var payload AdminMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.dropEvent(EventAdminMessage, sess.id, err)
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return
	}

	agentID := ident.AgentID
	msg, err := h.tickets.AddMessage(ctx, payload.TicketID, domain.SenderRoleAdmin, ident.AgentName, text, &agentID)
	if err != nil {
		h.dropEvent(EventAdminMessage, sess.id, err)
		return
	}

	if clientSess := h.clientSessionForTicket(payload.TicketID); clientSess != nil {
		h.deliver(clientSess, EventMessage, newMessageView(msg))
	}
	h.broadcastAdmins(EventTicketMessage, newMessageView(msg))
}

func (h *Hub) handleAdminClose(ctx context.Context, sess *session, raw json.RawMessage) {
	if _, ok := h.adminIdentity(sess.id); !ok {
		return
	}
	var payload AdminClosePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.dropEvent(EventAdminCloseTicket, sess.id, err)
		return
	}

	ticket, err := h.tickets.CloseTicket(ctx, payload.TicketID, payload.Resolution)
	if err != nil {
		h.dropEvent(EventAdminCloseTicket, sess.id, err)
		return
	}

	if clientSess := h.clientSessionForTicket(ticket.ID); clientSess != nil {
		h.deliver(clientSess, EventTicketClosed, newTicketView(ticket))
	}
	h.broadcastAdmins(EventTicketUpdated, newTicketView(ticket))
}

func (h *Hub) handleAdminReopen(ctx context.Context, sess *session, raw json.RawMessage) {
	if _, ok := h.adminIdentity(sess.id); !ok {
		return
	}
	var payload AdminReopenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.dropEvent(EventAdminReopenTicket, sess.id, err)
		return
	}

	ticket, err := h.tickets.ReopenTicket(ctx, payload.TicketID)
	if err != nil {
		h.dropEvent(EventAdminReopenTicket, sess.id, err)
		return
	}
	if ticket == nil {
		h.logger.Warn("reopen of unknown ticket", zap.Int64("ticket_id", payload.TicketID))
		return
	}
	h.broadcastAdmins(EventTicketUpdated, newTicketView(ticket))
}

// disconnect tears down a connection's transient state. A client that
// had an active ticket leaves a system note so agents see the drop.
func (h *Hub) disconnect(sess *session) {
	h.mu.Lock()
	delete(h.sessions, sess.id)
	_, wasAdmin := h.admins[sess.id]
	delete(h.admins, sess.id)
	delete(h.idents, sess.id)
	state, wasClient := h.clients[sess.id]
	delete(h.clients, sess.id)
	h.mu.Unlock()

	sess.close()

	if wasAdmin {
		h.logger.Info("admin console disconnected", zap.String("connection", sess.id))
		return
	}
	if wasClient && state.TicketID != 0 {
		ctx := context.Background()
		if _, err := h.tickets.AddMessage(ctx, state.TicketID, domain.SenderRoleSystem, "Sistema", "Cliente desconectou do chat.", nil); err != nil {
			h.dropEvent(EventClientDisconnected, sess.id, err)
		}
		h.broadcastAdmins(EventClientDisconnected, ClientDisconnectedPayload{TicketID: state.TicketID})
	}
	h.logger.Debug("connection discarded", zap.String("connection", sess.id))
}

func (h *Hub) adminIdentity(connID string) (adminIdentity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ident, ok := h.idents[connID]
	if !ok {
		h.logger.Warn("admin event from non-admin connection", zap.String("connection", connID))
	}
	return ident, ok
}

func (h *Hub) clientSessionForTicket(ticketID int64) *session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID, state := range h.clients {
		if state.TicketID == ticketID {
			return h.sessions[connID]
		}
	}
	return nil
}

// deliver sends one event to one session, best effort. Dropped envelopes
// are logged and counted; there is no retry.
func (h *Hub) deliver(sess *session, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.dropEvent(event, sess.id, err)
		return
	}
	if !sess.enqueue(Envelope{Event: event, Data: raw}) {
		h.logger.Warn("outbound queue full, dropping event", zap.String("event", event), zap.String("connection", sess.id))
		if h.metrics != nil {
			h.metrics.RecordRelayDropped(event)
		}
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRelayDelivered(event)
	}
}

func (h *Hub) broadcastAdmins(event string, data any) {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.admins))
	for _, admin := range h.admins {
		targets = append(targets, admin)
	}
	h.mu.RUnlock()

	for _, admin := range targets {
		h.deliver(admin, event, data)
	}
}

func (h *Hub) dropEvent(event, connID string, err error) {
	h.logger.Error("dropping relay event", zap.String("event", event), zap.String("connection", connID), zap.Error(err))
	if h.metrics != nil {
		h.metrics.RecordRelayDropped(event)
	}
}
