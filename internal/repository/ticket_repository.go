package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
)

const ticketColumns = `id, protocol, client_name, client_email, subject, category, status,
        agent_id, agent_name, connection_id, client_id, priority, resolution, rating,
        created_at, updated_at, closed_at`

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ListAll(ctx context.Context) ([]domain.Ticket, error)
	ListActive(ctx context.Context) ([]domain.Ticket, error)
	ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus) (int64, error)
	Assign(ctx context.Context, id int64, agentName string, agentID *int64) error
	Close(ctx context.Context, id int64, resolution string) error
	CountsByStatus(ctx context.Context) (map[domain.TicketStatus]int64, error)
}

type ticketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db *sqlx.DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (protocol, client_name, client_email, subject, category, status,
            connection_id, client_id, priority)
        VALUES (:protocol, :client_name, :client_email, :subject, :category, :status,
            :connection_id, :client_id, :priority)`
	res, err := r.db.NamedExecContext(ctx, query, ticket)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ticket.ID = id
	return r.reload(ctx, ticket)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	var ticket domain.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=?`
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *ticketRepository) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status<>? ORDER BY created_at DESC`
	return r.list(ctx, query, domain.TicketStatusClosed)
}

func (r *ticketRepository) ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status=? ORDER BY created_at DESC`
	return r.list(ctx, query, status)
}

// UpdateStatus returns the number of affected rows; zero signals an
// unknown ticket id.
func (r *ticketRepository) UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET status=? WHERE id=?`, status, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ticketRepository) Assign(ctx context.Context, id int64, agentName string, agentID *int64) error {
	const query = `
        UPDATE tickets SET status=?, agent_name=?, agent_id=?
        WHERE id=?`
	_, err := r.db.ExecContext(ctx, query, domain.TicketStatusHumanHandling, agentName, agentID, id)
	return err
}

func (r *ticketRepository) Close(ctx context.Context, id int64, resolution string) error {
	const query = `
        UPDATE tickets SET status=?, resolution=?, closed_at=?
        WHERE id=?`
	_, err := r.db.ExecContext(ctx, query, domain.TicketStatusClosed, resolution, time.Now(), id)
	return err
}

func (r *ticketRepository) CountsByStatus(ctx context.Context) (map[domain.TicketStatus]int64, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int64)
	for rows.Next() {
		var status domain.TicketStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, args...); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *ticketRepository) reload(ctx context.Context, ticket *domain.Ticket) error {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=?`
	return r.db.GetContext(ctx, ticket, query, ticket.ID)
}
