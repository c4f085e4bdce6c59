package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/westcreek-sd/helpdesk/internal/portal/model"
)

// ErrTicketNotFound is returned when a ticket lookup finds no matching record.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketRepository provides CRUD and aggregate operations for tickets
// against PostgreSQL.
type TicketRepository struct {
	db *pgxpool.Pool
}

// NewTicketRepository creates a new TicketRepository.
func NewTicketRepository(db *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create inserts a new ticket. Sets ID, CreatedAt, UpdatedAt on the ticket.
func (r *TicketRepository) Create(ctx context.Context, t *model.Ticket) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	q := `
		INSERT INTO tickets
			(category, status, priority, requester_name, requester_email,
			 requester_phone, school, subject, description, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	err := r.db.QueryRow(ctx, q,
		t.Category, t.Status, t.Priority, t.RequesterName, t.RequesterEmail,
		t.RequesterPhone, t.School, t.Subject, t.Description, t.Details,
		t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket by its numeric id.
func (r *TicketRepository) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	return r.scanOne(ctx, `SELECT * FROM tickets WHERE id = $1`, id)
}

// List returns tickets matching the filter, newest first.
func (r *TicketRepository) List(ctx context.Context, f model.ListFilter) ([]*model.Ticket, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	// Search matches subject, requester name, or requester email.
	pattern := "%" + f.Search + "%"
	q := `
		SELECT * FROM tickets
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR category = $2)
		  AND ($3 = '' OR priority = $3)
		  AND ($4 = '' OR subject ILIKE $5 OR requester_name ILIKE $5 OR requester_email ILIKE $5)
		ORDER BY created_at DESC
		LIMIT $6 OFFSET $7`

	rows, err := r.db.Query(ctx, q,
		string(f.Status), string(f.Category), string(f.Priority),
		f.Search, pattern, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*model.Ticket
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// UpdateStatus moves a ticket to the given status. resolvedAt is set when the
// ticket enters resolved, and cleared when it leaves it.
func (r *TicketRepository) UpdateStatus(ctx context.Context, id int64, status model.Status, resolvedAt *time.Time) error {
	q := `UPDATE tickets SET status = $2, resolved_at = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, status, resolvedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// Assign sets the ticket's assignee.
func (r *TicketRepository) Assign(ctx context.Context, id int64, assigneeID uuid.UUID) error {
	q := `UPDATE tickets SET assignee_id = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, assigneeID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// Total returns the total number of tickets.
func (r *TicketRepository) Total(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&n)
	return n, err
}

// CountGroupedBy returns ticket counts grouped by the given column. Only the
// fixed column names used by Stats are accepted.
func (r *TicketRepository) CountGroupedBy(ctx context.Context, column string) (map[string]int64, error) {
	switch column {
	case "status", "category", "priority":
	default:
		return nil, fmt.Errorf("unsupported group column %q", column)
	}

	rows, err := r.db.Query(ctx, `SELECT `+column+`, COUNT(*) FROM tickets GROUP BY `+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// CreatedSince returns the number of tickets created at or after the cutoff.
func (r *TicketRepository) CreatedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE created_at >= $1`, cutoff).Scan(&n)
	return n, err
}

// scanOne executes a single-row query and scans the result into a Ticket.
func (r *TicketRepository) scanOne(ctx context.Context, q string, args ...any) (*model.Ticket, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrTicketNotFound
	}
	t, err := scan(rows)
	if err != nil {
		return nil, err
	}
	return t, rows.Err()
}

// scan reads one ticket row. Column order matches the schema definition:
// id, category, status, priority, requester_name, requester_email,
// requester_phone, school, subject, description, details, assignee_id,
// created_at, updated_at, resolved_at.
func scan(rows pgx.Rows) (*model.Ticket, error) {
	var t model.Ticket
	if err := rows.Scan(
		&t.ID, &t.Category, &t.Status, &t.Priority,
		&t.RequesterName, &t.RequesterEmail, &t.RequesterPhone, &t.School,
		&t.Subject, &t.Description, &t.Details, &t.AssigneeID,
		&t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt,
	); err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	return &t, nil
}
