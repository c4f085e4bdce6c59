package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog persists ticket events to PostgreSQL.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a PostgresLog backed by the given connection pool.
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// Append implements Log.
func (l *PostgresLog) Append(ctx context.Context, ticketID int64, action, actor string, detail any) (*Event, error) {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal event detail: %w", err)
	}

	e := &Event{
		ID:        uuid.New(),
		TicketID:  ticketID,
		Action:    action,
		Actor:     actor,
		Detail:    detailJSON,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO ticket_events (id, ticket_id, action, actor, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.TicketID, e.Action, e.Actor, e.Detail, e.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert ticket event: %w", err)
	}
	return e, nil
}

// ListByTicket implements Log. Events are returned oldest first.
func (l *PostgresLog) ListByTicket(ctx context.Context, ticketID int64) ([]*Event, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, ticket_id, action, actor, detail, created_at
		 FROM ticket_events WHERE ticket_id = $1 ORDER BY created_at ASC`,
		ticketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TicketID, &e.Action, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
