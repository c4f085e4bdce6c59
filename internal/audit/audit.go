// Package audit records an append-only history of ticket lifecycle events:
// who created, re-statused, or assigned each ticket, and when. Entries are
// written alongside the mutation they describe and surfaced on the admin
// ticket detail view.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded against tickets.
const (
	ActionCreated       = "created"
	ActionStatusChanged = "status_changed"
	ActionAssigned      = "assigned"
)

// Event is one recorded ticket action.
type Event struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	TicketID  int64           `json:"ticket_id"  db:"ticket_id"`
	Action    string          `json:"action"     db:"action"`
	Actor     string          `json:"actor"      db:"actor"` // "portal" for public submissions, staff email otherwise
	Detail    json.RawMessage `json:"detail"     db:"detail"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Log is the event store interface. PostgresLog is the production
// implementation; MemoryLog backs tests and ad-hoc tooling.
type Log interface {
	Append(ctx context.Context, ticketID int64, action, actor string, detail any) (*Event, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]*Event, error)
}
