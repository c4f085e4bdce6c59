package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-memory, thread-safe Log implementation for tests and
// single-process tooling that does not need durable history.
type MemoryLog struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, ticketID int64, action, actor string, detail any) (*Event, error) {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal event detail: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := &Event{
		ID:        uuid.New(),
		TicketID:  ticketID,
		Action:    action,
		Actor:     actor,
		Detail:    detailJSON,
		CreatedAt: time.Now().UTC(),
	}
	l.events = append(l.events, e)
	return e, nil
}

// ListByTicket implements Log.
func (l *MemoryLog) ListByTicket(_ context.Context, ticketID int64) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Event
	for _, e := range l.events {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}
