package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Category identifies which help-desk queue a ticket belongs to.
type Category string

const (
	CategoryTroubleshooting Category = "troubleshooting"
	CategoryAccount         Category = "account"
	CategoryDocument        Category = "document"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTroubleshooting, CategoryAccount, CategoryDocument:
		return true
	}
	return false
}

// Status is the triage lifecycle state of a ticket.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority orders tickets within a queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is one help-desk request submitted through the public portal.
// Details holds the category-specific payload verbatim as submitted.
type Ticket struct {
	ID             int64           `json:"id"              db:"id"`
	Category       Category        `json:"category"        db:"category"`
	Status         Status          `json:"status"          db:"status"`
	Priority       Priority        `json:"priority"        db:"priority"`
	RequesterName  string          `json:"requester_name"  db:"requester_name"`
	RequesterEmail string          `json:"requester_email" db:"requester_email"`
	RequesterPhone string          `json:"requester_phone" db:"requester_phone"`
	School         string          `json:"school"          db:"school"`
	Subject        string          `json:"subject"         db:"subject"`
	Description    string          `json:"description"     db:"description"`
	Details        json.RawMessage `json:"details"         db:"details"`
	AssigneeID     *uuid.UUID      `json:"assignee_id,omitempty" db:"assignee_id"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"      db:"updated_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// TrackingID derives the human-shareable identifier handed to submitters:
// the creation date as YYYYMMDD, a dash, and the numeric ticket id. Clients
// parse and display it literally, so the shape is a fixed contract.
func (t *Ticket) TrackingID() string {
	return t.CreatedAt.Format("20060102") + "-" + strconv.FormatInt(t.ID, 10)
}

var trackingIDPattern = regexp.MustCompile(`^(\d{8})-(\d+)$`)

// ParseTrackingID splits a tracking id into its date part and ticket id.
func ParseTrackingID(s string) (date string, id int64, err error) {
	m := trackingIDPattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, fmt.Errorf("malformed tracking id %q", s)
	}
	id, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed tracking id %q: %w", s, err)
	}
	return m[1], id, nil
}
