// Package triage suggests an initial priority for incoming tickets so the
// queue is roughly ordered before a human ever looks at it. Submitters do
// not pick their own priority; the scorer does, and admins can override it.
package triage

import (
	"context"

	"github.com/westcreek-sd/helpdesk/internal/portal/model"
)

// Finding is one rule match that contributed to the suggestion.
type Finding struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// Suggestion is the scorer's output for a single ticket.
type Suggestion struct {
	Priority model.Priority `json:"priority"`
	Score    int            `json:"score"`
	Findings []Finding      `json:"findings"`
}

// Scorer suggests a priority from the ticket's free-text fields.
type Scorer interface {
	Suggest(ctx context.Context, category model.Category, subject, description string) Suggestion
}
