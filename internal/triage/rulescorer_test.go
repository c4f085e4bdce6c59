package triage_test

import (
	"context"
	"testing"

	"github.com/westcreek-sd/helpdesk/internal/portal/model"
	"github.com/westcreek-sd/helpdesk/internal/triage"
)

func TestSuggest_securityIncidentIsUrgent(t *testing.T) {
	s := triage.NewRuleBasedScorer()
	got := s.Suggest(context.Background(), model.CategoryTroubleshooting,
		"Suspicious email asking for passwords",
		"Several staff received a phishing message this morning.")
	if got.Priority != model.PriorityUrgent {
		t.Errorf("priority: got %q, want %q (score %d)", got.Priority, model.PriorityUrgent, got.Score)
	}
	if len(got.Findings) == 0 {
		t.Error("expected at least one finding")
	}
}

func TestSuggest_outageIsHigh(t *testing.T) {
	s := triage.NewRuleBasedScorer()
	got := s.Suggest(context.Background(), model.CategoryTroubleshooting,
		"WiFi down in the east wing",
		"No internet in rooms 201 through 214 since 8am.")
	if got.Priority != model.PriorityHigh {
		t.Errorf("priority: got %q, want %q (score %d)", got.Priority, model.PriorityHigh, got.Score)
	}
}

func TestSuggest_lockoutIsMedium(t *testing.T) {
	s := triage.NewRuleBasedScorer()
	got := s.Suggest(context.Background(), model.CategoryAccount,
		"Locked out of my account",
		"Password expired over the weekend and I cannot log in.")
	if got.Priority != model.PriorityMedium {
		t.Errorf("priority: got %q, want %q (score %d)", got.Priority, model.PriorityMedium, got.Score)
	}
}

func TestSuggest_quietTicketIsLow(t *testing.T) {
	s := triage.NewRuleBasedScorer()
	got := s.Suggest(context.Background(), model.CategoryDocument,
		"Uploading the field trip form",
		"Please file the attached permission form.")
	if got.Priority != model.PriorityLow {
		t.Errorf("priority: got %q, want %q (score %d)", got.Priority, model.PriorityLow, got.Score)
	}
	if got.Findings == nil {
		t.Error("findings must be non-nil even when empty")
	}
}

func TestSuggest_lockoutRuleOnlyAppliesToAccountTickets(t *testing.T) {
	s := triage.NewRuleBasedScorer()
	got := s.Suggest(context.Background(), model.CategoryDocument,
		"cannot log in note", "Mentioning cannot log in inside a document ticket.")
	if got.Priority != model.PriorityLow {
		t.Errorf("priority: got %q, want %q", got.Priority, model.PriorityLow)
	}
}
