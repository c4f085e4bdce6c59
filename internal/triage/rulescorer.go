package triage

import (
	"context"
	"strings"

	"github.com/westcreek-sd/helpdesk/internal/portal/model"
)

// ruleFunc inspects the ticket text and returns zero or more Findings.
type ruleFunc func(category model.Category, text string) []Finding

// RuleBasedScorer is the default Scorer. It runs a fixed set of keyword
// rules against the subject and description and maps the accumulated score
// to a priority band.
type RuleBasedScorer struct {
	rules []ruleFunc
}

// NewRuleBasedScorer returns a RuleBasedScorer loaded with the default rules.
func NewRuleBasedScorer() *RuleBasedScorer {
	s := &RuleBasedScorer{}
	s.rules = []ruleFunc{
		ruleSecurityKeywords,
		ruleOutageKeywords,
		ruleClassroomImpact,
		ruleAccountLockout,
	}
	return s
}

// Suggest implements Scorer.
func (s *RuleBasedScorer) Suggest(_ context.Context, category model.Category, subject, description string) Suggestion {
	text := strings.ToLower(subject + " " + description)

	var findings []Finding
	total := 0
	for _, r := range s.rules {
		for _, f := range r(category, text) {
			findings = append(findings, f)
			total += f.Weight
		}
	}
	if findings == nil {
		findings = []Finding{}
	}

	return Suggestion{
		Priority: priorityBand(total),
		Score:    total,
		Findings: findings,
	}
}

// priorityBand maps an accumulated score to a priority.
func priorityBand(score int) model.Priority {
	switch {
	case score >= 60:
		return model.PriorityUrgent
	case score >= 30:
		return model.PriorityHigh
	case score >= 10:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// securityKeywords indicate a possible incident rather than a support request.
var securityKeywords = []string{
	"phishing", "virus", "malware", "ransomware", "hacked", "compromised",
	"data breach", "suspicious email",
}

func ruleSecurityKeywords(_ model.Category, text string) []Finding {
	var findings []Finding
	for _, kw := range securityKeywords {
		if strings.Contains(text, kw) {
			findings = append(findings, Finding{
				Rule:        "security_keyword",
				Description: "Text mentions a possible security incident: " + kw,
				Weight:      60,
			})
			break
		}
	}
	return findings
}

// outageKeywords indicate many users are affected at once.
var outageKeywords = []string{
	"outage", "whole school", "entire school", "every classroom", "all staff",
	"no internet", "network down", "wifi down", "server down",
}

func ruleOutageKeywords(_ model.Category, text string) []Finding {
	var findings []Finding
	for _, kw := range outageKeywords {
		if strings.Contains(text, kw) {
			findings = append(findings, Finding{
				Rule:        "outage_keyword",
				Description: "Text suggests a multi-user outage: " + kw,
				Weight:      40,
			})
			break
		}
	}
	return findings
}

// classroomKeywords indicate instruction is blocked right now.
var classroomKeywords = []string{
	"exam", "class today", "cannot teach", "smartboard", "projector",
	"report cards", "attendance",
}

func ruleClassroomImpact(category model.Category, text string) []Finding {
	if category != model.CategoryTroubleshooting {
		return nil
	}
	var findings []Finding
	for _, kw := range classroomKeywords {
		if strings.Contains(text, kw) {
			findings = append(findings, Finding{
				Rule:        "classroom_impact",
				Description: "Trouble ticket mentions classroom-blocking equipment: " + kw,
				Weight:      20,
			})
			break
		}
	}
	return findings
}

// lockoutKeywords indicate the requester cannot work at all.
var lockoutKeywords = []string{
	"locked out", "cannot log in", "can't log in", "cannot sign in",
	"password expired",
}

func ruleAccountLockout(category model.Category, text string) []Finding {
	if category != model.CategoryAccount {
		return nil
	}
	var findings []Finding
	for _, kw := range lockoutKeywords {
		if strings.Contains(text, kw) {
			findings = append(findings, Finding{
				Rule:        "account_lockout",
				Description: "Account ticket indicates a full lockout: " + kw,
				Weight:      15,
			})
			break
		}
	}
	return findings
}
