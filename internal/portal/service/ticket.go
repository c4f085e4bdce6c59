// Package service contains the business logic for the ticket portal: public
// submission and tracking, and the admin-side triage operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/westcreek-sd/helpdesk/internal/audit"
	"github.com/westcreek-sd/helpdesk/internal/email"
	"github.com/westcreek-sd/helpdesk/internal/portal/model"
	"github.com/westcreek-sd/helpdesk/internal/triage"
	"github.com/westcreek-sd/helpdesk/internal/webhooks"
	"go.uber.org/zap"
)

// ErrTrackingMismatch is returned when a tracking lookup does not match a
// ticket. Deliberately indistinguishable between "no such ticket", "wrong
// date part", and "wrong email" so the endpoint cannot be used to probe
// which tickets exist.
var ErrTrackingMismatch = errors.New("no ticket matches that tracking id and email")

// ticketRepo is the persistence interface for the ticket service.
// *repository.TicketRepository satisfies this interface.
type ticketRepo interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id int64) (*model.Ticket, error)
	List(ctx context.Context, f model.ListFilter) ([]*model.Ticket, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status, resolvedAt *time.Time) error
	Assign(ctx context.Context, id int64, assigneeID uuid.UUID) error
	Total(ctx context.Context) (int64, error)
	CountGroupedBy(ctx context.Context, column string) (map[string]int64, error)
	CreatedSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventDispatcher fans ticket events out to webhook subscribers.
// *webhooks.Service satisfies this interface.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]string)
}

// TicketService contains business logic for the ticket lifecycle.
type TicketService struct {
	repo       ticketRepo
	auditLog   audit.Log
	scorer     triage.Scorer   // nil = every ticket starts at medium
	mailer     email.Sender    // nil = no notification emails
	dispatcher EventDispatcher // nil = no webhook dispatch
	stats      *statsCache
	logger     *zap.Logger
}

// NewTicketService creates a new TicketService.
// scorer, mailer, and dispatcher may each be nil to disable that feature.
func NewTicketService(repo ticketRepo, auditLog audit.Log, logger *zap.Logger) *TicketService {
	return &TicketService{
		repo:     repo,
		auditLog: auditLog,
		stats:    newStatsCache(30 * time.Second),
		logger:   logger,
	}
}

// SetScorer configures the triage scorer that suggests initial priorities.
func (s *TicketService) SetScorer(sc triage.Scorer) {
	s.scorer = sc
}

// SetMailer configures the sender used for requester notification emails.
func (s *TicketService) SetMailer(m email.Sender) {
	s.mailer = m
}

// SetDispatcher configures the webhook event dispatcher.
func (s *TicketService) SetDispatcher(d EventDispatcher) {
	s.dispatcher = d
}

// Create validates and persists a new ticket. The submitter's requested
// priority is a hint only; when a scorer is configured its suggestion wins.
// Returns *model.ValidationError for malformed requests.
func (s *TicketService) Create(ctx context.Context, req *model.CreateTicketRequest) (*model.Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	var suggestion *triage.Suggestion
	if s.scorer != nil {
		sg := s.scorer.Suggest(ctx, req.Category, req.Subject, req.Description)
		suggestion = &sg
		priority = sg.Priority
	}

	t := &model.Ticket{
		Category:       req.Category,
		Status:         model.StatusOpen,
		Priority:       priority,
		RequesterName:  strings.TrimSpace(req.RequesterName),
		RequesterEmail: strings.ToLower(strings.TrimSpace(req.RequesterEmail)),
		RequesterPhone: strings.TrimSpace(req.RequesterPhone),
		School:         strings.TrimSpace(req.School),
		Subject:        strings.TrimSpace(req.Subject),
		Description:    req.Description,
		Details:        req.Details,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	detail := map[string]any{
		"category": t.Category,
		"priority": t.Priority,
	}
	if suggestion != nil {
		detail["triage_score"] = suggestion.Score
	}
	if _, err := s.auditLog.Append(ctx, t.ID, audit.ActionCreated, "portal", detail); err != nil {
		s.logger.Warn("audit: record creation", zap.Int64("ticket_id", t.ID), zap.Error(err))
	}

	s.stats.invalidate()
	s.notify(t.RequesterEmail, "Ticket received: "+t.TrackingID(), confirmationBody(t))
	s.dispatch(webhooks.EventTicketCreated, map[string]string{
		"ticket_id":   fmt.Sprintf("%d", t.ID),
		"tracking_id": t.TrackingID(),
		"category":    string(t.Category),
		"priority":    string(t.Priority),
	})

	s.logger.Info("ticket created",
		zap.Int64("ticket_id", t.ID),
		zap.String("tracking_id", t.TrackingID()),
		zap.String("category", string(t.Category)),
		zap.String("priority", string(t.Priority)),
	)
	return t, nil
}

// Track looks a ticket up by its public tracking id. Both the embedded
// creation date and the requester email must match.
func (s *TicketService) Track(ctx context.Context, trackingID, emailAddr string) (*model.Ticket, error) {
	date, id, err := model.ParseTrackingID(strings.TrimSpace(trackingID))
	if err != nil {
		return nil, ErrTrackingMismatch
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrTrackingMismatch
	}

	if t.CreatedAt.Format("20060102") != date {
		return nil, ErrTrackingMismatch
	}
	if !strings.EqualFold(strings.TrimSpace(emailAddr), t.RequesterEmail) {
		return nil, ErrTrackingMismatch
	}
	return t, nil
}

// GetByID retrieves a ticket for the admin detail view.
func (s *TicketService) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tickets matching the filter.
func (s *TicketService) List(ctx context.Context, f model.ListFilter) ([]*model.Ticket, error) {
	return s.repo.List(ctx, f)
}

// UpdateStatus moves a ticket through its lifecycle. actor is the staff
// email performing the change.
func (s *TicketService) UpdateStatus(ctx context.Context, id int64, status model.Status, note, actor string) (*model.Ticket, error) {
	if !status.Valid() {
		return nil, &model.ValidationError{Fields: map[string]string{
			"status": "must be one of open, in_progress, resolved, closed",
		}}
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var resolvedAt *time.Time
	if status == model.StatusResolved {
		now := time.Now().UTC()
		resolvedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, status, resolvedAt); err != nil {
		return nil, err
	}

	prev := t.Status
	t.Status = status
	t.ResolvedAt = resolvedAt

	if _, err := s.auditLog.Append(ctx, id, audit.ActionStatusChanged, actor, map[string]any{
		"from": prev,
		"to":   status,
		"note": note,
	}); err != nil {
		s.logger.Warn("audit: record status change", zap.Int64("ticket_id", id), zap.Error(err))
	}

	s.stats.invalidate()
	if status == model.StatusResolved {
		s.notify(t.RequesterEmail, "Ticket resolved: "+t.TrackingID(), resolvedBody(t, note))
	}
	s.dispatch(webhooks.EventTicketStatusChanged, map[string]string{
		"ticket_id":   fmt.Sprintf("%d", id),
		"tracking_id": t.TrackingID(),
		"from":        string(prev),
		"to":          string(status),
	})

	return t, nil
}

// Assign sets the ticket's assignee. actor is the staff email performing
// the change.
func (s *TicketService) Assign(ctx context.Context, id int64, assigneeID uuid.UUID, actor string) (*model.Ticket, error) {
	if err := s.repo.Assign(ctx, id, assigneeID); err != nil {
		return nil, err
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.auditLog.Append(ctx, id, audit.ActionAssigned, actor, map[string]any{
		"assignee_id": assigneeID.String(),
	}); err != nil {
		s.logger.Warn("audit: record assignment", zap.Int64("ticket_id", id), zap.Error(err))
	}

	s.dispatch(webhooks.EventTicketAssigned, map[string]string{
		"ticket_id":   fmt.Sprintf("%d", id),
		"tracking_id": t.TrackingID(),
		"assignee_id": assigneeID.String(),
	})

	return t, nil
}

// Events returns the audit trail for a ticket.
func (s *TicketService) Events(ctx context.Context, ticketID int64) ([]*audit.Event, error) {
	if _, err := s.repo.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.auditLog.ListByTicket(ctx, ticketID)
}

// Stats returns the dashboard snapshot, recomputing it when the cached copy
// has expired.
func (s *TicketService) Stats(ctx context.Context) (*model.Stats, error) {
	if cached := s.stats.get(); cached != nil {
		return cached, nil
	}

	total, err := s.repo.Total(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: total: %w", err)
	}
	byStatus, err := s.repo.CountGroupedBy(ctx, "status")
	if err != nil {
		return nil, fmt.Errorf("stats: by status: %w", err)
	}
	byCategory, err := s.repo.CountGroupedBy(ctx, "category")
	if err != nil {
		return nil, fmt.Errorf("stats: by category: %w", err)
	}
	byPriority, err := s.repo.CountGroupedBy(ctx, "priority")
	if err != nil {
		return nil, fmt.Errorf("stats: by priority: %w", err)
	}
	recent, err := s.repo.CreatedSince(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("stats: created since: %w", err)
	}

	out := &model.Stats{
		Total:            total,
		ByStatus:         make(map[model.Status]int64, len(byStatus)),
		ByCategory:       make(map[model.Category]int64, len(byCategory)),
		ByPriority:       make(map[model.Priority]int64, len(byPriority)),
		CreatedLast7Days: recent,
		GeneratedAt:      time.Now().UTC(),
	}
	for k, v := range byStatus {
		out.ByStatus[model.Status(k)] = v
	}
	for k, v := range byCategory {
		out.ByCategory[model.Category(k)] = v
	}
	for k, v := range byPriority {
		out.ByPriority[model.Priority(k)] = v
	}

	s.stats.set(out)
	return out, nil
}

// notify sends a requester email without blocking the request. Failures are
// logged and otherwise ignored.
func (s *TicketService) notify(to, subject, body string) {
	if s.mailer == nil || to == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.mailer.Send(ctx, to, subject, body); err != nil {
			s.logger.Warn("send notification email",
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}()
}

// dispatch forwards a ticket event to webhook subscribers, if configured.
func (s *TicketService) dispatch(eventType string, payload map[string]string) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(context.Background(), eventType, payload)
}

func confirmationBody(t *model.Ticket) string {
	return fmt.Sprintf(
		"<p>Hello %s,</p><p>We received your request <strong>%s</strong> (tracking id <code>%s</code>).</p><p>You can check its progress on the portal's Track Ticket page using the tracking id and the email address you submitted with.</p>",
		t.RequesterName, t.Subject, t.TrackingID(),
	)
}

func resolvedBody(t *model.Ticket, note string) string {
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your request <strong>%s</strong> (tracking id <code>%s</code>) has been resolved.</p>",
		t.RequesterName, t.Subject, t.TrackingID(),
	)
	if note != "" {
		body += fmt.Sprintf("<p>Note from the technician: %s</p>", note)
	}
	return body
}
