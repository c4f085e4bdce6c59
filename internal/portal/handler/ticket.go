// Package handler exposes the portal's HTTP surface: the public submission
// and tracking endpoints, and the authenticated admin API.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/westcreek-sd/helpdesk/internal/auth"
	"github.com/westcreek-sd/helpdesk/internal/gate"
	"github.com/westcreek-sd/helpdesk/internal/portal/model"
	"github.com/westcreek-sd/helpdesk/internal/portal/repository"
	"github.com/westcreek-sd/helpdesk/internal/portal/service"
	"go.uber.org/zap"
)

// TicketHandler handles HTTP requests for tickets.
type TicketHandler struct {
	svc     *service.TicketService
	captcha gate.CaptchaGate
	limiter gate.SubmissionGate
	logger  *zap.Logger
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(svc *service.TicketService, captcha gate.CaptchaGate, limiter gate.SubmissionGate, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, captcha: captcha, limiter: limiter, logger: logger}
}

// RegisterPublic mounts the unauthenticated portal routes.
func (h *TicketHandler) RegisterPublic(rg *gin.RouterGroup) {
	tickets := rg.Group("/tickets")
	{
		tickets.GET("/generate-captcha", h.GenerateCaptcha)
		tickets.POST("", h.CreateTicket)
		tickets.POST("/track", h.TrackTicket)
		tickets.GET("/submission-status", h.SubmissionStatus)
	}
}

// RegisterAdmin mounts the staff routes. The group is expected to already
// carry admin authentication middleware.
func (h *TicketHandler) RegisterAdmin(rg *gin.RouterGroup) {
	tickets := rg.Group("/tickets")
	{
		tickets.GET("", h.ListTickets)
		tickets.GET("/stats", h.Stats)
		tickets.GET("/:id", h.GetTicket)
		tickets.GET("/:id/events", h.TicketEvents)
		tickets.PATCH("/:id/status", h.UpdateStatus)
		tickets.POST("/:id/assign", h.AssignTicket)
	}
}

// GenerateCaptcha handles GET /tickets/generate-captcha — issues a new
// challenge. The code is returned in the response body; the submitting form
// echoes it back with the ticket.
func (h *TicketHandler) GenerateCaptcha(c *gin.Context) {
	ch, err := h.captcha.Issue(c.Request.Context(), c.ClientIP())
	if err != nil {
		h.logger.Error("issue captcha", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate captcha"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"captcha_id":   ch.ID,
		"captcha_code": ch.Code,
	})
}

// CreateTicket handles POST /tickets — the public submission endpoint.
// Gate order is fixed: captcha presence, captcha validity, then the
// (email, IP) submission budget. An attempt is only recorded after the
// ticket has actually been persisted.
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req model.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ip := c.ClientIP()
	ctx := c.Request.Context()

	if req.CaptchaID == "" || req.CaptchaCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "captcha is required"})
		return
	}

	ok, err := h.captcha.Validate(ctx, req.CaptchaID, req.CaptchaCode, ip)
	RecordCaptchaValidation(ok)
	if err != nil {
		if h.tooManyAttempts(c, err) {
			return
		}
		h.logger.Error("validate captcha", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "captcha validation failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "captcha verification failed; request a new captcha and try again"})
		return
	}

	if err := h.limiter.CanSubmit(ctx, req.RequesterEmail, ip); err != nil {
		if h.tooManyAttempts(c, err) {
			RecordSubmissionThrottled()
			return
		}
		h.logger.Error("check submission budget", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission check failed"})
		return
	}

	t, err := h.svc.Create(ctx, &req)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.logger.Error("create ticket", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ticket"})
		return
	}

	// The attempt is only consumed once the ticket exists.
	if err := h.limiter.RecordSubmission(ctx, req.RequesterEmail, ip); err != nil {
		h.logger.Warn("record submission", zap.Int64("ticket_id", t.ID), zap.Error(err))
	}

	RecordTicketCreated(string(t.Category), string(t.Priority))
	c.JSON(http.StatusCreated, gin.H{
		"ticket_id":   t.ID,
		"tracking_id": t.TrackingID(),
	})
}

// TrackTicket handles POST /tickets/track — the public status lookup.
func (h *TicketHandler) TrackTicket(c *gin.Context) {
	var req model.TrackTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.svc.Track(c.Request.Context(), req.TrackingID, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrTrackingMismatch) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("track ticket", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track ticket"})
		return
	}

	// Public view: no requester contact details beyond what was submitted,
	// no assignee identity.
	c.JSON(http.StatusOK, gin.H{
		"tracking_id": t.TrackingID(),
		"category":    t.Category,
		"status":      t.Status,
		"priority":    t.Priority,
		"subject":     t.Subject,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
		"resolved_at": t.ResolvedAt,
	})
}

// SubmissionStatus handles GET /tickets/submission-status — reports the
// caller's remaining submission budget without consuming an attempt.
func (h *TicketHandler) SubmissionStatus(c *gin.Context) {
	emailAddr := c.Query("email")
	if emailAddr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}

	status, err := h.limiter.Status(c.Request.Context(), emailAddr, c.ClientIP())
	if err != nil {
		h.logger.Error("submission status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read submission status"})
		return
	}

	resp := gin.H{
		"remaining_attempts": status.RemainingAttempts,
		"blocked":            status.Blocked,
	}
	if status.Blocked {
		resp["retry_after_minutes"] = gate.RetryAfterMinutes(status.CooldownRemaining)
	}
	c.JSON(http.StatusOK, resp)
}

// ListTickets handles GET /tickets — the admin queue listing.
func (h *TicketHandler) ListTickets(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	f := model.ListFilter{
		Status:   model.Status(c.Query("status")),
		Category: model.Category(c.Query("category")),
		Priority: model.Priority(c.Query("priority")),
		Search:   c.Query("search"),
		Limit:    limit,
		Offset:   offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}
	if f.Category != "" && !f.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category filter"})
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority filter"})
		return
	}

	tickets, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list tickets", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	if tickets == nil {
		tickets = []*model.Ticket{}
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

// GetTicket handles GET /tickets/:id — the admin detail view.
func (h *TicketHandler) GetTicket(c *gin.Context) {
	id, ok := h.ticketID(c)
	if !ok {
		return
	}

	t, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.notFoundOr500(c, err, "get ticket")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": t, "tracking_id": t.TrackingID()})
}

// TicketEvents handles GET /tickets/:id/events — the audit trail.
func (h *TicketHandler) TicketEvents(c *gin.Context) {
	id, ok := h.ticketID(c)
	if !ok {
		return
	}

	events, err := h.svc.Events(c.Request.Context(), id)
	if err != nil {
		h.notFoundOr500(c, err, "list ticket events")
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// UpdateStatus handles PATCH /tickets/:id/status.
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.ticketID(c)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status, req.Note, actorEmail(c))
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
			return
		}
		h.notFoundOr500(c, err, "update ticket status")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": t})
}

// AssignTicket handles POST /tickets/:id/assign.
func (h *TicketHandler) AssignTicket(c *gin.Context) {
	id, ok := h.ticketID(c)
	if !ok {
		return
	}

	var req model.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	assigneeID, err := uuid.Parse(req.AssigneeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignee ID"})
		return
	}

	t, err := h.svc.Assign(c.Request.Context(), id, assigneeID, actorEmail(c))
	if err != nil {
		h.notFoundOr500(c, err, "assign ticket")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": t})
}

// Stats handles GET /tickets/stats — the dashboard snapshot.
func (h *TicketHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("ticket stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// tooManyAttempts writes a 429 response when err is a throttle error.
// Returns false for any other error.
func (h *TicketHandler) tooManyAttempts(c *gin.Context, err error) bool {
	var tme *gate.TooManyAttemptsError
	if !errors.As(err, &tme) {
		return false
	}
	minutes := gate.RetryAfterMinutes(tme.RetryAfter)
	c.Header("Retry-After", strconv.Itoa(minutes*60))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":               tme.Error(),
		"retry_after_minutes": minutes,
	})
	return true
}

// ticketID parses the :id path parameter.
func (h *TicketHandler) ticketID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket ID"})
		return 0, false
	}
	return id, true
}

// notFoundOr500 maps repository not-found errors to 404.
func (h *TicketHandler) notFoundOr500(c *gin.Context, err error, op string) {
	if errors.Is(err, repository.ErrTicketNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	h.logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// actorEmail identifies the staff member performing an admin mutation.
func actorEmail(c *gin.Context) string {
	if claims := auth.ClaimsFromCtx(c); claims != nil {
		return claims.Email
	}
	return "unknown"
}
