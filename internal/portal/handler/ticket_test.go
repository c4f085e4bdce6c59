package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/westcreek-sd/helpdesk/internal/audit"
	"github.com/westcreek-sd/helpdesk/internal/gate"
	"github.com/westcreek-sd/helpdesk/internal/portal/handler"
	"github.com/westcreek-sd/helpdesk/internal/portal/model"
	"github.com/westcreek-sd/helpdesk/internal/portal/service"
	"go.uber.org/zap"
)

// ── In-memory repo ────────────────────────────────────────────────────────

type memTicketRepo struct {
	mu      sync.Mutex
	nextID  int64
	tickets map[int64]*model.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{nextID: 1, tickets: make(map[int64]*model.Ticket)}
}

func (r *memTicketRepo) Create(_ context.Context, t *model.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID
	r.nextID++
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	r.tickets[t.ID] = &cp
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id int64) (*model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	cp := *t
	return &cp, nil
}

func (r *memTicketRepo) List(_ context.Context, _ model.ListFilter) ([]*model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Ticket
	for _, t := range r.tickets {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTicketRepo) UpdateStatus(_ context.Context, id int64, status model.Status, resolvedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return errors.New("ticket not found")
	}
	t.Status = status
	t.ResolvedAt = resolvedAt
	return nil
}

func (r *memTicketRepo) Assign(_ context.Context, id int64, assigneeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return errors.New("ticket not found")
	}
	t.AssigneeID = &assigneeID
	return nil
}

func (r *memTicketRepo) Total(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tickets)), nil
}

func (r *memTicketRepo) CountGroupedBy(_ context.Context, column string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, t := range r.tickets {
		switch column {
		case "status":
			counts[string(t.Status)]++
		case "category":
			counts[string(t.Category)]++
		case "priority":
			counts[string(t.Priority)]++
		}
	}
	return counts, nil
}

func (r *memTicketRepo) CreatedSince(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tickets {
		if !t.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// ── Router setup ──────────────────────────────────────────────────────────

func newTestRouter(t *testing.T) (*gin.Engine, *gate.CaptchaStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newMemTicketRepo()
	svc := service.NewTicketService(repo, audit.NewMemoryLog(), zap.NewNop())
	captcha := gate.NewCaptchaStore(gate.CaptchaConfig{})
	limiter := gate.NewSubmissionRateLimiter(gate.RateLimiterConfig{})
	h := handler.NewTicketHandler(svc, captcha, limiter, zap.NewNop())

	r := gin.New()
	api := r.Group("/api/v1")
	h.RegisterPublic(api)
	h.RegisterAdmin(api.Group("/admin"))
	return r, captcha
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func freshCaptcha(t *testing.T, r *gin.Engine) (id, code string) {
	t.Helper()
	w := doJSON(t, r, http.MethodGet, "/api/v1/tickets/generate-captcha", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("generate-captcha: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		CaptchaID   string `json:"captcha_id"`
		CaptchaCode string `json:"captcha_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode captcha response: %v", err)
	}
	return resp.CaptchaID, resp.CaptchaCode
}

func submission(captchaID, captchaCode string) map[string]any {
	return map[string]any{
		"category":        "troubleshooting",
		"requester_name":  "Dana Whitmore",
		"requester_email": "dana@westcreeksd.ca",
		"school":          "West Creek Elementary",
		"subject":         "Chromebook will not charge",
		"description":     "Cart slot 7, tried two cables.",
		"details":         map[string]string{"device_type": "chromebook", "room": "114"},
		"captcha_id":      captchaID,
		"captcha_code":    captchaCode,
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestGenerateCaptcha_sixDigitCode(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)
	if id == "" {
		t.Error("expected a captcha id")
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(code) {
		t.Errorf("expected a 6-digit code, got %q", code)
	}
}

func TestCreateTicket_success(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		TicketID   int64  `json:"ticket_id"`
		TrackingID string `json:"tracking_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TicketID == 0 {
		t.Error("expected a ticket id")
	}
	if !regexp.MustCompile(`^\d{8}-\d+$`).MatchString(resp.TrackingID) {
		t.Errorf("tracking id %q does not match YYYYMMDD-<id>", resp.TrackingID)
	}
	wantPrefix := time.Now().UTC().Format("20060102") + "-"
	if resp.TrackingID != fmt.Sprintf("%s%d", wantPrefix, resp.TicketID) {
		t.Errorf("tracking id %q does not embed today's date and the ticket id", resp.TrackingID)
	}
}

func TestCreateTicket_missingCaptchaRejectedBeforeAnythingElse(t *testing.T) {
	r, _ := newTestRouter(t)

	payload := submission("", "")
	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", payload)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing captcha, got %d", w.Code)
	}

	// The failed request must not have consumed a submission attempt.
	sw := doJSON(t, r, http.MethodGet, "/api/v1/tickets/submission-status?email=dana@westcreeksd.ca", nil)
	var status struct {
		RemainingAttempts int `json:"remaining_attempts"`
	}
	json.Unmarshal(sw.Body.Bytes(), &status)
	if status.RemainingAttempts != 3 {
		t.Errorf("missing captcha must not consume attempts, remaining = %d", status.RemainingAttempts)
	}
}

func TestCreateTicket_wrongCaptchaCode(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, wrong))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for wrong code, got %d", w.Code)
	}
}

func TestCreateTicket_captchaSingleUse(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)

	if w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code)); w.Code != http.StatusCreated {
		t.Fatalf("first submission: %d", w.Code)
	}
	// Same challenge again: consumed, so it fails.
	if w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code)); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 reusing a consumed captcha, got %d", w.Code)
	}
}

func TestCreateTicket_validationEnumeratesAllFields(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)

	payload := submission(id, code)
	payload["requester_name"] = ""
	payload["subject"] = ""
	delete(payload, "details")

	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", payload)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	for _, f := range []string{"requester_name", "subject", "details"} {
		if _, ok := resp.Fields[f]; !ok {
			t.Errorf("expected %q among offending fields, got %v", f, resp.Fields)
		}
	}
}

func TestCreateTicket_fourthSubmissionThrottled(t *testing.T) {
	r, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		id, code := freshCaptcha(t, r)
		if w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code)); w.Code != http.StatusCreated {
			t.Fatalf("submission %d: %d %s", i+1, w.Code, w.Body.String())
		}
	}

	id, code := freshCaptcha(t, r)
	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 4th submission, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 responses must carry Retry-After")
	}

	var resp struct {
		RetryAfterMinutes int `json:"retry_after_minutes"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.RetryAfterMinutes < 1 {
		t.Errorf("retry_after_minutes must be at least 1, got %d", resp.RetryAfterMinutes)
	}
}

func TestTrackTicket_roundTrip(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code))
	var created struct {
		TrackingID string `json:"tracking_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)

	tw := doJSON(t, r, http.MethodPost, "/api/v1/tickets/track", map[string]string{
		"tracking_id": created.TrackingID,
		"email":       "dana@westcreeksd.ca",
	})
	if tw.Code != http.StatusOK {
		t.Fatalf("track: %d %s", tw.Code, tw.Body.String())
	}

	var tracked struct {
		TrackingID string `json:"tracking_id"`
		Status     string `json:"status"`
	}
	json.Unmarshal(tw.Body.Bytes(), &tracked)
	if tracked.TrackingID != created.TrackingID || tracked.Status != "open" {
		t.Errorf("unexpected tracked ticket: %+v", tracked)
	}
}

func TestTrackTicket_wrongEmail404(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code))
	var created struct {
		TrackingID string `json:"tracking_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)

	tw := doJSON(t, r, http.MethodPost, "/api/v1/tickets/track", map[string]string{
		"tracking_id": created.TrackingID,
		"email":       "intruder@example.com",
	})
	if tw.Code != http.StatusNotFound {
		t.Errorf("expected 404 for wrong email, got %d", tw.Code)
	}
}

func TestAdminUpdateStatus(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)
	doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code))

	w := doJSON(t, r, http.MethodPatch, "/api/v1/admin/tickets/1/status", map[string]string{
		"status": "resolved",
		"note":   "replaced charger",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Ticket struct {
			Status     string     `json:"status"`
			ResolvedAt *time.Time `json:"resolved_at"`
		} `json:"ticket"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Ticket.Status != "resolved" || resp.Ticket.ResolvedAt == nil {
		t.Errorf("expected resolved with timestamp, got %+v", resp.Ticket)
	}
}

func TestAdminUpdateStatus_unknownStatus(t *testing.T) {
	r, _ := newTestRouter(t)
	id, code := freshCaptcha(t, r)
	doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code))

	w := doJSON(t, r, http.MethodPatch, "/api/v1/admin/tickets/1/status", map[string]string{
		"status": "escalated",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestAdminStats(t *testing.T) {
	r, _ := newTestRouter(t)
	for i := 0; i < 2; i++ {
		id, code := freshCaptcha(t, r)
		doJSON(t, r, http.MethodPost, "/api/v1/tickets", submission(id, code))
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/admin/tickets/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: %d %s", w.Code, w.Body.String())
	}

	var stats struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
	}
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Total != 2 || stats.ByStatus["open"] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
