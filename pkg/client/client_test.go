package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/westcreek-sd/helpdesk/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

func stubHelpdeskServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/tickets/generate-captcha", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"captcha_id":   "c9b1e2d0",
			"captcha_code": "483920",
		})
	})

	mux.HandleFunc("/api/v1/tickets", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["captcha_code"] == "000000" {
			http.Error(w, `{"error":"captcha verification failed"}`, http.StatusBadRequest)
			return
		}
		if req["requester_email"] == "blocked@westcreeksd.ca" {
			w.Header().Set("Retry-After", "600")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":               "too many submissions",
				"retry_after_minutes": 10,
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"ticket_id":   42,
			"tracking_id": "20260115-42",
		})
	})

	mux.HandleFunc("/api/v1/tickets/track", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["tracking_id"] == "20260115-999" {
			http.Error(w, `{"error":"ticket not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tracking_id": req["tracking_id"],
			"category":    "troubleshooting",
			"status":      "in_progress",
			"priority":    "high",
			"subject":     "Projector shows no signal",
			"created_at":  "2026-01-15T08:30:00Z",
			"updated_at":  "2026-01-16T09:00:00Z",
		})
	})

	mux.HandleFunc("/api/v1/tickets/submission-status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"remaining_attempts": 2,
			"blocked":            false,
		})
	})

	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "correct-horse" {
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "test-session-token",
			"user":  map[string]string{"email": req["email"], "role": "admin"},
		})
	})

	mux.HandleFunc("/api/v1/admin/tickets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tickets": []map[string]any{
				{"id": 42, "status": "open", "subject": "Projector shows no signal"},
			},
			"count": 1,
		})
	})

	mux.HandleFunc("/api/v1/admin/tickets/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"total":               17,
			"by_status":           map[string]int{"open": 5, "resolved": 12},
			"by_category":         map[string]int{"troubleshooting": 10},
			"by_priority":         map[string]int{"medium": 9},
			"created_last_7_days": 3,
		})
	})

	mux.HandleFunc("/api/v1/admin/tickets/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if strings.HasSuffix(path, "/status") {
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(map[string]any{
				"ticket": map[string]any{"id": 42, "status": req["status"]},
			})
			return
		}
		if strings.HasSuffix(path, "/assign") {
			json.NewEncoder(w).Encode(map[string]any{
				"ticket": map[string]any{
					"id":          42,
					"status":      "open",
					"assignee_id": "00000000-0000-0000-0000-000000000002",
				},
			})
			return
		}
		if strings.HasSuffix(path, "/events") {
			json.NewEncoder(w).Encode(map[string]any{
				"events": []map[string]any{
					{"action": "created", "actor": "portal"},
					{"action": "status_changed", "actor": "admin@westcreeksd.ca"},
				},
				"count": 2,
			})
			return
		}

		// GET /api/v1/admin/tickets/:id
		id := strings.TrimPrefix(path, "/api/v1/admin/tickets/")
		if id == "999" {
			http.Error(w, `{"error":"ticket not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ticket":      map[string]any{"id": 42, "status": "open", "school": "Westcreek Elementary"},
			"tracking_id": "20260115-42",
		})
	})

	mux.HandleFunc("/api/v1/admin/staff", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"user": map[string]any{
					"id":    "00000000-0000-0000-0000-000000000009",
					"email": "new.agent@westcreeksd.ca",
					"role":  "agent",
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{
				{"email": "admin@westcreeksd.ca", "role": "admin"},
				{"email": "marcus.reid@westcreeksd.ca", "role": "agent"},
			},
			"count": 2,
		})
	})

	return httptest.NewServer(mux)
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestGenerateCaptcha_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	captcha, err := c.GenerateCaptcha(context.Background())
	if err != nil {
		t.Fatalf("GenerateCaptcha: %v", err)
	}
	if captcha.ID == "" || captcha.Code == "" {
		t.Errorf("incomplete captcha: %+v", captcha)
	}
}

func TestSubmitTicket_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	result, err := c.SubmitTicket(context.Background(), client.SubmitTicketRequest{
		Category:       "troubleshooting",
		RequesterName:  "Janet Kowalski",
		RequesterEmail: "j.kowalski@westcreeksd.ca",
		School:         "Westcreek Elementary",
		Subject:        "Projector shows no signal",
		Description:    "Room 204 projector stopped detecting the laptop.",
		CaptchaID:      "c9b1e2d0",
		CaptchaCode:    "483920",
	})
	if err != nil {
		t.Fatalf("SubmitTicket: %v", err)
	}
	if result.TicketID != 42 {
		t.Errorf("unexpected ticket id: %d", result.TicketID)
	}
	if result.TrackingID != "20260115-42" {
		t.Errorf("unexpected tracking id: %s", result.TrackingID)
	}
}

func TestSubmitTicket_badCaptcha(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	_, err := c.SubmitTicket(context.Background(), client.SubmitTicketRequest{
		RequesterEmail: "j.kowalski@westcreeksd.ca",
		CaptchaID:      "c9b1e2d0",
		CaptchaCode:    "000000",
	})
	if err == nil {
		t.Error("expected error for rejected captcha")
	}
}

func TestSubmitTicket_throttled(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	_, err := c.SubmitTicket(context.Background(), client.SubmitTicketRequest{
		RequesterEmail: "blocked@westcreeksd.ca",
		CaptchaID:      "c9b1e2d0",
		CaptchaCode:    "483920",
	})

	var throttled *client.ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfterMinutes != 10 {
		t.Errorf("unexpected retry-after: %d", throttled.RetryAfterMinutes)
	}
}

func TestTrack_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	result, err := c.Track(context.Background(), "20260115-42", "j.kowalski@westcreeksd.ca")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if result.Status != "in_progress" {
		t.Errorf("unexpected status: %s", result.Status)
	}
	if result.TrackingID != "20260115-42" {
		t.Errorf("unexpected tracking id: %s", result.TrackingID)
	}
}

func TestTrack_notFound(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	_, err := c.Track(context.Background(), "20260115-999", "j.kowalski@westcreeksd.ca")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrack_cache(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		json.NewEncoder(w).Encode(map[string]any{
			"tracking_id": "20260115-42",
			"status":      "open",
		})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithCacheTTL(5*time.Minute))

	c.Track(context.Background(), "20260115-42", "j.kowalski@westcreeksd.ca")
	c.Track(context.Background(), "20260115-42", "j.kowalski@westcreeksd.ca")

	if callCount != 1 {
		t.Errorf("expected 1 HTTP call (cached), got %d", callCount)
	}
}

func TestSubmissionStatus_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	status, err := c.SubmissionStatus(context.Background(), "j.kowalski@westcreeksd.ca")
	if err != nil {
		t.Fatalf("SubmissionStatus: %v", err)
	}
	if status.RemainingAttempts != 2 {
		t.Errorf("unexpected remaining attempts: %d", status.RemainingAttempts)
	}
	if status.Blocked {
		t.Error("expected not blocked")
	}
}

func TestLogin_storesToken(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	token, err := c.Login(context.Background(), "admin@westcreeksd.ca", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "test-session-token" {
		t.Errorf("unexpected token: %s", token)
	}

	// Subsequent staff calls carry the token.
	tickets, err := c.ListTickets(context.Background(), client.ListOptions{})
	if err != nil {
		t.Fatalf("ListTickets after login: %v", err)
	}
	if len(tickets) != 1 {
		t.Errorf("expected 1 ticket, got %d", len(tickets))
	}
}

func TestLogin_badPassword(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	_, err := c.Login(context.Background(), "admin@westcreeksd.ca", "wrong")
	if err == nil {
		t.Error("expected error for bad password")
	}
}

func TestListTickets_401(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL) // no token

	_, err := c.ListTickets(context.Background(), client.ListOptions{})
	if err == nil {
		t.Error("expected error for unauthenticated listing")
	}
}

func TestGetTicket_notFound(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("test-token"))

	_, err := c.GetTicket(context.Background(), 999)
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("test-token"))

	ticket, err := c.UpdateStatus(context.Background(), 42, "resolved", "fixed the cable")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if ticket.Status != "resolved" {
		t.Errorf("unexpected status: %s", ticket.Status)
	}
}

func TestAssignTicket_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("test-token"))

	ticket, err := c.AssignTicket(context.Background(), 42, "00000000-0000-0000-0000-000000000002")
	if err != nil {
		t.Fatalf("AssignTicket: %v", err)
	}
	if ticket.AssigneeID != "00000000-0000-0000-0000-000000000002" {
		t.Errorf("unexpected assignee: %s", ticket.AssigneeID)
	}
}

func TestTicketEvents_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("test-token"))

	events, err := c.TicketEvents(context.Background(), 42)
	if err != nil {
		t.Fatalf("TicketEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Actor != "portal" {
		t.Errorf("unexpected first actor: %s", events[0].Actor)
	}
}

func TestStats_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("test-token"))

	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 17 {
		t.Errorf("unexpected total: %d", stats.Total)
	}
	if stats.ByStatus["open"] != 5 {
		t.Errorf("unexpected open count: %d", stats.ByStatus["open"])
	}
}

func TestListStaff_success(t *testing.T) {
	srv := stubHelpdeskServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("test-token"))

	staff, err := c.ListStaff(context.Background())
	if err != nil {
		t.Fatalf("ListStaff: %v", err)
	}
	if len(staff) != 2 {
		t.Errorf("expected 2 staff members, got %d", len(staff))
	}
}
