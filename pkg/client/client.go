// Package client provides the Go SDK for the helpdesk REST API: public
// ticket submission and tracking, and the authenticated staff endpoints.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned when the server reports a missing resource.
var ErrNotFound = errors.New("not found")

// ThrottledError is returned when the server rejects a request with 429.
type ThrottledError struct {
	RetryAfterMinutes int
	Message           string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled: %s (retry in %d minute(s))", e.Message, e.RetryAfterMinutes)
}

// Captcha is the challenge returned by GenerateCaptcha. The Code must be
// echoed back with the ticket submission.
type Captcha struct {
	ID   string `json:"captcha_id"`
	Code string `json:"captcha_code"`
}

// SubmitTicketRequest is the payload for SubmitTicket.
type SubmitTicketRequest struct {
	Category       string          `json:"category"`
	RequesterName  string          `json:"requester_name"`
	RequesterEmail string          `json:"requester_email"`
	RequesterPhone string          `json:"requester_phone,omitempty"`
	School         string          `json:"school"`
	Subject        string          `json:"subject"`
	Description    string          `json:"description"`
	Priority       string          `json:"priority,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CaptchaID      string          `json:"captcha_id"`
	CaptchaCode    string          `json:"captcha_code"`
}

// SubmitResult holds the identifiers returned for a new ticket.
type SubmitResult struct {
	TicketID   int64  `json:"ticket_id"`
	TrackingID string `json:"tracking_id"`
}

// TrackResult is the public view of a tracked ticket.
type TrackResult struct {
	TrackingID string     `json:"tracking_id"`
	Category   string     `json:"category"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	Subject    string     `json:"subject"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// SubmissionStatus reports the remaining submission budget for an email
// address from this client's IP.
type SubmissionStatus struct {
	RemainingAttempts int  `json:"remaining_attempts"`
	Blocked           bool `json:"blocked"`
	RetryAfterMinutes int  `json:"retry_after_minutes,omitempty"`
}

// Ticket is the staff view of a ticket record.
type Ticket struct {
	ID             int64           `json:"id"`
	Category       string          `json:"category"`
	Status         string          `json:"status"`
	Priority       string          `json:"priority"`
	RequesterName  string          `json:"requester_name"`
	RequesterEmail string          `json:"requester_email"`
	RequesterPhone string          `json:"requester_phone"`
	School         string          `json:"school"`
	Subject        string          `json:"subject"`
	Description    string          `json:"description"`
	Details        json.RawMessage `json:"details"`
	AssigneeID     string          `json:"assignee_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// TicketEvent is one entry in a ticket's audit trail.
type TicketEvent struct {
	ID        string          `json:"id"`
	TicketID  int64           `json:"ticket_id"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Detail    json.RawMessage `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats is the dashboard aggregate snapshot.
type Stats struct {
	Total            int64            `json:"total"`
	ByStatus         map[string]int64 `json:"by_status"`
	ByCategory       map[string]int64 `json:"by_category"`
	ByPriority       map[string]int64 `json:"by_priority"`
	CreatedLast7Days int64            `json:"created_last_7_days"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// StaffMember is a staff account as returned by the admin API.
type StaffMember struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListOptions filters the staff ticket listing. Zero values are omitted.
type ListOptions struct {
	Status   string
	Category string
	Priority string
	Search   string
	Limit    int
	Offset   int
}

// Client is the helpdesk SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *trackCache

	// token state — guarded by mu
	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory caching of Track results with the given TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newTrackCache(ttl)
		return nil
	}
}

// WithBearerToken attaches a pre-obtained session token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a new helpdesk SDK Client connected to baseURL.
//
//	c, err := client.New("https://helpdesk.westcreeksd.ca",
//	    client.WithCacheTTL(30*time.Second),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// ─── Public portal ───────────────────────────────────────────────────────

// GenerateCaptcha requests a fresh captcha challenge.
func (c *Client) GenerateCaptcha(ctx context.Context) (*Captcha, error) {
	body, err := c.get(ctx, "/api/v1/tickets/generate-captcha")
	if err != nil {
		return nil, err
	}
	var ch Captcha
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, fmt.Errorf("decode captcha: %w", err)
	}
	return &ch, nil
}

// SubmitTicket submits a new ticket through the public portal. The request
// must carry a captcha obtained from GenerateCaptcha; each captcha is
// single-use. A *ThrottledError is returned when the submission budget for
// (requester email, client IP) is exhausted.
func (c *Client) SubmitTicket(ctx context.Context, req SubmitTicketRequest) (*SubmitResult, error) {
	body, err := c.post(ctx, "/api/v1/tickets", req)
	if err != nil {
		return nil, err
	}
	var result SubmitResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &result, nil
}

// Track looks up a ticket's public status by tracking id and requester email.
func (c *Client) Track(ctx context.Context, trackingID, email string) (*TrackResult, error) {
	cacheKey := trackingID + "|" + email
	if c.cache != nil {
		if result, ok := c.cache.get(cacheKey); ok {
			return result, nil
		}
	}

	body, err := c.post(ctx, "/api/v1/tickets/track", map[string]string{
		"tracking_id": trackingID,
		"email":       email,
	})
	if err != nil {
		return nil, err
	}

	var result TrackResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode track response: %w", err)
	}

	if c.cache != nil {
		c.cache.set(cacheKey, &result)
	}
	return &result, nil
}

// SubmissionStatus reports the remaining submission budget for email without
// consuming an attempt.
func (c *Client) SubmissionStatus(ctx context.Context, email string) (*SubmissionStatus, error) {
	body, err := c.get(ctx, "/api/v1/tickets/submission-status?email="+url.QueryEscape(email))
	if err != nil {
		return nil, err
	}
	var status SubmissionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode submission status: %w", err)
	}
	return &status, nil
}

// ─── Authentication ──────────────────────────────────────────────────────

// Login authenticates with email/password and stores the session token on
// the client for subsequent staff calls. The token is also returned so
// callers can persist it.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := c.post(ctx, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}

	c.mu.Lock()
	c.bearerToken = resp.Token
	c.mu.Unlock()
	return resp.Token, nil
}

// ─── Staff API ───────────────────────────────────────────────────────────

// ListTickets returns tickets from the staff queue matching opts.
func (c *Client) ListTickets(ctx context.Context, opts ListOptions) ([]Ticket, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Category != "" {
		q.Set("category", opts.Category)
	}
	if opts.Priority != "" {
		q.Set("priority", opts.Priority)
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/admin/tickets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Tickets []Ticket `json:"tickets"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode ticket list: %w", err)
	}
	return wrapper.Tickets, nil
}

// GetTicket fetches the full staff view of one ticket.
func (c *Client) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	body, err := c.get(ctx, "/api/v1/admin/tickets/"+strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Ticket Ticket `json:"ticket"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &wrapper.Ticket, nil
}

// TicketEvents returns the audit trail for one ticket, oldest first.
func (c *Client) TicketEvents(ctx context.Context, id int64) ([]TicketEvent, error) {
	body, err := c.get(ctx, "/api/v1/admin/tickets/"+strconv.FormatInt(id, 10)+"/events")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Events []TicketEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return wrapper.Events, nil
}

// UpdateStatus moves a ticket to a new status with an optional note.
func (c *Client) UpdateStatus(ctx context.Context, id int64, status, note string) (*Ticket, error) {
	path := "/api/v1/admin/tickets/" + strconv.FormatInt(id, 10) + "/status"
	body, err := c.patch(ctx, path, map[string]string{"status": status, "note": note})
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Ticket Ticket `json:"ticket"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &wrapper.Ticket, nil
}

// AssignTicket assigns a ticket to the staff member with the given UUID.
func (c *Client) AssignTicket(ctx context.Context, id int64, assigneeID string) (*Ticket, error) {
	path := "/api/v1/admin/tickets/" + strconv.FormatInt(id, 10) + "/assign"
	body, err := c.post(ctx, path, map[string]string{"assignee_id": assigneeID})
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Ticket Ticket `json:"ticket"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &wrapper.Ticket, nil
}

// Stats fetches the dashboard aggregate snapshot.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	body, err := c.get(ctx, "/api/v1/admin/tickets/stats")
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &stats, nil
}

// ListStaff lists staff accounts.
func (c *Client) ListStaff(ctx context.Context) ([]StaffMember, error) {
	body, err := c.get(ctx, "/api/v1/admin/staff")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Users []StaffMember `json:"users"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode staff list: %w", err)
	}
	return wrapper.Users, nil
}

// CreateStaff provisions a new staff account. role is "admin" or "agent".
func (c *Client) CreateStaff(ctx context.Context, email, password, displayName, role string) (*StaffMember, error) {
	body, err := c.post(ctx, "/api/v1/admin/staff", map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
		"role":         role,
	})
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		User StaffMember `json:"user"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode staff response: %w", err)
	}
	return &wrapper.User, nil
}

// ─── HTTP plumbing ───────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.send(ctx, http.MethodPost, path, payload)
}

func (c *Client) patch(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.send(ctx, http.MethodPatch, path, payload)
}

func (c *Client) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// do executes an HTTP request, attaching the bearer token if present, and
// maps error statuses to sentinel errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	c.mu.Lock()
	token := c.bearerToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, throttledFromBody(body)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("unauthorized: %s", string(body))
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// throttledFromBody parses a 429 response into a ThrottledError.
func throttledFromBody(body []byte) error {
	var payload struct {
		Error             string `json:"error"`
		RetryAfterMinutes int    `json:"retry_after_minutes"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &ThrottledError{RetryAfterMinutes: 1, Message: string(body)}
	}
	return &ThrottledError{RetryAfterMinutes: payload.RetryAfterMinutes, Message: payload.Error}
}

// --- simple in-memory track-result cache ---

type cacheEntry struct {
	result    *TrackResult
	expiresAt time.Time
}

type trackCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newTrackCache(ttl time.Duration) *trackCache {
	return &trackCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (tc *trackCache) get(key string) (*TrackResult, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	e, ok := tc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.result, true
}

func (tc *trackCache) set(key string, result *TrackResult) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries[key] = &cacheEntry{result: result, expiresAt: time.Now().Add(tc.ttl)}
}
