package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ValidationError reports every offending field of a malformed request, not
// just the first one, so form UIs can highlight all of them at once.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CreateTicketRequest is the public submission payload. CaptchaID/CaptchaCode
// are checked by the handler before anything else; Details carries the
// category-specific fields.
type CreateTicketRequest struct {
	Category       Category        `json:"category"`
	RequesterName  string          `json:"requester_name"`
	RequesterEmail string          `json:"requester_email"`
	RequesterPhone string          `json:"requester_phone"`
	School         string          `json:"school"`
	Subject        string          `json:"subject"`
	Description    string          `json:"description"`
	Priority       Priority        `json:"priority"`
	Details        json.RawMessage `json:"details"`
	CaptchaID      string          `json:"captcha_id"`
	CaptchaCode    string          `json:"captcha_code"`
}

// TroubleshootingDetails is the payload for hardware/software trouble tickets.
type TroubleshootingDetails struct {
	DeviceType string `json:"device_type"`
	AssetTag   string `json:"asset_tag"`
	Room       string `json:"room"`
}

// AccountDetails is the payload for account management tickets.
type AccountDetails struct {
	System      string `json:"system"`       // google, sis, network, ...
	Username    string `json:"username"`
	RequestType string `json:"request_type"` // reset, unlock, new
}

// DocumentDetails is the payload for document upload tickets. File transport
// is handled elsewhere; the ticket only carries a reference.
type DocumentDetails struct {
	DocumentType string `json:"document_type"`
	FileName     string `json:"file_name"`
	FileURL      string `json:"file_url"`
}

// Validate checks the request and returns a *ValidationError enumerating all
// offending fields, or nil when the request is well-formed.
func (r *CreateTicketRequest) Validate() error {
	fields := make(map[string]string)

	if strings.TrimSpace(r.RequesterName) == "" {
		fields["requester_name"] = "required"
	}
	email := strings.TrimSpace(r.RequesterEmail)
	switch {
	case email == "":
		fields["requester_email"] = "required"
	case !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@"):
		fields["requester_email"] = "must be a valid email address"
	}
	if strings.TrimSpace(r.Subject) == "" {
		fields["subject"] = "required"
	}
	if strings.TrimSpace(r.Description) == "" {
		fields["description"] = "required"
	}
	if r.Priority != "" && !r.Priority.Valid() {
		fields["priority"] = "must be one of low, medium, high, urgent"
	}

	if !r.Category.Valid() {
		fields["category"] = "must be one of troubleshooting, account, document"
	} else {
		r.validateDetails(fields)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// validateDetails decodes and checks the category-specific payload.
func (r *CreateTicketRequest) validateDetails(fields map[string]string) {
	switch r.Category {
	case CategoryTroubleshooting:
		var d TroubleshootingDetails
		if !decodeDetails(r.Details, &d, fields) {
			return
		}
		if strings.TrimSpace(d.DeviceType) == "" {
			fields["details.device_type"] = "required"
		}
	case CategoryAccount:
		var d AccountDetails
		if !decodeDetails(r.Details, &d, fields) {
			return
		}
		if strings.TrimSpace(d.System) == "" {
			fields["details.system"] = "required"
		}
		if strings.TrimSpace(d.Username) == "" {
			fields["details.username"] = "required"
		}
		switch d.RequestType {
		case "reset", "unlock", "new":
		default:
			fields["details.request_type"] = "must be one of reset, unlock, new"
		}
	case CategoryDocument:
		var d DocumentDetails
		if !decodeDetails(r.Details, &d, fields) {
			return
		}
		if strings.TrimSpace(d.DocumentType) == "" {
			fields["details.document_type"] = "required"
		}
		if strings.TrimSpace(d.FileName) == "" {
			fields["details.file_name"] = "required"
		}
	}
}

func decodeDetails(raw json.RawMessage, dst any, fields map[string]string) bool {
	if len(raw) == 0 {
		fields["details"] = "required"
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		fields["details"] = "malformed payload"
		return false
	}
	return true
}

// TrackTicketRequest looks a ticket up by its tracking id; the requester
// email must match the one on the ticket.
type TrackTicketRequest struct {
	TrackingID string `json:"tracking_id" binding:"required"`
	Email      string `json:"email"       binding:"required"`
}

// UpdateStatusRequest is the admin payload for moving a ticket through its
// lifecycle.
type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// AssignRequest assigns a ticket to a staff member.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id" binding:"required"`
}

// ListFilter narrows admin ticket listings.
type ListFilter struct {
	Status   Status
	Category Category
	Priority Priority
	Search   string
	Limit    int
	Offset   int
}

// Stats is the aggregate snapshot served to the admin dashboard.
type Stats struct {
	Total            int64              `json:"total"`
	ByStatus         map[Status]int64   `json:"by_status"`
	ByCategory       map[Category]int64 `json:"by_category"`
	ByPriority       map[Priority]int64 `json:"by_priority"`
	CreatedLast7Days int64              `json:"created_last_7_days"`
	GeneratedAt      time.Time          `json:"generated_at"`
}
