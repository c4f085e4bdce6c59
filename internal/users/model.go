package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/westcreek-sd/helpdesk/internal/auth"
)

// User represents a staff account with access to the admin portal.
// Accounts are provisioned by division IT, never self-registered.
type User struct {
	ID           uuid.UUID `json:"id"           db:"id"`
	Email        string    `json:"email"        db:"email"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Role         auth.Role `json:"role"         db:"role"`
	CreatedAt    time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"   db:"updated_at"`
}

// OAuthAccount links a user to a Google Workspace identity.
type OAuthAccount struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	UserID     uuid.UUID `json:"user_id"     db:"user_id"`
	Provider   string    `json:"provider"    db:"provider"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}
