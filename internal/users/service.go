// Package users manages the helpdesk staff accounts: password login,
// Google Workspace sign-in, and password resets. There is no public
// signup; accounts are created by an administrator.
package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/westcreek-sd/helpdesk/internal/auth"
	"github.com/westcreek-sd/helpdesk/internal/email"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// userRepo is the storage interface consumed by Service.
type userRepo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByOAuth(ctx context.Context, provider, providerID string) (*User, error)
	LinkOAuth(ctx context.Context, userID uuid.UUID, provider, providerID string) error
	List(ctx context.Context) ([]*User, error)
	SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error
	CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, token string, expires time.Time) error
	UsePasswordResetToken(ctx context.Context, token string) (*User, error)
}

// Service implements business logic for staff account management.
type Service struct {
	repo        userRepo
	mailer      email.Sender
	frontendURL string // base URL of the staff portal, used to build reset links
	logger      *zap.Logger
}

// NewService creates a new Service.
func NewService(repo userRepo, mailer email.Sender, frontendURL string, logger *zap.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, frontendURL: frontendURL, logger: logger}
}

// SetFrontendURL overrides the base URL used to build password reset links.
func (s *Service) SetFrontendURL(url string) {
	s.frontendURL = url
}

// CreateStaff provisions a new staff account. Admin-only; there is no
// self-service signup.
func (s *Service) CreateStaff(ctx context.Context, emailAddr, password, displayName string, role auth.Role) (*User, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	switch role {
	case auth.RoleUser, auth.RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if displayName == "" {
		displayName = emailAddr
	}

	u := &User{
		Email:        emailAddr,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create staff account: %w", err)
	}

	s.logger.Info("staff account created",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Login verifies email/password credentials and returns the user on success.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if u.PasswordHash == "" {
		return nil, fmt.Errorf("account uses Google sign-in; password not set")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	return u, nil
}

// LoginWithGoogle resolves a Google Workspace identity to an existing staff
// account. Unknown identities are rejected rather than auto-provisioned:
// only accounts created by an administrator may sign in.
func (s *Service) LoginWithGoogle(ctx context.Context, providerID, emailAddr string) (*User, error) {
	u, err := s.repo.GetByOAuth(ctx, "google", providerID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup oauth user: %w", err)
	}

	// First Google sign-in for an existing account: link by email.
	u, err = s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("no staff account for %s", emailAddr)
		}
		return nil, fmt.Errorf("lookup by email: %w", err)
	}
	if linkErr := s.repo.LinkOAuth(ctx, u.ID, "google", providerID); linkErr != nil {
		s.logger.Warn("link google identity",
			zap.String("user_id", u.ID.String()),
			zap.Error(linkErr),
		)
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all staff accounts.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// ForgotPassword generates a password-reset token and emails it to the user.
// Always returns nil — callers must not reveal whether the email is registered.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		return nil // silent — don't reveal account existence
	}

	token, err := generateSecureToken(32)
	if err != nil {
		s.logger.Error("generate password reset token", zap.Error(err))
		return nil
	}

	expires := time.Now().UTC().Add(1 * time.Hour)
	if err := s.repo.CreatePasswordResetToken(ctx, u.ID, token, expires); err != nil {
		s.logger.Error("persist password reset token", zap.Error(err))
		return nil
	}

	link := s.frontendURL + "/reset-password?token=" + token
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Reset your helpdesk password:</p><p><a href=%q>%s</a></p><p>This link expires in 1 hour. If you did not request a reset, ignore this email.</p>",
		u.DisplayName, link, link,
	)
	if err := s.mailer.Send(ctx, u.Email, "Reset your helpdesk password", body); err != nil {
		s.logger.Warn("send password reset email",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// ResetPassword validates a password-reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	u, err := s.repo.UsePasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("reset token not found or expired")
		}
		return fmt.Errorf("reset password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.SetPasswordHash(ctx, u.ID, string(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}

	s.logger.Info("password reset", zap.String("user_id", u.ID.String()))
	return nil
}

// generateSecureToken returns a hex-encoded random token of the given byte length.
func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
