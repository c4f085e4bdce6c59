package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/westcreek-sd/helpdesk/internal/auth"
	"github.com/westcreek-sd/helpdesk/internal/users"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleOAuthConfig holds OAuth client credentials for Google Workspace sign-in.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// userSvc is the interface expected by AuthHandler, satisfied by *users.Service.
type userSvc interface {
	Login(ctx context.Context, email, password string) (*users.User, error)
	LoginWithGoogle(ctx context.Context, providerID, email string) (*users.User, error)
	CreateStaff(ctx context.Context, email, password, displayName string, role auth.Role) (*users.User, error)
	List(ctx context.Context) ([]*users.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// AuthHandler handles staff authentication routes.
type AuthHandler struct {
	users       userSvc
	tokens      *auth.TokenIssuer
	oauthCfg    *oauth2.Config // nil = Google sign-in disabled
	frontendURL string         // used to redirect after the OAuth callback
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler. google may be empty to disable
// Google sign-in.
func NewAuthHandler(userSvc userSvc, tokens *auth.TokenIssuer, googleCfg GoogleOAuthConfig, logger *zap.Logger) *AuthHandler {
	var cfg *oauth2.Config
	if googleCfg.ClientID != "" && googleCfg.ClientSecret != "" {
		cfg = &oauth2.Config{
			ClientID:     googleCfg.ClientID,
			ClientSecret: googleCfg.ClientSecret,
			RedirectURL:  googleCfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}
	return &AuthHandler{
		users:       userSvc,
		tokens:      tokens,
		oauthCfg:    cfg,
		frontendURL: "http://localhost:3000",
		logger:      logger,
	}
}

// SetFrontendURL sets the base URL of the staff frontend for OAuth redirects.
func (h *AuthHandler) SetFrontendURL(url string) {
	h.frontendURL = url
}

// Register mounts the public auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	{
		a.POST("/login", h.Login)
		a.POST("/logout", h.Logout)
		a.POST("/forgot-password", h.ForgotPassword)
		a.POST("/reset-password", h.ResetPassword)
		a.GET("/oauth/google", h.OAuthRedirect)
		a.GET("/oauth/google/callback", h.OAuthCallback)
	}
}

// RegisterAdmin mounts staff-management routes. The group is expected to
// already carry admin authentication middleware.
func (h *AuthHandler) RegisterAdmin(rg *gin.RouterGroup) {
	staff := rg.Group("/staff")
	{
		staff.POST("", h.CreateStaff)
		staff.GET("", h.ListStaff)
	}
}

// ─── Request types ───────────────────────────────────────────────────────

type loginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createStaffRequest struct {
	Email       string `json:"email"        binding:"required,email"`
	Password    string `json:"password"     binding:"required"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"         binding:"required"`
}

// ─── Handlers ────────────────────────────────────────────────────────────

// Login handles POST /auth/login — authenticates with email/password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.tokens.Issue(u.ID.String(), u.Email, u.Role)
	if err != nil {
		h.logger.Error("issue session token after login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": u, "token": tok})
}

// Logout handles POST /auth/logout. Sessions are stateless JWTs, so logout
// is client-side: the client discards the token.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "logged out — discard your token client-side",
	})
}

// ForgotPassword handles POST /auth/forgot-password.
// Always returns 200 — never reveals whether the email is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_ = h.users.ForgotPassword(c.Request.Context(), req.Email)

	c.JSON(http.StatusOK, gin.H{
		"message": "if an account with that email exists, a password reset link has been sent",
	})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password updated — please log in with your new password"})
}

// CreateStaff handles POST /staff — provisions a new staff account.
func (h *AuthHandler) CreateStaff(c *gin.Context) {
	var req createStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.CreateStaff(c.Request.Context(), req.Email, req.Password, req.DisplayName, auth.Role(req.Role))
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": u})
}

// ListStaff handles GET /staff — lists staff accounts.
func (h *AuthHandler) ListStaff(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list staff", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list staff"})
		return
	}
	if list == nil {
		list = []*users.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": list, "count": len(list)})
}

// OAuthRedirect handles GET /auth/oauth/google — redirects to Google.
func (h *AuthHandler) OAuthRedirect(c *gin.Context) {
	if h.oauthCfg == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	state, err := h.tokens.IssueOAuthState("google")
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate OAuth state"})
		return
	}

	c.Redirect(http.StatusFound, h.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// OAuthCallback handles GET /auth/oauth/google/callback.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if h.oauthCfg == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	// Validate state to prevent CSRF.
	provider, err := h.tokens.VerifyOAuthState(c.Query("state"))
	if err != nil || provider != "google" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error_description")
		if errMsg == "" {
			errMsg = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth authorization failed: " + errMsg})
		return
	}

	oauthToken, err := h.oauthCfg.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth code exchange failed"})
		return
	}

	providerID, emailAddr, err := fetchGoogleUserInfo(c.Request.Context(), oauthToken.AccessToken)
	if err != nil {
		h.logger.Error("fetch google user info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user info from Google"})
		return
	}

	u, err := h.users.LoginWithGoogle(c.Request.Context(), providerID, emailAddr)
	if err != nil {
		// Unknown identities are not auto-provisioned.
		c.JSON(http.StatusForbidden, gin.H{"error": "no staff account is linked to that Google identity"})
		return
	}

	tok, err := h.tokens.Issue(u.ID.String(), u.Email, u.Role)
	if err != nil {
		h.logger.Error("issue session token after oauth", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	// The token rides in the URL fragment so it never reaches the server logs.
	c.Redirect(http.StatusFound, h.frontendURL+"/oauth/callback#token="+tok)
}

// fetchGoogleUserInfo calls Google's user-info API and returns (providerID, email).
func fetchGoogleUserInfo(ctx context.Context, accessToken string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("google userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", "", fmt.Errorf("parse google user info: %w", err)
	}
	return info.ID, info.Email, nil
}
