package api

import (
	"net/http"
	"net/mail"
	"time"

	"github.com/capigrid/capigrid/internal/auth"
	"github.com/capigrid/capigrid/internal/models"
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = time.Hour
	minPasswordLen = 8
)

// RegisterRequest is the request body for POST /auth/register
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the account
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// handleRegister handles POST /api/v1/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.sendError(w, http.StatusBadRequest, "a valid email is required", "invalid_email")
		return
	}
	if len(req.Password) < minPasswordLen {
		s.sendError(w, http.StatusBadRequest, "password must be at least 8 characters", "invalid_password")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required", "invalid_name")
		return
	}

	existing, err := s.users.GetByEmail(req.Email)
	if err != nil {
		s.logger.Error("failed to check existing user", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	if existing != nil {
		s.sendError(w, http.StatusConflict, "email is already registered", "email_taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		IsActive:     true,
	}
	if err := s.users.Create(user); err != nil {
		s.logger.Error("failed to create user", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	token, err := s.emailTokens.Create(user.ID, models.TokenPurposeVerify, verifyTokenTTL)
	if err != nil {
		s.logger.Error("failed to create verification token", "error", err)
	} else if err := s.mail.SendVerification(r.Context(), user.Email, user.Name, token.Token); err != nil {
		s.logger.Error("failed to queue verification email", "error", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	s.sendJSON(w, http.StatusCreated, user)
}

// handleVerifyEmail handles GET /api/v1/auth/verify?token=
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		s.sendError(w, http.StatusBadRequest, "token is required", "invalid_token")
		return
	}

	token, err := s.emailTokens.Consume(tokenStr, models.TokenPurposeVerify)
	if err != nil {
		s.logger.Error("failed to consume verification token", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	if token == nil {
		s.sendError(w, http.StatusBadRequest, "token is invalid or expired", "invalid_token")
		return
	}

	if err := s.users.SetVerified(token.UserID); err != nil {
		s.logger.Error("failed to mark user verified", "user_id", token.UserID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// handleLogin handles POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	user, err := s.users.GetByEmail(req.Email)
	if err != nil {
		s.logger.Error("failed to load user", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.sendError(w, http.StatusUnauthorized, "invalid email or password", "invalid_credentials")
		return
	}
	if !user.IsActive {
		s.sendError(w, http.StatusForbidden, "account is disabled", "account_disabled")
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	s.sendJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// handleForgotPassword handles POST /api/v1/auth/password/forgot.
// Always answers 202 so the endpoint cannot be used to probe for accounts.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	user, err := s.users.GetByEmail(req.Email)
	if err != nil {
		s.logger.Error("failed to load user", "error", err)
	}
	if user != nil && user.IsActive {
		token, err := s.emailTokens.Create(user.ID, models.TokenPurposeReset, resetTokenTTL)
		if err != nil {
			s.logger.Error("failed to create reset token", "error", err)
		} else if err := s.mail.SendPasswordReset(r.Context(), user.Email, user.Name, token.Token); err != nil {
			s.logger.Error("failed to queue reset email", "error", err)
		}
	}

	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleResetPassword handles POST /api/v1/auth/password/reset
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Password) < minPasswordLen {
		s.sendError(w, http.StatusBadRequest, "password must be at least 8 characters", "invalid_password")
		return
	}

	token, err := s.emailTokens.Consume(req.Token, models.TokenPurposeReset)
	if err != nil {
		s.logger.Error("failed to consume reset token", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	if token == nil {
		s.sendError(w, http.StatusBadRequest, "token is invalid or expired", "invalid_token")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	if err := s.users.SetPassword(token.UserID, hash); err != nil {
		s.logger.Error("failed to set password", "user_id", token.UserID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

// handleGoogleLogin handles GET /api/v1/auth/google
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		s.sendError(w, http.StatusNotFound, "google sign-in is not enabled", "not_enabled")
		return
	}

	url, _, err := s.google.AuthCodeURL()
	if err != nil {
		s.logger.Error("failed to build auth URL", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// handleGoogleCallback handles GET /api/v1/auth/google/callback
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.google == nil {
		s.sendError(w, http.StatusNotFound, "google sign-in is not enabled", "not_enabled")
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		s.sendError(w, http.StatusBadRequest, "state and code are required", "invalid_callback")
		return
	}

	gu, err := s.google.Exchange(r.Context(), state, code)
	if err != nil {
		s.logger.Warn("google sign-in failed", "error", err)
		s.sendError(w, http.StatusUnauthorized, "google sign-in failed", "oauth_failed")
		return
	}

	user, err := s.findOrCreateGoogleUser(gu)
	if err != nil {
		s.logger.Error("failed to resolve google user", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	if !user.IsActive {
		s.sendError(w, http.StatusForbidden, "account is disabled", "account_disabled")
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	s.sendJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// findOrCreateGoogleUser matches by OIDC subject first, then links an
// existing account by email, then creates a fresh verified account.
func (s *Server) findOrCreateGoogleUser(gu *auth.GoogleUser) (*models.User, error) {
	user, err := s.users.GetByGoogleSub(gu.Sub)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user, err = s.users.GetByEmail(gu.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := s.users.LinkGoogle(user.ID, gu.Sub); err != nil {
			return nil, err
		}
		user.GoogleSub = gu.Sub
		user.IsVerified = true
		return user, nil
	}

	user = &models.User{
		Email:      gu.Email,
		Name:       gu.Name,
		AvatarURL:  gu.Picture,
		GoogleSub:  gu.Sub,
		IsActive:   true,
		IsVerified: true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	s.logger.Info("user created via google sign-in", "user_id", user.ID)
	return user, nil
}
