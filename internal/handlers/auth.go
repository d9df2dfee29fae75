package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/repositories"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

var errInvalidCredentials = apperr.E(apperr.KindAuthRequired, "invalid credentials", nil)

// AuthHandler implements user authentication endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	NowFunc  func() time.Time
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "email and password are required", nil), "")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, err, "unable to sign in")
			return
		}
		logger.Warn("login unknown email")
		respondError(ctx, w, errInvalidCredentials, "")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, errInvalidCredentials, "")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, err, "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := req.validate(); err != nil {
		respondError(ctx, w, err, "")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(ctx, w, err, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	profile := models.Profile{
		Username:    req.Username,
		DisplayName: displayName,
		Role:        models.RoleUser,
	}

	if err := h.Users.Create(ctx, user, profile); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, apperr.E(apperr.KindConflict, "account already exists", err), "")
			return
		}
		respondError(ctx, w, err, "failed to create account")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, err, "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{Tokens: tokens})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "refresh token is required", nil), "")
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		respondError(ctx, w, err, "unable to refresh session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout revokes a refresh token. Unknown tokens are accepted so logging out
// twice is harmless.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}

	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		if err := h.Sessions.Revoke(ctx, token); err != nil {
			respondError(ctx, w, err, "unable to end session")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

func (req signUpRequest) validate() error {
	if req.Email == "" || req.Password == "" {
		return apperr.E(apperr.KindInvalid, "email and password are required", nil)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return apperr.E(apperr.KindInvalid, "invalid email address", err)
	}
	if len(req.Password) < 8 {
		return apperr.E(apperr.KindInvalid, "password must be at least 8 characters", nil)
	}
	if !usernamePattern.MatchString(req.Username) {
		return apperr.E(apperr.KindInvalid, "username must be 3-30 lowercase letters, digits or underscores", nil)
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
