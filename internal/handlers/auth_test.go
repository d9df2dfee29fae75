package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clipverse/backend/internal/auth"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/repositories"
)

type inMemoryUserStore struct {
	users    map[string]models.User
	profiles map[string]models.Profile
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User), profiles: make(map[string]models.Profile)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User, profile models.Profile) error {
	if _, exists := s.users[user.Email]; exists {
		return repositories.ErrConflict
	}
	s.users[user.Email] = user
	profile.ID = user.ID
	s.profiles[user.ID] = profile
	return nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	user, ok := s.users[email]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func newTestManager(t *testing.T) (*auth.Manager, *auth.InMemorySessionStore) {
	t.Helper()
	store := auth.NewInMemorySessionStore()
	manager, err := auth.NewManager([]byte("test-secret"), time.Minute, time.Hour, store)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager, store
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAuthHandlerSignUp(t *testing.T) {
	store := newInMemoryUserStore()
	manager, _ := newTestManager(t)
	handler := AuthHandler{Users: store, Sessions: manager}

	rec := postJSON(t, handler.SignUp, "/api/v1/auth/signup", signUpRequest{
		Email:    "Test@Example.com",
		Password: "supersafe",
		Username: "tester",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}

	stored, err := store.FindByEmail(context.Background(), "test@example.com")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("supersafe")) != nil {
		t.Fatal("stored password is not hashed")
	}
	if p := store.profiles[stored.ID]; p.Username != "tester" || p.DisplayName != "tester" || p.Role != models.RoleUser {
		t.Fatalf("unexpected profile %+v", p)
	}

	rec = postJSON(t, handler.SignUp, "/api/v1/auth/signup", signUpRequest{
		Email:    "test@example.com",
		Password: "supersafe",
		Username: "tester2",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate email, got %d", rec.Code)
	}
}

func TestAuthHandlerSignUpValidation(t *testing.T) {
	manager, _ := newTestManager(t)
	handler := AuthHandler{Users: newInMemoryUserStore(), Sessions: manager}

	cases := []signUpRequest{
		{Email: "", Password: "supersafe", Username: "tester"},
		{Email: "not-an-email", Password: "supersafe", Username: "tester"},
		{Email: "a@example.com", Password: "short", Username: "tester"},
		{Email: "a@example.com", Password: "supersafe", Username: "No Spaces"},
	}
	for _, tc := range cases {
		rec := postJSON(t, handler.SignUp, "/api/v1/auth/signup", tc)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%+v: expected 400 got %d", tc, rec.Code)
		}
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	store := newInMemoryUserStore()
	manager, _ := newTestManager(t)
	handler := AuthHandler{Users: store, Sessions: manager}

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.users["login@example.com"] = models.User{ID: "user-1", Email: "login@example.com", Password: string(hashed)}

	rec := postJSON(t, handler.Login, "/api/v1/auth/login", loginRequest{Email: "login@example.com", Password: "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.UserID != "user-1" {
		t.Fatalf("expected tokens for user-1, got %+v", resp.Tokens)
	}

	rec = postJSON(t, handler.Login, "/api/v1/auth/login", loginRequest{Email: "login@example.com", Password: "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	rec = postJSON(t, handler.Login, "/api/v1/auth/login", loginRequest{Email: "nobody@example.com", Password: "password123"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", rec.Code)
	}
}

func TestAuthHandlerRefreshAndLogout(t *testing.T) {
	manager, store := newTestManager(t)
	tokens, err := manager.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	handler := AuthHandler{Sessions: manager}

	rec := postJSON(t, handler.Refresh, "/api/v1/auth/refresh", refreshRequest{RefreshToken: tokens.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token to be issued")
	}

	rec = postJSON(t, handler.Refresh, "/api/v1/auth/refresh", refreshRequest{RefreshToken: tokens.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated token to be rejected, got %d", rec.Code)
	}

	rec = postJSON(t, handler.Logout, "/api/v1/auth/logout", refreshRequest{RefreshToken: resp.Tokens.RefreshToken})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if store.Has(resp.Tokens.RefreshToken) {
		t.Fatal("expected session to be revoked")
	}
}
