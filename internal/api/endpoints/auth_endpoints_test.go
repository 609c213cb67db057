package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/dto"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/queue"
	authsvc "support-chat-backend/internal/service/auth"
)

type memoryAuthRepository struct {
	users map[string]model.UserItem
}

func (m *memoryAuthRepository) GetUserByEmail(ctx context.Context, email string) (model.UserItem, error) {
	user, ok := m.users[email]
	if !ok {
		return model.UserItem{}, authsvc.ErrNotFound
	}
	return user, nil
}

func stubIssueTokens(user internaljwt.User, role internaljwt.Role, validUntil int64) (internaljwt.TokenResponse, error) {
	return internaljwt.TokenResponse{
		AccessToken:  "access-" + user.Id,
		RefreshToken: "refresh-" + user.Id,
	}, nil
}

func setupAuthTestHandler(t *testing.T, repo *memoryAuthRepository) http.Handler {
	t.Helper()

	svc := authsvc.NewWithRepository(repo, nil, stubIssueTokens)

	queueManager := queue.NewRequestQueueManager(10, 1)
	t.Cleanup(queueManager.Shutdown)
	server := api.NewAPIServer(":0", queueManager, nil, nil)

	authEndpoints := NewAuthEndpointsWithService(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", server.MakeHTTPHandleFunc(authEndpoints.Login))
	mux.HandleFunc("/api/v1/auth/refresh", server.MakeHTTPHandleFunc(authEndpoints.Refresh))

	return mux
}

func seedAgent(t *testing.T, repo *memoryAuthRepository, email, password string) {
	t.Helper()
	hash, err := internaljwt.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo.users[email] = model.UserItem{
		UserID:       "agent-1",
		Email:        email,
		Name:         "Kasia",
		Role:         model.UserRoleAdmin,
		Status:       model.UserStatusActive,
		PasswordHash: hash,
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginEndpoint(t *testing.T) {
	repo := &memoryAuthRepository{users: make(map[string]model.UserItem)}
	seedAgent(t, repo, "kasia@example.com", "correct-horse")
	handler := setupAuthTestHandler(t, repo)

	rec := postJSON(t, handler, "/api/v1/auth/login", dto.LoginRequest{
		Email:    "kasia@example.com",
		Password: "correct-horse",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var resp dto.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Role != "agent" {
		t.Fatalf("role = %q, want agent", resp.Role)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("tokens missing in response: %+v", resp)
	}
}

func TestLoginEndpointRejectsBadPassword(t *testing.T) {
	repo := &memoryAuthRepository{users: make(map[string]model.UserItem)}
	seedAgent(t, repo, "kasia@example.com", "correct-horse")
	handler := setupAuthTestHandler(t, repo)

	rec := postJSON(t, handler, "/api/v1/auth/login", dto.LoginRequest{
		Email:    "kasia@example.com",
		Password: "wrong",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginEndpointRejectsMalformedPayload(t *testing.T) {
	repo := &memoryAuthRepository{users: make(map[string]model.UserItem)}
	handler := setupAuthTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginEndpointMethodNotAllowed(t *testing.T) {
	repo := &memoryAuthRepository{users: make(map[string]model.UserItem)}
	handler := setupAuthTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRefreshEndpointRejectsMalformedPayload(t *testing.T) {
	repo := &memoryAuthRepository{users: make(map[string]model.UserItem)}
	handler := setupAuthTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
