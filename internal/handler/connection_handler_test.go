package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/netwise/internal/middleware"
	"github.com/hitoshi/netwise/internal/model"
)

// --- モック定義 ---

// mockConnectionService はConnectionServiceInterfaceのモック実装。
type mockConnectionService struct {
	requestFn  func(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error)
	acceptFn   func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error)
	rejectFn   func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error)
	withdrawFn func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error)
	listFn     func(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error)
}

func (m *mockConnectionService) Request(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error) {
	if m.requestFn != nil {
		return m.requestFn(ctx, requesterID, recipientID, message)
	}
	return nil, nil
}

func (m *mockConnectionService) Accept(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
	if m.acceptFn != nil {
		return m.acceptFn(ctx, connectionID, byUserID)
	}
	return nil, nil
}

func (m *mockConnectionService) Reject(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, connectionID, byUserID)
	}
	return nil, nil
}

func (m *mockConnectionService) Withdraw(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, connectionID, byUserID)
	}
	return nil, nil
}

func (m *mockConnectionService) List(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, filter)
	}
	return nil, nil
}

var _ ConnectionServiceInterface = (*mockConnectionService)(nil)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func testPendingConnection() *model.Connection {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Connection{
		ID:          "conn-1",
		RequesterID: "user-123",
		RecipientID: "user-456",
		Status:      model.ConnectionStatusPending,
		Message:     "はじめまして",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// --- POST /api/connections テスト ---

func TestConnectionHandler_RequestConnection_Success(t *testing.T) {
	svc := &mockConnectionService{
		requestFn: func(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error) {
			if requesterID != "user-123" {
				t.Errorf("requesterID = %q, want %q", requesterID, "user-123")
			}
			if recipientID != "user-456" {
				t.Errorf("recipientID = %q, want %q", recipientID, "user-456")
			}
			if message != "はじめまして" {
				t.Errorf("message = %q, want %q", message, "はじめまして")
			}
			return testPendingConnection(), nil
		},
	}

	h := NewConnectionHandler(svc)

	body := bytes.NewBufferString(`{"recipient_id":"user-456","message":"はじめまして"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connections", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["id"] != "conn-1" {
		t.Errorf("id = %v, want %q", result["id"], "conn-1")
	}
	if result["status"] != "pending" {
		t.Errorf("status = %v, want %q", result["status"], "pending")
	}
}

func TestConnectionHandler_RequestConnection_Unauthenticated(t *testing.T) {
	h := NewConnectionHandler(&mockConnectionService{})

	body := bytes.NewBufferString(`{"recipient_id":"user-456"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connections", body)
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestConnectionHandler_RequestConnection_InvalidJSON(t *testing.T) {
	h := NewConnectionHandler(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewBufferString("{invalid"))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestConnectionHandler_RequestConnection_MissingRecipient(t *testing.T) {
	h := NewConnectionHandler(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewBufferString(`{"message":"hi"}`))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", result["code"], "INVALID_REQUEST")
	}
}

func TestConnectionHandler_RequestConnection_SelfConnection(t *testing.T) {
	svc := &mockConnectionService{
		requestFn: func(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error) {
			return nil, model.NewSelfConnectionError()
		},
	}
	h := NewConnectionHandler(svc)

	body := bytes.NewBufferString(`{"recipient_id":"user-123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connections", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeSelfConnection {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeSelfConnection)
	}
}

func TestConnectionHandler_RequestConnection_AlreadyPending(t *testing.T) {
	svc := &mockConnectionService{
		requestFn: func(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error) {
			return nil, model.NewAlreadyPendingError()
		},
	}
	h := NewConnectionHandler(svc)

	body := bytes.NewBufferString(`{"recipient_id":"user-456"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connections", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeAlreadyPending {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeAlreadyPending)
	}
}

func TestConnectionHandler_RequestConnection_Cooldown(t *testing.T) {
	svc := &mockConnectionService{
		requestFn: func(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error) {
			return nil, model.NewRequestCooldownError()
		},
	}
	h := NewConnectionHandler(svc)

	body := bytes.NewBufferString(`{"recipient_id":"user-456"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connections", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestConnectionHandler_RequestConnection_ServiceError(t *testing.T) {
	svc := &mockConnectionService{
		requestFn: func(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewConnectionHandler(svc)

	body := bytes.NewBufferString(`{"recipient_id":"user-456"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connections", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RequestConnection(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", result["code"], "INTERNAL_ERROR")
	}
}

// --- GET /api/connections テスト ---

func TestConnectionHandler_ListConnections_Success(t *testing.T) {
	svc := &mockConnectionService{
		listFn: func(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			if filter != model.ConnectionFilterIncoming {
				t.Errorf("filter = %q, want %q", filter, model.ConnectionFilterIncoming)
			}
			return []*model.Connection{testPendingConnection()}, nil
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/connections?filter=incoming", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListConnections(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	conns, ok := result["connections"].([]interface{})
	if !ok {
		t.Fatalf("connections is not an array: %v", result["connections"])
	}
	if len(conns) != 1 {
		t.Fatalf("connections length = %d, want 1", len(conns))
	}
}

func TestConnectionHandler_ListConnections_DefaultFilter(t *testing.T) {
	var gotFilter model.ConnectionFilter
	svc := &mockConnectionService{
		listFn: func(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListConnections(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotFilter != model.ConnectionFilterAll {
		t.Errorf("filter = %q, want %q", gotFilter, model.ConnectionFilterAll)
	}

	// 空の結果でも connections は空配列として返す
	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := result["connections"].([]interface{}); !ok {
		t.Errorf("connections should be an empty array, got %v", result["connections"])
	}
}

func TestConnectionHandler_ListConnections_InvalidFilter(t *testing.T) {
	svc := &mockConnectionService{
		listFn: func(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error) {
			return nil, model.NewInvalidFilterError(string(filter))
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/connections?filter=bogus", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListConnections(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeInvalidFilter {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeInvalidFilter)
	}
}

// --- POST /api/connections/{id}/accept テスト ---

func TestConnectionHandler_AcceptConnection_Success(t *testing.T) {
	accepted := testPendingConnection()
	accepted.Status = model.ConnectionStatusAccepted

	svc := &mockConnectionService{
		acceptFn: func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
			if connectionID != "conn-1" {
				t.Errorf("connectionID = %q, want %q", connectionID, "conn-1")
			}
			if byUserID != "user-456" {
				t.Errorf("byUserID = %q, want %q", byUserID, "user-456")
			}
			return accepted, nil
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/accept", nil)
	req = withUserID(req, "user-456")
	req = withChiURLParam(req, "id", "conn-1")
	w := httptest.NewRecorder()

	h.AcceptConnection(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["status"] != "accepted" {
		t.Errorf("status = %v, want %q", result["status"], "accepted")
	}
}

func TestConnectionHandler_AcceptConnection_NotFound(t *testing.T) {
	svc := &mockConnectionService{
		acceptFn: func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
			return nil, model.NewConnectionNotFoundError(connectionID)
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/missing/accept", nil)
	req = withUserID(req, "user-456")
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.AcceptConnection(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestConnectionHandler_AcceptConnection_NotAuthorized(t *testing.T) {
	svc := &mockConnectionService{
		acceptFn: func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
			return nil, model.NewNotAuthorizedError()
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/accept", nil)
	req = withUserID(req, "user-999")
	req = withChiURLParam(req, "id", "conn-1")
	w := httptest.NewRecorder()

	h.AcceptConnection(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestConnectionHandler_AcceptConnection_InvalidState(t *testing.T) {
	svc := &mockConnectionService{
		acceptFn: func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
			return nil, model.NewInvalidStateError(model.ConnectionStatusRejected)
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/accept", nil)
	req = withUserID(req, "user-456")
	req = withChiURLParam(req, "id", "conn-1")
	w := httptest.NewRecorder()

	h.AcceptConnection(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeInvalidState {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeInvalidState)
	}
}

// --- POST /api/connections/{id}/reject テスト ---

func TestConnectionHandler_RejectConnection_Success(t *testing.T) {
	rejected := testPendingConnection()
	rejected.Status = model.ConnectionStatusRejected

	svc := &mockConnectionService{
		rejectFn: func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
			return rejected, nil
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/reject", nil)
	req = withUserID(req, "user-456")
	req = withChiURLParam(req, "id", "conn-1")
	w := httptest.NewRecorder()

	h.RejectConnection(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["status"] != "rejected" {
		t.Errorf("status = %v, want %q", result["status"], "rejected")
	}
}

// --- POST /api/connections/{id}/withdraw テスト ---

func TestConnectionHandler_WithdrawConnection_Success(t *testing.T) {
	withdrawn := testPendingConnection()
	withdrawn.Status = model.ConnectionStatusWithdrawn

	svc := &mockConnectionService{
		withdrawFn: func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
			if byUserID != "user-123" {
				t.Errorf("byUserID = %q, want %q", byUserID, "user-123")
			}
			return withdrawn, nil
		},
	}
	h := NewConnectionHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/withdraw", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "conn-1")
	w := httptest.NewRecorder()

	h.WithdrawConnection(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["status"] != "withdrawn" {
		t.Errorf("status = %v, want %q", result["status"], "withdrawn")
	}
}

func TestConnectionHandler_WithdrawConnection_Unauthenticated(t *testing.T) {
	h := NewConnectionHandler(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/withdraw", nil)
	req = withChiURLParam(req, "id", "conn-1")
	w := httptest.NewRecorder()

	h.WithdrawConnection(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
