package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/netwise/internal/middleware"
	"github.com/hitoshi/netwise/internal/model"
)

// ConnectionServiceInterface はつながりハンドラーが必要とするサービスインターフェース。
type ConnectionServiceInterface interface {
	// Request はつながりリクエストを作成する。
	Request(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error)
	// Accept はpendingのリクエストを承認する。
	Accept(ctx context.Context, connectionID, byUserID string) (*model.Connection, error)
	// Reject はpendingのリクエストを拒否する。
	Reject(ctx context.Context, connectionID, byUserID string) (*model.Connection, error)
	// Withdraw はpendingのリクエストを取り下げる。
	Withdraw(ctx context.Context, connectionID, byUserID string) (*model.Connection, error)
	// List は自分が関与するエッジの一覧を返す。
	List(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error)
}

// ConnectionHandler はつながりリクエスト管理のHTTPハンドラー。
type ConnectionHandler struct {
	service ConnectionServiceInterface
}

// NewConnectionHandler はConnectionHandlerを生成する。
func NewConnectionHandler(service ConnectionServiceInterface) *ConnectionHandler {
	return &ConnectionHandler{service: service}
}

// requestConnectionRequest はつながりリクエスト作成のボディ。
type requestConnectionRequest struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message,omitempty"`
}

// connectionResponse はエッジ情報のAPIレスポンス。
type connectionResponse struct {
	ID          string `json:"id"`
	RequesterID string `json:"requester_id"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// connectionListResponse はエッジ一覧のAPIレスポンス。
type connectionListResponse struct {
	Connections []connectionResponse `json:"connections"`
}

// RequestConnection はつながりリクエストの作成を処理する。
// POST /api/connections
func (h *ConnectionHandler) RequestConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	var req requestConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	if req.RecipientID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "recipient_idは必須です。",
			Category: "validation",
			Action:   "リクエスト先のユーザーIDを指定してください。",
		})
		return
	}

	conn, err := h.service.Request(r.Context(), userID, req.RecipientID, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toConnectionResponse(conn))
}

// ListConnections は自分が関与するエッジの一覧を返す。
// GET /api/connections?filter=all|accepted|pending|incoming|outgoing
func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	filter := model.ConnectionFilter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = model.ConnectionFilterAll
	}

	conns, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := connectionListResponse{
		Connections: make([]connectionResponse, len(conns)),
	}
	for i, conn := range conns {
		resp.Connections[i] = toConnectionResponse(conn)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// AcceptConnection はつながりリクエストの承認を処理する。
// POST /api/connections/:id/accept
func (h *ConnectionHandler) AcceptConnection(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Accept)
}

// RejectConnection はつながりリクエストの拒否を処理する。
// POST /api/connections/:id/reject
func (h *ConnectionHandler) RejectConnection(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

// WithdrawConnection はつながりリクエストの取り下げを処理する。
// POST /api/connections/:id/withdraw
func (h *ConnectionHandler) WithdrawConnection(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Withdraw)
}

// transition は承認・拒否・取り下げの共通処理。
func (h *ConnectionHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, connectionID, byUserID string) (*model.Connection, error),
) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	connectionID := chi.URLParam(r, "id")

	conn, err := op(r.Context(), connectionID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toConnectionResponse(conn))
}

// toConnectionResponse はmodel.ConnectionからAPIレスポンスに変換する。
func toConnectionResponse(conn *model.Connection) connectionResponse {
	return connectionResponse{
		ID:          conn.ID,
		RequesterID: conn.RequesterID,
		RecipientID: conn.RecipientID,
		Status:      string(conn.Status),
		Message:     conn.Message,
		CreatedAt:   conn.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   conn.UpdatedAt.Format(time.RFC3339Nano),
	}
}
