package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/netwise/internal/middleware"
	"github.com/hitoshi/netwise/internal/notify"
)

// NotificationServiceInterface は通知ハンドラーが必要とするサービスインターフェース。
type NotificationServiceInterface interface {
	// ListNotifications は通知一覧を新しい順にページネーション付きで返す。
	ListNotifications(ctx context.Context, recipientID, cursor string, limit int) (*notify.ListResult, error)
	// MarkRead は通知を既読にする。
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	// MarkAllRead は全未読通知を既読にし、件数を返す。
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// NotificationHandlerConfig は通知ハンドラーの設定。
type NotificationHandlerConfig struct {
	// DefaultPageSize はlimit未指定時のページサイズ。
	DefaultPageSize int
	// MaxPageSize はlimitの上限。超過分は切り詰める。
	MaxPageSize int
}

// NotificationHandler は通知管理のHTTPハンドラー。
type NotificationHandler struct {
	service NotificationServiceInterface
	config  NotificationHandlerConfig
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationServiceInterface, config NotificationHandlerConfig) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		config:  config,
	}
}

// notificationResponse は通知1件のAPIレスポンス。
type notificationResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	ActorID   string `json:"actor_id"`
	SubjectID string `json:"subject_id"`
	Message   string `json:"message,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// notificationListResponse は通知一覧のAPIレスポンス。
type notificationListResponse struct {
	Notifications []notificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
	NextCursor    string                 `json:"next_cursor,omitempty"`
	HasMore       bool                   `json:"has_more"`
}

// markAllReadResponse はread-allのAPIレスポンス。
type markAllReadResponse struct {
	MarkedCount int64 `json:"marked_count"`
}

// ListNotifications は通知一覧を取得する。
// GET /api/notifications?cursor=&limit=
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := h.parseLimit(r.URL.Query().Get("limit"))

	result, err := h.service.ListNotifications(r.Context(), userID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := notificationListResponse{
		Notifications: make([]notificationResponse, len(result.Notifications)),
		UnreadCount:   result.UnreadCount,
		NextCursor:    result.NextCursor,
		HasMore:       result.HasMore,
	}
	for i, n := range result.Notifications {
		resp.Notifications[i] = notificationResponse{
			ID:        n.ID,
			Kind:      string(n.Kind),
			ActorID:   n.ActorID,
			SubjectID: n.SubjectID,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(time.RFC3339Nano),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// MarkRead は通知を既読にする。
// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	notificationID := chi.URLParam(r, "id")

	if err := h.service.MarkRead(r.Context(), userID, notificationID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead は全未読通知を既読にする。
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	count, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markAllReadResponse{MarkedCount: count})
}

// parseLimit はlimitクエリパラメータをページサイズに変換する。
// 未指定・不正値はデフォルト、上限超過は上限に切り詰める。
func (h *NotificationHandler) parseLimit(raw string) int {
	if raw == "" {
		return h.config.DefaultPageSize
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return h.config.DefaultPageSize
	}
	if limit > h.config.MaxPageSize {
		return h.config.MaxPageSize
	}
	return limit
}
