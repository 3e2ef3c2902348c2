package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/netwise/internal/model"
	"github.com/hitoshi/netwise/internal/repository"
)

// Service は通知一覧・既読管理のサービス。
type Service struct {
	notifRepo repository.NotificationRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(notifRepo repository.NotificationRepository) *Service {
	return &Service{notifRepo: notifRepo}
}

// NotificationSummary は通知一覧のサマリー情報。
type NotificationSummary struct {
	ID        string
	Kind      model.NotificationKind
	ActorID   string
	SubjectID string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// ListResult はListNotificationsの戻り値。
type ListResult struct {
	Notifications []NotificationSummary
	UnreadCount   int
	NextCursor    string
	HasMore       bool
}

// ListNotifications は受信者の通知を新しい順にページネーション付きで返す。
// カーソルは「<created_at>_<id>」形式で、created_atが同一の行を
// ページ境界で取り落とさないようidでタイブレークする。
// limit+1件を取得してHasMoreを判定する。未読件数も併せて返す。
func (s *Service) ListNotifications(
	ctx context.Context,
	recipientID string,
	cursorStr string,
	limit int,
) (*ListResult, error) {
	cursor, cursorID, err := parseCursor(cursorStr)
	if err != nil {
		return nil, err
	}

	// limit+1件を取得してHasMoreを判定する
	fetchLimit := limit + 1
	notifications, err := s.notifRepo.ListByRecipient(ctx, recipientID, cursor, cursorID, fetchLimit)
	if err != nil {
		return nil, err
	}

	hasMore := len(notifications) > limit
	if hasMore {
		notifications = notifications[:limit] // 余分な1件を除外
	}

	summaries := make([]NotificationSummary, len(notifications))
	for i, n := range notifications {
		summaries[i] = NotificationSummary{
			ID:        n.ID,
			Kind:      n.Kind,
			ActorID:   n.ActorID,
			SubjectID: n.SubjectID,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
	}

	// HasMoreの場合、最後の通知の(created_at, id)をNextCursorに設定
	var nextCursor string
	if hasMore && len(summaries) > 0 {
		last := summaries[len(summaries)-1]
		nextCursor = last.CreatedAt.Format(time.RFC3339Nano) + "_" + last.ID
	}

	unreadCount, err := s.notifRepo.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Notifications: summaries,
		UnreadCount:   unreadCount,
		NextCursor:    nextCursor,
		HasMore:       hasMore,
	}, nil
}

// parseCursor はカーソル文字列を(created_at, id)に分解する。
// タイブレークIDを持たない素のタイムスタンプも受け付ける。
func parseCursor(cursorStr string) (time.Time, string, error) {
	if cursorStr == "" {
		return time.Time{}, "", nil
	}

	tsStr, cursorID, _ := strings.Cut(cursorStr, "_")
	cursor, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		// RFC3339でもパースを試みる
		cursor, err = time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return time.Time{}, "", model.NewInvalidCursorError(cursorStr)
		}
	}
	if cursorID != "" {
		if _, err := uuid.Parse(cursorID); err != nil {
			return time.Time{}, "", model.NewInvalidCursorError(cursorStr)
		}
	}
	return cursor, cursorID, nil
}

// MarkRead は通知を既読にする。冪等であり、既読の通知を再度既読に
// しても成功する。他ユーザー宛や存在しない通知は見つからない扱いとなる。
func (s *Service) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	found, err := s.notifRepo.MarkRead(ctx, recipientID, notificationID, time.Now())
	if err != nil {
		return err
	}
	if !found {
		return model.NewNotificationNotFoundError(notificationID)
	}
	return nil
}

// MarkAllRead は受信者の全未読通知を既読にし、既読化した件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.notifRepo.MarkAllRead(ctx, recipientID, time.Now())
}
