package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/netwise/internal/metrics"
	"github.com/hitoshi/netwise/internal/model"
	"github.com/hitoshi/netwise/internal/repository"
)

// Presence は受信者の生きているセッションを列挙するインターフェース。
type Presence interface {
	SessionsFor(userID string) []string
}

// Pusher はライブセッションへペイロードを送るインターフェース。
// realtimeパッケージのハブが実装する。
type Pusher interface {
	// Push はセッションにメッセージを送る。セッションが既に閉じている、
	// 送信バッファが溢れている等の場合はエラーを返す。
	Push(sessionID string, msg PushMessage) error
}

// Dispatcher は通知イベントを永続化し、オンラインの受信者へプッシュする。
type Dispatcher struct {
	notifRepo repository.NotificationRepository
	presence  Presence
	pusher    Pusher
	metrics   metrics.MetricsCollector
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(
	notifRepo repository.NotificationRepository,
	presence Presence,
	pusher Pusher,
	collector metrics.MetricsCollector,
) *Dispatcher {
	return &Dispatcher{
		notifRepo: notifRepo,
		presence:  presence,
		pusher:    pusher,
		metrics:   collector,
	}
}

// Dispatch はイベントを通知レコードとして永続化し、受信者の
// 全ライブセッションへベストエフォートでプッシュする。
//
// 冪等キーが既存レコードと衝突した場合は既存レコードを返し、
// プッシュは行わない（二重配信の防止）。
// 永続化に失敗した場合はプッシュせずエラーを返す。
// プッシュの失敗はログに記録して握りつぶす。
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (*model.Notification, error) {
	if !model.ValidNotificationKind(event.Kind) {
		return nil, fmt.Errorf("unknown notification kind: %s", event.Kind)
	}
	if event.RecipientID == "" {
		return nil, fmt.Errorf("recipient ID is required")
	}

	now := time.Now()
	notification := &model.Notification{
		ID:             uuid.New().String(),
		RecipientID:    event.RecipientID,
		Kind:           event.Kind,
		ActorID:        event.ActorID,
		SubjectID:      event.SubjectID,
		Message:        event.Message,
		IdempotencyKey: event.IdempotencyKey(),
		Read:           false,
		CreatedAt:      now,
	}

	created, existing, err := d.notifRepo.Append(ctx, notification)
	if err != nil {
		return nil, fmt.Errorf("failed to append notification: %w", err)
	}

	if !created {
		// 冪等キー衝突: 既存レコードを返し、プッシュはしない
		d.metrics.RecordDuplicateDispatch(string(event.Kind))
		slog.Debug("duplicate dispatch suppressed",
			slog.String("recipient_id", event.RecipientID),
			slog.String("idempotency_key", notification.IdempotencyKey),
		)
		return existing, nil
	}

	d.metrics.RecordDispatch(string(event.Kind))
	d.pushToSessions(notification)

	return notification, nil
}

// pushToSessions は受信者の全ライブセッションへ通知をプッシュする。
// オフラインなら何もしない。個々のプッシュ失敗はログに残すだけで、
// 他セッションへの配信は続行する。
func (d *Dispatcher) pushToSessions(n *model.Notification) {
	sessions := d.presence.SessionsFor(n.RecipientID)
	if len(sessions) == 0 {
		return
	}

	msg := PushMessage{
		NotificationID: n.ID,
		Kind:           string(n.Kind),
		ActorID:        n.ActorID,
		SubjectID:      n.SubjectID,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339Nano),
	}

	for _, sessionID := range sessions {
		if err := d.pusher.Push(sessionID, msg); err != nil {
			d.metrics.RecordPushFailure()
			slog.Warn("failed to push notification",
				slog.String("notification_id", n.ID),
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		d.metrics.RecordPushSuccess()
	}
}
